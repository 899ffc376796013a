package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/financescope/financescope/internal/core/domain"
)

var (
	askDocs        []string
	askJSON        bool
	askInteractive bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about ingested documents",
	Long: `Answers a natural-language question grounded in the ingested
documents. Every claim in the answer carries a page-level citation; when
no relevant evidence is found, the command says so instead of guessing.

With --interactive, opens a session where follow-up questions are
resolved against the conversation so far.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringSliceVarP(&askDocs, "doc", "d", nil, "restrict to document IDs (repeatable)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	askCmd.Flags().BoolVarP(&askInteractive, "interactive", "i", false, "start an interactive question session")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := initServices(); err != nil {
		return err
	}
	if queryService == nil {
		return errors.New("query service not configured")
	}

	if askInteractive {
		return runAskSession(cmd)
	}

	if len(args) == 0 {
		return errors.New("a question is required unless --interactive is set")
	}

	answer, err := queryService.Ask(cmd.Context(), args[0], askDocs, nil)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		return outputAnswerJSON(cmd, answer)
	}
	printAnswer(cmd, answer)
	return nil
}

// runAskSession runs a read-answer loop, carrying conversation history
// so follow-up questions resolve against prior turns.
func runAskSession(cmd *cobra.Command) error {
	sessionID := uuid.NewString()[:8]
	cmd.Printf("Session %s. Type a question, or \"exit\" to quit.\n\n", sessionID)

	var history []domain.Turn
	scanner := bufio.NewScanner(os.Stdin)
	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		answer, err := queryService.Ask(cmd.Context(), question, askDocs, history)
		if err != nil {
			cmd.Printf("error: %v\n", err)
			continue
		}
		printAnswer(cmd, answer)

		history = append(history,
			domain.Turn{Role: "user", Content: question},
			domain.Turn{Role: "assistant", Content: answer.Answer},
		)
	}
	return scanner.Err()
}

func printAnswer(cmd *cobra.Command, answer *domain.AnsweredQuery) {
	cmd.Println(answer.Answer)

	if answer.InsufficientEvidence {
		return
	}
	if answer.GroundingViolation {
		cmd.Println("\nnote: the model referenced evidence outside the retrieved set; those references were dropped")
	}

	if len(answer.Citations) > 0 {
		cmd.Println("\nSources:")
		for i, c := range answer.Citations {
			cmd.Printf("  [%d] %s p.%d (%s)\n", i+1, c.DocumentID, c.Page, c.ChunkID)
		}
	}
}

func outputAnswerJSON(cmd *cobra.Command, answer *domain.AnsweredQuery) error {
	data, err := json.MarshalIndent(answer, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
