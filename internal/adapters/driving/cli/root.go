// Package cli provides the command-line interface for FinanceScope.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	filecfg "github.com/financescope/financescope/internal/adapters/driven/config/file"
	embollama "github.com/financescope/financescope/internal/adapters/driven/embedding/ollama"
	embopenai "github.com/financescope/financescope/internal/adapters/driven/embedding/openai"
	llmollama "github.com/financescope/financescope/internal/adapters/driven/llm/ollama"
	llmopenai "github.com/financescope/financescope/internal/adapters/driven/llm/openai"
	pdfext "github.com/financescope/financescope/internal/adapters/driven/pdf"
	"github.com/financescope/financescope/internal/adapters/driven/storage/sqlite"
	"github.com/financescope/financescope/internal/chunker"
	"github.com/financescope/financescope/internal/core/ports/driven"
	"github.com/financescope/financescope/internal/core/ports/driving"
	"github.com/financescope/financescope/internal/core/services"
	"github.com/financescope/financescope/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services wired by initServices. Commands nil-check these so tests
// can inject substitutes.
var (
	configStore    driven.ConfigStore
	store          *sqlite.Store
	ingestService  driving.IngestService
	queryService   driving.QueryService
	extractService driving.ExtractService
)

var verboseFlag bool

var rootCmd = &cobra.Command{
	Use:   "financescope",
	Short: "Question answering and metric extraction over financial PDF reports",
	Long: `FinanceScope ingests financial and legal PDF reports, indexes them
for semantic retrieval and answers questions with page-level citations.
It can also extract structured metrics (revenue, margins, dates) with
validation against expected types and ranges.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verboseFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose diagnostics on stderr")
}

// Execute wires the services and runs the root command. Interrupt and
// termination signals cancel the command context so in-flight provider
// calls and storage writes stop cleanly.
func Execute() error {
	defer closeServices()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

// initServices constructs the adapter stack and core services.
// Called lazily by commands that need them, so help and version run
// without touching storage or providers.
func initServices() error {
	if ingestService != nil {
		return nil
	}

	// Optional .env for API keys; absence is fine.
	_ = godotenv.Load()

	var err error
	configStore, err = filecfg.NewConfigStore(os.Getenv("FINANCESCOPE_CONFIG_DIR"))
	if err != nil {
		return fmt.Errorf("opening config: %w", err)
	}

	store, err = sqlite.NewStore(configStore.GetString("storage.data_dir"))
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	embedder, err := newEmbedder()
	if err != nil {
		return err
	}
	llm, err := newLLM()
	if err != nil {
		return err
	}

	var chunkOpts []chunker.Option
	if w := configStore.GetInt("chunking.window"); w > 0 {
		chunkOpts = append(chunkOpts, chunker.WithWindowSize(w))
	}
	if o := configStore.GetInt("chunking.overlap"); o > 0 {
		chunkOpts = append(chunkOpts, chunker.WithOverlap(o))
	}
	ch := chunker.New(chunkOpts...)

	docStore := store.DocumentStore()
	index := store.VectorIndex()

	var ingestOpts []services.IngestorOption
	if n := configStore.GetInt("ingest.batch_size"); n > 0 {
		ingestOpts = append(ingestOpts, services.WithEmbedBatchSize(n))
	}
	if n := configStore.GetInt("ingest.workers"); n > 0 {
		ingestOpts = append(ingestOpts, services.WithWorkers(n))
	}
	ingestService = services.NewIngestor(pdfext.NewExtractor(), ch, docStore, embedder, index, ingestOpts...)

	retriever := services.NewRetriever(embedder, index, docStore)

	var synthOpts []services.SynthesizerOption
	if th := configStore.GetFloat("retrieval.threshold"); th > 0 {
		synthOpts = append(synthOpts, services.WithRelevanceThreshold(th))
	}
	if k := configStore.GetInt("retrieval.top_k"); k > 0 {
		synthOpts = append(synthOpts, services.WithTopK(k))
	}
	queryService = services.NewSynthesizer(retriever, llm, synthOpts...)

	var extractOpts []services.ExtractorOption
	if th := configStore.GetFloat("retrieval.threshold"); th > 0 {
		extractOpts = append(extractOpts, services.WithExtractThreshold(th))
	}
	extractService = services.NewExtractor(retriever, llm, extractOpts...)

	return nil
}

// newEmbedder builds the configured embedding provider.
// Defaults to OpenAI when an API key is present, Ollama otherwise.
func newEmbedder() (driven.EmbeddingService, error) {
	provider := configStore.GetString("embedding.provider")
	if provider == "" {
		if os.Getenv("OPENAI_API_KEY") != "" {
			provider = "openai"
		} else {
			provider = "ollama"
		}
	}

	switch provider {
	case "openai":
		return embopenai.NewEmbeddingService(embopenai.Config{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: configStore.GetString("embedding.base_url"),
			Model:   configStore.GetString("embedding.model"),
		})
	case "ollama":
		return embollama.NewEmbeddingService(embollama.Config{
			BaseURL:    configStore.GetString("embedding.base_url"),
			Model:      configStore.GetString("embedding.model"),
			Dimensions: configStore.GetInt("embedding.dimensions"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

// newLLM builds the configured completion provider.
func newLLM() (driven.LLMService, error) {
	provider := configStore.GetString("llm.provider")
	if provider == "" {
		if os.Getenv("OPENAI_API_KEY") != "" {
			provider = "openai"
		} else {
			provider = "ollama"
		}
	}

	switch provider {
	case "openai":
		return llmopenai.NewLLMService(llmopenai.Config{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: configStore.GetString("llm.base_url"),
			Model:   configStore.GetString("llm.model"),
		})
	case "ollama":
		return llmollama.NewLLMService(llmollama.Config{
			BaseURL: configStore.GetString("llm.base_url"),
			Model:   configStore.GetString("llm.model"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

func closeServices() {
	if store != nil {
		_ = store.Close()
	}
}
