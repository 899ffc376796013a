package driven

import "context"

// LLMService provides language model completions for grounded answer
// synthesis and metric extraction.
//
// Implementations may include:
//   - OpenAI (gpt-4o, gpt-4o-mini)
//   - Ollama (local models)
type LLMService interface {
	// Complete produces a completion for the prompt under the given
	// constraints.
	Complete(ctx context.Context, prompt string, constraints Constraints) (string, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Close releases resources.
	Close() error
}

// Constraints bounds a completion request.
type Constraints struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64

	// StopWords are sequences that stop generation when encountered.
	StopWords []string
}
