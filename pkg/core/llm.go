package core

import "context"

type TokenInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type LLMResponse struct {
	Content string
	Usage   *TokenInfo
}

// GenerateOptions configures a single generation request.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
}

type GenerateOption func(*GenerateOptions)

// NewGenerateOptions creates GenerateOptions with default values.
func NewGenerateOptions() *GenerateOptions {
	return &GenerateOptions{
		MaxTokens:   8192,
		Temperature: 0.5,
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = t
	}
}

// LLM is the language-generation capability consumed by the Reflector and
// Evolver: free-form prompt in, free-form text out. The engine makes no
// assumption about the backend beyond this contract.
type LLM interface {
	Generate(ctx context.Context, prompt string, options ...GenerateOption) (*LLMResponse, error)

	ModelID() string
	ProviderName() string
}
