// api/schemas/interfaces.go
package schemas

import "context"

// GenerationRequest is a provider-agnostic prompt for one model call.
type GenerationRequest struct {
	SystemPrompt    string  `json:"system_prompt,omitempty"`
	UserPrompt      string  `json:"user_prompt"`
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
	ForceJSON       bool    `json:"force_json,omitempty"`
}

// LLMClient is the contract consumed from the model-invocation collaborator.
// Implementations own the per-provider request/response normalization.
type LLMClient interface {
	GenerateResponse(ctx context.Context, req GenerationRequest) (string, error)
}
