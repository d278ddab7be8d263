// Package provider abstracts the language model backend behind the Oracle
// interface. One implementation speaks the OpenAI-compatible HTTP API; the
// retry wrapper decorates any Oracle with exponential backoff.
package provider

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options are per-call completion parameters. Zero values fall back to the
// client's configured defaults.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Oracle is the model backend the decision engine and the generators consult.
type Oracle interface {
	// Complete returns the full assistant response for the conversation.
	Complete(ctx context.Context, msgs []Message, opts Options) (string, error)
	// Embed returns the embedding vector for text using the given model.
	Embed(ctx context.Context, text, model string) ([]float64, error)
}
