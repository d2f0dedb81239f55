// Package llm implements model provider clients and the generation cache.
package llm

import (
	"context"
)

// Message is one chat turn handed to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is the interface for chat completion clients.
type Provider interface {
	// Generate sends a completion request and returns the full response.
	Generate(ctx context.Context, model string, messages []Message) (string, error)
	// GenerateStream streams the response into chunks, closing the
	// channel when done.
	GenerateStream(ctx context.Context, model string, messages []Message, chunks chan<- string) error
	// DefaultModel returns the configured default model.
	DefaultModel() string
}

// Embedder is implemented by providers that can embed text. Callers
// discover it with a type assertion on Provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type tenantKey struct{}

// WithTenant tags ctx with the tenant owning the request.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenant)
}

// TenantFrom returns the tenant tagged on ctx, or "default".
func TenantFrom(ctx context.Context) string {
	if t, ok := ctx.Value(tenantKey{}).(string); ok && t != "" {
		return t
	}
	return "default"
}
