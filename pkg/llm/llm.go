// Package llm defines the chat-completion contract the report module uses to
// phrase summaries. Adapters live under internal/llm.
package llm

import "context"

// Provider turns a conversation into a completion.
type Provider interface {
	Chat(ctx context.Context, messages []Message, opts ...Option) (*Response, error)
}

// Pinger is implemented by providers that can check reachability without
// spending tokens.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Request holds the per-call knobs resolved from Options. A zero Model means
// the provider's configured default.
type Request struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Option adjusts a single Chat call.
type Option func(*Request)

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(r *Request) { r.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(r *Request) { r.Temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(r *Request) { r.MaxTokens = n }
}

// Resolve applies opts over the summary defaults: a low temperature and a
// completion short enough for a chat message.
func Resolve(opts ...Option) Request {
	r := Request{Temperature: 0.2, MaxTokens: 300}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}
