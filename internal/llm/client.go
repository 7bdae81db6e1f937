// Package llm speaks the Anthropic Messages API on behalf of the agent
// loop. Only one backend is supported.
package llm

import "context"

// Exchanger performs one request/response round with the backend.
//
// A returned error is an *ExchangeError whenever the backend or the
// network failed; its Diagnostic is suitable to show the user.
type Exchanger interface {
	Exchange(ctx context.Context, req *Request) (*Response, error)
}

// CredentialSource supplies the API key and model for each exchange.
// Both may change at runtime from the admin console.
type CredentialSource interface {
	Credentials() (apiKey, model string)
}

// StaticCredentials is a CredentialSource with fixed values.
type StaticCredentials struct {
	APIKey string
	Model  string
}

// Credentials implements CredentialSource.
func (s StaticCredentials) Credentials() (string, string) {
	return s.APIKey, s.Model
}
