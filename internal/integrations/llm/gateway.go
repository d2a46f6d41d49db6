// Package llm is the language model gateway: a single prompt-in, text-out
// call routed to a provider by model id. It holds no support logic.
package llm

import (
	"context"
	"errors"
)

var ErrUnknownModel = errors.New("unknown model")

// Gateway generates text for a prompt with the given model id.
type Gateway interface {
	Generate(ctx context.Context, prompt, model string) (string, error)
}

// GatewayFunc adapts a plain function to Gateway.
type GatewayFunc func(ctx context.Context, prompt, model string) (string, error)

func (f GatewayFunc) Generate(ctx context.Context, prompt, model string) (string, error) {
	return f(ctx, prompt, model)
}

// Client is a gateway bound to one model for the lifetime of a request.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

type boundClient struct {
	gateway Gateway
	model   string
}

// Bind fixes the model id so concurrent requests can run against different
// models without sharing mutable state.
func Bind(gateway Gateway, model string) Client {
	return boundClient{gateway: gateway, model: model}
}

func (c boundClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.gateway == nil {
		return "", errors.New("llm gateway not configured")
	}
	return c.gateway.Generate(ctx, prompt, c.model)
}

func (c boundClient) Model() string {
	return c.model
}
