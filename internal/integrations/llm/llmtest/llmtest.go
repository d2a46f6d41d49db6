// Package llmtest provides scripted gateways for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrUnavailable = errors.New("llmtest: gateway unavailable")

type Call struct {
	Prompt string
	Model  string
}

// Route answers prompts containing Contains.
type Route struct {
	Contains string
	Text     string
	Err      error
}

type Gateway struct {
	mu      sync.Mutex
	respond func(prompt, model string) (string, error)
	calls   []Call
}

func New(respond func(prompt, model string) (string, error)) *Gateway {
	return &Gateway{respond: respond}
}

// Static answers every prompt with text.
func Static(text string) *Gateway {
	return New(func(string, string) (string, error) { return text, nil })
}

// Failing fails every call with err, or ErrUnavailable when err is nil.
func Failing(err error) *Gateway {
	if err == nil {
		err = ErrUnavailable
	}
	return New(func(string, string) (string, error) { return "", err })
}

// Routes answers with the first route whose marker is in the prompt and
// fails with ErrUnavailable otherwise.
func Routes(routes ...Route) *Gateway {
	return New(func(prompt, _ string) (string, error) {
		for _, r := range routes {
			if strings.Contains(prompt, r.Contains) {
				return r.Text, r.Err
			}
		}
		return "", ErrUnavailable
	})
}

func (g *Gateway) Generate(ctx context.Context, prompt, model string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, Call{Prompt: prompt, Model: model})
	respond := g.respond
	g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return respond(prompt, model)
}

func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// Models returns the model id of every call in order.
func (g *Gateway) Models() []string {
	calls := g.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Model
	}
	return out
}
