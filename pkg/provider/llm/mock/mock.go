// Package mock provides a configurable in-memory llm.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/anavidal/bentos/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider. The zero value replies
// with empty content; set Response, Err, or CompleteFunc to steer behaviour.
// Safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Complete when CompleteFunc is nil.
	Response llm.CompletionResponse

	// Err, when non-nil, is returned by Complete instead of Response.
	Err error

	// CompleteFunc, when set, fully overrides Complete.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Requests records every request received, in order.
	Requests []llm.CompletionRequest
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "mock" }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	fn, resp, err := p.CompleteFunc, p.Response, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	out := resp
	return &out, nil
}

// CallCount returns how many requests Complete has received.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}
