// Package mock provides a configurable in-memory stt.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/anavidal/bentos/pkg/provider/stt"
	"github.com/anavidal/bentos/pkg/types"
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Call records a single invocation of Provider.Transcribe.
type Call struct {
	// SampleCount is the number of samples passed to Transcribe.
	SampleCount int

	// Language is the language code passed to Transcribe.
	Language string
}

// Provider is a mock implementation of stt.Provider. The zero value returns
// no segments; set Segments, Err, or TranscribeFunc to steer behaviour.
// Safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// Segments is returned by Transcribe when TranscribeFunc is nil.
	Segments []types.TranscriptSegment

	// Err, when non-nil, is returned by Transcribe instead of Segments.
	Err error

	// TranscribeFunc, when set, fully overrides Transcribe.
	TranscribeFunc func(ctx context.Context, samples []float32, language string) ([]types.TranscriptSegment, error)

	// Calls records every Transcribe invocation, in order.
	Calls []Call
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "mock" }

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, language string) ([]types.TranscriptSegment, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{SampleCount: len(samples), Language: language})
	fn, segs, err := p.TranscribeFunc, p.Segments, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, samples, language)
	}
	if err != nil {
		return nil, err
	}
	out := make([]types.TranscriptSegment, len(segs))
	copy(out, segs)
	return out, nil
}

// CallCount returns how many times Transcribe has been called.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
