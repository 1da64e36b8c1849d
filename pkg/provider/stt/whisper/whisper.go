// This file contains the Provider implementation backed by the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/anavidal/bentos/pkg/provider/stt"
	"github.com/anavidal/bentos/pkg/types"
)

const defaultLanguage = "es"

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using whisper.cpp Go bindings (CGO),
// eliminating HTTP overhead entirely. The model is loaded once at startup
// and shared across all transcriptions.
type Provider struct {
	model    whisperlib.Model
	language string
	threads  uint
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default two-letter language code for transcription
// (e.g., "es", "en"). Defaults to "es".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithThreads sets the number of CPU threads whisper.cpp uses per
// transcription. Zero leaves the binding's default in place.
func WithThreads(n uint) Option {
	return func(p *Provider) { p.threads = n }
}

// New creates a Provider that loads the whisper.cpp model from the given
// file path. The model is loaded once and shared across all concurrent
// transcriptions. The caller must call Close when the provider is no longer
// needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "whisper" }

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements stt.Provider. Each call creates its own whisper.cpp
// context from the shared model, so multiple transcriptions can run
// concurrently without interference.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, language string) ([]types.TranscriptSegment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if len(samples) == 0 {
		return nil, errors.New("whisper: no samples")
	}

	lang := language
	if lang == "" {
		lang = p.language
	}

	// Contexts are NOT thread-safe, but the model can be shared across
	// goroutines.
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var segments []types.TranscriptSegment
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		segments = append(segments, types.TranscriptSegment{
			Start: segment.Start,
			End:   segment.End,
			Text:  text,
		})
	}

	return segments, nil
}
