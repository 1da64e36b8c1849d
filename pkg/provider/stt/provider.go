// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider turns expedition audio, already decoded to 16 kHz mono
// float32 samples, into timed transcript segments. The segments serialize
// into the same timestamp-marker text that hand-written dive transcripts
// use, so downstream analysis never needs to know whether a transcript came
// from a human or from a recognition model.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/anavidal/bentos/pkg/types"
)

// SampleRate is the input sample rate every provider expects, in Hz.
// Recordings at other rates must be resampled before transcription.
const SampleRate = 16000

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// Name returns the provider identifier for logging and metrics.
	Name() string

	// Transcribe runs recognition over a complete recording. The samples
	// must be mono float32 in [-1, 1] at SampleRate Hz. language is a
	// two-letter code such as "es" or "en"; an empty string selects the
	// provider's configured default. Segments are returned in
	// chronological order.
	Transcribe(ctx context.Context, samples []float32, language string) ([]types.TranscriptSegment, error)
}
