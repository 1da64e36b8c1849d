package whisper

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"

	"github.com/anavidal/bentos/pkg/provider/stt"
)

// ReadWAV decodes a 16-bit PCM WAV stream into mono float32 samples ready
// for Transcribe. Multi-channel recordings are down-mixed by averaging. The
// stream must already be at stt.SampleRate Hz; resampling is out of scope
// here (ffmpeg handles it upstream).
func ReadWAV(r io.ReadSeeker) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("whisper: not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("whisper: decode wav: %w", err)
	}
	if int(dec.BitDepth) != 16 {
		return nil, fmt.Errorf("whisper: unsupported bit depth %d, want 16", dec.BitDepth)
	}
	if buf.Format.SampleRate != stt.SampleRate {
		return nil, fmt.Errorf("whisper: sample rate %d Hz, want %d Hz", buf.Format.SampleRate, stt.SampleRate)
	}
	return intToFloat32Mono(buf.Data, buf.Format.NumChannels), nil
}

// LoadWAV opens path and decodes it with ReadWAV.
func LoadWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: open %q: %w", path, err)
	}
	defer f.Close()
	return ReadWAV(f)
}
