// Package thumbs generates per-sighting thumbnail images by grabbing video
// frames at each species' first-sighting timestamp.
//
// The expedition video is fetched once with yt-dlp, then ffmpeg extracts one
// frame per sighting. Both tools are invoked as subprocesses; their paths are
// configurable so packaged builds can pin exact binaries. Frame extraction is
// best-effort: a failed grab leaves that species without a thumbnail and the
// run continues.
package thumbs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/anavidal/bentos/internal/observe"
	"github.com/anavidal/bentos/internal/subtitle"
	"github.com/anavidal/bentos/pkg/types"
)

// videoBasename is the fixed name the downloaded expedition video is stored
// under, independent of its source URL.
const videoBasename = "expedicion_marina"

// extractTimeout bounds a single ffmpeg frame grab.
const extractTimeout = 10 * time.Second

// Config configures a [Generator].
type Config struct {
	// VideoURL is the expedition video source passed to yt-dlp.
	VideoURL string

	// OutputDir receives the video, the thumbnail images, and the index.
	OutputDir string

	// YtDlpPath overrides the yt-dlp binary. Default "yt-dlp".
	YtDlpPath string

	// FfmpegPath overrides the ffmpeg binary. Default "ffmpeg".
	FfmpegPath string
}

// Generator downloads the expedition video and extracts sighting frames.
type Generator struct {
	cfg     Config
	metrics *observe.Metrics

	// run executes a subprocess and returns its combined output. Swapped in
	// tests to avoid real tool invocations.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Option configures a [Generator].
type Option func(*Generator)

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// New returns a Generator for the given config.
func New(cfg Config, opts ...Option) *Generator {
	if cfg.YtDlpPath == "" {
		cfg.YtDlpPath = "yt-dlp"
	}
	if cfg.FfmpegPath == "" {
		cfg.FfmpegPath = "ffmpeg"
	}
	g := &Generator{
		cfg: cfg,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g
}

// CheckTools verifies that both external binaries resolve on PATH (or at
// their configured locations). Call before Generate to fail fast.
func (g *Generator) CheckTools() error {
	for _, tool := range []string{g.cfg.YtDlpPath, g.cfg.FfmpegPath} {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("thumbs: tool not available: %w", err)
		}
	}
	return nil
}

// Generate produces one thumbnail per species in the report and returns the
// timestamp-keyed index, which is also written to the output directory.
// Existing images are reused, so interrupted runs resume where they stopped.
func (g *Generator) Generate(ctx context.Context, report *types.Report) (Index, error) {
	if g.cfg.VideoURL == "" {
		return nil, fmt.Errorf("thumbs: no video URL configured")
	}
	if err := os.MkdirAll(g.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("thumbs: create output dir: %w", err)
	}

	video, err := g.ensureVideo(ctx)
	if err != nil {
		return nil, err
	}

	log := observe.Logger(ctx)
	index := Index{}
	for _, m := range report.Species {
		if _, done := index[m.Timestamp]; done {
			continue
		}
		filename := frameFilename(m.CommonName, m.Timestamp)
		path := filepath.Join(g.cfg.OutputDir, filename)
		if _, statErr := os.Stat(path); statErr == nil {
			index[m.Timestamp] = filename
			continue
		}
		if err := g.extractFrame(ctx, video, m.Timestamp, path); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("frame extraction failed",
				slog.String("species", m.CommonName),
				slog.String("timestamp", m.Timestamp),
				slog.Any("error", err),
			)
			continue
		}
		index[m.Timestamp] = filename
	}

	if err := index.Save(filepath.Join(g.cfg.OutputDir, IndexFilename)); err != nil {
		return nil, err
	}
	log.Info("thumbnails generated",
		slog.Int("thumbnails", len(index)),
		slog.Int("species", len(report.Species)),
	)
	return index, nil
}

// ensureVideo downloads the expedition video unless it is already present,
// and returns its path.
func (g *Generator) ensureVideo(ctx context.Context) (string, error) {
	path := filepath.Join(g.cfg.OutputDir, videoBasename+".mp4")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	slog.Info("downloading expedition video", slog.String("url", g.cfg.VideoURL))
	out, err := g.run(ctx, g.cfg.YtDlpPath,
		"--format", "best[height<=720]",
		"--output", filepath.Join(g.cfg.OutputDir, videoBasename+".%(ext)s"),
		g.cfg.VideoURL,
	)
	if err != nil {
		return "", fmt.Errorf("thumbs: yt-dlp: %w: %s", err, strings.TrimSpace(string(out)))
	}

	matches, err := filepath.Glob(filepath.Join(g.cfg.OutputDir, videoBasename+".*"))
	if err != nil {
		return "", fmt.Errorf("thumbs: locate downloaded video: %w", err)
	}
	for _, m := range matches {
		// yt-dlp may also write a .webp cover image alongside the video.
		if ext := filepath.Ext(m); ext != ".webp" && ext != ".json" {
			return m, nil
		}
	}
	return "", fmt.Errorf("thumbs: downloaded video not found in %s", g.cfg.OutputDir)
}

// extractFrame grabs a single frame at the given timestamp into dest.
func (g *Generator) extractFrame(ctx context.Context, video, timestamp, dest string) error {
	d, err := subtitle.ParseTimestamp(timestamp)
	if err != nil {
		return fmt.Errorf("thumbs: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	start := time.Now()
	out, err := g.run(ctx, g.cfg.FfmpegPath,
		"-ss", fmt.Sprintf("%.3f", d.Seconds()),
		"-i", video,
		"-vframes", "1",
		"-q:v", "3",
		"-y",
		"-loglevel", "error",
		dest,
	)
	g.metrics.ThumbnailDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("thumbs: ffmpeg: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// frameFilename builds a filesystem-safe image name from the species name
// and its sighting timestamp.
func frameFilename(species, timestamp string) string {
	safeSpecies := unsafeChars.ReplaceAllString(species, "_")
	safeTimestamp := strings.NewReplacer(":", "_", ".", "_").Replace(timestamp)
	return safeSpecies + "_" + safeTimestamp + ".jpg"
}
