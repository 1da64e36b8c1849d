// Package subtitle parses the time-range markers embedded in subtitle-style
// transcripts and answers "which timestamp belongs to text position P?".
//
// The expected marker shape is exactly
//
//	[HH:MM:SS.mmm --> HH:MM:SS.mmm]
//
// with two-digit hours, minutes and seconds and three-digit milliseconds.
// Anything that deviates from this shape is simply not a marker — it is
// never an error, the affected text region just falls back to the nearest
// marker elsewhere, or to the [Sentinel] when the document has none.
//
// A [Document] pre-extracts every marker offset once at construction so that
// per-mention lookups are a binary search instead of a backward regex scan.
// Documents are immutable and safe for concurrent use.
package subtitle

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/anavidal/bentos/pkg/types"
)

// Sentinel is the timestamp reported for documents without any marker, and
// the minimum value unparseable timestamps collapse to during sorting.
const Sentinel = "00:00:00.000"

// markerPattern matches one complete time-range marker. The digit groups are
// anchored to exactly 2+2+2+3 digits, so a captured timestamp always parses.
var markerPattern = regexp.MustCompile(`\[(\d{2}:\d{2}:\d{2}\.\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2}\.\d{3})\]`)

// Marker is a single time-range annotation found in the transcript.
type Marker struct {
	// Offset is the byte offset of the opening bracket in the source text.
	Offset int

	// Start and End are the raw HH:MM:SS.mmm timestamp strings.
	Start string
	End   string
}

// Document is a transcript with its markers pre-indexed. The zero value is
// not usable; construct with [NewDocument].
type Document struct {
	text    string
	markers []Marker
}

// NewDocument scans text once for time-range markers and returns an indexed
// Document. The scan is the only full pass over the text this package makes;
// all later lookups are O(log n) in the marker count.
func NewDocument(text string) *Document {
	locs := markerPattern.FindAllStringSubmatchIndex(text, -1)
	markers := make([]Marker, 0, len(locs))
	for _, loc := range locs {
		markers = append(markers, Marker{
			Offset: loc[0],
			Start:  text[loc[2]:loc[3]],
			End:    text[loc[4]:loc[5]],
		})
	}
	return &Document{text: text, markers: markers}
}

// Text returns the raw transcript text.
func (d *Document) Text() string { return d.text }

// Markers returns the indexed markers in document order. The returned slice
// must not be modified.
func (d *Document) Markers() []Marker { return d.markers }

// NearestStart returns the start timestamp of the marker associated with the
// text at byte offset pos: the nearest marker preceding pos, or — when no
// marker precedes it (a mention before the first cue, e.g. a title card) —
// the nearest following marker. Documents without markers report [Sentinel].
func (d *Document) NearestStart(pos int) string {
	if len(d.markers) == 0 {
		return Sentinel
	}
	// Index of the first marker at or after pos.
	i := sort.Search(len(d.markers), func(i int) bool {
		return d.markers[i].Offset >= pos
	})
	if i > 0 {
		return d.markers[i-1].Start
	}
	return d.markers[0].Start
}

// ParseTimestamp converts an HH:MM:SS.mmm string into a duration since the
// start of the transcript. Malformed input returns an error; callers that
// need total behavior should substitute zero (the [Sentinel] position) —
// see the deduplicator, which does exactly that.
func ParseTimestamp(ts string) (time.Duration, error) {
	parts := strings.Split(ts, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("subtitle: malformed timestamp %q", ts)
	}
	secParts := strings.SplitN(parts[2], ".", 2)

	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("subtitle: malformed timestamp %q: %w", ts, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("subtitle: malformed timestamp %q: %w", ts, err)
	}
	s, err := strconv.Atoi(secParts[0])
	if err != nil {
		return 0, fmt.Errorf("subtitle: malformed timestamp %q: %w", ts, err)
	}
	var ms int
	if len(secParts) == 2 {
		ms, err = strconv.Atoi(secParts[1])
		if err != nil {
			return 0, fmt.Errorf("subtitle: malformed timestamp %q: %w", ts, err)
		}
	}

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}

// FormatTimestamp renders a duration in the marker timestamp shape
// HH:MM:SS.mmm. Negative durations are clamped to zero.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// RenderSegments serializes machine transcription segments into marker-format
// text, one "[start --> end]" line followed by the segment text per segment.
// The output round-trips through NewDocument: every rendered marker is found
// again and maps its segment text to the segment's start time.
func RenderSegments(segments []types.TranscriptSegment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s --> %s]\n%s",
			FormatTimestamp(seg.Start), FormatTimestamp(seg.End), seg.Text)
	}
	return b.String()
}
