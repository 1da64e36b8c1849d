package analyze

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/anavidal/bentos/internal/species"
)

// Context cleaning runs a fixed substitution sequence. Order matters: the
// full marker shape is removed first, then progressively shorter timestamp
// fragments, so that a partial strip never leaves digits a later pattern
// would misread as depth or size measurements.
var contextStrips = []*regexp.Regexp{
	regexp.MustCompile(`\[\d{2}:\d{2}:\d{2}\.\d{3}\s*-->\s*\d{2}:\d{2}:\d{2}\.\d{3}\]`),
	regexp.MustCompile(`\d{2}:\d{2}:\d{2}\.\d{3}`),
	regexp.MustCompile(`:\d{2}:\d{2}\.\d{3}`),
	regexp.MustCompile(`\d{2}:\d{2}\.\d{3}`),
	regexp.MustCompile(`\d{2}:\d{2}`),
	regexp.MustCompile(`\[.*?\]`),
	regexp.MustCompile(`-->`),
	regexp.MustCompile(`\d+\.\d+`),
	regexp.MustCompile(`[\[\]]`),
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// cleanContext extracts the window of text around byte offset pos, strips
// marker and timestamp debris, and collapses whitespace.
func cleanContext(text string, pos, window int) string {
	snippet := windowAround(text, pos, window)
	for _, re := range contextStrips {
		snippet = re.ReplaceAllString(snippet, "")
	}
	snippet = strings.ReplaceAll(snippet, "\n", " ")
	snippet = whitespaceRun.ReplaceAllString(snippet, " ")
	return strings.TrimSpace(snippet)
}

var (
	depthPattern = regexp.MustCompile(`(\d+)\s*metros?`)
	sizePattern  = regexp.MustCompile(`(\d+)\s*cm`)
)

// additionalInfo scans a cleaned context snippet for measurements and
// behavioral vocabulary. The pieces are joined with "; " in a fixed order:
// depth, size, behavior.
func additionalInfo(context string) string {
	var parts []string

	if m := depthPattern.FindStringSubmatch(context); m != nil {
		parts = append(parts, fmt.Sprintf("Profundidad: %sm", m[1]))
	}
	if m := sizePattern.FindStringSubmatch(context); m != nil {
		parts = append(parts, fmt.Sprintf("Tamaño: %scm", m[1]))
	}

	lower := strings.ToLower(context)
	for _, kw := range species.BehaviorKeywords {
		if strings.Contains(lower, kw) {
			parts = append(parts, "Menciona "+kw)
		}
	}

	return strings.Join(parts, "; ")
}
