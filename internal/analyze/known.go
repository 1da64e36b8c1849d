package analyze

import (
	"github.com/anavidal/bentos/internal/species"
	"github.com/anavidal/bentos/internal/subtitle"
	"github.com/anavidal/bentos/pkg/types"
)

// knownPatternStrategy matches the fixed per-phylum vocabulary of common
// Spanish species names. Matches are emitted in table order (phylum by
// phylum, pattern by pattern), each carrying the phylum the table assigns.
type knownPatternStrategy struct {
	b *builder
}

func (s *knownPatternStrategy) Name() string { return "known_pattern" }

func (s *knownPatternStrategy) Scan(doc *subtitle.Document) []types.Mention {
	text := doc.Text()
	var out []types.Mention
	for _, group := range species.KnownPatterns() {
		for _, re := range group.Patterns {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				m := s.b.mention(doc, text[loc[0]:loc[1]], group.Phylum, loc[0])
				m.Method = types.MethodKnownPattern
				m.Confidence = confidenceKnownPattern
				out = append(out, m)
			}
		}
	}
	return out
}
