package analyze

import (
	"fmt"
	"regexp"

	"github.com/anavidal/bentos/internal/species"
	"github.com/anavidal/bentos/internal/subtitle"
	"github.com/anavidal/bentos/pkg/types"
)

// Binomial nomenclature shapes. ASCII letter classes are intentional: Latin
// binomials never carry accents, and keeping the genus strictly [A-Z][a-z]+
// rejects mid-sentence Spanish words with accented continuations
// ("El Pacífico" never matches).
var (
	binomialPattern = regexp.MustCompile(`\b([A-Z][a-z]+)\s+([a-z]+)\b`)
	genusSpPattern  = regexp.MustCompile(`\b([A-Z][a-z]+)\s+sp\.`)
	genusCfPattern  = regexp.MustCompile(`\b([A-Z][a-z]+)\s+cf\.\s+([a-z]+)\b`)
)

// scientificNameStrategy matches capitalized Genus+species binomials, the
// open-nomenclature "Genus sp." form, and the "Genus cf. species" form.
// Every captured token must survive the stop-word check: sentence-initial
// Spanish ("Vimos un…") produces exactly this shape and must be rejected.
type scientificNameStrategy struct {
	b *builder
}

func (s *scientificNameStrategy) Name() string { return "scientific_name" }

func (s *scientificNameStrategy) Scan(doc *subtitle.Document) []types.Mention {
	text := doc.Text()
	var out []types.Mention

	for _, loc := range binomialPattern.FindAllStringSubmatchIndex(text, -1) {
		genus := text[loc[2]:loc[3]]
		epithet := text[loc[4]:loc[5]]
		// The abbreviated forms have their own patterns below.
		if epithet == "sp" || epithet == "cf" {
			continue
		}
		if species.IsStopWord(genus) || species.IsStopWord(epithet) {
			continue
		}
		out = append(out, s.mention(doc, fmt.Sprintf("%s %s", genus, epithet), loc[0], confidenceBinomial))
	}

	for _, loc := range genusSpPattern.FindAllStringSubmatchIndex(text, -1) {
		genus := text[loc[2]:loc[3]]
		if species.IsStopWord(genus) {
			continue
		}
		out = append(out, s.mention(doc, genus+" sp.", loc[0], confidenceGenusSp))
	}

	for _, loc := range genusCfPattern.FindAllStringSubmatchIndex(text, -1) {
		genus := text[loc[2]:loc[3]]
		epithet := text[loc[4]:loc[5]]
		if species.IsStopWord(genus) || species.IsStopWord(epithet) {
			continue
		}
		out = append(out, s.mention(doc, fmt.Sprintf("%s cf. %s", genus, epithet), loc[0], confidenceBinomial))
	}

	return out
}

// mention builds a scientific-name mention: phylum unknown, the matched
// binomial carried verbatim as the scientific name.
func (s *scientificNameStrategy) mention(doc *subtitle.Document, name string, pos int, confidence float64) types.Mention {
	m := s.b.mention(doc, name, species.UnknownPhylum, pos)
	m.ScientificName = name
	m.Method = types.MethodScientificName
	m.Confidence = confidence
	return m
}
