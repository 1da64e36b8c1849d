package species

import (
	"regexp"
	"strings"
)

// PhylumPatterns associates a phylum with the compiled word-boundary
// patterns covering its common Spanish names, including plural and
// diminutive variants. The slice order is fixed and determines the
// known-pattern strategy's emission order.
type PhylumPatterns struct {
	Phylum   string
	Patterns []*regexp.Regexp
}

// KnownPatterns returns the fixed per-phylum pattern list. The patterns are
// compiled once at package initialization; the returned slice must not be
// modified.
func KnownPatterns() []PhylumPatterns { return knownPatterns }

var knownPatterns = []PhylumPatterns{
	{"Arthropoda", compileAll(
		`\b(?:balanus|Balanus)\b`,
		`\b(?:langosta|langostas)\b`,
		`\b(?:camarón|camarones|camaroncitos)\b`,
		`\b(?:cangrejo|cangrejos)\b`,
		`\b(?:crustáceo|crustáceos)\b`,
		`\b(?:decápodo|decápodos)\b`,
		`\b(?:isópodo|isópodos)\b`,
		`\b(?:anfípodo|anfípodos)\b`,
	)},
	{"Cnidaria", compileAll(
		`\b(?:coral|corales)\b`,
		`\b(?:anémona|anémonas|anemona)\b`,
		`\b(?:hidro|hidros)\b`,
		`\b(?:octocoral|octocorales)\b`,
		`\b(?:némoda|némodas|nemoda)\b`,
		`\b(?:pólipo|pólipos|polipo)\b`,
		`\b(?:pluma de mar)\b`,
		`\b(?:nidario|nidarios)\b`,
		`\b(?:nidroso|nidrosos)\b`,
	)},
	{"Mollusca", compileAll(
		`\b(?:pulpo|pulpos)\b`,
		`\b(?:caracol|caracoles)\b`,
		`\b(?:quitón|quitones)\b`,
		`\b(?:vivalvo|vivalvos)\b`,
		`\b(?:calamar|calamares)\b`,
		`\b(?:ostra|ostras)\b`,
		`\b(?:mejillón|mejillones)\b`,
	)},
	{"Porifera", compileAll(
		`\b(?:esponja|esponjas)\b`,
		`\b(?:porífero|poríferos|porifero)\b`,
	)},
	{"Echinodermata", compileAll(
		`\b(?:estrella de mar)\b`,
		`\b(?:equinodermo|equinodermos)\b`,
		`\b(?:centa|centas)\b`,
		`\b(?:entolla|entollas)\b`,
		`\b(?:erizo|erizos)\b`,
		`\b(?:pepino de mar)\b`,
	)},
	{"Annelida", compileAll(
		`\b(?:poliqueto|poliquetos)\b`,
		`\b(?:anélido|anélidos)\b`,
	)},
	{"Chordata", compileAll(
		`\b(?:pez|peces)\b`,
		`\b(?:raya|rayas)\b`,
		`\b(?:caballito de mar)\b`,
		`\b(?:ventónico|ventonicos)\b`,
		`\b(?:tiburón|tiburones)\b`,
		`\b(?:atún|atunes)\b`,
	)},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(`(?i)` + p)
	}
	return compiled
}

// stopWords holds common Spanish function words that must never be accepted
// as a genus, species epithet, or candidate name. Membership tests fold
// case but not accents — the set carries the accented spellings it needs.
var stopWords = map[string]struct{}{
	"este": {}, "esta": {}, "esto": {}, "estos": {}, "estas": {}, "como": {}, "para": {}, "por": {},
	"con": {}, "sin": {}, "sobre": {}, "entre": {}, "hacia": {}, "desde": {}, "hasta": {}, "durante": {},
	"antes": {}, "después": {}, "mientras": {}, "cuando": {}, "donde": {}, "quien": {}, "que": {},
	"cual": {}, "cuyo": {}, "cuya": {}, "cuyos": {}, "cuyas": {},
	"todos": {}, "todas": {}, "todo": {}, "nada": {}, "nadie": {}, "alguien": {}, "algo": {},
	"mucho": {}, "poco": {}, "más": {}, "menos": {}, "muy": {}, "tan": {}, "tanto": {}, "tanta": {},
	"aquí": {}, "allí": {}, "ahí": {}, "acá": {}, "allá": {}, "ahora": {},
	"siempre": {}, "nunca": {}, "jamás": {}, "tampoco": {}, "también": {}, "además": {},
	"pero": {}, "aunque": {}, "si": {}, "porque": {}, "pues": {},
	"nosotros": {}, "nosotras": {}, "ustedes": {}, "ellos": {}, "ellas": {}, "yo": {}, "tú": {},
	"vos": {}, "él": {}, "ella": {}, "ello": {}, "sí": {}, "no": {}, "tal": {},
	"cada": {}, "cualquier": {}, "cualquiera": {}, "ningún": {}, "ninguna": {},
	"alguno": {}, "alguna": {}, "otro": {}, "otra": {}, "demás": {}, "mismo": {}, "misma": {},
	// Frequent transcript words that the binomial pattern would otherwise
	// pair into false genera ("El Pacífico").
	"el": {}, "la": {}, "los": {}, "las": {}, "un": {}, "una": {}, "unos": {}, "unas": {},
	"pacífico": {}, "atlántico": {},
}

// foldedStopWords adds the accent-folded spelling of every stop word, since
// transcripts frequently drop accents ("despues", "tambien").
var foldedStopWords = func() map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords)*2)
	for w := range stopWords {
		m[w] = struct{}{}
		m[FoldAccents(w)] = struct{}{}
	}
	return m
}()

// IsStopWord reports whether word (case-folded, accents ignored) is a
// Spanish function word or another term excluded from candidate names.
func IsStopWord(word string) bool {
	_, ok := foldedStopWords[strings.ToLower(word)]
	if !ok {
		_, ok = foldedStopWords[FoldAccents(strings.ToLower(word))]
	}
	return ok
}

// ScienceIndicators lists the vocabulary that marks a text window as
// scientific discourse. The determiner-context strategy only accepts a
// candidate when at least one of these appears within its gate window.
var ScienceIndicators = []string{
	"especie", "organismo", "animal", "marino", "bentónico", "pelágico",
	"taxonomía", "filo", "clase", "orden", "familia", "género",
	"identificación", "muestra", "colección", "estudio", "investigación",
	"expedición", "biodiversidad", "ecosistema", "hábitat",
}

// BehaviorKeywords lists context words that, when present near a mention,
// are recorded as additional behavioral information.
var BehaviorKeywords = []string{
	"comportamiento", "movimiento", "alimentación", "reproducción",
}
