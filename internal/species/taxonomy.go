package species

import "strings"

// Sentinel values for unresolved taxonomy lookups. A miss is first-class
// information (it feeds the possibly-new-species review list), not an error.
const (
	// UnknownPhylum marks mentions whose phylum could not be determined.
	UnknownPhylum = "Desconocido"

	// UnknownClass marks mentions whose taxonomic class could not be resolved.
	UnknownClass = "Desconocida"
)

// tableEntry is one key→value association in an ordered lookup table.
// Tables are slices, never maps: iteration order is part of the lookup
// contract (first match wins) and must be identical run to run.
type tableEntry struct {
	key   string
	value string
}

// classTable associates common-name substrings with taxonomic classes,
// scoped by phylum. Keys keep their accented canonical spelling; lookups
// accent-fold both sides.
var classTable = []struct {
	phylum  string
	entries []tableEntry
}{
	{"Arthropoda", []tableEntry{
		{"balanus", "Cirripedia"},
		{"langosta", "Malacostraca"},
		{"camarón", "Malacostraca"},
		{"cangrejo", "Malacostraca"},
		{"crustáceo", "Malacostraca"},
		{"decápodo", "Malacostraca"},
		{"isópodo", "Malacostraca"},
		{"anfípodo", "Malacostraca"},
	}},
	{"Cnidaria", []tableEntry{
		{"coral", "Anthozoa"},
		{"anémona", "Anthozoa"},
		{"hidro", "Hydrozoa"},
		{"octocoral", "Anthozoa"},
		{"némoda", "Anthozoa"},
		{"pólipo", "Anthozoa"},
		{"pluma de mar", "Anthozoa"},
		{"nidario", "Anthozoa"},
	}},
	{"Mollusca", []tableEntry{
		{"pulpo", "Cephalopoda"},
		{"caracol", "Gastropoda"},
		{"quitón", "Polyplacophora"},
		{"vivalvo", "Bivalvia"},
		{"calamar", "Cephalopoda"},
		{"ostra", "Bivalvia"},
	}},
	{"Porifera", []tableEntry{
		{"esponja", "Demospongiae"},
		{"porífero", "Demospongiae"},
	}},
	{"Echinodermata", []tableEntry{
		{"estrella de mar", "Asteroidea"},
		{"equinodermo", "Asteroidea"},
		{"centa", "Echinoidea"},
		{"entolla", "Holothuroidea"},
		{"erizo", "Echinoidea"},
		{"pepino de mar", "Holothuroidea"},
	}},
	{"Annelida", []tableEntry{
		{"poliqueto", "Polychaeta"},
		{"anélido", "Polychaeta"},
	}},
	{"Chordata", []tableEntry{
		{"pez", "Actinopterygii"},
		{"raya", "Chondrichthyes"},
		{"caballito de mar", "Actinopterygii"},
		{"ventónico", "Actinopterygii"},
		{"tiburón", "Chondrichthyes"},
		{"atún", "Actinopterygii"},
	}},
}

// scientificTable associates common-name substrings with approximate
// scientific names. Unscoped by phylum — common names are largely
// phylum-unambiguous. Order is fixed; first match wins.
var scientificTable = []tableEntry{
	{"balanus", "Balanus sp."},
	{"langosta", "Palinuridae"},
	{"camarón", "Caridea"},
	{"cangrejo", "Brachyura"},
	{"coral", "Anthozoa"},
	{"anémona", "Actiniaria"},
	{"pulpo", "Octopoda"},
	{"caracol", "Gastropoda"},
	{"esponja", "Porifera"},
	{"estrella de mar", "Asteroidea"},
	{"poliqueto", "Polychaeta"},
	{"pez", "Actinopterygii"},
	{"raya", "Rajiformes"},
	{"caballito de mar", "Hippocampus sp."},
	{"quitón", "Polyplacophora"},
	{"vivalvo", "Bivalvia"},
	{"hidro", "Hydrozoa"},
	{"octocoral", "Octocorallia"},
	{"némoda", "Actiniaria"},
	{"pólipo", "Anthozoa"},
	{"pluma de mar", "Pennatulacea"},
	{"centa", "Echinoidea"},
	{"entolla", "Holothuroidea"},
	{"ventónico", "Actinopterygii"},
	{"isópodo", "Isopoda"},
	{"anfípodo", "Amphipoda"},
	{"nidario", "Anthozoa"},
	{"nidroso", "Anthozoa"},
	{"calamar", "Teuthida"},
	{"ostra", "Ostreidae"},
	{"mejillón", "Mytilidae"},
	{"erizo", "Echinoidea"},
	{"anélido", "Annelida"},
	{"tiburón", "Selachimorpha"},
	{"atún", "Thunnus"},
	{"pepino de mar", "Holothuroidea"},
}

// LookupClass resolves the taxonomic class for a canonical common name
// within the given phylum. The table key must appear as a substring of the
// accent-folded name — canonical names may carry extra qualifiers, so exact
// matching would miss them. Returns [UnknownClass] on a miss.
func LookupClass(name, phylum string) string {
	query := FoldAccents(strings.ToLower(name))
	for _, group := range classTable {
		if group.phylum != phylum {
			continue
		}
		for _, e := range group.entries {
			if strings.Contains(query, FoldAccents(e.key)) {
				return e.value
			}
		}
	}
	return UnknownClass
}

// LookupScientificName resolves the approximate scientific name for a
// canonical common name. Same containment semantics as [LookupClass].
// Returns "" on a miss.
func LookupScientificName(name string) string {
	query := FoldAccents(strings.ToLower(name))
	for _, e := range scientificTable {
		if strings.Contains(query, FoldAccents(e.key)) {
			return e.value
		}
	}
	return ""
}

// Lexicon returns the canonical common names known to the taxonomy tables,
// in fixed table order. Used by the fuzzy suggester to propose near-matches
// for unknown candidates.
func Lexicon() []string {
	names := make([]string, 0, len(scientificTable))
	for _, e := range scientificTable {
		names = append(names, e.key)
	}
	return names
}
