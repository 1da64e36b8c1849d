// Package types defines the shared types used across all bentos packages.
//
// These types form the lingua franca between the extraction pipeline, the
// sightings store, the report layer, and the HTTP server. They are
// intentionally minimal — each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// DetectionMethod identifies which extraction strategy produced a Mention.
// It is a closed enumeration: switch statements over it should handle every
// constant and treat anything else as a programming error.
type DetectionMethod int

const (
	// MethodKnownPattern marks a match against the fixed per-phylum list of
	// common-name patterns. The most reliable method.
	MethodKnownPattern DetectionMethod = iota

	// MethodScientificName marks a capitalized Genus+species binomial match
	// ("Octopus vulgaris", "Balanus sp.").
	MethodScientificName

	// MethodScientificContext marks a word accepted because of its
	// surrounding context — either adjacency to a marine keyword phrase or a
	// determiner followed by scientific-indicator vocabulary nearby.
	MethodScientificContext
)

// String returns the wire name of the detection method. These values appear
// verbatim in the JSON report and must stay stable.
func (m DetectionMethod) String() string {
	switch m {
	case MethodKnownPattern:
		return "known_pattern"
	case MethodScientificName:
		return "scientific_name"
	case MethodScientificContext:
		return "scientific_context"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the method as its wire name.
func (m DetectionMethod) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes a wire name back into a DetectionMethod.
// Unrecognised names are an error, not silently mapped.
func (m *DetectionMethod) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDetectionMethod(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseDetectionMethod maps a wire name back to its DetectionMethod.
func ParseDetectionMethod(s string) (DetectionMethod, error) {
	switch s {
	case "known_pattern":
		return MethodKnownPattern, nil
	case "scientific_name":
		return MethodScientificName, nil
	case "scientific_context":
		return MethodScientificContext, nil
	}
	return 0, fmt.Errorf("types: unknown detection method %q", s)
}

// Mention is one detection of a possible species reference at a position in
// the transcript. Mentions are immutable once created by an extraction
// strategy; the deduplicator and filters select between them but never
// rewrite their scoring fields.
//
// The JSON field names are a compatibility contract with the frontend and
// must not change.
type Mention struct {
	// CommonName is the normalized canonical name. It is the identity key
	// used for deduplication grouping and taxonomy lookup.
	CommonName string `json:"common_name"`

	// OriginalName is the exact substring matched in the transcript.
	OriginalName string `json:"original_common_name"`

	// ScientificName is either captured directly from a binomial pattern or
	// resolved from the static association table. Empty when unknown.
	ScientificName string `json:"scientific_name"`

	// Phylum is the coarse taxonomic placement. "Desconocido" when no
	// pattern or table entry applies.
	Phylum string `json:"phylum"`

	// Class is the taxonomic class. "Desconocida" when unresolved.
	Class string `json:"class"`

	// Timestamp is the start of the nearest time-range marker, formatted
	// HH:MM:SS.mmm. Defaults to 00:00:00.000 when the transcript carries no
	// markers at all.
	Timestamp string `json:"timestamp"`

	// Context is the cleaned snippet of transcript text surrounding the
	// match, with marker and stray time fragments stripped.
	Context string `json:"context"`

	// AdditionalInfo holds free-text notes extracted from the context:
	// depth in meters, size in centimeters, behavioral keyword mentions.
	AdditionalInfo string `json:"additional_info"`

	// Method records which extraction strategy produced this mention.
	Method DetectionMethod `json:"detection_method"`

	// Confidence is the strategy-dependent reliability score in [0,1],
	// assigned at creation and never recomputed.
	Confidence float64 `json:"confidence"`

	// Suggestion is an optional fuzzy-matched known common name attached to
	// unknown-phylum mentions for human review. Omitted when empty.
	Suggestion string `json:"suggestion,omitempty"`

	// Description is an optional LLM-generated species description with
	// ecological notes, in Spanish. Omitted when enrichment is disabled or
	// failed for this mention.
	Description string `json:"description,omitempty"`

	// Thumbnail is an optional thumbnail file reference added by the
	// aggregation layer. Omitted when no thumbnail was generated.
	Thumbnail string `json:"thumbnail,omitempty"`
}

// ReportMetadata is the summary block of an analysis report.
type ReportMetadata struct {
	Expedition          string  `json:"expedition"`
	AnalysisDate        string  `json:"analysis_date"`
	TotalSpecies        int     `json:"total_species"`
	PhylaCount          int     `json:"phyla_count"`
	Method              string  `json:"method"`
	UnknownSpeciesCount int     `json:"unknown_species_count"`
	AverageConfidence   float64 `json:"avg_confidence"`
}

// Report is the full analysis output: the deduplicated, confidence-filtered
// mention list, the phylum grouping view, and the unknown-species review
// list. TaxonomyOrder preserves first-seen phylum order so that marshalling
// and rendering are deterministic run to run.
type Report struct {
	Metadata ReportMetadata `json:"metadata"`

	// Species is the flat deduplicated mention list.
	Species []Mention `json:"species_data"`

	// Taxonomy groups Species by phylum. Rebuilt from Species on demand —
	// it is a view, never independently mutated.
	Taxonomy map[string][]Mention `json:"taxonomy_data"`

	// TaxonomyOrder lists phyla in first-seen order.
	TaxonomyOrder []string `json:"-"`

	// Unknown lists unknown-phylum mentions with confidence above the
	// review threshold — candidates for "possibly new species" review.
	Unknown []Mention `json:"unknown_species"`
}

// RebuildTaxonomy regenerates the Taxonomy view and TaxonomyOrder from the
// current Species slice. Call after mutating Species in place (e.g. after
// enrichment) so the grouped view stays consistent.
func (r *Report) RebuildTaxonomy() {
	taxonomy := make(map[string][]Mention)
	var order []string
	for _, m := range r.Species {
		if _, seen := taxonomy[m.Phylum]; !seen {
			order = append(order, m.Phylum)
		}
		taxonomy[m.Phylum] = append(taxonomy[m.Phylum], m)
	}
	r.Taxonomy = taxonomy
	r.TaxonomyOrder = order
}

// MethodCounts tallies mentions per detection method for report statistics.
type MethodCounts struct {
	KnownPattern      int `json:"known_pattern"`
	ScientificName    int `json:"scientific_name"`
	ScientificContext int `json:"scientific_context"`
}

// Add increments the counter for the given method.
func (c *MethodCounts) Add(m DetectionMethod) {
	switch m {
	case MethodKnownPattern:
		c.KnownPattern++
	case MethodScientificName:
		c.ScientificName++
	case MethodScientificContext:
		c.ScientificContext++
	}
}

// Total returns the sum over all methods.
func (c MethodCounts) Total() int {
	return c.KnownPattern + c.ScientificName + c.ScientificContext
}

// ProgressEvent is a pipeline progress notification streamed to connected
// WebSocket clients while an analysis runs.
type ProgressEvent struct {
	// Stage is the pipeline stage name: "extract", "dedup", "filter",
	// "enrich", "report".
	Stage string `json:"stage"`

	// Message is a human-readable progress line.
	Message string `json:"message"`

	// Count carries a stage-specific tally (mentions extracted, kept, …).
	Count int `json:"count"`

	// At is the wall-clock time of the event.
	At time.Time `json:"at"`
}

// TranscriptSegment is one timed segment of machine-generated transcription,
// produced by an STT provider from expedition audio. Segments serialize into
// the subtitle marker format the analyzer consumes.
type TranscriptSegment struct {
	// Start is the segment start relative to the beginning of the audio.
	Start time.Duration

	// End is the segment end relative to the beginning of the audio.
	End time.Duration

	// Text is the transcribed speech content.
	Text string
}
