package analyze

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/anavidal/bentos/pkg/types"
)

// DefaultExpedition names the expedition reports describe when no override
// is configured.
const DefaultExpedition = "Cañón de Mar del Plata"

// reportMethod is the metadata tag identifying how this report was produced.
const reportMethod = "text_processing"

// BuildReport assembles the serializable report from a pipeline result.
// Phyla appear in first-seen candidate order, so the same input always
// produces the same report.
func BuildReport(result *Result, expedition string, now time.Time) *types.Report {
	if expedition == "" {
		expedition = DefaultExpedition
	}

	taxonomy := make(map[string][]types.Mention)
	var order []string
	for _, m := range result.Candidates {
		if _, seen := taxonomy[m.Phylum]; !seen {
			order = append(order, m.Phylum)
		}
		taxonomy[m.Phylum] = append(taxonomy[m.Phylum], m)
	}

	return &types.Report{
		Metadata: types.ReportMetadata{
			Expedition:          expedition,
			AnalysisDate:        now.Format(time.RFC3339),
			TotalSpecies:        len(result.Candidates),
			PhylaCount:          len(order),
			Method:              reportMethod,
			UnknownSpeciesCount: len(result.Unknown),
			AverageConfidence:   result.Stats.MeanConfidence,
		},
		Species:       result.Candidates,
		Taxonomy:      taxonomy,
		TaxonomyOrder: order,
		Unknown:       result.Unknown,
	}
}

// RenderText renders the human-readable report. Phyla are ordered by
// descending species count; ties keep first-seen order.
func RenderText(r *types.Report) string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "REPORTE DE BIODIVERSIDAD MARINA")
	fmt.Fprintf(&b, "Expedición %s\n", r.Metadata.Expedition)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)

	fmt.Fprintf(&b, "Total de especies identificadas: %d\n", r.Metadata.TotalSpecies)

	counts := methodCounts(r.Species)
	fmt.Fprintln(&b, "Métodos de detección utilizados:")
	for _, mc := range counts {
		fmt.Fprintf(&b, "   • %s: %d especies\n", mc.method, mc.count)
	}
	fmt.Fprintf(&b, "Confianza promedio: %.2f\n", r.Metadata.AverageConfidence)
	fmt.Fprintln(&b)

	phyla := append([]string(nil), r.TaxonomyOrder...)
	sort.SliceStable(phyla, func(i, j int) bool {
		return len(r.Taxonomy[phyla[i]]) > len(r.Taxonomy[phyla[j]])
	})

	for _, phylum := range phyla {
		mentions := r.Taxonomy[phylum]
		fmt.Fprintf(&b, "FILO: %s\n", strings.ToUpper(phylum))
		fmt.Fprintf(&b, "   Especies encontradas: %d\n\n", len(mentions))

		for _, m := range mentions {
			fmt.Fprintf(&b, "   • %s\n", m.CommonName)
			if m.ScientificName != "" {
				fmt.Fprintf(&b, "     Nombre científico: %s\n", m.ScientificName)
			}
			if m.Class != "" && m.Class != "Desconocida" {
				fmt.Fprintf(&b, "     Clase: %s\n", m.Class)
			}
			fmt.Fprintf(&b, "     Timestamp: %s\n", m.Timestamp)
			fmt.Fprintf(&b, "     Confianza: %.2f\n", m.Confidence)
			fmt.Fprintf(&b, "     Método: %s\n", m.Method)
			if m.AdditionalInfo != "" {
				fmt.Fprintf(&b, "     Info adicional: %s\n", m.AdditionalInfo)
			}
			fmt.Fprintln(&b)
		}
	}

	if len(r.Unknown) > 0 {
		fmt.Fprintln(&b, "Especies potencialmente nuevas:")
		for _, m := range r.Unknown {
			fmt.Fprintf(&b, "   • %s (confianza: %.2f)\n", m.CommonName, m.Confidence)
			if m.Suggestion != "" {
				fmt.Fprintf(&b, "     ¿Quizás %s?\n", m.Suggestion)
			}
		}
	}

	return b.String()
}

type methodCount struct {
	method string
	count  int
}

// methodCounts tallies mentions per detection method, ordered by descending
// count with the enum order breaking ties.
func methodCounts(mentions []types.Mention) []methodCount {
	var c types.MethodCounts
	for _, m := range mentions {
		c.Add(m.Method)
	}
	out := []methodCount{
		{types.MethodKnownPattern.String(), c.KnownPattern},
		{types.MethodScientificName.String(), c.ScientificName},
		{types.MethodScientificContext.String(), c.ScientificContext},
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].count > out[j].count })
	return out
}
