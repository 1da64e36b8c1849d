package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anavidal/bentos/pkg/provider/llm"
	"github.com/anavidal/bentos/pkg/provider/llm/mock"
	"github.com/anavidal/bentos/pkg/types"
)

func testReport() *types.Report {
	r := &types.Report{
		Species: []types.Mention{
			{
				CommonName:     "pulpo",
				ScientificName: "Octopus vulgaris",
				Phylum:         "Mollusca",
				Class:          "Cephalopoda",
				Timestamp:      "00:01:00.000",
				Context:        "Vimos un pulpo cerca del fondo",
				Confidence:     0.9,
			},
			{
				CommonName: "misteriosa",
				Phylum:     "Desconocido",
				Timestamp:  "00:05:00.000",
				Confidence: 0.8,
			},
		},
	}
	r.Unknown = []types.Mention{r.Species[1]}
	r.RebuildTaxonomy()
	return r
}

func TestEnrichReport_FillsDescriptions(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteFunc: func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "  Descripción de prueba.  "}, nil
		},
	}
	e := New(provider, WithConcurrency(1))

	r := testReport()
	n, err := e.EnrichReport(context.Background(), r)
	if err != nil {
		t.Fatalf("EnrichReport: %v", err)
	}
	if n != 2 {
		t.Errorf("enriched = %d, want 2", n)
	}
	for _, m := range r.Species {
		if m.Description != "Descripción de prueba." {
			t.Errorf("%s description = %q", m.CommonName, m.Description)
		}
	}
	// The review list holds copies; descriptions must propagate there too.
	if r.Unknown[0].Description == "" {
		t.Error("unknown-species copy not enriched")
	}
	// Taxonomy is a view over Species and must reflect the new field.
	if got := r.Taxonomy["Mollusca"][0].Description; got == "" {
		t.Error("taxonomy view not rebuilt after enrichment")
	}
}

func TestEnrichReport_ProviderFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{Err: errors.New("quota exceeded")}
	e := New(provider)

	r := testReport()
	n, err := e.EnrichReport(context.Background(), r)
	if err != nil {
		t.Fatalf("EnrichReport: %v", err)
	}
	if n != 0 {
		t.Errorf("enriched = %d, want 0", n)
	}
	for _, m := range r.Species {
		if m.Description != "" {
			t.Errorf("%s description = %q, want empty", m.CommonName, m.Description)
		}
	}
}

func TestEnrichReport_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(&mock.Provider{})
	if _, err := e.EnrichReport(ctx, testReport()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDescribe_RequestShape(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{Response: llm.CompletionResponse{Content: "ok"}}
	e := New(provider, WithMaxTokens(512))

	_, err := e.Describe(context.Background(), testReport().Species[0])
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}

	req := provider.Requests[0]
	if req.SystemPrompt == "" {
		t.Error("system prompt not set")
	}
	if req.MaxTokens != 512 {
		t.Errorf("MaxTokens = %d, want 512", req.MaxTokens)
	}
	prompt := req.Messages[0].Content
	for _, want := range []string{"pulpo", "Octopus vulgaris", "Mollusca", "Cephalopoda", "Vimos un pulpo"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildPrompt_OmitsUnknownTaxonomy(t *testing.T) {
	t.Parallel()

	prompt := buildPrompt(types.Mention{
		CommonName: "misteriosa",
		Phylum:     "Desconocido",
		Class:      "Desconocida",
	})
	if strings.Contains(prompt, "Desconocid") {
		t.Errorf("prompt leaks unresolved taxonomy placeholders:\n%s", prompt)
	}
}
