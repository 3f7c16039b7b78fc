package content

import (
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	for _, id := range []string{"objective", "analysis", "forecast", "bi", "conclusions"} {
		if _, ok := c.Tab(id); !ok {
			t.Errorf("missing tab %q", id)
		}
	}
	analysis, _ := c.Tab("analysis")
	for _, id := range []string{"intro", "min-insights", "max-insights", "mean-by-year", "median-by-year"} {
		if _, ok := analysis.Block(id); !ok {
			t.Errorf("analysis missing block %q", id)
		}
	}
	low, _ := analysis.Block("min-insights")
	if len(low.Items) < 4 {
		t.Errorf("min-insights has %d items, want at least 4", len(low.Items))
	}
}

func TestRender(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	r, err := c.Render(map[string]string{
		"Predicted": "US$ 77.01",
		"Target":    "2024-12-31",
		"MSE":       "9.88",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	tab, _ := r.Tab("forecast")
	results, _ := tab.Block("results")
	var joined strings.Builder
	for _, it := range results.Items {
		joined.WriteString(it.Text)
	}
	if !strings.Contains(joined.String(), "US$ 77.01 on 2024-12-31") {
		t.Errorf("prediction not rendered: %q", joined.String())
	}
	if strings.Contains(joined.String(), "{{") {
		t.Errorf("unexpanded template: %q", joined.String())
	}

	// Missing keys render empty rather than "<no value>".
	obj, _ := r.Tab("objective")
	src, _ := obj.Block("source")
	if strings.Contains(src.Paragraphs[0], "no value") {
		t.Errorf("missing key leaked: %q", src.Paragraphs[0])
	}

	// The source document is not modified.
	orig, _ := c.Tab("forecast")
	origResults, _ := orig.Block("results")
	if !strings.Contains(origResults.Items[1].Text, "{{.Predicted}}") {
		t.Error("Render mutated the source content")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid yaml", "tabs: [:"},
		{"no tabs", "title: x\n"},
		{"missing title", "tabs:\n  - id: a\n"},
		{"duplicate", "tabs:\n  - id: a\n    title: A\n  - id: a\n    title: B\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRender_BadTemplate(t *testing.T) {
	c, err := Parse([]byte("tabs:\n  - id: a\n    title: A\n    blocks:\n      - paragraphs: [\"{{.Broken\"]\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Render(nil); err == nil {
		t.Error("expected template error")
	}
}
