package toc

import (
	"os"
	"path/filepath"
	"testing"
)

const sample = `
- category: Tanakh
  contents:
    - category: Torah
      contents:
        - title: Genesis
        - title: Exodus
- category: Talmud
  contents:
    - title: Berakhot
`

func TestParse(t *testing.T) {
	nodes, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(nodes) != 2 || nodes[0].Category != "Tanakh" {
		t.Fatalf("unexpected top level: %+v", nodes)
	}
	torah := nodes[0].Contents[0]
	if torah.Category != "Torah" || len(torah.Contents) != 2 || torah.Contents[1].Title != "Exodus" {
		t.Fatalf("unexpected nested node: %+v", torah)
	}
}

func TestParseRejectsUnnamedEntries(t *testing.T) {
	if _, err := Parse([]byte("- contents:\n    - title: Genesis\n")); err == nil {
		t.Fatal("expected error for entry without category or title")
	}
	if _, err := Parse([]byte("category: [")); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestProviderLoadsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toc.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("write toc: %v", err)
	}
	provider := NewProvider(path)
	if got := provider.TOC(); len(got) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(got))
	}

	if err := os.WriteFile(path, []byte("- title: Only\n"), 0o644); err != nil {
		t.Fatalf("rewrite toc: %v", err)
	}
	if got := provider.TOC(); len(got) != 2 {
		t.Fatalf("expected cached toc, got %+v", got)
	}
}

func TestProviderMissingFile(t *testing.T) {
	provider := NewProvider(filepath.Join(t.TempDir(), "missing.yaml"))
	got := provider.TOC()
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty toc, got %+v", got)
	}
}
