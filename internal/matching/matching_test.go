package matching

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/benchwork/procurement-bridge/internal/models"
)

func TestNormalize(t *testing.T) {
	if got := Normalize("  Pipette\tTIPS \n 200uL "); got != "pipette tips 200ul" {
		t.Fatalf("unexpected normalization: %q", got)
	}
	if Normalize("   ") != "" {
		t.Fatalf("blank input should normalize to empty")
	}
}

func TestRatio(t *testing.T) {
	if Ratio("abcd", "abcd") != 1 {
		t.Fatalf("identical strings should have ratio 1")
	}
	if r := Ratio("abcd", "abce"); math.Abs(r-0.75) > 1e-9 {
		t.Fatalf("expected 0.75, got %v", r)
	}
	if Ratio("", "abc") != 0 {
		t.Fatalf("empty input should have ratio 0")
	}
}

func sampleItems() []models.InventoryItem {
	return []models.InventoryItem{
		{ID: "2", Name: "Pipette Tip", Vendor: "Other"},
		{ID: "3", Name: "Gloves", CatalogNumber: "AB-1000"},
		{ID: "1", Name: "Pipette  Tips", Vendor: "ACME", CatalogNumber: "ab-100", Location: "Drawer 4"},
		{ID: "4", Name: "Centrifuge", Vendor: "Nobody"},
	}
}

func TestFindCandidatesRanking(t *testing.T) {
	engine := NewEngine(DefaultWeights(), nil)
	q := models.MatchQuery{Name: "pipette tips", Vendor: "Acme", CatalogNumber: "AB-100"}

	got := engine.FindCandidates(q, sampleItems(), 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 scored candidates, got %d: %+v", len(got), got)
	}
	wantIDs := []string{"1", "3", "2"}
	wantScores := []int{202, 60, 30}
	for i, c := range got {
		if c.Item.ID != wantIDs[i] || c.Score != wantScores[i] {
			t.Fatalf("position %d: got id=%s score=%d", i, c.Item.ID, c.Score)
		}
	}
	if got[0].Location != "Drawer 4" {
		t.Fatalf("candidate should carry location, got %q", got[0].Location)
	}

	for i := 0; i < 5; i++ {
		again := engine.FindCandidates(q, sampleItems(), 10)
		for j := range again {
			if again[j].Item.ID != got[j].Item.ID {
				t.Fatalf("ranking not deterministic on run %d", i)
			}
		}
	}
}

func TestFindCandidatesTieBreaksAndLimit(t *testing.T) {
	items := []models.InventoryItem{
		{ID: "b", Name: "Tubes", Vendor: "Acme"},
		{ID: "a", Name: "Tubes", Vendor: "Acme"},
		{ID: "c", Name: "Racks", Vendor: "Acme"},
	}
	got := NewEngine(DefaultWeights(), nil).FindCandidates(models.MatchQuery{Vendor: "acme"}, items, 5)
	if len(got) != 3 || got[0].Item.ID != "c" || got[1].Item.ID != "a" || got[2].Item.ID != "b" {
		t.Fatalf("unexpected tie order: %+v", got)
	}

	one := NewEngine(DefaultWeights(), nil).FindCandidates(models.MatchQuery{Vendor: "acme"}, items, 0)
	if len(one) != 1 {
		t.Fatalf("limit below 1 should return one candidate, got %d", len(one))
	}
}

func TestFindBest(t *testing.T) {
	var engine *Engine
	best, found := engine.FindBest(models.MatchQuery{CatalogNumber: "ab-100"}, sampleItems())
	if !found || best.Item.ID != "1" {
		t.Fatalf("expected item 1, got %+v found=%v", best, found)
	}
	if _, found := engine.FindBest(models.MatchQuery{Name: "zzzzzz"}, sampleItems()); found {
		t.Fatalf("expected nothing found")
	}
	if _, found := engine.FindBest(models.MatchQuery{}, sampleItems()); found {
		t.Fatalf("empty query should find nothing")
	}
}

func TestStrictMatch(t *testing.T) {
	items := []models.InventoryItem{
		{ID: "1", Name: "Tips", Vendor: "Acme", CatalogNumber: "SKU-1", Raw: models.Record{"sku": "SKU-1", "vendor_product_id": "VP-9"}},
		{ID: "2", Name: "Gloves", Vendor: "Acme"},
	}
	if it, ok := StrictMatch(models.MatchQuery{CatalogNumber: " vp-9 "}, items); !ok || it.ID != "1" {
		t.Fatalf("expected catalog match on vendor_product_id, got %+v", it)
	}
	if _, ok := StrictMatch(models.MatchQuery{CatalogNumber: "SKU-1"}, items); ok {
		t.Fatalf("sku is not a strict catalog field")
	}
	if it, ok := StrictMatch(models.MatchQuery{Name: "gloves", Vendor: "ACME"}, items); !ok || it.ID != "2" {
		t.Fatalf("expected name+vendor match, got %+v", it)
	}
	if _, ok := StrictMatch(models.MatchQuery{Name: "gloves"}, items); ok {
		t.Fatalf("name alone must not match strictly")
	}
}

func TestLoadEngineWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	if err := os.WriteFile(path, []byte("catalog_exact: 500\nname_fuzzy:\n  - {min: 0.5, points: 1}\n  - {min: 0.9, points: 9}\n"), 0o600); err != nil {
		t.Fatalf("write weights: %v", err)
	}
	engine, err := LoadEngine(path, nil)
	if err != nil {
		t.Fatalf("load engine: %v", err)
	}
	if got := engine.Score(models.MatchQuery{CatalogNumber: "x"}, models.InventoryItem{CatalogNumber: "X"}); got != 500 {
		t.Fatalf("expected overridden catalog weight, got %d", got)
	}
	if got := engine.Score(models.MatchQuery{Name: "abcd"}, models.InventoryItem{Name: "abcd"}); got != 40+9 {
		t.Fatalf("expected highest tier first, got %d", got)
	}

	if _, err := LoadEngine(filepath.Join(t.TempDir(), "missing.yaml"), nil); err != nil {
		t.Fatalf("missing weights file should fall back to defaults: %v", err)
	}
}
