package matching

import (
	"errors"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/benchwork/procurement-bridge/internal/models"
	"github.com/benchwork/procurement-bridge/internal/utils"
)

// Tier awards Points when a similarity ratio reaches Min.
type Tier struct {
	Min    float64 `yaml:"min"`
	Points int     `yaml:"points"`
}

// Weights is the additive scoring table.
type Weights struct {
	CatalogExact   int    `yaml:"catalog_exact"`
	CatalogPartial int    `yaml:"catalog_partial"`
	NameExact      int    `yaml:"name_exact"`
	VendorExact    int    `yaml:"vendor_exact"`
	NameFuzzy      []Tier `yaml:"name_fuzzy"`
	VendorFuzzy    []Tier `yaml:"vendor_fuzzy"`
}

// DefaultWeights returns the built-in scoring table.
func DefaultWeights() Weights {
	return Weights{
		CatalogExact:   100,
		CatalogPartial: 60,
		NameExact:      40,
		VendorExact:    20,
		NameFuzzy:      []Tier{{Min: 0.92, Points: 30}, {Min: 0.85, Points: 20}, {Min: 0.75, Points: 10}},
		VendorFuzzy:    []Tier{{Min: 0.92, Points: 12}, {Min: 0.85, Points: 8}, {Min: 0.75, Points: 4}},
	}
}

// Engine ranks inventory items against free-text queries.
type Engine struct {
	weights Weights
	logger  *slog.Logger
}

// NewEngine builds an engine with weights. Tiers are evaluated highest
// threshold first.
func NewEngine(weights Weights, logger *slog.Logger) *Engine {
	weights.NameFuzzy = sortedTiers(weights.NameFuzzy)
	weights.VendorFuzzy = sortedTiers(weights.VendorFuzzy)
	return &Engine{weights: weights, logger: utils.Component(logger, "matching")}
}

// LoadEngine reads a weights table from a YAML file over the defaults. An
// empty path or a missing file yields the default table.
func LoadEngine(path string, logger *slog.Logger) (*Engine, error) {
	weights := DefaultWeights()
	if path == "" {
		return NewEngine(weights, logger), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewEngine(weights, logger), nil
		}
		return nil, utils.NewAppError("matching.LoadEngine", "read weights", err)
	}
	if err := yaml.Unmarshal(data, &weights); err != nil {
		return nil, utils.NewAppError("matching.LoadEngine", "parse weights", err)
	}
	return NewEngine(weights, logger), nil
}

func sortedTiers(in []Tier) []Tier {
	out := append([]Tier(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Min > out[j].Min })
	return out
}

// Normalize case-folds s and collapses runs of whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// Ratio is the sequence-matcher similarity of a and b over runes, in [0, 1].
// Either string being empty gives 0.
func Ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return difflib.NewMatcher(runes(a), runes(b)).Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func tierPoints(tiers []Tier, ratio float64) int {
	for _, t := range tiers {
		if ratio >= t.Min {
			return t.Points
		}
	}
	return 0
}

func (e *Engine) table() Weights {
	if e == nil {
		return NewEngine(DefaultWeights(), nil).weights
	}
	return e.weights
}

// Score adds up every signal between q and item. All signals combine.
func (e *Engine) Score(q models.MatchQuery, item models.InventoryItem) int {
	w := e.table()
	qName, qVendor, qCat := Normalize(q.Name), Normalize(q.Vendor), Normalize(q.CatalogNumber)
	name, vendor, cat := Normalize(item.Name), Normalize(item.Vendor), Normalize(item.CatalogNumber)

	score := 0
	if qCat != "" && cat != "" {
		if qCat == cat {
			score += w.CatalogExact
		} else if strings.Contains(cat, qCat) || strings.Contains(qCat, cat) {
			score += w.CatalogPartial
		}
	}
	if qName != "" && qName == name {
		score += w.NameExact
	}
	if qVendor != "" && qVendor == vendor {
		score += w.VendorExact
	}
	if qName != "" && name != "" {
		score += tierPoints(w.NameFuzzy, Ratio(qName, name))
	}
	if qVendor != "" && vendor != "" {
		score += tierPoints(w.VendorFuzzy, Ratio(qVendor, vendor))
	}
	return score
}

// FindCandidates scores items against q and returns at most limit of them,
// best first. Items scoring zero or less are dropped. Ties order by name,
// then id. A limit below 1 means 1.
func (e *Engine) FindCandidates(q models.MatchQuery, items []models.InventoryItem, limit int) []models.MatchCandidate {
	if limit < 1 {
		limit = 1
	}
	if q.Empty() {
		return []models.MatchCandidate{}
	}
	out := make([]models.MatchCandidate, 0)
	for _, it := range items {
		score := e.Score(q, it)
		if score <= 0 {
			continue
		}
		out = append(out, models.MatchCandidate{Item: it, Score: score, Location: it.Location, SubLocation: it.SubLocation})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Item.Name != out[j].Item.Name {
			return out[i].Item.Name < out[j].Item.Name
		}
		return out[i].Item.ID < out[j].Item.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	if e != nil {
		e.logger.Debug("match candidates ranked", slog.Int("items", len(items)), slog.Int("returned", len(out)))
	}
	return out
}

// FindBest returns the top candidate; found is false when nothing scored.
func (e *Engine) FindBest(q models.MatchQuery, items []models.InventoryItem) (models.MatchCandidate, bool) {
	top := e.FindCandidates(q, items, 1)
	if len(top) == 0 {
		return models.MatchCandidate{}, false
	}
	return top[0], true
}

var strictCatalogKeys = []string{"catalog_number", "vendor_product_id", "vendor_product"}

// StrictMatch finds an item by exact catalog number, or failing that by
// exact name and vendor together. Comparison is on normalized text.
func StrictMatch(q models.MatchQuery, items []models.InventoryItem) (models.InventoryItem, bool) {
	if cat := Normalize(q.CatalogNumber); cat != "" {
		for _, it := range items {
			for _, c := range itemCatalogs(it) {
				if c == cat {
					return it, true
				}
			}
		}
	}
	name, vendor := Normalize(q.Name), Normalize(q.Vendor)
	if name == "" || vendor == "" {
		return models.InventoryItem{}, false
	}
	for _, it := range items {
		if Normalize(it.Name) == name && Normalize(it.Vendor) == vendor {
			return it, true
		}
	}
	return models.InventoryItem{}, false
}

// itemCatalogs reads the strict catalog fields from the raw record, or the
// mapped catalog number when there is no raw record.
func itemCatalogs(it models.InventoryItem) []string {
	if it.Raw == nil {
		if c := Normalize(it.CatalogNumber); c != "" {
			return []string{c}
		}
		return nil
	}
	var out []string
	for _, k := range strictCatalogKeys {
		if s, ok := it.Raw[k].(string); ok {
			if c := Normalize(s); c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}
