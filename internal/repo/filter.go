package repo

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/benchwork/procurement-bridge/internal/models"
)

// Filter value encodings.
const (
	caseLowerCSV   = "lower_csv"
	caseUpperCSV   = "upper_csv"
	caseArrayLower = "array_lower"
)

// FilterStrategy describes how status filters are encoded as query params.
type FilterStrategy struct {
	OrderKey    string `json:"order_key"`
	ApprovalKey string `json:"approval_key"`
	Case        string `json:"case"`
}

func (s *FilterStrategy) String() string {
	if s == nil {
		return "multi-variant"
	}
	return s.OrderKey + "/" + s.ApprovalKey + " " + s.Case
}

var filterCandidates = []FilterStrategy{
	{OrderKey: "status", ApprovalKey: "approval_status", Case: caseLowerCSV},
	{OrderKey: "statuses", ApprovalKey: "approval_statuses", Case: caseLowerCSV},
	{OrderKey: "status[]", ApprovalKey: "approval_status[]", Case: caseArrayLower},
	{OrderKey: "status", ApprovalKey: "approval_status", Case: caseUpperCSV},
	{OrderKey: "filter[status]", ApprovalKey: "filter[approval_status]", Case: caseLowerCSV},
}

var (
	lifecycleTokens = map[string]bool{
		"created": true, "ordered": true, "received": true,
		"cancelled": true, "canceled": true, "backordered": true,
	}
	approvalTokens = map[string]bool{"approved": true, "pending": true, "rejected": true}
	unwantedTokens = []string{"received", "cancelled", "canceled"}
)

// splitStatusTokens lowercases, dedupes and sorts statuses, then splits them
// into lifecycle and approval tokens. Unknown tokens are dropped.
func splitStatusTokens(statuses []string) (lifecycle, approval []string) {
	seen := make(map[string]bool)
	for _, s := range statuses {
		t := strings.ToLower(strings.TrimSpace(s))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		switch {
		case lifecycleTokens[t]:
			lifecycle = append(lifecycle, t)
		case approvalTokens[t]:
			approval = append(approval, t)
		}
	}
	sort.Strings(lifecycle)
	sort.Strings(approval)
	return lifecycle, approval
}

// statusParams encodes tokens with strategy s, or with every common encoding
// at once when s is nil.
func statusParams(lifecycle, approval []string, s *FilterStrategy) url.Values {
	q := url.Values{}
	if len(lifecycle) == 0 && len(approval) == 0 {
		return q
	}
	if s == nil {
		addMultiVariant(q, "status", "statuses", lifecycle)
		addMultiVariant(q, "approval_status", "approval_statuses", approval)
		return q
	}
	if len(lifecycle) > 0 {
		setEncoded(q, s.OrderKey, s.Case, lifecycle)
	}
	if len(approval) > 0 {
		setEncoded(q, s.ApprovalKey, s.Case, approval)
	}
	return q
}

func addMultiVariant(q url.Values, key, pluralKey string, tokens []string) {
	if len(tokens) == 0 {
		return
	}
	joined := strings.Join(tokens, ",")
	q.Set(key, joined)
	q.Set(pluralKey, joined)
	for _, t := range tokens {
		q.Add(key+"[]", t)
	}
	for _, t := range tokens {
		q.Add(key+"[]", strings.ToUpper(t))
	}
}

func setEncoded(q url.Values, key, mode string, tokens []string) {
	switch mode {
	case caseUpperCSV:
		q.Set(key, strings.ToUpper(strings.Join(tokens, ",")))
	case caseArrayLower:
		for _, t := range tokens {
			q.Add(key, t)
		}
	default:
		q.Set(key, strings.Join(tokens, ","))
	}
}

// ensureFilterStrategy probes filter encodings against page 1 of the orders
// binding and keeps the first one whose results carry no unwanted status.
// Probing happens at most once per client; a nil result is memoized too.
func (c *ProcurementClient) ensureFilterStrategy(ctx context.Context, b EndpointBinding, lab string, lifecycle, approval []string) *FilterStrategy {
	c.strategyMu.Lock()
	defer c.strategyMu.Unlock()

	if c.strategyChecked {
		return c.strategy
	}
	c.strategyChecked = true

	requested := make(map[string]bool, len(lifecycle)+len(approval))
	for _, t := range append(append([]string(nil), lifecycle...), approval...) {
		requested[t] = true
	}
	unwanted := make(map[string]bool)
	for _, t := range unwantedTokens {
		if !requested[t] {
			unwanted[t] = true
		}
	}

	for i := range filterCandidates {
		candidate := filterCandidates[i]
		page, _ := c.fetchPage(ctx, b, lab, 1, 0, statusParams(lifecycle, approval, &candidate), []string{b.AuthMode})
		if page == nil {
			continue
		}
		if !containsStatus(page.items, unwanted) {
			c.strategy = &candidate
			break
		}
	}

	c.logger.Info("order filter strategy selected", slog.String("strategy", c.strategy.String()))
	return c.strategy
}

func containsStatus(items []models.Record, unwanted map[string]bool) bool {
	for _, it := range items {
		if unwanted[strings.ToLower(statusOf(it))] {
			return true
		}
	}
	return false
}

// CurrentFilterStrategy returns the memoized strategy and whether probing ran.
func (c *ProcurementClient) CurrentFilterStrategy() (*FilterStrategy, bool) {
	c.strategyMu.Lock()
	defer c.strategyMu.Unlock()
	return c.strategy, c.strategyChecked
}
