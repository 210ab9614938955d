package repo

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/benchwork/procurement-bridge/internal/metrics"
	"github.com/benchwork/procurement-bridge/internal/models"
)

// FetchOptions tunes a single collection fetch. Zero values use config.
type FetchOptions struct {
	PerPage int
	Workers int
	Refresh bool
}

// facetAccumulator absorbs pages during a scan and reports whether the
// page added any new distinct value.
type facetAccumulator interface {
	absorb(items []models.Record) bool
}

type fetchPlan struct {
	kind     ResourceKind
	lab      string
	perPage  int
	workers  int
	filters  url.Values
	statuses []string
	strategy string
	facets   facetAccumulator
}

// fetchAll resolves the binding, fetches page 1, then the remaining pages:
// a bounded pool when the total is known, a stride scan otherwise. Failed
// pages are dropped from the merge.
func (c *ProcurementClient) fetchAll(ctx context.Context, plan fetchPlan) ([]models.Record, models.FetchReport) {
	report := models.FetchReport{Strategy: plan.strategy}
	if plan.workers < 1 {
		plan.workers = 1
	}
	maxPages := c.cfg.MaxPages
	if maxPages < 1 {
		maxPages = 200
	}

	binding, probe, attempts, ok := c.discover(ctx, plan.kind, plan.lab, plan.perPage)
	report.Attempts = append(report.Attempts, attempts...)
	if !ok {
		report.Reason = models.ReasonEndpointNotFound
		return nil, report
	}
	report.Endpoint = binding.Path

	first := probe
	if first == nil || len(plan.filters) > 0 {
		var pageAttempts []models.FetchAttempt
		first, pageAttempts = c.fetchPage(ctx, binding, plan.lab, 1, plan.perPage, plan.filters, c.modesStartingWith(binding.AuthMode))
		report.Attempts = append(report.Attempts, pageAttempts...)
	}
	if first == nil {
		report.Reason = models.ReasonNoVariantSucceeded
		if n := len(report.Attempts); n > 0 {
			report.LastHTTPStatus = report.Attempts[n-1].HTTPStatus
		}
		return nil, report
	}

	mode := first.mode
	report.AuthMode = mode
	report.EffectivePageSize = first.meta.EffectivePageSize
	report.LastHTTPStatus = first.status

	if plan.facets != nil {
		plan.facets.absorb(first.items)
	}

	pages := map[int][]models.Record{1: first.items}
	var mu sync.Mutex
	collect := func(page int, res *pageResult, att []models.FetchAttempt) {
		mu.Lock()
		defer mu.Unlock()
		report.Attempts = append(report.Attempts, att...)
		if res != nil {
			pages[page] = res.items
			report.LastHTTPStatus = res.status
		}
	}
	fetch := func(page int) *pageResult {
		res, att := c.fetchPage(ctx, binding, plan.lab, page, plan.perPage, plan.filters, []string{mode})
		collect(page, res, att)
		return res
	}

	switch {
	case first.meta.TotalPages > 1:
		last := min(first.meta.TotalPages, maxPages)
		var g errgroup.Group
		g.SetLimit(plan.workers)
		for p := 2; p <= last; p++ {
			g.Go(func() error {
				fetch(p)
				return nil
			})
		}
		_ = g.Wait()
		if plan.facets != nil {
			for _, p := range sortedPages(pages) {
				if p > 1 {
					plan.facets.absorb(pages[p])
				}
			}
		}
	case first.meta.TotalPages == 0 && first.meta.HasNext:
		c.strideScan(plan.workers, maxPages, c.cfg.NoGrowthThreshold, plan.facets, func(page int) []models.Record {
			res, att := c.fetchPage(ctx, binding, plan.lab, page, plan.perPage, plan.filters, []string{mode})
			if res == nil || len(res.items) == 0 {
				// empty pages end their lane and are not counted
				mu.Lock()
				report.Attempts = append(report.Attempts, att...)
				mu.Unlock()
				return nil
			}
			collect(page, res, att)
			return res.items
		})
	}

	items := mergePages(pages)
	items = filterByStatus(items, plan.statuses)

	report.PagesFetched = len(pages)
	report.Attempts = failedOnly(report.Attempts)
	metrics.AddPagesFetched(string(plan.kind), report.PagesFetched)
	c.logger.Debug("collection fetched",
		slog.String("kind", string(plan.kind)),
		slog.Int("pages", report.PagesFetched),
		slog.Int("items", len(items)),
		slog.Int("page_size", report.EffectivePageSize),
	)
	return items, report
}

// strideScan keeps up to workers pages in flight. Each non-empty page at p
// schedules p+workers; an empty or failed page ends its lane. With facets
// set, scheduling stops after threshold consecutive non-empty pages that
// added no new facet value. Lanes already in flight still complete.
func (c *ProcurementClient) strideScan(workers, maxPages, threshold int, facets facetAccumulator, fetch func(page int) []models.Record) {
	type laneResult struct {
		page  int
		items []models.Record
	}
	results := make(chan laneResult, workers)
	inflight := 0
	launch := func(page int) {
		inflight++
		go func() {
			results <- laneResult{page: page, items: fetch(page)}
		}()
	}

	for p := 2; p <= 1+workers && p <= maxPages; p++ {
		launch(p)
	}

	streak := 0
	stopped := false
	for inflight > 0 {
		res := <-results
		inflight--
		if len(res.items) == 0 {
			continue
		}
		if facets != nil {
			if facets.absorb(res.items) {
				streak = 0
			} else {
				streak++
			}
			if threshold > 0 && streak >= threshold && !stopped {
				stopped = true
				c.logger.Debug("stride scan stopped on no-growth streak", slog.Int("page", res.page), slog.Int("streak", streak))
			}
		}
		if next := res.page + workers; !stopped && next <= maxPages {
			launch(next)
		}
	}
}

// failedOnly drops successful attempts; a completed fetch keeps only the
// diagnostics of pages that were lost.
func failedOnly(attempts []models.FetchAttempt) []models.FetchAttempt {
	var out []models.FetchAttempt
	for _, a := range attempts {
		if !a.OK() {
			out = append(out, a)
		}
	}
	return out
}

func sortedPages(pages map[int][]models.Record) []int {
	nums := make([]int, 0, len(pages))
	for p := range pages {
		nums = append(nums, p)
	}
	sort.Ints(nums)
	return nums
}

// mergePages flattens pages in page order and drops repeated ids.
func mergePages(pages map[int][]models.Record) []models.Record {
	seen := make(map[string]bool)
	var out []models.Record
	for _, p := range sortedPages(pages) {
		for _, it := range pages[p] {
			if id := stringOf(it["id"]); id != "" {
				if seen[id] {
					continue
				}
				seen[id] = true
			}
			out = append(out, it)
		}
	}
	return out
}

// filterByStatus keeps items whose status equals one of statuses, ignoring case.
func filterByStatus(items []models.Record, statuses []string) []models.Record {
	targets := make(map[string]bool)
	for _, s := range statuses {
		if t := strings.ToUpper(strings.TrimSpace(s)); t != "" {
			targets[t] = true
		}
	}
	if len(targets) == 0 {
		return items
	}
	out := make([]models.Record, 0, len(items))
	for _, it := range items {
		if targets[strings.ToUpper(statusOf(it))] {
			out = append(out, it)
		}
	}
	return out
}
