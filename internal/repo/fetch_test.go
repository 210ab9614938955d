package repo

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"testing"

	"github.com/benchwork/procurement-bridge/internal/config"
)

func TestFetchOrdersEndToEnd(t *testing.T) {
	statuses := []string{"ORDERED", "RECEIVED", "ORDERED", "ORDERED", "RECEIVED", "ORDERED"}
	client, log := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/order-requests" {
			http.NotFound(w, r)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}
		var items []map[string]any
		for i := (page - 1) * 2; i < page*2 && i < len(statuses); i++ {
			items = append(items, map[string]any{"id": fmt.Sprintf("o-%d", i+1), "item_name": "Pipette tips", "status": statuses[i]})
		}
		w.Header().Set("X-Page", strconv.Itoa(page))
		w.Header().Set("X-Total-Pages", "3")
		w.Header().Set("X-Per-Page", "2")
		writeJSON(t, w, http.StatusOK, items)
	}, nil)

	orders, report := client.FetchOrders(context.Background(), []string{"ORDERED"}, "", FetchOptions{})
	if report.Reason != "" {
		t.Fatalf("unexpected reason %q, attempts=%+v", report.Reason, report.Attempts)
	}
	if len(orders) != 4 {
		t.Fatalf("expected 4 ORDERED items, got %d", len(orders))
	}
	for _, o := range orders {
		if o.Status != "ORDERED" {
			t.Fatalf("unexpected status in result: %+v", o)
		}
	}
	if report.PagesFetched != 3 {
		t.Fatalf("expected pagesFetched 3, got %d", report.PagesFetched)
	}
	if report.EffectivePageSize != 2 {
		t.Fatalf("expected effective page size 2, got %d", report.EffectivePageSize)
	}
	if report.Strategy != "multi-variant" {
		t.Fatalf("mock ignores filters, expected multi-variant fallback, got %q", report.Strategy)
	}

	before := log.count(nil)
	cached, again := client.FetchOrders(context.Background(), []string{"ordered"}, "", FetchOptions{})
	if !again.Cached || len(cached) != 4 || log.count(nil) != before {
		t.Fatalf("expected cached result without requests")
	}
}

func TestFetchInventoryKnownTotalIsCompleteForAnyWorkerCount(t *testing.T) {
	const totalPages = 5
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inventory-items" {
			http.NotFound(w, r)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		items := []map[string]any{}
		for i := 1; i <= 3; i++ {
			items = append(items, map[string]any{"id": fmt.Sprintf("i-%d", (page-1)*3+i), "name": "item"})
		}
		if page == 3 {
			items = append(items, map[string]any{"id": "i-1", "name": "item"})
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"inventory_items": items,
			"meta":            map[string]any{"current_page": page, "total_pages": totalPages, "per_page": 3},
		})
	}

	for _, workers := range []int{1, 2, 5} {
		client, log := newServerClient(t, handler, nil)
		items, report := client.FetchInventory(context.Background(), "", FetchOptions{Workers: workers, PerPage: 3})
		if report.Reason != "" {
			t.Fatalf("workers=%d: unexpected reason %q", workers, report.Reason)
		}
		if len(items) != totalPages*3 {
			t.Fatalf("workers=%d: expected %d items, got %d", workers, totalPages*3, len(items))
		}
		seen := make(map[string]bool)
		for _, it := range items {
			if seen[it.ID] {
				t.Fatalf("workers=%d: duplicate id %s", workers, it.ID)
			}
			seen[it.ID] = true
		}
		if report.PagesFetched != totalPages {
			t.Fatalf("workers=%d: expected %d pages, got %d", workers, totalPages, report.PagesFetched)
		}
		if got := log.count(nil); got != totalPages {
			t.Fatalf("workers=%d: expected probe reuse and %d requests, got %d", workers, totalPages, got)
		}
	}
}

func TestFetchDropsFailedPages(t *testing.T) {
	client, _ := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page == 2 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("X-Total-Pages", "3")
		writeJSON(t, w, http.StatusOK, []map[string]any{{"id": fmt.Sprintf("i-%d", page)}})
	}, nil)

	items, report := client.FetchInventory(context.Background(), "", FetchOptions{})
	if len(items) != 2 || report.PagesFetched != 2 {
		t.Fatalf("expected partial result of 2 pages, got %d items over %d pages", len(items), report.PagesFetched)
	}
	if len(report.Attempts) != 1 || report.Attempts[0].HTTPStatus != http.StatusBadRequest {
		t.Fatalf("expected the failed page in attempts, got %+v", report.Attempts)
	}
}

func TestStrideScanStopsAfterNoGrowthStreak(t *testing.T) {
	client, log := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		shelf := "Shelf-1"
		if page <= 3 {
			shelf = fmt.Sprintf("Shelf-%d", page)
		}
		w.Header().Set("X-Per-Page", "2")
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"id": fmt.Sprintf("i-%d-a", page), "location": map[string]any{"name": "Freezer"}, "sublocation": shelf},
			{"id": fmt.Sprintf("i-%d-b", page), "location": "Freezer", "box": shelf},
		})
	}, func(cfg *config.ServiceConfig) { cfg.MaxWorkers = 1 })

	summary, report := client.CollectLocations(context.Background(), "", FetchOptions{})
	if report.Reason != "" {
		t.Fatalf("unexpected reason %q", report.Reason)
	}
	beyond := log.count(func(r *http.Request) bool {
		p, _ := strconv.Atoi(r.URL.Query().Get("page"))
		return p > 3
	})
	if beyond != 3 {
		t.Fatalf("expected exactly 3 dispatches after page 3, got %d", beyond)
	}
	if len(summary.Locations) != 1 || summary.Locations[0] != "Freezer" {
		t.Fatalf("unexpected locations: %+v", summary.Locations)
	}
	if len(summary.SubLocations) != 3 || len(summary.LocationToSubLocations["Freezer"]) != 3 {
		t.Fatalf("unexpected sub-locations: %+v", summary)
	}
	if summary.SampleSize != 12 {
		t.Fatalf("expected 12 scanned items, got %d", summary.SampleSize)
	}
}

func TestStrideScanEndsOnEmptyPages(t *testing.T) {
	client, _ := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		w.Header().Set("X-Per-Page", "1")
		if page > 4 {
			writeJSON(t, w, http.StatusOK, []map[string]any{})
			return
		}
		writeJSON(t, w, http.StatusOK, []map[string]any{{"id": fmt.Sprintf("i-%d", page)}})
	}, func(cfg *config.ServiceConfig) { cfg.MaxWorkers = 3 })

	items, report := client.FetchInventory(context.Background(), "", FetchOptions{})
	if len(items) != 4 || report.PagesFetched != 4 {
		t.Fatalf("expected 4 items over 4 pages, got %d / %d", len(items), report.PagesFetched)
	}
}
