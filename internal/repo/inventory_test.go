package repo

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/benchwork/procurement-bridge/internal/config"
	"github.com/benchwork/procurement-bridge/internal/models"
)

func pagedInventory(t *testing.T, pages [][]map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inventory-items" {
			http.NotFound(w, r)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		items := []map[string]any{}
		if page >= 1 && page <= len(pages) {
			items = pages[page-1]
		}
		w.Header().Set("X-Per-Page", "2")
		writeJSON(t, w, http.StatusOK, items)
	}
}

func TestLookupInventoryScansPages(t *testing.T) {
	client, _ := newServerClient(t, pagedInventory(t, [][]map[string]any{
		{{"id": "a", "name": "Tips"}, {"id": "b", "name": "Tubes"}},
		{{"id": "c", "name": "Gloves", "catalog_number": "GL-9"}, {"id": "d", "name": "Racks"}},
	}), nil)

	res := client.LookupInventory(context.Background(), " gl-9 ", 0)
	if !res.Found || res.Item == nil || res.Item.ID != "c" || res.Page != 2 {
		t.Fatalf("unexpected lookup result: %+v", res)
	}
	if res.PagesScanned != 2 {
		t.Fatalf("expected 2 pages scanned, got %d", res.PagesScanned)
	}

	miss := client.LookupInventory(context.Background(), "nope", 0)
	if miss.Found || miss.Reason != "not_found" || miss.PagesScanned != 2 {
		t.Fatalf("expected not_found after the empty page, got %+v", miss)
	}
}

func TestSearchInventoryIsCachedPerQuery(t *testing.T) {
	client, log := newServerClient(t, pagedInventory(t, [][]map[string]any{
		{{"id": "a", "name": "Pipette Tips", "quantity": "4"}, {"id": "b", "name": "Tubes"}},
		{{"id": "c", "name": "Filter tips"}, {"id": "d", "name": "Racks"}},
	}), nil)

	hits, _ := client.SearchInventory(context.Background(), "TIPS", 5)
	if len(hits) != 2 || hits[0].ID != "a" || hits[1].ID != "c" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	before := log.count(nil)
	again, report := client.SearchInventory(context.Background(), "tips", 5)
	if !report.Cached || len(again) != 2 || log.count(nil) != before {
		t.Fatalf("expected cached search result")
	}
	if empty, _ := client.SearchInventory(context.Background(), "  ", 5); len(empty) != 0 {
		t.Fatalf("blank query should return nothing")
	}
}

func TestSearchInventorySkipsCacheOnFailure(t *testing.T) {
	var down atomic.Bool
	down.Store(true)
	serve := pagedInventory(t, [][]map[string]any{
		{{"id": "a", "name": "Pipette Tips"}, {"id": "b", "name": "Tubes"}},
	})
	client, _ := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		serve(w, r)
	}, nil)

	hits, report := client.SearchInventory(context.Background(), "pipette", 1)
	if report.Reason == "" || len(hits) != 0 {
		t.Fatalf("expected failed search, got %+v %+v", hits, report)
	}

	down.Store(false)
	hits, report = client.SearchInventory(context.Background(), "pipette", 1)
	if report.Cached || report.Reason != "" {
		t.Fatalf("expected a fresh search after recovery, got %+v", report)
	}
	if len(hits) != 1 || hits[0].ID != "a" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestListLabsAndTypes(t *testing.T) {
	client, log := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/labs":
			writeJSON(t, w, http.StatusOK, map[string]any{"labs": []map[string]any{
				{"id": "lab-1", "name": "Main", "organization": map[string]any{"id": "org-1"}},
			}})
		case "/types":
			if r.URL.Query().Get("lab_id") != "lab-1" {
				t.Errorf("expected lab_id param, got %q", r.URL.RawQuery)
			}
			writeJSON(t, w, http.StatusOK, map[string]any{"types": []map[string]any{
				{"id": "t-1", "name": "Consumable", "lab": map[string]any{"id": "lab-1"}},
			}})
		default:
			http.NotFound(w, r)
		}
	}, nil)
	ctx := context.Background()

	labs, _ := client.ListLabs(ctx, false)
	if len(labs) != 1 || labs[0].OrganizationID != "org-1" {
		t.Fatalf("unexpected labs: %+v", labs)
	}
	if _, report := client.ListLabs(ctx, false); !report.Cached {
		t.Fatalf("second ListLabs should be cached")
	}
	types, _ := client.ListTypes(ctx, "lab-1", false)
	if len(types) != 1 || types[0].LabID != "lab-1" || types[0].Name != "Consumable" {
		t.Fatalf("unexpected types: %+v", types)
	}
	if log.count(nil) != 2 {
		t.Fatalf("expected 2 requests, got %d", log.count(nil))
	}

	if err := client.ClearCaches(ctx); err != nil {
		t.Fatalf("clear caches: %v", err)
	}
	if _, report := client.ListLabs(ctx, false); report.Cached {
		t.Fatalf("cleared cache should miss")
	}
}

func TestMapInventoryLocations(t *testing.T) {
	item := mapInventory(models.Record{
		"id":                "i-1",
		"name":              "Buffer",
		"vendor_product_id": "BF-2",
		"quantity":          "12.0",
		"location_info":     map[string]any{"location": "Cold room", "sub_location": map[string]any{"label": "Rack 3"}},
		"lab":               map[string]any{"id": "lab-1"},
	})
	if item.CatalogNumber != "BF-2" || item.Location != "Cold room" || item.SubLocation != "Rack 3" {
		t.Fatalf("unexpected mapping: %+v", item)
	}
	if item.QuantityValue == nil || *item.QuantityValue != 12 || item.LabID != "lab-1" {
		t.Fatalf("unexpected quantity or lab: %+v", item)
	}

	flat := mapInventory(models.Record{"id": "i-2", "storageLocation": "Bench", "drawer": "D1"})
	if flat.Location != "Bench" || flat.SubLocation != "D1" {
		t.Fatalf("unexpected flat location: %+v", flat)
	}
}

func TestMapOrderCatalogFromDetails(t *testing.T) {
	order := mapOrder(models.Record{
		"id":        "o-1",
		"quantity":  "3",
		"status":    "ORDERED",
		"is_urgent": true,
		"details":   map[string]any{"sku": "X-1"},
	})
	if order.Name != "Unnamed" || order.CatalogNumber != "X-1" || order.CatalogNumberSource != "details.sku" {
		t.Fatalf("unexpected order mapping: %+v", order)
	}
	if order.QuantityExpected != 3 || !order.IsUrgent {
		t.Fatalf("unexpected quantity or urgency: %+v", order)
	}
}

func TestLinks(t *testing.T) {
	client := NewProcurementClient(config.ServiceConfig{AppURL: "https://app.example.test/", GroupID: "g-1"}, nil, nil, nil)

	if got := client.ItemLink("i 1"); got != "https://app.example.test/inventory/items/i%201" {
		t.Fatalf("unexpected item link %q", got)
	}
	variants := client.ItemLinkVariants("i-1")
	if len(variants) != 2 || variants[1] != "https://app.example.test/groups/g-1/inventory/items/i-1" {
		t.Fatalf("unexpected item link variants: %v", variants)
	}
	if got := client.PrefillLink("Tips", "", "", ""); got != "https://app.example.test/inventory?name=Tips" {
		t.Fatalf("unexpected prefill link %q", got)
	}
	prefill := client.PrefillLinkVariants("", "", "", "")
	if len(prefill) != 2 || prefill[0] != "https://app.example.test/inventory" || prefill[1] != "https://app.example.test/groups/g-1/inventory" {
		t.Fatalf("unexpected prefill variants: %v", prefill)
	}
	if client.ItemLink(" ") != "" {
		t.Fatalf("blank id should yield no link")
	}
}

func TestFetchDisabledClient(t *testing.T) {
	client, log := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {}, func(cfg *config.ServiceConfig) { cfg.Token = "" })

	if _, report := client.FetchOrders(context.Background(), nil, "", FetchOptions{}); report.Reason != models.ReasonDisabled {
		t.Fatalf("expected disabled reason, got %q", report.Reason)
	}
	if _, report := client.FetchInventory(context.Background(), "", FetchOptions{}); report.Reason != models.ReasonDisabled {
		t.Fatalf("expected disabled reason, got %q", report.Reason)
	}
	if log.count(nil) != 0 {
		t.Fatalf("disabled client must not call the network")
	}
}
