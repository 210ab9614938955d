package repo

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/benchwork/procurement-bridge/internal/models"
)

const (
	collectionInventory = "inventory"
	collectionLocations = "locations"
	collectionLabs      = "labs"
	collectionTypes     = "types"
	collectionSearch    = "inventory_search"

	searchResultCap = 25
)

var (
	inventoryCatalogKeys = []string{"catalog_number", "vendor_product_id", "vendor_product", "sku", "item_number", "product_number"}
	locationKeys         = []string{"location", "location_name", "locationName", "storage_location", "storageLocation", "storage"}
	subLocationKeys      = []string{"sublocation", "sub_location", "sublocation_name", "sub_location_name", "subLocation", "box", "shelf", "drawer", "rack", "bin"}
)

type cachedInventory struct {
	Items  []models.InventoryItem `json:"items"`
	Report models.FetchReport     `json:"report"`
}

// FetchInventory returns every inventory item visible for lab.
func (c *ProcurementClient) FetchInventory(ctx context.Context, lab string, opts FetchOptions) ([]models.InventoryItem, models.FetchReport) {
	if !c.Enabled() {
		return nil, models.FetchReport{Reason: models.ReasonDisabled}
	}
	lab = c.labOrDefault(lab)
	perPage := firstPositive(opts.PerPage, c.cfg.EffectiveInventoryPerPage())
	workers := firstPositive(opts.Workers, c.cfg.EffectiveInventoryWorkers())

	subkey := lab + "|" + strconv.Itoa(perPage)
	if !opts.Refresh {
		var hit cachedInventory
		if c.cache.Get(ctx, collectionInventory, subkey, &hit) {
			hit.Report.Cached = true
			return hit.Items, hit.Report
		}
	}

	records, report := c.fetchAll(ctx, fetchPlan{kind: ResourceInventory, lab: lab, perPage: perPage, workers: workers})
	items := make([]models.InventoryItem, 0, len(records))
	for _, rec := range records {
		items = append(items, mapInventory(rec))
	}
	if report.Reason == "" {
		c.cache.Set(ctx, collectionInventory, subkey, cachedInventory{Items: items, Report: report})
	}
	return items, report
}

// GetInventoryItem reads a single inventory item.
func (c *ProcurementClient) GetInventoryItem(ctx context.Context, itemID string) (*models.InventoryItem, models.FetchReport) {
	rec, report := c.getInventoryRecord(ctx, itemID)
	if rec == nil {
		return nil, report
	}
	item := mapInventory(rec)
	return &item, report
}

func (c *ProcurementClient) getInventoryRecord(ctx context.Context, itemID string) (models.Record, models.FetchReport) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return nil, models.FetchReport{Reason: models.ReasonMissingItemID}
	}
	if !c.Enabled() {
		return nil, models.FetchReport{Reason: models.ReasonDisabled}
	}
	escaped := url.PathEscape(id)
	rec, report := c.getObject(ctx, []string{
		"/inventory-items/" + escaped,
		"/api/v2/inventory-items/" + escaped,
		"/inventory_items/" + escaped,
	}, inventoryObjectKeys)
	if rec == nil {
		report.Reason = models.ReasonNoVariantSucceeded
	}
	return rec, report
}

// mapInventory projects a remote inventory record onto InventoryItem.
func mapInventory(rec models.Record) models.InventoryItem {
	loc, sub := extractLocation(rec)
	item := models.InventoryItem{
		ID:            stringOf(rec["id"]),
		Name:          recordString(rec, "name", "item_name", "display_name"),
		Vendor:        recordString(rec, "vendor", "vendor_name"),
		CatalogNumber: recordString(rec, inventoryCatalogKeys...),
		Quantity:      recordString(rec, quantityKeys...),
		Location:      loc,
		SubLocation:   sub,
		UnitSize:      stringOf(rec["unit_size"]),
		LabID:         nestedID(rec, "lab"),
		TypeID:        nestedID(rec, "type"),
		AppURL:        stringOf(rec["app_url"]),
		Raw:           rec,
	}
	if n, ok := recordInt(rec, quantityKeys...); ok {
		item.QuantityValue = &n
	}
	return item
}

// extractLocation finds the storage location and sub-location, looking
// through flat keys first and then storage-like container objects.
func extractLocation(rec models.Record) (string, string) {
	var loc, sub string
	for _, k := range locationKeys {
		if loc = nameOf(rec[k]); loc != "" {
			break
		}
	}
	for _, k := range subLocationKeys {
		if sub = nameOf(rec[k]); sub != "" {
			break
		}
	}
	if loc == "" {
		for _, k := range []string{"storage", "location_info", "locationInfo"} {
			obj := recordObject(rec, k)
			if obj == nil {
				continue
			}
			loc = nameOf(firstPresent(obj, "location", "name"))
			if sub == "" {
				sub = nameOf(firstPresent(obj, "sublocation", "sub_location"))
			}
			if loc != "" || sub != "" {
				break
			}
		}
	}
	return loc, sub
}

func firstPresent(rec models.Record, keys ...string) any {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// locationFacets accumulates distinct locations and sub-locations.
type locationFacets struct {
	locations    map[string]bool
	subLocations map[string]bool
	byLocation   map[string]map[string]bool
	scanned      int
}

func newLocationFacets() *locationFacets {
	return &locationFacets{
		locations:    make(map[string]bool),
		subLocations: make(map[string]bool),
		byLocation:   make(map[string]map[string]bool),
	}
}

func (f *locationFacets) distinct() int {
	return len(f.locations) + len(f.subLocations)
}

func (f *locationFacets) absorb(items []models.Record) bool {
	before := f.distinct()
	for _, it := range items {
		f.scanned++
		loc, sub := extractLocation(it)
		if loc != "" {
			f.locations[loc] = true
			if sub != "" {
				if f.byLocation[loc] == nil {
					f.byLocation[loc] = make(map[string]bool)
				}
				f.byLocation[loc][sub] = true
			}
		}
		if sub != "" {
			f.subLocations[sub] = true
		}
	}
	return f.distinct() > before
}

func (f *locationFacets) summary(lab string) models.LocationSummary {
	out := models.LocationSummary{
		Locations:              sortedKeys(f.locations),
		SubLocations:           sortedKeys(f.subLocations),
		LocationToSubLocations: make(map[string][]string, len(f.byLocation)),
		SampleSize:             f.scanned,
		LabID:                  lab,
	}
	for loc, subs := range f.byLocation {
		out.LocationToSubLocations[loc] = sortedKeys(subs)
	}
	return out
}

type cachedLocations struct {
	Summary models.LocationSummary `json:"summary"`
	Report  models.FetchReport     `json:"report"`
}

// CollectLocations scans inventory for distinct storage locations. When the
// page count is unknown the scan stops early once pages stop adding new
// values.
func (c *ProcurementClient) CollectLocations(ctx context.Context, lab string, opts FetchOptions) (models.LocationSummary, models.FetchReport) {
	lab = c.labOrDefault(lab)
	empty := models.LocationSummary{Locations: []string{}, SubLocations: []string{}, LocationToSubLocations: map[string][]string{}, LabID: lab}
	if !c.Enabled() {
		return empty, models.FetchReport{Reason: models.ReasonDisabled}
	}
	perPage := firstPositive(opts.PerPage, c.cfg.EffectiveInventoryPerPage())
	workers := firstPositive(opts.Workers, c.cfg.EffectiveInventoryWorkers())

	subkey := lab + "|" + strconv.Itoa(perPage) + "|" + strconv.Itoa(workers)
	if !opts.Refresh {
		var hit cachedLocations
		if c.cache.Get(ctx, collectionLocations, subkey, &hit) {
			hit.Report.Cached = true
			return hit.Summary, hit.Report
		}
	}

	facets := newLocationFacets()
	_, report := c.fetchAll(ctx, fetchPlan{kind: ResourceInventory, lab: lab, perPage: perPage, workers: workers, facets: facets})
	if report.Reason != "" {
		return empty, report
	}
	summary := facets.summary(lab)
	c.cache.Set(ctx, collectionLocations, subkey, cachedLocations{Summary: summary, Report: report})
	return summary, report
}

// ListLabs returns the labs visible to the token.
func (c *ProcurementClient) ListLabs(ctx context.Context, refresh bool) ([]models.Lab, models.FetchReport) {
	if !c.Enabled() {
		return nil, models.FetchReport{Reason: models.ReasonDisabled}
	}
	var labs []models.Lab
	if !refresh && c.cache.Get(ctx, collectionLabs, "", &labs) {
		return labs, models.FetchReport{Cached: true}
	}
	records, report := c.getList(ctx, "/labs", nil, labListPaths)
	if report.Reason != "" {
		return nil, report
	}
	labs = make([]models.Lab, 0, len(records))
	for _, rec := range records {
		labs = append(labs, models.Lab{
			ID:             stringOf(rec["id"]),
			Name:           stringOf(rec["name"]),
			OrganizationID: nestedID(rec, "organization"),
		})
	}
	c.cache.Set(ctx, collectionLabs, "", labs)
	return labs, report
}

// ListTypes returns inventory type definitions, optionally scoped to lab.
func (c *ProcurementClient) ListTypes(ctx context.Context, lab string, refresh bool) ([]models.ItemType, models.FetchReport) {
	if !c.Enabled() {
		return nil, models.FetchReport{Reason: models.ReasonDisabled}
	}
	lab = c.labOrDefault(lab)
	var types []models.ItemType
	if !refresh && c.cache.Get(ctx, collectionTypes, lab, &types) {
		return types, models.FetchReport{Cached: true}
	}
	q := url.Values{}
	if lab != "" {
		q.Set("lab_id", lab)
	}
	records, report := c.getList(ctx, "/types", q, typeListPaths)
	if report.Reason != "" {
		return nil, report
	}
	types = make([]models.ItemType, 0, len(records))
	for _, rec := range records {
		types = append(types, models.ItemType{
			ID:    stringOf(rec["id"]),
			Name:  stringOf(rec["name"]),
			LabID: nestedID(rec, "lab"),
		})
	}
	c.cache.Set(ctx, collectionTypes, lab, types)
	return types, report
}

func (c *ProcurementClient) getList(ctx context.Context, p string, q url.Values, rules []string) ([]models.Record, models.FetchReport) {
	mode := c.writeMode()
	resp, attempt := c.do(ctx, call{method: http.MethodGet, path: p, query: q, mode: mode})
	report := models.FetchReport{Endpoint: p, AuthMode: mode}
	if resp == nil || !resp.ok() {
		report.Attempts = []models.FetchAttempt{attempt}
		report.LastHTTPStatus = attempt.HTTPStatus
		report.Reason = models.ReasonNoVariantSucceeded
		return nil, report
	}
	report.LastHTTPStatus = resp.status
	records, ok := extractList(resp.body, rules)
	if !ok {
		report.Attempts = []models.FetchAttempt{attempt}
		report.Reason = models.ReasonNoVariantSucceeded
		return nil, report
	}
	report.PagesFetched = 1
	return records, report
}

// SearchInventory returns up to 25 items whose name contains query, scanning
// at most pages pages sequentially.
func (c *ProcurementClient) SearchInventory(ctx context.Context, query string, pages int) ([]models.SearchHit, models.FetchReport) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" || !c.Enabled() {
		return []models.SearchHit{}, models.FetchReport{Reason: models.ReasonSkipped}
	}
	var hits []models.SearchHit
	if c.cache.Get(ctx, collectionSearch, needle, &hits) {
		return hits, models.FetchReport{Cached: true}
	}

	hits = []models.SearchHit{}
	report := c.scanInventory(ctx, max(pages, 1), func(_ int, items []models.Record) bool {
		for _, it := range items {
			name := recordString(it, "name", "item_name")
			if strings.Contains(strings.ToLower(name), needle) {
				hits = append(hits, models.SearchHit{ID: stringOf(it["id"]), Name: name, Quantity: it["quantity"]})
			}
		}
		return len(hits) >= searchResultCap
	})
	if len(hits) > searchResultCap {
		hits = hits[:searchResultCap]
	}
	if report.Reason == "" {
		c.cache.Set(ctx, collectionSearch, needle, hits)
	}
	return hits, report
}

// LookupInventory finds the item whose name, catalog number or vendor
// product id equals code, ignoring case.
func (c *ProcurementClient) LookupInventory(ctx context.Context, code string, maxPages int) models.LookupResult {
	target := strings.ToLower(strings.TrimSpace(code))
	result := models.LookupResult{Code: code}
	if target == "" {
		result.Reason = "empty_code"
		return result
	}
	if !c.Enabled() {
		result.Reason = models.ReasonDisabled
		return result
	}
	maxPages = firstPositive(maxPages, c.cfg.LookupMaxPages)

	report := c.scanInventory(ctx, maxPages, func(page int, items []models.Record) bool {
		for _, it := range items {
			name := strings.ToLower(recordString(it, "name", "item_name"))
			catalog := strings.ToLower(stringOf(it["catalog_number"]))
			product := strings.ToLower(recordString(it, "vendor_product_id", "vendor_product"))
			if target == name || target == catalog || target == product {
				item := mapInventory(it)
				result.Found = true
				result.Item = &item
				result.Page = page
				return true
			}
		}
		return false
	})
	result.PagesScanned = report.PagesFetched
	if !result.Found {
		result.Reason = firstNonEmpty(report.Reason, "not_found")
		result.HTTPStatus = report.LastHTTPStatus
	}
	return result
}

// scanInventory walks inventory pages in order until visit returns true, a
// page is empty or fails, or maxPages is reached.
func (c *ProcurementClient) scanInventory(ctx context.Context, maxPages int, visit func(page int, items []models.Record) bool) models.FetchReport {
	lab := c.labOrDefault("")
	perPage := c.cfg.EffectiveInventoryPerPage()
	binding, probe, attempts, ok := c.discover(ctx, ResourceInventory, lab, perPage)
	report := models.FetchReport{Attempts: attempts}
	if !ok {
		report.Reason = models.ReasonEndpointNotFound
		return report
	}
	report.Endpoint = binding.Path
	report.AuthMode = binding.AuthMode
	for page := 1; page <= maxPages; page++ {
		res := probe
		probe = nil
		if page > 1 || res == nil {
			var att []models.FetchAttempt
			res, att = c.fetchPage(ctx, binding, lab, page, perPage, nil, []string{binding.AuthMode})
			report.Attempts = append(report.Attempts, att...)
		}
		if res == nil {
			if n := len(report.Attempts); n > 0 {
				report.LastHTTPStatus = report.Attempts[n-1].HTTPStatus
			}
			report.Reason = models.ReasonNoVariantSucceeded
			break
		}
		report.LastHTTPStatus = res.status
		if len(res.items) == 0 {
			break
		}
		report.PagesFetched++
		if visit(page, res.items) {
			break
		}
	}
	report.Attempts = failedOnly(report.Attempts)
	return report
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
