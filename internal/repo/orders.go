package repo

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/benchwork/procurement-bridge/internal/models"
	"github.com/benchwork/procurement-bridge/internal/utils"
)

const collectionOrders = "orders"

// DefaultOrderStatuses is used when a fetch names no status.
var DefaultOrderStatuses = []string{"ORDERED"}

var catalogKeys = []string{
	"catalog_number",
	"vendor_catalog_number",
	"vendor_product_id",
	"vendor_product",
	"catalog",
	"sku",
	"item_number",
	"product_number",
	"catalogNumber",
}

type cachedOrders struct {
	Orders []models.OrderRequest `json:"orders"`
	Report models.FetchReport    `json:"report"`
}

// FetchOrders returns order requests whose status matches statuses exactly
// (case-insensitive). Server-side filtering is attempted but never trusted.
func (c *ProcurementClient) FetchOrders(ctx context.Context, statuses []string, lab string, opts FetchOptions) ([]models.OrderRequest, models.FetchReport) {
	if !c.Enabled() {
		return nil, models.FetchReport{Reason: models.ReasonDisabled}
	}
	wanted := cleanStatuses(statuses)
	if len(wanted) == 0 {
		wanted = append([]string(nil), DefaultOrderStatuses...)
	}
	lab = c.labOrDefault(lab)
	perPage := firstPositive(opts.PerPage, c.cfg.OrdersPerPage)
	workers := firstPositive(opts.Workers, c.cfg.MaxWorkers)

	subkey := lab + "|" + strings.Join(wanted, ",") + "|" + strconv.Itoa(perPage)
	if !opts.Refresh {
		var hit cachedOrders
		if c.cache.Get(ctx, collectionOrders, subkey, &hit) {
			hit.Report.Cached = true
			return hit.Orders, hit.Report
		}
	}

	plan := fetchPlan{kind: ResourceOrders, lab: lab, perPage: perPage, workers: workers, statuses: wanted}
	lifecycle, approval := splitStatusTokens(wanted)
	if len(lifecycle)+len(approval) > 0 {
		binding, _, attempts, ok := c.discover(ctx, ResourceOrders, lab, perPage)
		if !ok {
			return nil, models.FetchReport{Reason: models.ReasonEndpointNotFound, Attempts: attempts}
		}
		strategy := c.ensureFilterStrategy(ctx, binding, lab, lifecycle, approval)
		plan.filters = statusParams(lifecycle, approval, strategy)
		plan.strategy = strategy.String()
	}

	records, report := c.fetchAll(ctx, plan)
	orders := make([]models.OrderRequest, 0, len(records))
	for _, rec := range records {
		orders = append(orders, mapOrder(rec))
	}
	if report.Reason == "" {
		c.cache.Set(ctx, collectionOrders, subkey, cachedOrders{Orders: orders, Report: report})
	}
	return orders, report
}

// GetOrder reads a single order request.
func (c *ProcurementClient) GetOrder(ctx context.Context, orderID string) (*models.OrderRequest, models.FetchReport) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, models.FetchReport{Reason: models.ReasonMissingOrderID}
	}
	if !c.Enabled() {
		return nil, models.FetchReport{Reason: models.ReasonDisabled}
	}
	rec, report := c.getObject(ctx, orderPaths(id), orderObjectKeys)
	if rec == nil {
		report.Reason = models.ReasonOrderNotFound
		return nil, report
	}
	order := mapOrder(rec)
	return &order, report
}

// UpdateOrderStatus sets an order's status, trying path, casing, body and
// method variants in turn.
func (c *ProcurementClient) UpdateOrderStatus(ctx context.Context, orderID, status string) models.WriteReport {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return models.Failed(models.ReasonMissingOrderID)
	}
	if !c.Enabled() {
		return models.Failed(models.ReasonDisabled)
	}
	report, _ := c.execute(ctx, "order_status", orderStatusCandidates(id, status))
	return report
}

// UpdateOrderNotes writes a note or comment onto an order.
func (c *ProcurementClient) UpdateOrderNotes(ctx context.Context, orderID, notes string) models.WriteReport {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return models.Failed(models.ReasonMissingOrderID)
	}
	if strings.TrimSpace(notes) == "" {
		return models.Failed(models.ReasonMissingNotes)
	}
	if !c.Enabled() {
		return models.Failed(models.ReasonDisabled)
	}
	report, _ := c.execute(ctx, "order_notes", orderNotesCandidates(id, notes))
	return report
}

func orderPaths(id string) []string {
	escaped := url.PathEscape(id)
	return []string{
		"/order-requests/" + escaped,
		"/api/v2/order-requests/" + escaped,
		"/order_requests/" + escaped,
		"/api/v2/order_requests/" + escaped,
	}
}

func statusCasings(status string) []string {
	status = strings.TrimSpace(status)
	if status == "" {
		return []string{"RECEIVED", "received"}
	}
	lower := strings.ToLower(status)
	capitalized := strings.ToUpper(lower[:1]) + lower[1:]
	var out []string
	seen := make(map[string]bool)
	for _, v := range []string{status, strings.ToUpper(status), lower, capitalized} {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func orderStatusCandidates(id, status string) []WriteCandidate {
	var out []WriteCandidate
	for _, p := range orderPaths(id) {
		for _, st := range statusCasings(status) {
			bodies := []struct {
				shape string
				body  models.Record
			}{
				{"status", models.Record{"status": st}},
				{"order_request.status", models.Record{"order_request": map[string]any{"status": st}}},
				{"order_status", models.Record{"order_status": st}},
			}
			for _, b := range bodies {
				for _, method := range []string{http.MethodPut, http.MethodPatch} {
					out = append(out, WriteCandidate{Path: p, Method: method, Body: b.body, Shape: b.shape + "=" + st})
				}
			}
		}
	}
	return out
}

func orderNotesCandidates(id, notes string) []WriteCandidate {
	bodies := []struct {
		shape string
		body  models.Record
	}{
		{"notes", models.Record{"notes": notes}},
		{"order_request.notes", models.Record{"order_request": map[string]any{"notes": notes}}},
		{"comment", models.Record{"comment": notes}},
		{"comments", models.Record{"comments": notes}},
		{"order_request.comment", models.Record{"order_request": map[string]any{"comment": notes}}},
	}
	var out []WriteCandidate
	for _, p := range orderPaths(id) {
		for _, b := range bodies {
			for _, method := range []string{http.MethodPut, http.MethodPatch} {
				out = append(out, WriteCandidate{Path: p, Method: method, Body: b.body, Shape: b.shape})
			}
		}
	}
	return out
}

// getObject GETs paths in order and unwraps the first 2xx object.
func (c *ProcurementClient) getObject(ctx context.Context, paths []string, wrappers []string) (models.Record, models.FetchReport) {
	var report models.FetchReport
	mode := c.writeMode()
	for _, p := range paths {
		resp, attempt := c.do(ctx, call{method: http.MethodGet, path: p, mode: mode})
		report.Attempts = append(report.Attempts, attempt)
		if resp == nil {
			continue
		}
		report.LastHTTPStatus = resp.status
		if !resp.ok() {
			continue
		}
		if rec, ok := extractObject(resp.body, wrappers); ok {
			report.Endpoint = p
			report.AuthMode = mode
			return rec, report
		}
	}
	return nil, report
}

// mapOrder projects a remote order request onto OrderRequest.
func mapOrder(rec models.Record) models.OrderRequest {
	catalog, source := extractCatalogNumber(rec)
	quantity := stringOf(rec["quantity"])
	expected, _ := parseIntLoose(rec["quantity"])
	order := models.OrderRequest{
		ID:                  stringOf(rec["id"]),
		Name:                firstNonEmpty(recordString(rec, "item_name", "name"), "Unnamed"),
		Vendor:              recordString(rec, "vendor_name", "vendor"),
		QuantityExpected:    expected,
		Quantity:            quantity,
		Status:              statusOf(rec),
		CatalogNumber:       catalog,
		CatalogNumberSource: source,
		UnitSize:            stringOf(rec["unit_size"]),
		UnitPrice:           rec["unit_price"],
		TotalPrice:          rec["total_price"],
		RequestedBy:         rec["requested_by"],
		Notes:               stringOf(rec["notes"]),
		InvoiceNumber:       stringOf(rec["invoice_number"]),
		ConfirmationNumber:  stringOf(rec["confirmation_number"]),
		TrackingNumber:      stringOf(rec["tracking_number"]),
		PurchaseOrderNumber: stringOf(rec["purchase_order_number"]),
		AppURL:              stringOf(rec["app_url"]),
		LabID:               nestedID(rec, "lab"),
		TypeID:              nestedID(rec, "type"),
		Details:             recordObject(rec, "details"),
		Raw:                 rec,
	}
	if urgent, ok := rec["is_urgent"].(bool); ok {
		order.IsUrgent = urgent
	}
	if t, err := utils.ParseRemoteTime(stringOf(rec["requested_at"])); err == nil {
		order.RequestedAt = &t
	}
	if t, err := utils.ParseRemoteTime(stringOf(rec["updated_at"])); err == nil {
		order.UpdatedAt = &t
	}
	return order
}

// extractCatalogNumber looks in the top-level keys, then under details.
func extractCatalogNumber(rec models.Record) (string, string) {
	for _, k := range catalogKeys {
		if v := stringOf(rec[k]); v != "" {
			return v, k
		}
	}
	if details := recordObject(rec, "details"); details != nil {
		for _, k := range catalogKeys {
			if v := stringOf(details[k]); v != "" {
				return v, "details." + k
			}
		}
	}
	return "", ""
}

func cleanStatuses(statuses []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range statuses {
		t := strings.ToUpper(strings.TrimSpace(s))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 1
}
