package repo

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/benchwork/procurement-bridge/internal/models"
)

const opUpdateQuantity = "update_quantity"

// fullObjectStripKeys are server-managed fields removed before a full PUT.
var fullObjectStripKeys = []string{"app_url", "url", "created_at", "updated_at"}

// UpdateInventoryQuantity sets an item's quantity, either absolutely or by
// applying a delta to the current remote value. Remote failures come back as
// a report, never as an error.
func (c *ProcurementClient) UpdateInventoryQuantity(ctx context.Context, in models.QuantityUpdate) models.WriteReport {
	id := strings.TrimSpace(in.ItemID)
	if id == "" {
		return models.Failed(models.ReasonMissingItemID)
	}
	if in.Quantity == nil && in.Delta == nil {
		return models.Failed(models.ReasonNoQuantityProvided)
	}
	if !c.Enabled() {
		return models.Failed(models.ReasonDisabled)
	}

	var current *int
	var target int
	if in.Quantity != nil {
		target = max(0, *in.Quantity)
	} else {
		rec, read := c.getInventoryRecord(ctx, id)
		if rec == nil {
			report := models.Failed(models.ReasonFailedToFetchCurrent)
			report.ItemID = id
			report.Attempts = read.Attempts
			report.HTTPStatus = read.LastHTTPStatus
			return report
		}
		cur, _ := recordInt(rec, quantityKeys...)
		current = &cur
		target = max(0, cur+*in.Delta)
	}

	lab := c.labOrDefault("")
	var fullObjectPath string
	report, _ := c.runStages(ctx, opUpdateQuantity,
		func() []WriteCandidate { return []WriteCandidate{canonicalQuantityCandidate(id, target)} },
		func() []WriteCandidate { return quantityVariantCandidates(id, lab, target, in) },
		func() []WriteCandidate {
			rec, read := c.getInventoryRecord(ctx, id)
			if rec == nil {
				return nil
			}
			fullObjectPath = read.Endpoint
			return fullObjectCandidates(read.Endpoint, rec, target)
		},
		func() []WriteCandidate { return jsonAPIQuantityCandidates(id, lab, target) },
	)

	report.ItemID = id
	report.ItemURL = c.ItemLink(id)
	report.TargetQuantity = &target
	report.CurrentQuantity = current
	if !report.Success {
		c.logger.Info("quantity update exhausted",
			slog.String("item_id", id),
			slog.Int("target", target),
			slog.String("full_object_path", fullObjectPath),
			slog.Int("attempts", len(report.Attempts)),
		)
	}
	return report
}

func canonicalQuantityCandidate(id string, target int) WriteCandidate {
	return WriteCandidate{
		Path:   "/inventory-items/" + url.PathEscape(id),
		Method: http.MethodPut,
		Body:   models.Record{"quantity": strconv.Itoa(target)},
		Shape:  "quantity_string",
	}
}

func inventoryItemPaths(id, lab string) []string {
	escaped := url.PathEscape(id)
	paths := []string{
		"/inventory-items/" + escaped,
		"/inventory_items/" + escaped,
		"/api/v2/inventory-items/" + escaped,
		"/api/v2/inventory_items/" + escaped,
	}
	if lab != "" {
		l := url.PathEscape(lab)
		paths = append(paths,
			"/labs/"+l+"/inventory-items/"+escaped,
			"/labs/"+l+"/inventory_items/"+escaped,
			"/api/v2/labs/"+l+"/inventory-items/"+escaped,
			"/api/v2/labs/"+l+"/inventory_items/"+escaped,
		)
	}
	return paths
}

type shapedBody struct {
	shape string
	body  models.Record
}

func quantityBodies(target int, in models.QuantityUpdate) []shapedBody {
	bodies := []shapedBody{
		{"quantity_string", models.Record{"quantity": strconv.Itoa(target)}},
		{"quantity_int", models.Record{"quantity": target}},
		{"wrapped_quantity", models.Record{"inventory_item": models.Record{"quantity": target}}},
		{"quantity_in_stock", models.Record{"quantity_in_stock": target}},
		{"wrapped_quantity_in_stock", models.Record{"inventory_item": models.Record{"quantity_in_stock": target}}},
	}
	flat := models.Record{}
	for k, v := range map[string]string{"name": in.Name, "vendor": in.Vendor, "catalog_number": in.CatalogNumber} {
		if v = strings.TrimSpace(v); v != "" {
			flat[k] = v
		}
	}
	if len(flat) > 0 {
		withQty := cloneRecord(flat)
		withQty["quantity"] = target
		bodies = append(bodies,
			shapedBody{"fields_with_quantity", withQty},
			shapedBody{"wrapped_fields_with_quantity", models.Record{"inventory_item": cloneRecord(withQty)}},
			shapedBody{"fields_only", flat},
			shapedBody{"wrapped_fields_only", models.Record{"inventory_item": cloneRecord(flat)}},
		)
	}
	return bodies
}

// quantityVariantCandidates is every path and body pairing, PUT then PATCH,
// minus the canonical candidate already tried.
func quantityVariantCandidates(id, lab string, target int, in models.QuantityUpdate) []WriteCandidate {
	canonical := canonicalQuantityCandidate(id, target).key()
	var out []WriteCandidate
	for _, p := range inventoryItemPaths(id, lab) {
		for _, b := range quantityBodies(target, in) {
			for _, method := range []string{http.MethodPut, http.MethodPatch} {
				cand := WriteCandidate{Path: p, Method: method, Body: b.body, Shape: b.shape}
				if cand.key() == canonical {
					continue
				}
				out = append(out, cand)
			}
		}
	}
	return dedupeCandidates(out)
}

// fullObjectCandidates PUTs the item as read back, with its quantity replaced.
func fullObjectCandidates(p string, rec models.Record, target int) []WriteCandidate {
	if p == "" {
		return nil
	}
	obj := cloneRecord(rec)
	for _, k := range fullObjectStripKeys {
		delete(obj, k)
	}
	replaced := false
	for _, k := range quantityKeys {
		if _, ok := obj[k]; ok {
			obj[k] = target
			replaced = true
		}
	}
	if !replaced {
		obj["quantity"] = target
	}
	return []WriteCandidate{
		{Path: p, Method: http.MethodPut, Body: obj, Shape: "full_object"},
		{Path: p, Method: http.MethodPut, Body: models.Record{"inventory_item": obj}, Shape: "wrapped_full_object"},
	}
}

func jsonAPIQuantityCandidates(id, lab string, target int) []WriteCandidate {
	escaped := url.PathEscape(id)
	paths := []string{"/inventory-items/" + escaped}
	if lab != "" {
		paths = append(paths, "/labs/"+url.PathEscape(lab)+"/inventory-items/"+escaped)
	}
	var out []WriteCandidate
	for _, p := range paths {
		for _, typ := range []string{"inventory-items", "inventory_items"} {
			for _, attr := range []string{"quantity", "quantity_in_stock"} {
				data := models.Record{
					"type":       typ,
					"id":         id,
					"attributes": models.Record{attr: target},
				}
				if lab != "" {
					data["relationships"] = labRelationship(lab)
				}
				body := models.Record{"data": data}
				for _, method := range []string{http.MethodPatch, http.MethodPut} {
					out = append(out, WriteCandidate{
						Path:        p,
						Method:      method,
						ContentType: contentTypeJSONAPI,
						Body:        body,
						Shape:       "jsonapi_" + typ + "_" + attr,
					})
				}
			}
		}
	}
	return out
}

func labRelationship(lab string) models.Record {
	return models.Record{"lab": models.Record{"data": models.Record{"type": "labs", "id": lab}}}
}
