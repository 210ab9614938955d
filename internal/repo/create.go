package repo

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/benchwork/procurement-bridge/internal/models"
)

const (
	opCreateItem     = "create_item"
	opUpdateLocation = "update_location"
)

var createdIDPaths = []string{"id", "inventory_item.id", "item.id", "data.id"}

// CreateInventoryItem POSTs a new inventory item, trying path, body and
// location shapes in turn. On failure the report carries a prefill link for
// creating the item by hand.
func (c *ProcurementClient) CreateInventoryItem(ctx context.Context, in models.NewInventoryItem) models.WriteReport {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Failed(models.ReasonItemNameRequired)
	}
	if !c.Enabled() {
		report := models.Failed(models.ReasonDisabled)
		report.PrefillURL = c.PrefillLink(name, in.Vendor, in.CatalogNumber, in.Location)
		return report
	}
	lab := c.labOrDefault(in.LabID)

	report, body := c.runStages(ctx, opCreateItem,
		func() []WriteCandidate { return createCandidates(in, lab) },
		func() []WriteCandidate { return []WriteCandidate{jsonAPICreateCandidate(in, lab)} },
	)
	if !report.Success {
		report.PrefillURL = c.PrefillLink(name, in.Vendor, in.CatalogNumber, in.Location)
		return report
	}
	report.CreatedID = createdID(body)
	report.ItemID = report.CreatedID
	report.ItemURL = c.ItemLink(report.CreatedID)
	return report
}

func createdID(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, p := range createdIDPaths {
		if v := gjson.GetBytes(body, p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func createBaseFields(in models.NewInventoryItem, lab string) models.Record {
	base := models.Record{"name": strings.TrimSpace(in.Name)}
	if v := strings.TrimSpace(in.Vendor); v != "" {
		base["vendor"] = v
	}
	if v := strings.TrimSpace(in.CatalogNumber); v != "" {
		base["catalog_number"] = v
	}
	if lab != "" {
		base["lab_id"] = lab
	}
	if in.Quantity != nil {
		base["quantity"] = strconv.Itoa(max(0, *in.Quantity))
	}
	return base
}

func createPaths(lab string) []string {
	paths := []string{"/inventory-items", "/api/v2/inventory-items", "/inventory_items", "/api/v2/inventory_items"}
	if lab != "" {
		l := url.PathEscape(lab)
		paths = append(paths,
			"/labs/"+l+"/inventory-items",
			"/api/v2/labs/"+l+"/inventory-items",
			"/labs/"+l+"/inventory_items",
			"/api/v2/labs/"+l+"/inventory_items",
		)
	}
	return paths
}

func locationVariants(location, subLocation string) []shapedBody {
	out := []shapedBody{{"no_location", models.Record{}}}
	if loc := strings.TrimSpace(location); loc != "" {
		out = append(out,
			shapedBody{"location_object", models.Record{"location": models.Record{"name": loc}}},
			shapedBody{"location_string", models.Record{"location": loc}},
		)
	}
	if sub := strings.TrimSpace(subLocation); sub != "" {
		out = append(out,
			shapedBody{"sublocation_object", models.Record{"sublocation": models.Record{"name": sub}}},
			shapedBody{"sub_location_object", models.Record{"sub_location": models.Record{"name": sub}}},
			shapedBody{"sublocation_string", models.Record{"sublocation": sub}},
			shapedBody{"sub_location_string", models.Record{"sub_location": sub}},
		)
	}
	return out
}

func createCandidates(in models.NewInventoryItem, lab string) []WriteCandidate {
	base := createBaseFields(in, lab)
	alt := cloneRecord(base)
	if v, ok := alt["vendor"]; ok {
		delete(alt, "vendor")
		alt["vendor_name"] = v
	}
	type bodyShape struct {
		shape   string
		fields  models.Record
		wrapped bool
	}
	shapes := []bodyShape{
		{"base", base, false},
		{"vendor_name", alt, false},
		{"wrapped_base", base, true},
		{"wrapped_vendor_name", alt, true},
	}
	variants := locationVariants(in.Location, in.SubLocation)

	var out []WriteCandidate
	for _, p := range createPaths(lab) {
		for _, s := range shapes {
			for _, v := range variants {
				inner := cloneRecord(s.fields)
				for k, val := range v.body {
					inner[k] = val
				}
				body := inner
				if s.wrapped {
					body = models.Record{"inventory_item": inner}
				}
				out = append(out, WriteCandidate{Path: p, Method: http.MethodPost, Body: body, Shape: s.shape + "+" + v.shape})
			}
		}
	}
	return dedupeCandidates(out)
}

func jsonAPICreateCandidate(in models.NewInventoryItem, lab string) WriteCandidate {
	attrs := createBaseFields(in, lab)
	delete(attrs, "lab_id")
	data := models.Record{"type": "inventory-items", "attributes": attrs}
	if lab != "" {
		data["relationships"] = labRelationship(lab)
	}
	return WriteCandidate{
		Path:        "/inventory-items",
		Method:      http.MethodPost,
		ContentType: contentTypeJSONAPI,
		Body:        models.Record{"data": data},
		Shape:       "jsonapi_create",
	}
}

// UpdateItemLocation PATCHes the storage location of an item. It is a no-op
// when neither location nor sub-location is given.
func (c *ProcurementClient) UpdateItemLocation(ctx context.Context, itemID, location, subLocation string) models.WriteReport {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return models.Failed(models.ReasonMissingItemID)
	}
	loc := strings.TrimSpace(location)
	sub := strings.TrimSpace(subLocation)
	if loc == "" && sub == "" {
		return models.Failed(models.ReasonSkipped)
	}
	if !c.Enabled() {
		return models.Failed(models.ReasonDisabled)
	}

	core := models.Record{}
	if loc != "" {
		core["location"] = models.Record{"name": loc}
	}
	if sub != "" {
		core["sublocation"] = models.Record{"name": sub}
	}
	escaped := url.PathEscape(id)
	var candidates []WriteCandidate
	for _, p := range []string{"/inventory-items/" + escaped, "/api/v2/inventory-items/" + escaped, "/inventory_items/" + escaped} {
		candidates = append(candidates,
			WriteCandidate{Path: p, Method: http.MethodPatch, Body: core, Shape: "location"},
			WriteCandidate{Path: p, Method: http.MethodPatch, Body: models.Record{"inventory_item": core}, Shape: "wrapped_location"},
		)
	}
	report, _ := c.execute(ctx, opUpdateLocation, candidates)
	report.ItemID = id
	report.ItemURL = c.ItemLink(id)
	return report
}
