package repo

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/benchwork/procurement-bridge/internal/models"
)

// List extraction rules, tried in order. An empty path is the document root.
var (
	orderListPaths     = []string{"", "order_requests", "orderRequests", "data", "results", "items"}
	inventoryListPaths = []string{"", "inventory_items", "inventoryItems", "items", "data", "results"}
	labListPaths       = []string{"", "labs", "data"}
	typeListPaths      = []string{"", "types", "data"}

	inventoryObjectKeys = []string{"inventory_item", "item", "inventoryItem", "data"}
	orderObjectKeys     = []string{"order_request", "orderRequest", "data"}

	quantityKeys = []string{"quantity", "quantity_in_stock", "qty", "in_stock_quantity"}

	statusKeys = []string{
		"status",
		"state",
		"workflow_status",
		"workflowState",
		"order_status",
		"request_status",
		"fulfillment_status",
	}
)

// extractList returns the first array found by paths. ok is false when the
// body is not JSON or no rule yields an array.
func extractList(body []byte, paths []string) ([]models.Record, bool) {
	if !gjson.ValidBytes(body) {
		return nil, false
	}
	for _, p := range paths {
		var res gjson.Result
		if p == "" {
			res = gjson.ParseBytes(body)
		} else {
			res = gjson.GetBytes(body, p)
		}
		if !res.IsArray() {
			continue
		}
		items := make([]models.Record, 0, len(res.Array()))
		for _, el := range res.Array() {
			if !el.IsObject() {
				continue
			}
			if rec, err := decodeRecord(el.Raw); err == nil {
				items = append(items, rec)
			}
		}
		return items, true
	}
	return nil, false
}

// extractObject unwraps a single record, preferring a wrapper key when one
// holds an object.
func extractObject(body []byte, wrappers []string) (models.Record, bool) {
	if !gjson.ValidBytes(body) {
		return nil, false
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, false
	}
	for _, key := range wrappers {
		if inner := root.Get(key); inner.IsObject() {
			rec, err := decodeRecord(inner.Raw)
			return rec, err == nil
		}
	}
	rec, err := decodeRecord(root.Raw)
	return rec, err == nil
}

func decodeRecord(raw string) (models.Record, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var rec models.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// stringOf renders scalar JSON values as trimmed strings.
func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// recordString returns the first non-empty scalar among keys.
func recordString(rec models.Record, keys ...string) string {
	for _, k := range keys {
		if s := stringOf(rec[k]); s != "" {
			return s
		}
	}
	return ""
}

// recordInt returns the first integer-like value among keys. "12.0" and
// 12.5 both parse as 12.
func recordInt(rec models.Record, keys ...string) (int, bool) {
	for _, k := range keys {
		if n, ok := parseIntLoose(rec[k]); ok {
			return n, true
		}
	}
	return 0, false
}

func parseIntLoose(v any) (int, bool) {
	s := stringOf(v)
	if s == "" {
		return 0, false
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func recordObject(rec models.Record, key string) models.Record {
	m, _ := rec[key].(map[string]any)
	return m
}

// nestedID reads rec[key].id for relation objects such as lab or type.
func nestedID(rec models.Record, key string) string {
	if obj := recordObject(rec, key); obj != nil {
		return stringOf(obj["id"])
	}
	return ""
}

// nameOf renders a location-like value: a string, or an object carrying a
// display name, possibly nested.
func nameOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case map[string]any:
		for _, k := range []string{"name", "label", "title", "display_name", "displayName"} {
			if s := stringOf(t[k]); s != "" {
				return s
			}
		}
		for _, k := range []string{"location", "sub_location", "sublocation"} {
			if s := nameOf(t[k]); s != "" {
				return s
			}
		}
		return ""
	}
	return stringOf(v)
}

func statusOf(rec models.Record) string {
	return recordString(rec, statusKeys...)
}
