package repo

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/benchwork/procurement-bridge/internal/models"
)

// defaultPageSize is assumed when neither headers nor body advertise one;
// the remote may cap the requested size silently.
const defaultPageSize = 25

// parsePageMetadata infers pagination state for one page. Headers win over
// body objects, and a full-sized page implies another page exists.
func parsePageMetadata(requested int, header http.Header, body []byte, itemCount int) models.PageMetadata {
	meta := models.PageMetadata{PageNumber: requested}

	current, hasCurrent := headerInt(header, "X-Page", "Page")
	total, hasTotal := headerInt(header, "X-Total-Pages", "Total-Pages")
	if hasCurrent {
		meta.PageNumber = current
	}
	if hasTotal {
		meta.TotalPages = total
	}
	if hasCurrent && hasTotal {
		meta.HasNext = current < total
	}
	if !meta.HasNext && firstHeader(header, "X-Next-Page", "Next-Page") != "" {
		meta.HasNext = true
	}
	if !meta.HasNext && strings.Contains(strings.ToLower(header.Get("Link")), `rel="next"`) {
		meta.HasNext = true
	}

	var objects []gjson.Result
	if gjson.ValidBytes(body) {
		root := gjson.ParseBytes(body)
		if root.IsObject() {
			if !meta.HasNext {
				for _, p := range []string{"links.next", "links.next_page", "links.nextUrl", "_links.next"} {
					if truthy(root.Get(p)) {
						meta.HasNext = true
						break
					}
				}
			}
			for _, key := range []string{"meta", "pagination"} {
				if obj := root.Get(key); obj.IsObject() {
					objects = append(objects, obj)
				}
			}
		}
	}

	if !meta.HasNext && len(objects) > 0 {
		bodyCurrent, okCurrent := bodyInt(objects, "current_page", "page", "page_number")
		bodyTotal, okTotal := bodyInt(objects, "total_pages", "pages")
		if okCurrent && !hasCurrent {
			meta.PageNumber = bodyCurrent
		}
		if okTotal && meta.TotalPages == 0 {
			meta.TotalPages = bodyTotal
		}
		if okCurrent && okTotal {
			meta.HasNext = bodyCurrent < bodyTotal
		}
		if !meta.HasNext {
			for _, obj := range objects {
				for _, key := range []string{"next_page", "next"} {
					if v := obj.Get(key); v.Exists() && v.Type != gjson.Null {
						meta.HasNext = true
					}
				}
			}
		}
	}

	if size, ok := headerInt(header, "X-Per-Page", "Per-Page"); ok && size > 0 {
		meta.EffectivePageSize = size
	} else if size, ok := bodyInt(objects, "per_page", "page_size", "perPage", "pageSize"); ok && size > 0 {
		meta.EffectivePageSize = size
	} else {
		meta.EffectivePageSize = defaultPageSize
	}

	if meta.TotalPages == 0 {
		if count, ok := headerInt(header, "X-Total-Count", "Total-Count"); ok && count > 0 {
			meta.TotalPages = (count + meta.EffectivePageSize - 1) / meta.EffectivePageSize
		}
	}
	if !meta.HasNext {
		meta.HasNext = itemCount == meta.EffectivePageSize
	}
	return meta
}

func firstHeader(header http.Header, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(header.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

func headerInt(header http.Header, names ...string) (int, bool) {
	for _, name := range names {
		v := strings.TrimSpace(header.Get(name))
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

func bodyInt(objects []gjson.Result, keys ...string) (int, bool) {
	for _, obj := range objects {
		for _, key := range keys {
			v := obj.Get(key)
			switch v.Type {
			case gjson.Number:
				return int(v.Int()), true
			case gjson.String:
				if n, err := strconv.Atoi(strings.TrimSpace(v.Str)); err == nil {
					return n, true
				}
			}
		}
	}
	return 0, false
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0
	case gjson.True:
		return true
	case gjson.JSON:
		return len(v.Array()) > 0 || len(v.Map()) > 0
	}
	return false
}
