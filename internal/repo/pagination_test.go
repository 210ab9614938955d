package repo

import (
	"net/http"
	"testing"
)

func TestParsePageMetadata(t *testing.T) {
	tests := []struct {
		name      string
		header    http.Header
		body      string
		items     int
		wantPage  int
		wantTotal int
		wantSize  int
		wantNext  bool
	}{
		{
			name:      "explicit headers",
			header:    http.Header{"X-Page": {"2"}, "X-Total-Pages": {"3"}, "X-Per-Page": {"50"}},
			body:      `[]`,
			items:     50,
			wantPage:  2,
			wantTotal: 3,
			wantSize:  50,
			wantNext:  true,
		},
		{
			name:     "last page by headers",
			header:   http.Header{"X-Page": {"3"}, "X-Total-Pages": {"3"}},
			body:     `[]`,
			items:    10,
			wantPage: 3, wantTotal: 3, wantSize: 25,
			wantNext: false,
		},
		{
			name:     "link header",
			header:   http.Header{"Link": {`<https://api.example.test/inventory-items?page=2>; rel="next"`}},
			body:     `[]`,
			items:    3,
			wantPage: 1, wantSize: 25, wantNext: true,
		},
		{
			name:     "next page header",
			header:   http.Header{"X-Next-Page": {"2"}},
			body:     `[]`,
			items:    1,
			wantPage: 1, wantSize: 25, wantNext: true,
		},
		{
			name:     "body meta",
			header:   http.Header{},
			body:     `{"data":[],"meta":{"current_page":"2","total_pages":4,"per_page":10}}`,
			items:    10,
			wantPage: 2, wantTotal: 4, wantSize: 10, wantNext: true,
		},
		{
			name:     "body pagination next",
			header:   http.Header{},
			body:     `{"items":[],"pagination":{"next":"cursor-2","pageSize":5}}`,
			items:    2,
			wantPage: 1, wantSize: 5, wantNext: true,
		},
		{
			name:     "body links",
			header:   http.Header{},
			body:     `{"items":[],"links":{"next":"https://api.example.test/x?page=2"}}`,
			items:    2,
			wantPage: 1, wantSize: 25, wantNext: true,
		},
		{
			name:     "null next is not a next page",
			header:   http.Header{},
			body:     `{"items":[],"meta":{"next_page":null}}`,
			items:    2,
			wantPage: 1, wantSize: 25, wantNext: false,
		},
		{
			name:     "total count",
			header:   http.Header{"X-Total-Count": {"101"}, "Per-Page": {"20"}},
			body:     `[]`,
			items:    20,
			wantPage: 1, wantTotal: 6, wantSize: 20, wantNext: true,
		},
		{
			name:     "full page heuristic",
			header:   http.Header{},
			body:     `[]`,
			items:    25,
			wantPage: 1, wantSize: 25, wantNext: true,
		},
		{
			name:     "short page",
			header:   http.Header{},
			body:     `not json`,
			items:    7,
			wantPage: 1, wantSize: 25, wantNext: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			meta := parsePageMetadata(1, tc.header, []byte(tc.body), tc.items)
			if meta.PageNumber != tc.wantPage || meta.TotalPages != tc.wantTotal || meta.EffectivePageSize != tc.wantSize || meta.HasNext != tc.wantNext {
				t.Fatalf("unexpected metadata: %+v", meta)
			}
		})
	}
}
