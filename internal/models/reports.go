package models

import "time"

// FetchAttempt is one diagnostic entry for a remote call.
type FetchAttempt struct {
	URL         string        `json:"url"`
	Method      string        `json:"method"`
	HTTPStatus  int           `json:"http_status,omitempty"`
	Error       string        `json:"error,omitempty"`
	BodyShape   []string      `json:"body_shape,omitempty"`
	Variant     string        `json:"variant,omitempty"`
	ContentType string        `json:"content_type,omitempty"`
	AuthMode    string        `json:"auth_mode,omitempty"`
	Page        int           `json:"page,omitempty"`
	Latency     time.Duration `json:"latency_ns,omitempty"`
	Snippet     string        `json:"snippet,omitempty"`
}

// OK reports whether the attempt received a 2xx response.
func (a FetchAttempt) OK() bool {
	return a.HTTPStatus >= 200 && a.HTTPStatus < 300
}

// PageMetadata is the pagination state inferred for one page.
type PageMetadata struct {
	PageNumber        int  `json:"page_number"`
	TotalPages        int  `json:"total_pages,omitempty"` // 0 when unknown
	EffectivePageSize int  `json:"effective_page_size"`
	HasNext           bool `json:"has_next"`
}

// FetchReport summarises a collection fetch.
type FetchReport struct {
	PagesFetched      int            `json:"pages_fetched"`
	LastHTTPStatus    int            `json:"last_http_status,omitempty"`
	EffectivePageSize int            `json:"effective_page_size,omitempty"`
	Endpoint          string         `json:"endpoint,omitempty"`
	AuthMode          string         `json:"auth_mode,omitempty"`
	Strategy          string         `json:"strategy,omitempty"`
	Attempts          []FetchAttempt `json:"attempts,omitempty"`
	Reason            string         `json:"reason,omitempty"`
	Cached            bool           `json:"cached,omitempty"`
}

// WriteReport is the outcome of a write orchestration. It is returned on
// success and failure alike.
type WriteReport struct {
	Success         bool           `json:"success"`
	HTTPStatus      int            `json:"http_status,omitempty"`
	Method          string         `json:"method,omitempty"`
	Path            string         `json:"path,omitempty"`
	Request         any            `json:"request,omitempty"`
	Response        any            `json:"response,omitempty"`
	Attempts        []FetchAttempt `json:"attempts,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	TargetQuantity  *int           `json:"target_quantity,omitempty"`
	CurrentQuantity *int           `json:"current_quantity,omitempty"`
	ItemID          string         `json:"item_id,omitempty"`
	ItemURL         string         `json:"item_url,omitempty"`
	PrefillURL      string         `json:"prefill_url,omitempty"`
	CreatedID       string         `json:"created_id,omitempty"`
}

// Failed builds an unsuccessful report carrying reason.
func Failed(reason string) WriteReport {
	return WriteReport{Reason: reason}
}
