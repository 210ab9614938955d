package models

import "time"

// Record is a decoded remote JSON object.
type Record = map[string]any

// OrderRequest is the normalized projection of a remote order request.
type OrderRequest struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Vendor              string     `json:"vendor"`
	QuantityExpected    int        `json:"quantity_expected"`
	Quantity            string     `json:"quantity,omitempty"`
	Status              string     `json:"status"`
	CatalogNumber       string     `json:"catalog_number,omitempty"`
	CatalogNumberSource string     `json:"catalog_number_source,omitempty"`
	UnitSize            string     `json:"unit_size,omitempty"`
	UnitPrice           any        `json:"unit_price,omitempty"`
	TotalPrice          any        `json:"total_price,omitempty"`
	RequestedAt         *time.Time `json:"requested_at,omitempty"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`
	RequestedBy         any        `json:"requested_by,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	InvoiceNumber       string     `json:"invoice_number,omitempty"`
	ConfirmationNumber  string     `json:"confirmation_number,omitempty"`
	TrackingNumber      string     `json:"tracking_number,omitempty"`
	PurchaseOrderNumber string     `json:"purchase_order_number,omitempty"`
	IsUrgent            bool       `json:"is_urgent"`
	AppURL              string     `json:"app_url,omitempty"`
	LabID               string     `json:"lab_id,omitempty"`
	TypeID              string     `json:"type_id,omitempty"`
	Details             Record     `json:"details,omitempty"`
	Raw                 Record     `json:"raw,omitempty"`
}

// InventoryItem is the normalized projection of a remote inventory item.
type InventoryItem struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Vendor        string `json:"vendor"`
	CatalogNumber string `json:"catalog_number,omitempty"`
	Quantity      string `json:"quantity,omitempty"`
	// QuantityValue is the parsed quantity; nil when absent or unparseable.
	QuantityValue *int   `json:"quantity_value,omitempty"`
	Location      string `json:"location,omitempty"`
	SubLocation   string `json:"sub_location,omitempty"`
	UnitSize      string `json:"unit_size,omitempty"`
	LabID         string `json:"lab_id,omitempty"`
	TypeID        string `json:"type_id,omitempty"`
	AppURL        string `json:"app_url,omitempty"`
	Raw           Record `json:"raw,omitempty"`
}

// Lab is a tenant lab visible to the token.
type Lab struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// ItemType is an inventory type definition.
type ItemType struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	LabID string `json:"lab_id,omitempty"`
}

// LocationSummary aggregates the storage locations seen in inventory.
type LocationSummary struct {
	Locations              []string            `json:"locations"`
	SubLocations           []string            `json:"sub_locations"`
	LocationToSubLocations map[string][]string `json:"location_to_sublocations"`
	SampleSize             int                 `json:"sample_size"`
	LabID                  string              `json:"lab_id"`
}

// SearchHit is a light inventory search result.
type SearchHit struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity any    `json:"quantity,omitempty"`
}

// LookupResult reports an exact-code inventory lookup.
type LookupResult struct {
	Found        bool           `json:"found"`
	Code         string         `json:"code"`
	Page         int            `json:"page,omitempty"`
	PagesScanned int            `json:"pages_scanned,omitempty"`
	Item         *InventoryItem `json:"item,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	HTTPStatus   int            `json:"http_status,omitempty"`
}
