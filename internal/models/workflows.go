package models

// Handoff describes a UI-automation job started in place of an API write.
type Handoff struct {
	Started bool   `json:"started"`
	Kind    string `json:"kind,omitempty"`
	JobID   string `json:"job_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PartialReceipt annotates a receipt smaller than the ordered quantity.
type PartialReceipt struct {
	Ordered   int    `json:"ordered_qty"`
	Received  int    `json:"received_qty"`
	Remaining int    `json:"remaining_qty"`
	Message   string `json:"ui_message"`
}

// QuantityResult is a quantity write plus the hand-off started when it failed.
type QuantityResult struct {
	Report  WriteReport `json:"report"`
	Handoff *Handoff    `json:"handoff,omitempty"`
}

// UpsertRequest records stock for an item that may or may not exist yet.
// Quantity is added to the matched item's current stock.
type UpsertRequest struct {
	Name          string `json:"name"`
	Vendor        string `json:"vendor,omitempty"`
	CatalogNumber string `json:"catalog_number,omitempty"`
	Quantity      *int   `json:"quantity,omitempty"`
	Location      string `json:"location,omitempty"`
	SubLocation   string `json:"sub_location,omitempty"`
	LabID         string `json:"lab_id,omitempty"`
}

// Upsert actions.
const (
	ActionUpdated   = "updated"
	ActionSkipped   = "skipped"
	ActionCreated   = "created"
	ActionHandedOff = "handed_off"
)

// UpsertResult reports what UpsertInventory did.
type UpsertResult struct {
	Success    bool           `json:"success"`
	Action     string         `json:"action"`
	Matched    bool           `json:"matched"`
	Item       *InventoryItem `json:"item,omitempty"`
	ItemURL    string         `json:"item_url,omitempty"`
	Quantity   *WriteReport   `json:"quantity,omitempty"`
	Create     *WriteReport   `json:"create,omitempty"`
	Location   *WriteReport   `json:"location,omitempty"`
	PrefillURL string         `json:"prefill_url,omitempty"`
	Handoff    *Handoff       `json:"handoff,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// ReceiveResult reports the receipt of an order into inventory.
type ReceiveResult struct {
	OrderID  string          `json:"order_id"`
	Success  bool            `json:"success"`
	Reason   string          `json:"reason,omitempty"`
	OrderURL string          `json:"order_url,omitempty"`
	Received int             `json:"received_qty"`
	Item     *InventoryItem  `json:"item,omitempty"`
	ItemURL  string          `json:"item_url,omitempty"`
	Quantity *WriteReport    `json:"quantity,omitempty"`
	Status   *WriteReport    `json:"status,omitempty"`
	Notes    *WriteReport    `json:"notes,omitempty"`
	Partial  *PartialReceipt `json:"partial,omitempty"`
	Handoffs []Handoff       `json:"handoffs,omitempty"`
}
