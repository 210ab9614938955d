package models

// QuantityUpdate asks for an absolute quantity or an additive delta.
// Quantity wins when both are set.
type QuantityUpdate struct {
	ItemID        string `json:"item_id"`
	Quantity      *int   `json:"quantity,omitempty"`
	Delta         *int   `json:"delta,omitempty"`
	Name          string `json:"name,omitempty"`
	Vendor        string `json:"vendor,omitempty"`
	CatalogNumber string `json:"catalog_number,omitempty"`
}

// NewInventoryItem describes an item to create.
type NewInventoryItem struct {
	Name          string `json:"name"`
	Vendor        string `json:"vendor,omitempty"`
	CatalogNumber string `json:"catalog_number,omitempty"`
	Quantity      *int   `json:"quantity,omitempty"`
	Location      string `json:"location,omitempty"`
	SubLocation   string `json:"sub_location,omitempty"`
	LabID         string `json:"lab_id,omitempty"`
}

// ReceiveRequest records the arrival of an ordered item.
type ReceiveRequest struct {
	OrderID          string `json:"order_id"`
	ReceivedQuantity *int   `json:"received_quantity,omitempty"`
	Location         string `json:"location,omitempty"`
	SubLocation      string `json:"sub_location,omitempty"`
	LabID            string `json:"lab_id,omitempty"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
