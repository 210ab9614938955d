package models

// MatchQuery is a free-text description of an inventory item.
type MatchQuery struct {
	Name          string `json:"name,omitempty"`
	Vendor        string `json:"vendor,omitempty"`
	CatalogNumber string `json:"catalog_number,omitempty"`
	LabID         string `json:"lab_id,omitempty"`
}

// Empty reports whether the query carries no usable field.
func (q MatchQuery) Empty() bool {
	return q.Name == "" && q.Vendor == "" && q.CatalogNumber == ""
}

// MatchCandidate is a scored inventory record.
type MatchCandidate struct {
	Item        InventoryItem `json:"item"`
	Score       int           `json:"score"`
	Location    string        `json:"location,omitempty"`
	SubLocation string        `json:"sub_location,omitempty"`
}
