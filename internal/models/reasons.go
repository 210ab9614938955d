package models

// Reason codes carried by failed reports.
const (
	ReasonMissingOrderID       = "missing_order_id"
	ReasonMissingItemID        = "missing_item_id"
	ReasonMissingNotes         = "missing_notes"
	ReasonDisabled             = "disabled_or_token_missing"
	ReasonNoVariantSucceeded   = "no_variant_succeeded"
	ReasonFailedToFetchCurrent = "failed_to_fetch_current"
	ReasonNoQuantityProvided   = "no_quantity_provided"
	ReasonItemNameRequired     = "item_name_required"
	ReasonOrderNotFound        = "order_not_found"
	ReasonNoInventoryMatch     = "no_inventory_match"
	ReasonEndpointNotFound     = "endpoint_not_found"
	ReasonPartialReceipt       = "partial_receipt"
	ReasonSkipped              = "skipped"
)
