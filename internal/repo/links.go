package repo

import (
	"net/url"
	"strings"
)

// ItemLink is the web app URL for an inventory item.
func (c *ProcurementClient) ItemLink(itemID string) string {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return ""
	}
	return c.appURL + "/inventory/items/" + url.PathEscape(id)
}

// ItemLinkVariants returns the plain item link followed by the group-scoped
// one when a group or lab is configured.
func (c *ProcurementClient) ItemLinkVariants(itemID string) []string {
	plain := c.ItemLink(itemID)
	if plain == "" {
		return nil
	}
	out := []string{plain}
	if gid := c.groupID(); gid != "" {
		out = append(out, c.appURL+"/groups/"+url.PathEscape(gid)+"/inventory/items/"+url.PathEscape(strings.TrimSpace(itemID)))
	}
	return out
}

// PrefillLink opens the inventory page with the add form prefilled. Empty
// fields are omitted.
func (c *ProcurementClient) PrefillLink(name, vendor, catalogNumber, location string) string {
	return c.appURL + "/inventory" + prefillQuery(name, vendor, catalogNumber, location)
}

// PrefillLinkVariants returns the plain prefill link and, when a group or
// lab is configured, the group-scoped one.
func (c *ProcurementClient) PrefillLinkVariants(name, vendor, catalogNumber, location string) []string {
	out := []string{c.PrefillLink(name, vendor, catalogNumber, location)}
	if gid := c.groupID(); gid != "" {
		out = append(out, c.appURL+"/groups/"+url.PathEscape(gid)+"/inventory"+prefillQuery(name, vendor, catalogNumber, location))
	}
	return out
}

func (c *ProcurementClient) groupID() string {
	return strings.TrimSpace(firstNonEmpty(c.cfg.GroupID, c.cfg.LabID))
}

func prefillQuery(name, vendor, catalogNumber, location string) string {
	q := url.Values{}
	for _, kv := range [][2]string{
		{"name", name},
		{"vendor", vendor},
		{"catalog_number", catalogNumber},
		{"location", location},
	} {
		if v := strings.TrimSpace(kv[1]); v != "" {
			q.Set(kv[0], v)
		}
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
