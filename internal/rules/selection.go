package rules

import (
	"slices"
	"strings"

	"influencer-gifting-api/internal/models"
)

// NormalizeProductID reduces a platform global id such as
// "gid://shopify/ProductVariant/42" to its trailing numeric part.
func NormalizeProductID(id string) string {
	if strings.HasPrefix(id, "gid://") {
		return id[strings.LastIndex(id, "/")+1:]
	}
	return id
}

// CatalogKey is the id a product is matched on against a campaign's
// selected product ids.
func CatalogKey(p models.Product) string {
	switch {
	case p.VariantLegacyID != "":
		return NormalizeProductID(p.VariantLegacyID)
	case p.VariantID != "":
		return NormalizeProductID(p.VariantID)
	}
	return NormalizeProductID(p.ID)
}

func eligibleSet(c models.Campaign) map[string]struct{} {
	set := make(map[string]struct{}, len(c.SelectedProductIDs))
	for _, id := range c.SelectedProductIDs {
		set[NormalizeProductID(id)] = struct{}{}
	}
	return set
}

// VisibleProducts filters the catalog down to what the claim form shows:
// products selected for the campaign, without inactive ones unless the
// campaign opts in, and without sold-out ones when the campaign hides them.
func VisibleProducts(c models.Campaign, catalog []models.Product) []models.Product {
	showSoldOut := c.ShowSoldOut == nil || *c.ShowSoldOut
	hideInactive := c.HideInactiveProducts == nil || *c.HideInactiveProducts
	eligible := eligibleSet(c)

	visible := make([]models.Product, 0, len(catalog))
	for _, p := range catalog {
		if _, ok := eligible[CatalogKey(p)]; !ok {
			continue
		}
		if hideInactive && p.Status != "" && p.Status != models.ProductStatusActive {
			continue
		}
		if !showSoldOut && p.AvailableForSale != nil && !*p.AvailableForSale {
			continue
		}
		visible = append(visible, p)
	}
	return visible
}

// ResolveItems returns the catalog products for the given ids, in id order.
// Unknown ids are skipped.
func ResolveItems(catalog []models.Product, ids []string) []models.Product {
	byKey := make(map[string]models.Product, len(catalog))
	for _, p := range catalog {
		byKey[CatalogKey(p)] = p
		byKey[NormalizeProductID(p.ID)] = p
	}
	items := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byKey[NormalizeProductID(id)]; ok {
			items = append(items, p)
		}
	}
	return items
}

// ToggleSelection applies a click on product id to the current selection.
// Deselecting always succeeds. Selecting past the item limit is refused with
// an empty reason; selecting past the cart cap is refused with a message.
func ToggleSelection(c models.Campaign, visible []models.Product, selected []string, id string) ([]string, Verdict) {
	if i := slices.Index(selected, id); i >= 0 {
		return slices.Delete(slices.Clone(selected), i, i+1), Allow()
	}
	if len(selected) >= ItemLimit(c) {
		return selected, Reject(CodeItemLimitExceeded, "")
	}

	next := append(slices.Clone(selected), id)
	if IsMaxCartExceeded(c, ResolveItems(visible, next)) {
		return selected, Reject(CodeMaxCartExceeded, MaxCartMessage(c))
	}
	return next, Allow()
}
