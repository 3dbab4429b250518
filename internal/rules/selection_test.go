package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"influencer-gifting-api/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func TestNormalizeProductID(t *testing.T) {
	assert.Equal(t, "42", NormalizeProductID("gid://shopify/ProductVariant/42"))
	assert.Equal(t, "42", NormalizeProductID("42"))
}

func TestVisibleProducts(t *testing.T) {
	catalog := []models.Product{
		{ID: "1", VariantLegacyID: "1", Status: "ACTIVE"},
		{ID: "2", VariantID: "gid://shopify/ProductVariant/2", Status: "ARCHIVED"},
		{ID: "3", Status: "ACTIVE", AvailableForSale: boolPtr(false)},
		{ID: "4", Status: "ACTIVE"},
	}
	c := campaignWith(models.CampaignConfig{SelectedProductIDs: []string{"gid://shopify/ProductVariant/1", "2", "3"}})

	ids := func(ps []models.Product) []string {
		out := []string{}
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}

	assert.Equal(t, []string{"1", "3"}, ids(VisibleProducts(c, catalog)))

	c.HideInactiveProducts = boolPtr(false)
	c.ShowSoldOut = boolPtr(false)
	assert.Equal(t, []string{"1", "2"}, ids(VisibleProducts(c, catalog)))
}

func TestResolveItems(t *testing.T) {
	catalog := []models.Product{
		{ID: "10", VariantID: "gid://shopify/ProductVariant/10", Price: "5"},
		{ID: "11", Price: "6"},
	}
	items := ResolveItems(catalog, []string{"11", "gid://shopify/ProductVariant/10", "missing"})
	assert.Len(t, items, 2)
	assert.Equal(t, "11", items[0].ID)
	assert.Equal(t, "10", items[1].ID)
}

func TestToggleSelection(t *testing.T) {
	visible := []models.Product{
		{ID: "a", Price: "30"},
		{ID: "b", Price: "30"},
		{ID: "c", Price: "50"},
	}
	c := campaignWith(models.CampaignConfig{ItemLimit: "2", MaxCartValue: "70"})

	sel, v := ToggleSelection(c, visible, nil, "a")
	assert.True(t, v.Allowed)
	assert.Equal(t, []string{"a"}, sel)

	sel2, v := ToggleSelection(c, visible, sel, "c")
	assert.False(t, v.Allowed)
	assert.Equal(t, CodeMaxCartExceeded, v.Code)
	assert.Equal(t, "Selected gifts exceed $70.", v.Reason)
	assert.Equal(t, sel, sel2)

	sel, v = ToggleSelection(c, visible, sel, "b")
	assert.True(t, v.Allowed)
	assert.Equal(t, []string{"a", "b"}, sel)

	refused, v := ToggleSelection(c, visible, sel, "c")
	assert.False(t, v.Allowed)
	assert.Equal(t, CodeItemLimitExceeded, v.Code)
	assert.Empty(t, v.Reason, "item limit refusals are silent")
	assert.Equal(t, sel, refused)

	sel, v = ToggleSelection(c, visible, sel, "a")
	assert.True(t, v.Allowed)
	assert.Equal(t, []string{"b"}, sel)
}

func TestToggleSelection_PricesVariantKeyedProducts(t *testing.T) {
	visible := []models.Product{
		{ID: "gid://shopify/Product/1", VariantID: "gid://shopify/ProductVariant/11", Price: "25"},
		{ID: "gid://shopify/Product/2", VariantID: "gid://shopify/ProductVariant/22", Price: "15.50"},
	}
	c := campaignWith(models.CampaignConfig{ItemLimit: "3", MaxCartValue: "30"})

	sel, v := ToggleSelection(c, visible, nil, "11")
	assert.True(t, v.Allowed)
	assert.Equal(t, []string{"11"}, sel)

	refused, v := ToggleSelection(c, visible, sel, "22")
	assert.False(t, v.Allowed)
	assert.Equal(t, CodeMaxCartExceeded, v.Code)
	assert.Equal(t, "Selected gifts exceed $30.", v.Reason)
	assert.Equal(t, []string{"11"}, refused)
}
