package commerce

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"influencer-gifting-api/internal/models"
)

// productNode is the products query shape.
type productNode struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Status        string `json:"status"`
	FeaturedImage *struct {
		URL string `json:"url"`
	} `json:"featuredImage"`
	Variants struct {
		Edges []struct {
			Node variantNode `json:"node"`
		} `json:"edges"`
	} `json:"variants"`
}

type variantNode struct {
	ID                string          `json:"id"`
	LegacyResourceID  json.RawMessage `json:"legacyResourceId"`
	Price             models.Amount   `json:"price"`
	AvailableForSale  *bool           `json:"availableForSale"`
	InventoryQuantity *int            `json:"inventoryQuantity"`
}

// productFromNode maps a catalog node onto a Product keyed by its first
// variant. Products without variants cannot be gifted and are skipped.
func productFromNode(node productNode) (models.Product, bool) {
	if len(node.Variants.Edges) == 0 {
		return models.Product{}, false
	}
	v := node.Variants.Edges[0].Node

	legacy := rawScalar(v.LegacyResourceID)
	id := legacy
	if id == "" {
		id = v.ID
	}

	p := models.Product{
		ID:                id,
		VariantID:         v.ID,
		VariantLegacyID:   legacy,
		Title:             node.Title,
		Price:             v.Price,
		Status:            node.Status,
		AvailableForSale:  v.AvailableForSale,
		InventoryQuantity: v.InventoryQuantity,
	}
	if node.FeaturedImage != nil {
		p.ImageURL = node.FeaturedImage.URL
	}
	if p.Status == "" {
		p.Status = models.ProductStatusActive
	}
	if p.AvailableForSale == nil {
		available := true
		p.AvailableForSale = &available
	}

	return p, true
}

// DecodeProduct reads a product record that may use any of the field
// spellings found in stored snapshots and builder payloads.
func DecodeProduct(raw json.RawMessage) (models.Product, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return models.Product{}, fmt.Errorf("invalid product: %w", err)
	}

	pick := func(keys ...string) json.RawMessage {
		for _, k := range keys {
			if v, ok := fields[k]; ok && string(v) != "null" {
				return v
			}
		}
		return nil
	}

	p := models.Product{
		ID:              rawScalar(pick("id", "product_id", "productId")),
		VariantID:       rawScalar(pick("variant_id", "variantId")),
		VariantLegacyID: rawScalar(pick("variant_legacy_id", "variantLegacyId", "legacyResourceId")),
		Title:           rawScalar(pick("title", "name")),
		Price:           models.Amount(rawScalar(pick("price", "amount"))),
		ImageURL:        rawScalar(pick("image_url", "imageUrl", "image")),
		Status:          rawScalar(pick("status")),
	}

	if v := pick("available_for_sale", "availableForSale"); v != nil {
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			p.AvailableForSale = &b
		}
	}
	if v := pick("inventory_quantity", "inventoryQuantity"); v != nil {
		if n, err := strconv.Atoi(rawScalar(v)); err == nil {
			p.InventoryQuantity = &n
		}
	}

	if p.ID == "" {
		return models.Product{}, fmt.Errorf("product is missing an id")
	}

	return p, nil
}

// DecodeProducts decodes a list of product records.
func DecodeProducts(raws []json.RawMessage) ([]models.Product, error) {
	products := make([]models.Product, 0, len(raws))
	for i, raw := range raws {
		p, err := DecodeProduct(raw)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", i, err)
		}
		products = append(products, p)
	}
	return products, nil
}

// rawScalar renders a JSON string or number as text.
func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// ShippingInput prepares an address for order creation. A two-letter country
// doubles as the country code when none was resolved.
func ShippingInput(addr models.Address) *models.Address {
	out := addr
	if out.CountryCode == "" && len(out.Country) == 2 {
		out.CountryCode = strings.ToUpper(out.Country)
	}
	return &out
}

// VariantGID returns the global id of a variant given either form.
func VariantGID(id string) string {
	if id == "" || strings.HasPrefix(id, "gid://") {
		return id
	}
	return "gid://shopify/ProductVariant/" + id
}
