package rules

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"influencer-gifting-api/internal/models"
	"influencer-gifting-api/internal/validation"
)

const (
	defaultItemLimit = 1

	MessageOrderLimitReached = "This campaign has reached its order limit."
)

var nonPriceChars = regexp.MustCompile(`[^0-9.]`)

// ItemLimit returns how many products one claim may select. Missing,
// non-numeric and non-positive settings count as 1.
func ItemLimit(c models.Campaign) int {
	n, ok := validation.NormalizeNumber(string(c.ItemLimit))
	if !ok || n <= 0 {
		return defaultItemLimit
	}
	return max(defaultItemLimit, int(math.Floor(n)))
}

// MaxCartValue returns the cart value cap. ok is false when the campaign is
// unlimited.
func MaxCartValue(c models.Campaign) (limit decimal.Decimal, ok bool) {
	n, valid := validation.NormalizeNumber(string(c.MaxCartValue))
	if !valid || n <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(n), true
}

// OrderLimit returns the maximum number of claims per campaign link. ok is
// false when the campaign is unlimited.
func OrderLimit(c models.Campaign) (limit int, ok bool) {
	n, valid := validation.NormalizeNumber(string(c.OrderLimitPerLink))
	if !valid || n <= 0 {
		return 0, false
	}
	limit = int(math.Floor(n))
	return limit, limit > 0
}

// ParsePrice reads a product price. Every character other than digits and
// dots is stripped before parsing, signs and exponents included, so a price
// is never negative. Anything that still is not a number counts as zero.
func ParsePrice(a models.Amount) decimal.Decimal {
	digits := nonPriceChars.ReplaceAllString(string(a), "")
	if digits == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SelectedTotal sums the prices of the selected products.
func SelectedTotal(items []models.Product) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(ParsePrice(item.Price))
	}
	return total
}

// IsMaxCartExceeded reports whether the selection is worth more than the cap.
// A total equal to the cap is allowed.
func IsMaxCartExceeded(c models.Campaign, items []models.Product) bool {
	limit, ok := MaxCartValue(c)
	if !ok {
		return false
	}
	return SelectedTotal(items).GreaterThan(limit)
}

// MaxCartMessage is shown when the selection exceeds the cart cap.
func MaxCartMessage(c models.Campaign) string {
	limit, ok := MaxCartValue(c)
	if !ok {
		return "Selected gifts exceed the limit."
	}
	return fmt.Sprintf("Selected gifts exceed $%s.", limit.String())
}

// ParseRestrictedCountries splits the comma-separated restriction list into a
// set of normalized country names.
func ParseRestrictedCountries(value string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, entry := range strings.Split(value, ",") {
		if name := validation.NormalizeCountryName(entry); name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// IsCountryAllowed checks the shipping country against the campaign's
// restrictions and zone. Restrictions apply even for the World zone. An empty
// country is allowed because it is not known yet.
func IsCountryAllowed(c models.Campaign, country string) Verdict {
	if country == "" {
		return Allow()
	}
	normalized := validation.NormalizeCountryName(country)

	if _, restricted := ParseRestrictedCountries(c.RestrictedCountries)[normalized]; restricted {
		return Reject(CodeCountryRestricted,
			fmt.Sprintf("Sorry, this campaign does not ship to %s.", country))
	}

	zone := c.ShippingZone
	if zone != "" && zone != models.ShippingZoneWorld && validation.NormalizeCountryName(zone) != normalized {
		return Reject(CodeOutsideZone,
			fmt.Sprintf("Sorry, this campaign is only available in %s.", zone))
	}

	return Allow()
}

// IsOrderLimitReached reports whether the campaign has used up its claims.
// An unreadable claim count fails open; the authoritative check happens when
// the claim is committed.
func IsOrderLimitReached(c models.Campaign) bool {
	limit, ok := OrderLimit(c)
	if !ok {
		return false
	}
	count := 0.0
	if c.ClaimsCount != "" {
		n, valid := validation.NormalizeNumber(string(c.ClaimsCount))
		if !valid {
			return false
		}
		count = n
	}
	return count >= float64(limit)
}

// ShouldBlockDuplicateOrders reports whether duplicate detection runs.
func ShouldBlockDuplicateOrders(c models.Campaign) bool {
	return c.BlockDuplicateOrders
}

// IdentityOf extracts the fields the duplicate check matches on.
func IdentityOf(contact models.Contact) models.Identity {
	return models.Identity{
		Email:     strings.TrimSpace(contact.Email),
		Instagram: contact.Instagram,
		Tiktok:    contact.Tiktok,
	}
}

// IsDuplicateOf reports whether order was placed by the same identity: same
// email, or its handle equals either submitted handle.
func IsDuplicateOf(order models.Order, id models.Identity) bool {
	if id.Empty() {
		return false
	}
	if id.Email != "" && order.InfluencerEmail == id.Email {
		return true
	}
	if order.InfluencerHandle == "" {
		return false
	}
	return (id.Instagram != "" && order.InfluencerHandle == id.Instagram) ||
		(id.Tiktok != "" && order.InfluencerHandle == id.Tiktok)
}
