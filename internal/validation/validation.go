package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"influencer-gifting-api/internal/models"
)

var (
	uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

const (
	maxNameLength        = 120
	maxSlugLength        = 80
	maxSelectedProducts  = 250
	maxRestrictedEntries = 250
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidateCampaign checks a builder payload before it is published.
// Numeric settings that are present must be numbers; sign and zero are left
// to rule normalization.
func ValidateCampaign(req models.CreateCampaignRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return &ValidationError{
			Field:   "name",
			Message: "is required",
		}
	}

	if len(req.Name) > maxNameLength {
		return &ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("cannot exceed %d characters", maxNameLength),
		}
	}

	if err := ValidateSlug(req.Slug); err != nil {
		return err
	}

	if req.MerchantID != "" {
		if err := ValidateUUID(req.MerchantID, "merchant_id"); err != nil {
			return err
		}
	}

	if err := validateSelectedProducts(req.SelectedProductIDs); err != nil {
		return err
	}

	numeric := []struct {
		field string
		value models.FlexNumber
	}{
		{"item_limit", req.ItemLimit},
		{"max_cart_value", req.MaxCartValue},
		{"order_limit_per_link", req.OrderLimitPerLink},
	}
	for _, n := range numeric {
		if strings.TrimSpace(string(n.value)) == "" {
			continue
		}
		if _, ok := NormalizeNumber(string(n.value)); !ok {
			return &ValidationError{
				Field:   n.field,
				Message: "must be a number",
			}
		}
	}

	if n := len(strings.Split(req.RestrictedCountries, ",")); n > maxRestrictedEntries {
		return &ValidationError{
			Field:   "restricted_countries",
			Message: fmt.Sprintf("cannot contain more than %d countries", maxRestrictedEntries),
		}
	}

	if req.RequireSecondConsent && !req.ShowConsentCheckbox {
		return &ValidationError{
			Field:   "require_second_consent",
			Message: "requires show_consent_checkbox",
		}
	}

	return nil
}

func ValidateSlug(slug string) error {
	if slug == "" {
		return &ValidationError{
			Field:   "slug",
			Message: "is required",
		}
	}

	if len(slug) > maxSlugLength || !slugRegex.MatchString(slug) {
		return &ValidationError{
			Field:   "slug",
			Message: "must be lowercase letters, digits and single hyphens",
		}
	}

	return nil
}

func validateSelectedProducts(ids []string) error {
	if len(ids) == 0 {
		return &ValidationError{
			Field:   "selected_product_ids",
			Message: "must contain at least one product",
		}
	}

	if len(ids) > maxSelectedProducts {
		return &ValidationError{
			Field:   "selected_product_ids",
			Message: fmt.Sprintf("cannot contain more than %d products", maxSelectedProducts),
		}
	}

	seen := make(map[string]bool)
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("selected_product_ids[%d]", i),
				Message: "is required",
			}
		}

		if seen[id] {
			return &ValidationError{
				Field:   "selected_product_ids",
				Message: fmt.Sprintf("duplicate product id: %s", id),
			}
		}
		seen[id] = true
	}

	return nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

func ValidateUUID(id, fieldName string) error {
	if id == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: "is required",
		}
	}

	id = SanitizeString(id)

	if !uuidRegex.MatchString(strings.ToLower(id)) {
		return &ValidationError{
			Field:   fieldName,
			Message: "must be a valid UUID v4",
		}
	}

	return nil
}
