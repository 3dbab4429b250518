package rules

import (
	"fmt"
	"strings"

	"influencer-gifting-api/internal/models"
	"influencer-gifting-api/internal/validation"
)

// MinAddressLength is the shortest free-typed address accepted when no
// structured lookup result is available.
const MinAddressLength = 10

const (
	MessageUsageLimitReached  = "This brand's gifting limit has been reached. Please contact them directly."
	MessageNoItemsSelected    = "Please select at least one gift."
	MessageProductNotEligible = "One or more selected gifts are not part of this campaign."
	MessageInvalidFields      = "Please fix highlighted fields before submitting."
	MessageAddressIncomplete  = "Please enter a complete address to continue."
	MessageConsentMissing     = "Please accept the consent terms to continue."
	MessageQuestionUnanswered = "Please answer the required question to continue."
)

// Contact field names used as keys of field error maps.
const (
	FieldEmail     = "email"
	FieldPhone     = "phone"
	FieldInstagram = "instagram"
	FieldTiktok    = "tiktok"
)

// Submission is everything the evaluator needs to judge a claim.
type Submission struct {
	Campaign models.Campaign
	Claim    models.ClaimAttempt
	// Items are the catalog products resolved from Claim.ProductIDs.
	Items []models.Product
	// UsageLimitReached is the merchant-level plan signal.
	UsageLimitReached bool
}

// Result is the outcome of EvaluateSubmission.
type Result struct {
	Verdict
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// EvaluateSubmission runs every gate in order and stops at the first failure:
// usage cap, order limit, cart value, selection, contact fields, address,
// shipping country, consent, custom question. Duplicate detection is not
// part of it because it needs the order store.
func EvaluateSubmission(s Submission) Result {
	c := s.Campaign

	if s.UsageLimitReached {
		return rejected(CodeUsageLimitReached, MessageUsageLimitReached)
	}
	if IsOrderLimitReached(c) {
		return rejected(CodeOrderLimitReached, MessageOrderLimitReached)
	}
	if IsMaxCartExceeded(c, s.Items) {
		return rejected(CodeMaxCartExceeded, MaxCartMessage(c))
	}
	if v := CheckSelection(c, s.Claim.ProductIDs); !v.Allowed {
		return Result{Verdict: v}
	}

	if errs := ValidateContactFields(c, s.Claim.Contact); len(errs) > 0 {
		return Result{
			Verdict:     Reject(CodeInvalidFields, MessageInvalidFields),
			FieldErrors: errs,
		}
	}

	if !AddressValid(s.Claim.Address, s.Claim.ShippingDetails) {
		return rejected(CodeAddressIncomplete, MessageAddressIncomplete)
	}
	if v := IsCountryAllowed(c, s.Claim.Country()); !v.Allowed {
		return Result{Verdict: v}
	}

	if ConsentMissing(c, s.Claim.Contact) {
		return rejected(CodeConsentMissing, MessageConsentMissing)
	}
	if !CustomQuestionAnswered(c, s.Claim.Contact) {
		return rejected(CodeQuestionUnanswered, MessageQuestionUnanswered)
	}

	return Result{Verdict: Allow()}
}

func rejected(code Code, reason string) Result {
	return Result{Verdict: Reject(code, reason)}
}

// CheckSelection validates the requested product ids against the item limit
// and the campaign's eligible products.
func CheckSelection(c models.Campaign, productIDs []string) Verdict {
	if len(productIDs) == 0 {
		return Reject(CodeNoItemsSelected, MessageNoItemsSelected)
	}
	if limit := ItemLimit(c); len(productIDs) > limit {
		return Reject(CodeItemLimitExceeded, fmt.Sprintf("You can select up to %d %s.", limit, plural(limit, "gift")))
	}

	eligible := eligibleSet(c)
	seen := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		key := NormalizeProductID(id)
		if _, ok := eligible[key]; !ok || seen[key] {
			return Reject(CodeProductNotEligible, MessageProductNotEligible)
		}
		seen[key] = true
	}
	return Allow()
}

// SelectionBlocked reports whether product selection and the shipping step
// are disabled.
func SelectionBlocked(c models.Campaign, items []models.Product) bool {
	return IsOrderLimitReached(c) || IsMaxCartExceeded(c, items)
}

// ValidateContactField returns the user-facing message for one field, or ""
// when the value is acceptable. Disabled optional fields always pass.
func ValidateContactField(c models.Campaign, field string, contact models.Contact) string {
	switch field {
	case FieldEmail:
		if !validation.IsValidEmailAddress(contact.Email) {
			return "Please enter a valid email address."
		}
	case FieldPhone:
		if !c.ShowPhoneField {
			return ""
		}
		return phoneError(contact)
	case FieldInstagram:
		if c.ShowInstagramField && !validation.IsValidSocialHandle(contact.Instagram) {
			return "Instagram handle must include letters or numbers."
		}
	case FieldTiktok:
		if c.ShowTiktokField && !validation.IsValidSocialHandle(contact.Tiktok) {
			return "TikTok handle must include letters or numbers."
		}
	}
	return ""
}

func phoneError(contact models.Contact) string {
	digits := contact.PhoneDigits
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "Phone number must contain digits only."
		}
	}

	rules := validation.PhoneLengthRules(contact.PhoneCountry)
	if len(digits) >= rules.MinLength && len(digits) <= rules.MaxLength {
		return ""
	}

	span := fmt.Sprintf("%d-%d", rules.MinLength, rules.MaxLength)
	if rules.MinLength == rules.MaxLength {
		span = fmt.Sprintf("%d", rules.MinLength)
	}
	country := "this country"
	if contact.PhoneCountry != nil && contact.PhoneCountry.Name != "" {
		country = contact.PhoneCountry.Name
	}
	return fmt.Sprintf("Phone number must be %s digits for %s.", span, country)
}

// ValidateContactFields checks the email and every enabled optional field.
func ValidateContactFields(c models.Campaign, contact models.Contact) map[string]string {
	errs := make(map[string]string)
	for _, field := range []string{FieldEmail, FieldPhone, FieldInstagram, FieldTiktok} {
		if msg := ValidateContactField(c, field, contact); msg != "" {
			errs[field] = msg
		}
	}
	return errs
}

// ContactFieldsComplete reports whether every enabled optional contact field
// passes its validator.
func ContactFieldsComplete(c models.Campaign, contact models.Contact) bool {
	for _, field := range []string{FieldPhone, FieldInstagram, FieldTiktok} {
		if ValidateContactField(c, field, contact) != "" {
			return false
		}
	}
	return true
}

// AddressValid accepts any structured address, or a typed address of at
// least MinAddressLength characters.
func AddressValid(raw string, structured *models.Address) bool {
	if structured != nil {
		return true
	}
	return len([]rune(strings.TrimSpace(raw))) >= MinAddressLength
}

// ConsentMissing reports whether a required consent box is unchecked.
func ConsentMissing(c models.Campaign, contact models.Contact) bool {
	if !c.ShowConsentCheckbox {
		return false
	}
	return !contact.ConsentPrimary || (c.RequireSecondConsent && !contact.ConsentSecondary)
}

// CustomQuestionAnswered reports whether a required custom question has a
// non-blank answer.
func CustomQuestionAnswered(c models.Campaign, contact models.Contact) bool {
	if !c.AskCustomQuestion || !c.CustomQuestionRequired {
		return true
	}
	return strings.TrimSpace(contact.CustomAnswer) != ""
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
