// Package rules decides whether a claim on a gifting campaign is allowed.
//
// Every function in this package is pure: it reads a campaign configuration
// and a prospective claim and returns a value. Business rejections are
// Verdict values, never errors, so callers can surface the reason directly.
package rules

// Code identifies why a claim was rejected.
type Code string

const (
	CodeUsageLimitReached  Code = "usage_limit_reached"
	CodeOrderLimitReached  Code = "order_limit_reached"
	CodeMaxCartExceeded    Code = "max_cart_exceeded"
	CodeNoItemsSelected    Code = "no_items_selected"
	CodeItemLimitExceeded  Code = "item_limit_exceeded"
	CodeProductNotEligible Code = "product_not_eligible"
	CodeInvalidFields      Code = "invalid_fields"
	CodeAddressIncomplete  Code = "address_incomplete"
	CodeCountryRestricted  Code = "country_restricted"
	CodeOutsideZone        Code = "outside_shipping_zone"
	CodeConsentMissing     Code = "consent_missing"
	CodeQuestionUnanswered Code = "custom_question_unanswered"
)

// Verdict is either allowed or rejected with a reason.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Code    Code   `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Allow returns the allowed verdict.
func Allow() Verdict {
	return Verdict{Allowed: true}
}

// Reject returns a rejected verdict. reason may be empty for refusals the
// claim form handles silently.
func Reject(code Code, reason string) Verdict {
	return Verdict{Code: code, Reason: reason}
}
