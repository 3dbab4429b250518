package models

import "encoding/json"

// CreateCampaignRequest is the builder payload published by a merchant.
type CreateCampaignRequest struct {
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	WelcomeMessage string `json:"welcome_message"`
	BrandColor     string `json:"brand_color"`
	Shop           string `json:"shop"`
	MerchantID     string `json:"merchant_id"`
	// Products is the catalog snapshot picked in the builder, in any of the
	// field spellings the platform produces.
	Products []json.RawMessage `json:"products,omitempty"`

	CampaignConfig
}

// ClaimOutcome classifies the result of a claim submission.
type ClaimOutcome string

const (
	ClaimAccepted  ClaimOutcome = "accepted"
	ClaimRejected  ClaimOutcome = "rejected"
	ClaimDuplicate ClaimOutcome = "duplicate"
)

// ClaimResponse is returned by the claim endpoint.
type ClaimResponse struct {
	Outcome            ClaimOutcome      `json:"outcome"`
	Code               string            `json:"code,omitempty"`
	Reason             string            `json:"reason,omitempty"`
	FieldErrors        map[string]string `json:"field_errors,omitempty"`
	Order              *Order            `json:"order,omitempty"`
	DuplicateAttemptID string            `json:"duplicate_attempt_id,omitempty"`
	// SyncError is set when the order was committed but could not be created
	// on the commerce platform yet.
	SyncError string `json:"sync_error,omitempty"`
}

// EligibilityResponse is the side-effect free preview of a claim.
type EligibilityResponse struct {
	Allowed               bool              `json:"allowed"`
	Code                  string            `json:"code,omitempty"`
	Reason                string            `json:"reason,omitempty"`
	FieldErrors           map[string]string `json:"field_errors,omitempty"`
	ItemLimit             int               `json:"item_limit"`
	SelectedTotal         string            `json:"selected_total"`
	SelectionBlocked      bool              `json:"selection_blocked"`
	ContactFieldsComplete bool              `json:"contact_fields_complete"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// CampaignPage is the public view of a campaign served to the claim form.
type CampaignPage struct {
	Campaign
	Products          []Product `json:"products"`
	ItemLimit         int       `json:"item_limit_effective"`
	OrderLimitReached bool      `json:"order_limit_reached"`
}

// DuplicateAttemptsResponse lists attempts awaiting review.
type DuplicateAttemptsResponse struct {
	Attempts []DuplicateAttempt `json:"attempts"`
}

// OrdersResponse lists committed claims.
type OrdersResponse struct {
	Orders []Order `json:"orders"`
}

// MerchantRequest registers an installing shop.
type MerchantRequest struct {
	Shop        string `json:"shop"`
	ActivePlan  string `json:"active_plan"`
	AccessToken string `json:"access_token"`
}

// ShopRequest names the shop a commerce call is made for.
type ShopRequest struct {
	Shop string `json:"shop"`
}

// FeatureRequest toggles a feature flag.
type FeatureRequest struct {
	Enabled bool `json:"enabled"`
}
