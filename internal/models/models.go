package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CampaignStatus is the publication state of a campaign.
type CampaignStatus string

const (
	CampaignActive   CampaignStatus = "active"
	CampaignArchived CampaignStatus = "archived"
)

// ShippingZoneWorld is the zone sentinel meaning "ship anywhere not restricted".
const ShippingZoneWorld = "World"

// CampaignConfig is the merchant-owned rule configuration of a campaign.
// Numeric settings are FlexNumber because the builder may send them as strings.
type CampaignConfig struct {
	SelectedProductIDs []string `json:"selected_product_ids"`
	BrandName          string   `json:"brand_name,omitempty"`

	ItemLimit            FlexNumber `json:"item_limit"`
	MaxCartValue         FlexNumber `json:"max_cart_value"`
	OrderLimitPerLink    FlexNumber `json:"order_limit_per_link"`
	BlockDuplicateOrders bool       `json:"block_duplicate_orders"`
	ShippingZone         string     `json:"shipping_zone"`
	RestrictedCountries  string     `json:"restricted_countries"` // comma-separated country names

	ShowPhoneField         bool   `json:"show_phone_field"`
	ShowInstagramField     bool   `json:"show_instagram_field"`
	ShowTiktokField        bool   `json:"show_tiktok_field"`
	AskCustomQuestion      bool   `json:"ask_custom_question"`
	CustomQuestionLabel    string `json:"custom_question_label,omitempty"`
	CustomQuestionRequired bool   `json:"custom_question_required"`

	ShowConsentCheckbox  bool   `json:"show_consent_checkbox"`
	TermsConsentText     string `json:"terms_consent_text,omitempty"`
	RequireSecondConsent bool   `json:"require_second_consent"`
	SecondConsentText    string `json:"second_consent_text,omitempty"`
	EmailOptIn           bool   `json:"email_opt_in"`
	EmailConsentText     string `json:"email_consent_text,omitempty"`

	// Display toggles; nil means the default (true).
	ShowSoldOut          *bool `json:"show_sold_out,omitempty"`
	HideInactiveProducts *bool `json:"hide_inactive_products,omitempty"`
}

// Campaign is a published gifting campaign.
type Campaign struct {
	ID             string         `json:"id"`
	MerchantID     string         `json:"merchant_id,omitempty"`
	Shop           string         `json:"shop,omitempty"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	WelcomeMessage string         `json:"welcome_message,omitempty"`
	BrandColor     string         `json:"brand_color,omitempty"`
	Status         CampaignStatus `json:"status"`
	ClaimsCount    FlexNumber     `json:"claims_count"`
	CreatedAt      time.Time      `json:"created_at"`

	CampaignConfig
}

// Product is the canonical catalog entry. Alternate spellings coming from the
// commerce platform are resolved before a Product is built.
type Product struct {
	ID                string `json:"id"`
	VariantID         string `json:"variant_id,omitempty"`
	VariantLegacyID   string `json:"variant_legacy_id,omitempty"`
	Title             string `json:"title"`
	Price             Amount `json:"price"`
	ImageURL          string `json:"image_url,omitempty"`
	Status            string `json:"status,omitempty"`
	AvailableForSale  *bool  `json:"available_for_sale"`
	InventoryQuantity *int   `json:"inventory_quantity"`
}

// ProductStatusActive is the catalog status of a sellable product.
const ProductStatusActive = "ACTIVE"

// PhoneCountry describes the dial code and digit-count rules of a phone country.
type PhoneCountry struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	DialCode  string `json:"dial_code"`
	MinLength int    `json:"min_length,omitempty"`
	MaxLength int    `json:"max_length,omitempty"`
}

// Contact holds the fields an influencer submits on the claim form.
type Contact struct {
	FirstName        string        `json:"first_name"`
	LastName         string        `json:"last_name"`
	Email            string        `json:"email"`
	PhoneDigits      string        `json:"phone_digits,omitempty"`
	PhoneCountry     *PhoneCountry `json:"phone_country,omitempty"`
	Instagram        string        `json:"instagram,omitempty"`
	Tiktok           string        `json:"tiktok,omitempty"`
	CustomAnswer     string        `json:"custom_answer,omitempty"`
	ConsentPrimary   bool          `json:"consent_primary"`
	ConsentSecondary bool          `json:"consent_secondary"`
	MarketingOptIn   bool          `json:"marketing_opt_in"`
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	return joinName(c.FirstName, c.LastName)
}

// Phone returns the E.164 form of the phone number, or "" when no digits were given.
func (c Contact) Phone() string {
	if c.PhoneDigits == "" {
		return ""
	}
	dial := ""
	if c.PhoneCountry != nil {
		dial = c.PhoneCountry.DialCode
	}
	return "+" + dial + c.PhoneDigits
}

// Address is a structured postal address.
type Address struct {
	Address1     string `json:"address1"`
	Address2     string `json:"address2,omitempty"`
	City         string `json:"city"`
	Province     string `json:"province"`
	ProvinceCode string `json:"province_code,omitempty"`
	Zip          string `json:"zip"`
	Country      string `json:"country"`
	CountryCode  string `json:"country_code"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Company      string `json:"company,omitempty"`
}

// ClaimAttempt is a prospective claim submitted on a campaign link.
type ClaimAttempt struct {
	ProductIDs []string `json:"product_ids"`
	Contact    Contact  `json:"contact"`
	// Address is the free-typed address line.
	Address string `json:"address"`
	// ShippingDetails is set when the address was resolved by a lookup service.
	ShippingDetails *Address `json:"shipping_details,omitempty"`
}

// Country returns the shipping country, or "" while it is not yet known.
func (c ClaimAttempt) Country() string {
	if c.ShippingDetails == nil {
		return ""
	}
	return c.ShippingDetails.Country
}

// OrderStatus is the lifecycle state of a committed claim.
type OrderStatus string

const (
	OrderPending      OrderStatus = "pending"
	OrderDraftCreated OrderStatus = "draft_created"
	OrderProcessing   OrderStatus = "processing"
	OrderShipped      OrderStatus = "shipped"
	OrderCancelled    OrderStatus = "cancelled"
)

// NormalizeOrderStatus maps legacy and empty status strings onto the
// current lifecycle.
func NormalizeOrderStatus(raw string) OrderStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "pending":
		return OrderPending
	case "synced", "draft_created":
		return OrderDraftCreated
	case "fulfilled", "shipped":
		return OrderShipped
	default:
		return OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	}
}

// Order is a committed claim.
type Order struct {
	ID                  string          `json:"id"`
	CampaignID          string          `json:"campaign_id"`
	CampaignName        string          `json:"campaign_name,omitempty"`
	InfluencerName      string          `json:"influencer_name"`
	InfluencerEmail     string          `json:"influencer_email"`
	InfluencerPhone     string          `json:"influencer_phone,omitempty"`
	InfluencerHandle    string          `json:"influencer_handle"`
	InfluencerInstagram string          `json:"influencer_instagram,omitempty"`
	InfluencerTiktok    string          `json:"influencer_tiktok,omitempty"`
	Items               []Product       `json:"items"`
	ShippingAddress     ShippingAddress `json:"shipping_address"`
	Status              OrderStatus     `json:"status"`
	ShopifyOrderID      string          `json:"shopify_order_id,omitempty"`
	ShopifyOrderNumber  string          `json:"shopify_order_number,omitempty"`
	TermsConsent        bool            `json:"terms_consent"`
	MarketingOptIn      bool            `json:"marketing_opt_in"`
	Value               decimal.Decimal `json:"value"`
	CreatedAt           time.Time       `json:"created_at"`
}

// DuplicateDecision is the review state of a duplicate attempt. Accepted and
// declined attempts are deleted, so only pending is ever persisted.
type DuplicateDecision string

const DecisionPending DuplicateDecision = "pending"

// DuplicateReason is recorded on attempts diverted by the duplicate check.
const DuplicateReason = "Duplicate influencer details"

// InfluencerInfo is the snapshot of a diverted claim.
type InfluencerInfo struct {
	Name            string    `json:"name,omitempty"`
	FirstName       string    `json:"first_name,omitempty"`
	LastName        string    `json:"last_name,omitempty"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone,omitempty"`
	Instagram       string    `json:"instagram,omitempty"`
	Tiktok          string    `json:"tiktok,omitempty"`
	Address         string    `json:"address,omitempty"`
	ShippingDetails *Address  `json:"shipping_details,omitempty"`
	Items           []Product `json:"items"`
}

// DisplayName returns the explicit name, falling back to first + last name.
func (i InfluencerInfo) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return joinName(i.FirstName, i.LastName)
}

// Handle returns the Instagram handle, falling back to TikTok.
func (i InfluencerInfo) Handle() string {
	if i.Instagram != "" {
		return i.Instagram
	}
	return i.Tiktok
}

// DuplicateAttempt is a claim held for merchant review.
type DuplicateAttempt struct {
	ID             string            `json:"id"`
	CampaignID     string            `json:"campaign_id"`
	CampaignName   string            `json:"campaign_name,omitempty"`
	InfluencerInfo InfluencerInfo    `json:"influencer_info"`
	Reason         string            `json:"reason"`
	Decision       DuplicateDecision `json:"decision"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Identity is the contact identity matched by the duplicate check.
// Phone is deliberately not part of it.
type Identity struct {
	Email     string `json:"email"`
	Instagram string `json:"instagram"`
	Tiktok    string `json:"tiktok"`
}

// Empty reports whether there is nothing to match on.
func (i Identity) Empty() bool {
	return i.Email == "" && i.Instagram == "" && i.Tiktok == ""
}

// Merchant is the shop installing the app.
type Merchant struct {
	ID               string    `json:"id"`
	Shop             string    `json:"shop"`
	ActivePlan       string    `json:"active_plan"`
	TotalClaimsCount int       `json:"total_claims_count"`
	AccessToken      string    `json:"-"`
	PlanStartedAt    time.Time `json:"plan_started_at"`
}

// Usage summarizes a merchant's plan consumption.
type Usage struct {
	ActivePlan       string  `json:"active_plan"`
	TotalClaimsCount int     `json:"total_claims_count"`
	Limit            *int    `json:"limit"`
	LimitReached     bool    `json:"limit_reached"`
	UsagePercent     float64 `json:"usage_percent"`
	NextPlan         string  `json:"next_plan,omitempty"`
}

func joinName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
