// Package commerce talks to the merchant's store platform: catalog reads,
// gift order creation and webhook registration.
package commerce

import (
	"context"
	"fmt"
	"strings"

	"influencer-gifting-api/internal/models"
)

// OrderMode selects whether a claim becomes a draft order or a real order.
type OrderMode string

const (
	ModeDraft OrderMode = "draft"
	ModeOrder OrderMode = "order"
)

const (
	// ClaimTag is attached to every order created for a claim.
	ClaimTag = "Gifty-Influencer-Claim"
	// GiftDiscountTitle names the 100% discount applied to draft orders.
	GiftDiscountTitle = "Influencer Gift"

	notePrefix  = "Gifty Influencer Fulfillment"
	noteOrderID = "ClaimOrderId:"
)

// Credentials identify the shop a call is made for. A blank field falls
// back to the client's configured default.
type Credentials struct {
	Shop        string
	AccessToken string
}

// OrderRequest is everything the platform needs to create a gift order.
type OrderRequest struct {
	Credentials
	Mode            OrderMode
	VariantID       string
	Quantity        int
	Email           string
	ShippingAddress *models.Address
	Note            string
}

// OrderResult identifies the platform order created for a claim.
type OrderResult struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status models.OrderStatus
}

// Webhook is a registered webhook subscription.
type Webhook struct {
	ID          string `json:"id"`
	Topic       string `json:"topic"`
	CallbackURL string `json:"callback_url"`
}

// Platform is the commerce backend used by the service.
type Platform interface {
	CreateDraftOrderOrOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ListProducts(ctx context.Context, creds Credentials) ([]models.Product, error)
	RegisterWebhooks(ctx context.Context, creds Credentials) ([]Webhook, error)
}

// FieldError is a single userError returned by a mutation.
type FieldError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// UserError reports a request the platform refused.
type UserError struct {
	Operation string
	Errors    []FieldError
}

func (e *UserError) Error() string {
	msg := "unknown error"
	if len(e.Errors) > 0 && e.Errors[0].Message != "" {
		msg = e.Errors[0].Message
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, msg)
}

// NoteInfo is the influencer summary written into the order note.
type NoteInfo struct {
	Name         string
	Handle       string
	Email        string
	ClaimOrderID string
}

// BuildNote renders the order note. The claim order id lets webhooks map the
// platform order back to the stored claim.
func BuildNote(info NoteInfo) string {
	parts := []string{notePrefix}
	if info.Name != "" {
		parts = append(parts, "Name: "+info.Name)
	}
	if info.Handle != "" {
		parts = append(parts, "Handle: "+info.Handle)
	}
	if info.Email != "" {
		parts = append(parts, "Email: "+info.Email)
	}
	if info.ClaimOrderID != "" {
		parts = append(parts, noteOrderID+info.ClaimOrderID)
	}
	return strings.Join(parts, " | ")
}

// ClaimOrderIDFromNote extracts the claim order id written by BuildNote.
func ClaimOrderIDFromNote(note string) string {
	idx := strings.Index(note, noteOrderID)
	if idx < 0 {
		return ""
	}
	rest := note[idx+len(noteOrderID):]
	end := strings.IndexFunc(rest, func(r rune) bool {
		return !(r == '-' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F'))
	})
	if end >= 0 {
		rest = rest[:end]
	}
	return rest
}
