package commerce

import (
	"context"
	"fmt"
	"sync"

	"influencer-gifting-api/internal/models"
)

// Fake is an in-memory Platform for local development and tests.
type Fake struct {
	mu       sync.Mutex
	products []models.Product
	orders   []OrderRequest
	next     int

	// Err, when set, is returned by every call.
	Err error
}

// NewFake returns a Fake serving the given catalog.
func NewFake(products ...models.Product) *Fake {
	return &Fake{products: products, next: 1000}
}

func (f *Fake) CreateDraftOrderOrOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return OrderResult{}, f.Err
	}
	if req.VariantID == "" {
		return OrderResult{}, &UserError{Operation: "draftOrderCreate", Errors: []FieldError{{Field: []string{"lineItems"}, Message: "Variant is required"}}}
	}

	f.next++
	f.orders = append(f.orders, req)

	if req.Mode == ModeOrder {
		return OrderResult{
			ID:     fmt.Sprintf("gid://shopify/Order/%d", f.next),
			Name:   fmt.Sprintf("#%d", f.next),
			Status: models.OrderProcessing,
		}, nil
	}
	return OrderResult{
		ID:     fmt.Sprintf("gid://shopify/DraftOrder/%d", f.next),
		Name:   fmt.Sprintf("#D%d", f.next),
		Status: models.OrderDraftCreated,
	}, nil
}

func (f *Fake) ListProducts(ctx context.Context, creds Credentials) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	return append([]models.Product(nil), f.products...), nil
}

func (f *Fake) RegisterWebhooks(ctx context.Context, creds Credentials) ([]Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	hooks := make([]Webhook, 0, len(webhookTopics))
	for i, wt := range webhookTopics {
		hooks = append(hooks, Webhook{
			ID:          fmt.Sprintf("gid://shopify/WebhookSubscription/%d", i+1),
			Topic:       wt.topic,
			CallbackURL: wt.path,
		})
	}
	return hooks, nil
}

// Orders returns the order requests received so far.
func (f *Fake) Orders() []OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]OrderRequest(nil), f.orders...)
}
