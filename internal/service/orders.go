package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"influencer-gifting-api/internal/commerce"
	"influencer-gifting-api/internal/database"
	"influencer-gifting-api/internal/models"
	"influencer-gifting-api/internal/rules"
	"influencer-gifting-api/internal/tracing"
	"influencer-gifting-api/internal/validation"
)

// ListOrders returns committed claims, newest first, with legacy statuses
// mapped onto the current lifecycle.
func (s *Service) ListOrders(ctx context.Context, limit int) ([]models.Order, error) {
	orders, err := s.store.ListOrders(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	for i := range orders {
		o := &orders[i]
		o.Status = models.NormalizeOrderStatus(string(o.Status))
		if o.Value.IsZero() {
			o.Value = rules.SelectedTotal(o.Items)
		}
	}
	return orders, nil
}

// SyncOrder creates the platform order for a committed claim that has none
// yet. Orders that were already synced are returned unchanged.
func (s *Service) SyncOrder(ctx context.Context, orderID string) (models.Order, error) {
	if err := validation.ValidateUUID(orderID, "id"); err != nil {
		return models.Order{}, err
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to load order: %w", err)
	}
	if order.ShopifyOrderID != "" {
		return order, nil
	}

	campaign, err := s.store.GetCampaign(ctx, order.CampaignID)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to load campaign: %w", err)
	}

	if err := s.syncOrder(ctx, campaign, &order); err != nil {
		return order, err
	}
	return order, nil
}

// syncOrder creates the gift order on the platform and records its id on
// the stored claim. Failures wrap ErrCommerceSync.
func (s *Service) syncOrder(ctx context.Context, campaign models.Campaign, order *models.Order) (err error) {
	ctx, span := s.startSpan(ctx, "service.syncOrder", attribute.String("order.id", order.ID))
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	creds, err := s.credentials(ctx, campaign.Shop)
	if err != nil {
		return fmt.Errorf("%w: order %s: %w", ErrCommerceSync, order.ID, err)
	}

	req := commerce.OrderRequest{
		Credentials:     creds,
		Mode:            s.orderMode,
		VariantID:       primaryVariant(order.Items),
		Quantity:        1,
		Email:           order.InfluencerEmail,
		ShippingAddress: shippingInput(*order),
		Note: commerce.BuildNote(commerce.NoteInfo{
			Name:         order.InfluencerName,
			Handle:       order.InfluencerHandle,
			Email:        order.InfluencerEmail,
			ClaimOrderID: order.ID,
		}),
	}

	start := time.Now()
	result, err := s.platform.CreateDraftOrderOrOrder(ctx, req)
	if err != nil {
		s.logger.Error("platform order creation failed",
			zap.String("order_id", order.ID),
			zap.String("shop", creds.Shop),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return fmt.Errorf("%w: order %s: %w", ErrCommerceSync, order.ID, err)
	}

	if err := s.store.UpdateOrderCommerce(ctx, order.ID, result.ID, result.Name, result.Status); err != nil {
		return fmt.Errorf("%w: order %s created as %s but not recorded: %w", ErrCommerceSync, order.ID, result.ID, err)
	}

	order.ShopifyOrderID = result.ID
	order.ShopifyOrderNumber = result.Name
	order.Status = result.Status
	s.logger.Info("platform order created",
		zap.String("order_id", order.ID),
		zap.String("shopify_order_id", result.ID),
		zap.String("mode", string(req.Mode)))
	return nil
}

func primaryVariant(items []models.Product) string {
	if len(items) == 0 {
		return ""
	}
	first := items[0]
	if first.VariantID != "" {
		return commerce.VariantGID(first.VariantID)
	}
	return commerce.VariantGID(first.VariantLegacyID)
}

// shippingInput builds the platform address, falling back to the raw line
// when the address was never resolved.
func shippingInput(order models.Order) *models.Address {
	var addr models.Address
	if order.ShippingAddress.Structured != nil {
		addr = *order.ShippingAddress.Structured
	} else {
		addr.Address1 = order.ShippingAddress.Raw
	}

	first, last, _ := strings.Cut(order.InfluencerName, " ")
	if addr.FirstName == "" {
		addr.FirstName = first
	}
	if addr.LastName == "" {
		addr.LastName = strings.TrimSpace(last)
	}
	if addr.Phone == "" {
		addr.Phone = order.InfluencerPhone
	}
	return commerce.ShippingInput(addr)
}

// ListProducts returns the shop's catalog as the campaign builder shows it.
func (s *Service) ListProducts(ctx context.Context, shop string) ([]models.Product, error) {
	creds, err := s.credentials(ctx, shop)
	if err != nil {
		return nil, err
	}
	products, err := s.platform.ListProducts(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// RegisterWebhooks subscribes the app to the order lifecycle topics.
func (s *Service) RegisterWebhooks(ctx context.Context, shop string) ([]commerce.Webhook, error) {
	creds, err := s.credentials(ctx, shop)
	if err != nil {
		return nil, err
	}
	hooks, err := s.platform.RegisterWebhooks(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to register webhooks: %w", err)
	}
	return hooks, nil
}

// UpsertMerchant records an installing shop and its plan. The claim counter
// is never reset by a reinstall.
func (s *Service) UpsertMerchant(ctx context.Context, m models.Merchant) (models.Usage, error) {
	m.Shop = strings.ToLower(validation.SanitizeString(m.Shop))
	if m.Shop == "" {
		return models.Usage{}, &validation.ValidationError{Field: "shop", Message: "is required"}
	}
	m.ActivePlan = rules.NormalizePlan(m.ActivePlan)

	if err := s.store.UpsertMerchant(ctx, m); err != nil {
		return models.Usage{}, fmt.Errorf("failed to save merchant: %w", err)
	}
	return s.GetUsage(ctx, m.Shop)
}

// GetUsage reports a shop's plan consumption.
func (s *Service) GetUsage(ctx context.Context, shop string) (models.Usage, error) {
	return s.usage(ctx, strings.ToLower(strings.TrimSpace(shop)))
}

// credentials resolves the access token stored for a shop. An unknown shop
// is passed through so the platform client can apply its configured default.
func (s *Service) credentials(ctx context.Context, shop string) (commerce.Credentials, error) {
	if shop == "" {
		return commerce.Credentials{}, nil
	}
	merchant, err := s.store.GetMerchantByShop(ctx, shop)
	if errors.Is(err, database.ErrNotFound) {
		return commerce.Credentials{Shop: shop}, nil
	}
	if err != nil {
		return commerce.Credentials{}, fmt.Errorf("failed to load merchant: %w", err)
	}
	return commerce.Credentials{Shop: merchant.Shop, AccessToken: merchant.AccessToken}, nil
}
