package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"influencer-gifting-api/internal/cache"
	"influencer-gifting-api/internal/commerce"
	"influencer-gifting-api/internal/events"
	"influencer-gifting-api/internal/features"
	"influencer-gifting-api/internal/models"
	"influencer-gifting-api/internal/tracing"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ErrCommerceSync wraps a platform failure that happened after the claim
// was committed. The order stays pending and can be synced again.
var ErrCommerceSync = errors.New("commerce sync failed")

// Store is the campaign and order persistence used by the service.
type Store interface {
	CreateCampaign(ctx context.Context, c models.Campaign) error
	GetCampaignBySlug(ctx context.Context, slug string) (models.Campaign, error)
	GetCampaign(ctx context.Context, id string) (models.Campaign, error)
	ListActiveCampaigns(ctx context.Context) ([]models.Campaign, error)
	ArchiveCampaign(ctx context.Context, id string) error
	SaveCampaignProducts(ctx context.Context, campaignID string, products []models.Product) error
	ListCampaignProducts(ctx context.Context, campaignID string) ([]models.Product, error)

	FindOrderByCampaignAndIdentity(ctx context.Context, campaignID string, identity models.Identity) (bool, error)
	CreateOrder(ctx context.Context, o models.Order, limit int) error
	GetOrder(ctx context.Context, id string) (models.Order, error)
	ListOrders(ctx context.Context, limit int) ([]models.Order, error)
	UpdateOrderCommerce(ctx context.Context, id, shopifyOrderID, shopifyOrderNumber string, status models.OrderStatus) error

	InsertDuplicateAttempt(ctx context.Context, a models.DuplicateAttempt) error
	GetDuplicateAttempt(ctx context.Context, id string) (models.DuplicateAttempt, error)
	ListDuplicateAttempts(ctx context.Context, campaignID string, limit int) ([]models.DuplicateAttempt, error)
	AcceptDuplicateAttempt(ctx context.Context, id string, limit int, toOrder func(models.DuplicateAttempt) models.Order) (models.Order, error)
	DeclineDuplicateAttempt(ctx context.Context, id string) error

	UpsertMerchant(ctx context.Context, m models.Merchant) error
	GetMerchantByShop(ctx context.Context, shop string) (models.Merchant, error)
	IncrementMerchantClaims(ctx context.Context, shop string) error
}

// Options holds the optional collaborators of a Service.
type Options struct {
	Platform  commerce.Platform
	Campaigns *cache.Campaigns
	Events    *events.Manager
	Features  *features.Manager
	Logger    *zap.Logger
	OrderMode commerce.OrderMode
}

// Service provides business logic for the gifting API.
type Service struct {
	store     Store
	platform  commerce.Platform
	campaigns *cache.Campaigns
	events    *events.Manager
	features  *features.Manager
	logger    *zap.Logger
	orderMode commerce.OrderMode
	now       func() time.Time
}

// NewService creates a new service instance. Missing options fall back to an
// in-memory platform, no cache, disabled events and default flags.
func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:     store,
		platform:  opts.Platform,
		campaigns: opts.Campaigns,
		events:    opts.Events,
		features:  opts.Features,
		logger:    opts.Logger,
		orderMode: opts.OrderMode,
		now:       time.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.platform == nil {
		s.platform = commerce.NewFake()
	}
	if s.events == nil {
		s.events = events.NewManager(false, s.logger)
	}
	if s.features == nil {
		s.features = features.Defaults(s.campaigns != nil, false, false, false)
	}
	if s.orderMode == "" {
		s.orderMode = commerce.ModeDraft
	}
	return s
}

// Features exposes the flag set for the admin endpoint.
func (s *Service) Features() *features.Manager {
	return s.features
}

func (s *Service) cacheEnabled() bool {
	return s.campaigns != nil && s.features.IsEnabled(features.FeatureCacheEnabled)
}

func (s *Service) eventsEnabled() bool {
	return s.features.IsEnabled(features.FeatureEventHooksEnabled)
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracing.GetTracer().StartSpan(ctx, name, trace.WithAttributes(attrs...))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}
