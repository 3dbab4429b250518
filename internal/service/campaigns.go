package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"influencer-gifting-api/internal/commerce"
	"influencer-gifting-api/internal/database"
	"influencer-gifting-api/internal/models"
	"influencer-gifting-api/internal/rules"
	"influencer-gifting-api/internal/validation"
)

var (
	slugStrip = regexp.MustCompile(`[^a-z0-9\s_-]`)
	slugSpace = regexp.MustCompile(`[\s_-]+`)
)

// slugFor derives a public link from the campaign name. The suffix keeps
// republished names from colliding.
func slugFor(name string, unixMilli int64) string {
	base := slugStrip.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "")
	base = strings.Trim(slugSpace.ReplaceAllString(base, "-"), "-")
	if base == "" {
		base = "campaign"
	}
	suffix := strconv.FormatInt(unixMilli, 10)
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return base + "-" + suffix
}

// CreateCampaign publishes a campaign built in the builder together with its
// product snapshot.
func (s *Service) CreateCampaign(ctx context.Context, req models.CreateCampaignRequest) (models.Campaign, error) {
	ctx, span := s.startSpan(ctx, "service.CreateCampaign")
	defer span.End()

	req.Slug = strings.ToLower(validation.SanitizeString(req.Slug))
	if req.Slug == "" {
		req.Slug = slugFor(req.Name, s.now().UnixMilli())
	}

	if err := validation.ValidateCampaign(req); err != nil {
		return models.Campaign{}, err
	}

	products, err := commerce.DecodeProducts(req.Products)
	if err != nil {
		return models.Campaign{}, &validation.ValidationError{
			Field:   "products",
			Message: err.Error(),
		}
	}

	campaign := models.Campaign{
		ID:             uuid.NewString(),
		MerchantID:     req.MerchantID,
		Shop:           strings.ToLower(strings.TrimSpace(req.Shop)),
		Name:           strings.TrimSpace(req.Name),
		Slug:           req.Slug,
		WelcomeMessage: req.WelcomeMessage,
		BrandColor:     req.BrandColor,
		Status:         models.CampaignActive,
		ClaimsCount:    models.Int(0),
		CreatedAt:      s.now().UTC(),
		CampaignConfig: req.CampaignConfig,
	}

	if err := s.store.CreateCampaign(ctx, campaign); err != nil {
		return models.Campaign{}, fmt.Errorf("failed to create campaign: %w", err)
	}

	if len(products) > 0 {
		if err := s.store.SaveCampaignProducts(ctx, campaign.ID, products); err != nil {
			return models.Campaign{}, fmt.Errorf("failed to save campaign products: %w", err)
		}
	}

	if s.eventsEnabled() {
		s.events.PublishCampaignCreated(ctx, campaign)
	}

	return campaign, nil
}

// GetCampaignPage returns an active campaign with the products the claim form
// should show.
func (s *Service) GetCampaignPage(ctx context.Context, slug string) (models.CampaignPage, error) {
	campaign, err := s.loadCampaign(ctx, slug)
	if err != nil {
		return models.CampaignPage{}, err
	}

	catalog, err := s.store.ListCampaignProducts(ctx, campaign.ID)
	if err != nil {
		return models.CampaignPage{}, fmt.Errorf("failed to load campaign products: %w", err)
	}

	return models.CampaignPage{
		Campaign:          campaign,
		Products:          rules.VisibleProducts(campaign, catalog),
		ItemLimit:         rules.ItemLimit(campaign),
		OrderLimitReached: rules.IsOrderLimitReached(campaign),
	}, nil
}

// ListCampaigns returns every non-archived campaign, newest first.
func (s *Service) ListCampaigns(ctx context.Context) ([]models.Campaign, error) {
	campaigns, err := s.store.ListActiveCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// ArchiveCampaign takes a campaign offline. Its link stops resolving but its
// orders are kept.
func (s *Service) ArchiveCampaign(ctx context.Context, id string) (models.Campaign, error) {
	if err := validation.ValidateUUID(id, "id"); err != nil {
		return models.Campaign{}, err
	}

	campaign, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return models.Campaign{}, fmt.Errorf("failed to load campaign: %w", err)
	}

	if err := s.store.ArchiveCampaign(ctx, id); err != nil {
		return models.Campaign{}, fmt.Errorf("failed to archive campaign: %w", err)
	}
	campaign.Status = models.CampaignArchived

	s.invalidateCampaign(ctx, campaign.Slug)
	if s.eventsEnabled() {
		s.events.PublishCampaignArchived(ctx, campaign)
	}

	return campaign, nil
}

// loadCampaign reads a published campaign, through the cache when enabled.
func (s *Service) loadCampaign(ctx context.Context, slug string) (models.Campaign, error) {
	if s.cacheEnabled() {
		campaign, ok, err := s.campaigns.Get(ctx, slug)
		switch {
		case err != nil:
			s.logger.Warn("campaign cache read failed", zap.String("slug", slug), zap.Error(err))
		case ok:
			return campaign, nil
		}
	}

	campaign, err := s.store.GetCampaignBySlug(ctx, slug)
	if err != nil {
		return models.Campaign{}, fmt.Errorf("failed to load campaign: %w", err)
	}

	if s.cacheEnabled() {
		if err := s.campaigns.Put(ctx, campaign); err != nil {
			s.logger.Warn("campaign cache write failed", zap.String("slug", slug), zap.Error(err))
		}
	}

	return campaign, nil
}

func (s *Service) invalidateCampaign(ctx context.Context, slug string) {
	if s.campaigns == nil {
		return
	}
	if err := s.campaigns.Invalidate(ctx, slug); err != nil {
		s.logger.Warn("campaign cache invalidation failed", zap.String("slug", slug), zap.Error(err))
	}
}

// recordClaim counts a committed claim against the merchant's plan. The
// campaign counter is raised together with the order insert. The order
// already exists, so failures here are logged, not returned.
func (s *Service) recordClaim(ctx context.Context, campaign models.Campaign) {
	if campaign.Shop != "" {
		if err := s.store.IncrementMerchantClaims(ctx, campaign.Shop); err != nil {
			s.logger.Error("failed to increment merchant claims",
				zap.String("shop", campaign.Shop), zap.Error(err))
		}
	}
	s.invalidateCampaign(ctx, campaign.Slug)
}

// usage returns the plan consumption of the shop owning a campaign. Shops
// that never installed count as a fresh FREE merchant.
func (s *Service) usage(ctx context.Context, shop string) (models.Usage, error) {
	if shop == "" {
		return rules.UsageOf(nil), nil
	}
	merchant, err := s.store.GetMerchantByShop(ctx, shop)
	if errors.Is(err, database.ErrNotFound) {
		return rules.UsageOf(nil), nil
	}
	if err != nil {
		return models.Usage{}, fmt.Errorf("failed to load merchant: %w", err)
	}
	return rules.UsageOf(&merchant), nil
}
