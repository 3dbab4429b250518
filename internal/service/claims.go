package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"influencer-gifting-api/internal/database"
	"influencer-gifting-api/internal/features"
	"influencer-gifting-api/internal/models"
	"influencer-gifting-api/internal/rules"
	"influencer-gifting-api/internal/tracing"
	"influencer-gifting-api/internal/validation"
)

// SubmitClaim re-validates a claim and commits it. An allowed claim becomes
// a pending order, unless the campaign blocks duplicates and the influencer
// already has an order on it, in which case it is held for merchant review.
func (s *Service) SubmitClaim(ctx context.Context, slug string, claim models.ClaimAttempt) (models.ClaimResponse, error) {
	ctx, span := s.startSpan(ctx, "service.SubmitClaim", attribute.String("campaign.slug", slug))
	defer span.End()

	// Read past the cache: the order limit is enforced on a fresh count.
	campaign, err := s.store.GetCampaignBySlug(ctx, slug)
	if err != nil {
		return models.ClaimResponse{}, fmt.Errorf("failed to load campaign: %w", err)
	}

	claim = normalizeClaim(claim)
	sub, err := s.submission(ctx, campaign, claim)
	if err != nil {
		return models.ClaimResponse{}, err
	}

	result := rules.EvaluateSubmission(sub)
	if !result.Allowed {
		span.SetAttributes(attribute.String("claim.outcome", string(models.ClaimRejected)))
		return models.ClaimResponse{
			Outcome:     models.ClaimRejected,
			Code:        string(result.Code),
			Reason:      result.Reason,
			FieldErrors: result.FieldErrors,
		}, nil
	}

	if s.shouldCheckDuplicates(campaign) && s.isDuplicate(ctx, campaign.ID, rules.IdentityOf(claim.Contact)) {
		attempt, err := s.divert(ctx, campaign, claim, sub.Items)
		if err != nil {
			return models.ClaimResponse{}, err
		}
		span.SetAttributes(attribute.String("claim.outcome", string(models.ClaimDuplicate)))
		return models.ClaimResponse{
			Outcome:            models.ClaimDuplicate,
			Code:               "duplicate",
			Reason:             attempt.Reason,
			DuplicateAttemptID: attempt.ID,
		}, nil
	}

	order := s.orderFromClaim(campaign, claim, sub.Items)
	limit, _ := rules.OrderLimit(campaign)
	if err := s.store.CreateOrder(ctx, order, limit); err != nil {
		if errors.Is(err, database.ErrOrderLimitReached) {
			// Another claim took the last slot after the campaign was read.
			span.SetAttributes(attribute.String("claim.outcome", string(models.ClaimRejected)))
			return models.ClaimResponse{
				Outcome: models.ClaimRejected,
				Code:    string(rules.CodeOrderLimitReached),
				Reason:  rules.MessageOrderLimitReached,
			}, nil
		}
		tracing.RecordError(span, err)
		return models.ClaimResponse{}, fmt.Errorf("failed to create order: %w", err)
	}
	s.recordClaim(ctx, campaign)
	span.SetAttributes(
		attribute.String("claim.outcome", string(models.ClaimAccepted)),
		attribute.String("order.id", order.ID),
	)

	resp := models.ClaimResponse{Outcome: models.ClaimAccepted, Order: &order}

	var syncErr error
	if s.features.IsEnabled(features.FeatureCommerceSync) {
		syncErr = s.syncOrder(ctx, campaign, &order)
	}

	if s.eventsEnabled() {
		s.events.PublishClaimAccepted(ctx, campaign, order)
	}

	return resp, syncErr
}

// PreviewEligibility evaluates a claim without committing anything.
func (s *Service) PreviewEligibility(ctx context.Context, slug string, claim models.ClaimAttempt) (models.EligibilityResponse, error) {
	campaign, err := s.loadCampaign(ctx, slug)
	if err != nil {
		return models.EligibilityResponse{}, err
	}

	claim = normalizeClaim(claim)
	sub, err := s.submission(ctx, campaign, claim)
	if err != nil {
		return models.EligibilityResponse{}, err
	}

	result := rules.EvaluateSubmission(sub)
	return models.EligibilityResponse{
		Allowed:               result.Allowed,
		Code:                  string(result.Code),
		Reason:                result.Reason,
		FieldErrors:           result.FieldErrors,
		ItemLimit:             rules.ItemLimit(campaign),
		SelectedTotal:         rules.SelectedTotal(sub.Items).StringFixed(2),
		SelectionBlocked:      rules.SelectionBlocked(campaign, sub.Items),
		ContactFieldsComplete: rules.ContactFieldsComplete(campaign, claim.Contact),
	}, nil
}

// submission gathers the evaluator input: resolved items and the merchant
// usage signal.
func (s *Service) submission(ctx context.Context, campaign models.Campaign, claim models.ClaimAttempt) (rules.Submission, error) {
	catalog, err := s.store.ListCampaignProducts(ctx, campaign.ID)
	if err != nil {
		return rules.Submission{}, fmt.Errorf("failed to load campaign products: %w", err)
	}

	usage, err := s.usage(ctx, campaign.Shop)
	if err != nil {
		return rules.Submission{}, err
	}

	return rules.Submission{
		Campaign:          campaign,
		Claim:             claim,
		Items:             claimItems(catalog, claim.ProductIDs),
		UsageLimitReached: usage.LimitReached,
	}, nil
}

// claimItems resolves the selected ids against the campaign snapshot. Ids
// missing from the snapshot are kept as bare products so the order still
// records them.
func claimItems(catalog []models.Product, ids []string) []models.Product {
	resolved := rules.ResolveItems(catalog, ids)
	if len(resolved) == len(ids) {
		return resolved
	}

	known := make(map[string]models.Product, 2*len(resolved))
	for _, p := range resolved {
		known[rules.CatalogKey(p)] = p
		known[rules.NormalizeProductID(p.ID)] = p
	}
	items := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		key := rules.NormalizeProductID(id)
		if p, ok := known[key]; ok {
			items = append(items, p)
			continue
		}
		items = append(items, models.Product{ID: key})
	}
	return items
}

func (s *Service) shouldCheckDuplicates(campaign models.Campaign) bool {
	return rules.ShouldBlockDuplicateOrders(campaign) && !s.features.IsEnabled(features.FeatureForceDraft)
}

// isDuplicate fails open: a store error is logged and treated as no match.
func (s *Service) isDuplicate(ctx context.Context, campaignID string, identity models.Identity) bool {
	if identity.Empty() {
		return false
	}
	found, err := s.store.FindOrderByCampaignAndIdentity(ctx, campaignID, identity)
	if err != nil {
		s.logger.Warn("duplicate check failed, allowing claim",
			zap.String("campaign_id", campaignID), zap.Error(err))
		return false
	}
	return found
}

func (s *Service) divert(ctx context.Context, campaign models.Campaign, claim models.ClaimAttempt, items []models.Product) (models.DuplicateAttempt, error) {
	c := claim.Contact
	attempt := models.DuplicateAttempt{
		ID:           uuid.NewString(),
		CampaignID:   campaign.ID,
		CampaignName: campaign.Name,
		InfluencerInfo: models.InfluencerInfo{
			Name:            c.FullName(),
			FirstName:       c.FirstName,
			LastName:        c.LastName,
			Email:           c.Email,
			Phone:           c.Phone(),
			Instagram:       c.Instagram,
			Tiktok:          c.Tiktok,
			Address:         claim.Address,
			ShippingDetails: claim.ShippingDetails,
			Items:           items,
		},
		Reason:    models.DuplicateReason,
		Decision:  models.DecisionPending,
		CreatedAt: s.now().UTC(),
	}

	if err := s.store.InsertDuplicateAttempt(ctx, attempt); err != nil {
		return models.DuplicateAttempt{}, fmt.Errorf("failed to record duplicate attempt: %w", err)
	}

	s.logger.Info("claim held for duplicate review",
		zap.String("campaign_id", campaign.ID), zap.String("attempt_id", attempt.ID))
	if s.eventsEnabled() {
		s.events.PublishClaimDuplicate(ctx, campaign, attempt)
	}

	return attempt, nil
}

func (s *Service) orderFromClaim(campaign models.Campaign, claim models.ClaimAttempt, items []models.Product) models.Order {
	c := claim.Contact
	handle := c.Instagram
	if handle == "" {
		handle = c.Tiktok
	}

	return models.Order{
		ID:                  uuid.NewString(),
		CampaignID:          campaign.ID,
		CampaignName:        campaign.Name,
		InfluencerName:      c.FullName(),
		InfluencerEmail:     c.Email,
		InfluencerPhone:     c.Phone(),
		InfluencerHandle:    handle,
		InfluencerInstagram: c.Instagram,
		InfluencerTiktok:    c.Tiktok,
		Items:               items,
		ShippingAddress:     shippingOf(claim.Address, claim.ShippingDetails),
		Status:              models.OrderPending,
		TermsConsent:        c.ConsentPrimary,
		MarketingOptIn:      c.MarketingOptIn,
		Value:               rules.SelectedTotal(items),
		CreatedAt:           s.now().UTC(),
	}
}

func shippingOf(raw string, structured *models.Address) models.ShippingAddress {
	if structured != nil {
		return models.ShippingAddress{Structured: structured}
	}
	return models.ShippingAddress{Raw: raw}
}

// normalizeClaim applies the same formatting the claim form applies while
// typing, so stored handles and names compare equal across submissions.
func normalizeClaim(claim models.ClaimAttempt) models.ClaimAttempt {
	c := claim.Contact
	c.FirstName = strings.TrimSpace(validation.SanitizePersonName(c.FirstName))
	c.LastName = strings.TrimSpace(validation.SanitizePersonName(c.LastName))
	c.Email = strings.TrimSpace(c.Email)
	c.Instagram = validation.EnsureHandleFormat(c.Instagram)
	c.Tiktok = validation.EnsureHandleFormat(c.Tiktok)
	c.CustomAnswer = strings.TrimSpace(c.CustomAnswer)
	claim.Contact = c
	claim.Address = strings.TrimSpace(claim.Address)
	return claim
}
