package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"influencer-gifting-api/internal/features"
	"influencer-gifting-api/internal/models"
	"influencer-gifting-api/internal/rules"
	"influencer-gifting-api/internal/validation"
)

// ListDuplicateAttempts returns attempts awaiting review, newest first,
// optionally for one campaign.
func (s *Service) ListDuplicateAttempts(ctx context.Context, campaignID string, limit int) ([]models.DuplicateAttempt, error) {
	if campaignID != "" {
		if err := validation.ValidateUUID(campaignID, "campaign_id"); err != nil {
			return nil, err
		}
	}

	attempts, err := s.store.ListDuplicateAttempts(ctx, campaignID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list duplicate attempts: %w", err)
	}
	return attempts, nil
}

// AcceptDuplicate turns a held attempt into an order. A second accept or a
// decline of the same attempt fails with database.ErrNotFound or
// database.ErrAlreadyResolved. A campaign at its order limit fails with
// database.ErrOrderLimitReached and the attempt stays pending.
func (s *Service) AcceptDuplicate(ctx context.Context, attemptID string) (models.Order, error) {
	ctx, span := s.startSpan(ctx, "service.AcceptDuplicate", attribute.String("attempt.id", attemptID))
	defer span.End()

	if err := validation.ValidateUUID(attemptID, "id"); err != nil {
		return models.Order{}, err
	}

	attempt, err := s.store.GetDuplicateAttempt(ctx, attemptID)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to load duplicate attempt: %w", err)
	}
	campaign, err := s.store.GetCampaign(ctx, attempt.CampaignID)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to load campaign of duplicate attempt: %w", err)
	}

	limit, _ := rules.OrderLimit(campaign)
	order, err := s.store.AcceptDuplicateAttempt(ctx, attemptID, limit, s.orderFromAttempt)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to accept duplicate attempt: %w", err)
	}
	s.logger.Info("duplicate attempt accepted",
		zap.String("attempt_id", attemptID), zap.String("order_id", order.ID))

	s.recordClaim(ctx, campaign)

	var syncErr error
	if s.features.IsEnabled(features.FeatureCommerceSync) {
		syncErr = s.syncOrder(ctx, campaign, &order)
	}

	if s.eventsEnabled() {
		s.events.PublishDuplicateAccepted(ctx, attemptID, order)
	}

	return order, syncErr
}

// DeclineDuplicate discards a held attempt without creating an order.
func (s *Service) DeclineDuplicate(ctx context.Context, attemptID string) error {
	if err := validation.ValidateUUID(attemptID, "id"); err != nil {
		return err
	}

	if err := s.store.DeclineDuplicateAttempt(ctx, attemptID); err != nil {
		return fmt.Errorf("failed to decline duplicate attempt: %w", err)
	}
	s.logger.Info("duplicate attempt declined", zap.String("attempt_id", attemptID))

	if s.eventsEnabled() {
		s.events.PublishDuplicateDeclined(ctx, attemptID)
	}
	return nil
}

// orderFromAttempt maps a held snapshot onto a new pending order.
func (s *Service) orderFromAttempt(a models.DuplicateAttempt) models.Order {
	info := a.InfluencerInfo
	return models.Order{
		ID:                  uuid.NewString(),
		CampaignID:          a.CampaignID,
		CampaignName:        a.CampaignName,
		InfluencerName:      info.DisplayName(),
		InfluencerEmail:     info.Email,
		InfluencerPhone:     info.Phone,
		InfluencerHandle:    info.Handle(),
		InfluencerInstagram: info.Instagram,
		InfluencerTiktok:    info.Tiktok,
		Items:               info.Items,
		ShippingAddress:     shippingOf(info.Address, info.ShippingDetails),
		Status:              models.OrderPending,
		Value:               rules.SelectedTotal(info.Items),
		CreatedAt:           s.now().UTC(),
	}
}
