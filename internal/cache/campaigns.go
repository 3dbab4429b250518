package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"influencer-gifting-api/internal/models"
)

// Campaigns caches published campaigns by slug. Claim submissions read the
// campaign on every request, while campaigns change rarely.
type Campaigns struct {
	cache Cache
	ttl   time.Duration
}

func NewCampaigns(c Cache, ttl time.Duration) *Campaigns {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Campaigns{cache: c, ttl: ttl}
}

func campaignKey(slug string) string {
	return "campaign:slug:" + slug
}

// Get returns the cached campaign. ok is false on a miss; err is set only
// when the backend failed.
func (c *Campaigns) Get(ctx context.Context, slug string) (models.Campaign, bool, error) {
	data, err := c.cache.Get(ctx, campaignKey(slug))
	if errors.Is(err, ErrNotFound) {
		return models.Campaign{}, false, nil
	}
	if err != nil {
		return models.Campaign{}, false, err
	}

	var campaign models.Campaign
	if err := json.Unmarshal(data, &campaign); err != nil {
		// A stale encoding is treated as a miss and overwritten on the next Put.
		return models.Campaign{}, false, nil
	}
	return campaign, true, nil
}

func (c *Campaigns) Put(ctx context.Context, campaign models.Campaign) error {
	data, err := json.Marshal(campaign)
	if err != nil {
		return fmt.Errorf("failed to encode campaign %s: %w", campaign.Slug, err)
	}
	return c.cache.Set(ctx, campaignKey(campaign.Slug), data, c.ttl)
}

// Invalidate drops a slug after the campaign was archived or its claim count moved.
func (c *Campaigns) Invalidate(ctx context.Context, slug string) error {
	return c.cache.Delete(ctx, campaignKey(slug))
}
