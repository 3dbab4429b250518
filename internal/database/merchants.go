package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"influencer-gifting-api/internal/models"
	"influencer-gifting-api/internal/rules"
)

// UpsertMerchant creates a merchant or updates its plan and access token.
// The claim counter is never overwritten.
func (db *DB) UpsertMerchant(ctx context.Context, m models.Merchant) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.PlanStartedAt.IsZero() {
		m.PlanStartedAt = time.Now()
	}

	query := `INSERT INTO merchants (
		id, shop, active_plan, total_claims_count, access_token, plan_started_at
	) VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(shop) DO UPDATE SET
		active_plan = excluded.active_plan,
		access_token = excluded.access_token,
		plan_started_at = excluded.plan_started_at`

	_, err := db.conn.ExecContext(ctx, db.rebind(query),
		m.ID,
		m.Shop,
		m.ActivePlan,
		m.TotalClaimsCount,
		m.AccessToken,
		formatTime(m.PlanStartedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert merchant: %w", err)
	}

	return nil
}

// GetMerchantByShop returns the merchant installed on shop.
func (db *DB) GetMerchantByShop(ctx context.Context, shop string) (models.Merchant, error) {
	query := `SELECT id, shop, active_plan, total_claims_count, access_token, plan_started_at
		FROM merchants WHERE shop = ?`

	var m models.Merchant
	var startedAt string
	err := db.conn.QueryRowContext(ctx, db.rebind(query), shop).Scan(
		&m.ID,
		&m.Shop,
		&m.ActivePlan,
		&m.TotalClaimsCount,
		&m.AccessToken,
		&startedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Merchant{}, ErrNotFound
	}
	if err != nil {
		return models.Merchant{}, fmt.Errorf("failed to get merchant: %w", err)
	}

	m.PlanStartedAt, err = parseTime(startedAt)
	if err != nil {
		return models.Merchant{}, fmt.Errorf("failed to parse plan_started_at: %w", err)
	}

	return m, nil
}

// IncrementMerchantClaims adds one claim to the merchant's usage, creating a
// FREE-plan merchant record on first use.
func (db *DB) IncrementMerchantClaims(ctx context.Context, shop string) error {
	query := `INSERT INTO merchants (id, shop, active_plan, total_claims_count, plan_started_at)
	VALUES (?, ?, ?, 1, ?)
	ON CONFLICT(shop) DO UPDATE SET total_claims_count = merchants.total_claims_count + 1`

	_, err := db.conn.ExecContext(ctx, db.rebind(query), uuid.New().String(), shop, rules.PlanFree, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to increment merchant claims: %w", err)
	}

	return nil
}
