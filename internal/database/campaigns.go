package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"influencer-gifting-api/internal/models"
)

const campaignColumns = `id, merchant_id, shop, name, slug, welcome_message, brand_color,
	status, claims_count, config, created_at`

// CreateCampaign inserts a new campaign. The caller assigns id, slug and status.
func (db *DB) CreateCampaign(ctx context.Context, c models.Campaign) error {
	var exists int
	err := db.conn.QueryRowContext(ctx, db.rebind(`SELECT COUNT(*) FROM campaigns WHERE slug = ?`), c.Slug).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check slug: %w", err)
	}
	if exists > 0 {
		return ErrSlugTaken
	}

	config, err := json.Marshal(c.CampaignConfig)
	if err != nil {
		return fmt.Errorf("failed to encode campaign config: %w", err)
	}

	claims := claimsCount(c.ClaimsCount)

	query := `INSERT INTO campaigns (
		id, merchant_id, shop, name, slug, welcome_message, brand_color,
		status, claims_count, config, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = db.conn.ExecContext(ctx, db.rebind(query),
		c.ID,
		c.MerchantID,
		c.Shop,
		c.Name,
		c.Slug,
		c.WelcomeMessage,
		c.BrandColor,
		string(c.Status),
		claims,
		string(config),
		formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert campaign: %w", err)
	}

	return nil
}

// GetCampaignBySlug returns the active campaign published under slug.
func (db *DB) GetCampaignBySlug(ctx context.Context, slug string) (models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE slug = ? AND status = ?`
	row := db.conn.QueryRowContext(ctx, db.rebind(query), slug, string(models.CampaignActive))
	return scanCampaign(row)
}

// GetCampaign returns a campaign by id regardless of status.
func (db *DB) GetCampaign(ctx context.Context, id string) (models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = ?`
	row := db.conn.QueryRowContext(ctx, db.rebind(query), id)
	return scanCampaign(row)
}

// ListActiveCampaigns returns non-archived campaigns, newest first.
func (db *DB) ListActiveCampaigns(ctx context.Context) ([]models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status <> ? ORDER BY created_at DESC`

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), string(models.CampaignArchived))
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}

	return campaigns, nil
}

// ArchiveCampaign soft-deletes a campaign.
func (db *DB) ArchiveCampaign(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, db.rebind(`UPDATE campaigns SET status = ? WHERE id = ?`),
		string(models.CampaignArchived), id)
	if err != nil {
		return fmt.Errorf("failed to archive campaign: %w", err)
	}
	return requireRow(res)
}

// reserveClaim counts one more committed claim on a campaign, but only while
// the campaign is below limit. A limit of zero or less means unlimited. The
// conditional update runs inside the caller's transaction so that the check
// and the order insert commit together.
func (db *DB) reserveClaim(ctx context.Context, q queryer, campaignID string, limit int) error {
	query := `UPDATE campaigns SET claims_count = claims_count + 1
		WHERE id = ? AND (? <= 0 OR claims_count < ?)`

	res, err := q.ExecContext(ctx, db.rebind(query), campaignID, limit, limit)
	if err != nil {
		return fmt.Errorf("failed to reserve claim: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var id string
	err = q.QueryRowContext(ctx, db.rebind(`SELECT id FROM campaigns WHERE id = ?`), campaignID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load campaign: %w", err)
	}
	return ErrOrderLimitReached
}

// SaveCampaignProducts replaces the product snapshot of a campaign.
func (db *DB) SaveCampaignProducts(ctx context.Context, campaignID string, products []models.Product) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, db.rebind(`DELETE FROM campaign_products WHERE campaign_id = ?`), campaignID); err != nil {
		return fmt.Errorf("failed to clear campaign products: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, db.rebind(`INSERT INTO campaign_products (
		campaign_id, product_id, variant_id, variant_legacy_id, title, price,
		image_url, status, available_for_sale, inventory_quantity, position
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, p := range products {
		var available, inventory any
		if p.AvailableForSale != nil {
			available = boolInt(*p.AvailableForSale)
		}
		if p.InventoryQuantity != nil {
			inventory = *p.InventoryQuantity
		}

		_, err := stmt.ExecContext(ctx,
			campaignID,
			p.ID,
			p.VariantID,
			p.VariantLegacyID,
			p.Title,
			string(p.Price),
			p.ImageURL,
			p.Status,
			available,
			inventory,
			i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert campaign product %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListCampaignProducts returns the product snapshot in the order it was saved.
func (db *DB) ListCampaignProducts(ctx context.Context, campaignID string) ([]models.Product, error) {
	query := `SELECT product_id, variant_id, variant_legacy_id, title, price, image_url,
		status, available_for_sale, inventory_quantity
		FROM campaign_products WHERE campaign_id = ? ORDER BY position`

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		var price string
		var available sql.NullBool
		var inventory sql.NullInt64

		err := rows.Scan(
			&p.ID,
			&p.VariantID,
			&p.VariantLegacyID,
			&p.Title,
			&price,
			&p.ImageURL,
			&p.Status,
			&available,
			&inventory,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign product: %w", err)
		}

		p.Price = models.Amount(price)
		if available.Valid {
			v := available.Bool
			p.AvailableForSale = &v
		}
		if inventory.Valid {
			v := int(inventory.Int64)
			p.InventoryQuantity = &v
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaign products: %w", err)
	}

	return products, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCampaign(s scanner) (models.Campaign, error) {
	var c models.Campaign
	var status, config, createdAt string
	var claims int64

	err := s.Scan(
		&c.ID,
		&c.MerchantID,
		&c.Shop,
		&c.Name,
		&c.Slug,
		&c.WelcomeMessage,
		&c.BrandColor,
		&status,
		&claims,
		&config,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Campaign{}, ErrNotFound
	}
	if err != nil {
		return models.Campaign{}, fmt.Errorf("failed to scan campaign: %w", err)
	}

	if err := json.Unmarshal([]byte(config), &c.CampaignConfig); err != nil {
		return models.Campaign{}, fmt.Errorf("failed to decode config of campaign %s: %w", c.ID, err)
	}

	c.Status = models.CampaignStatus(status)
	c.ClaimsCount = models.Int(int(claims))
	c.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return models.Campaign{}, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return c, nil
}

func claimsCount(n models.FlexNumber) int {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
	if err != nil || v < 0 {
		return 0
	}
	return int(v)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
