package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"influencer-gifting-api/internal/models"
)

const orderColumns = `id, campaign_id, campaign_name, influencer_name, influencer_email,
	influencer_phone, influencer_handle, influencer_instagram, influencer_tiktok,
	items, shipping_address, status, shopify_order_id, shopify_order_number,
	terms_consent, marketing_opt_in, created_at`

// FindOrderByCampaignAndIdentity reports whether an order on the campaign
// shares the email, or has a handle equal to the Instagram or TikTok handle.
// Blank identity fields are not matched.
func (db *DB) FindOrderByCampaignAndIdentity(ctx context.Context, campaignID string, identity models.Identity) (bool, error) {
	if identity.Empty() {
		return false, nil
	}

	var conds []string
	args := []any{campaignID}
	if identity.Email != "" {
		conds = append(conds, "influencer_email = ?")
		args = append(args, identity.Email)
	}
	for _, handle := range []string{identity.Instagram, identity.Tiktok} {
		if handle != "" {
			conds = append(conds, "influencer_handle = ?")
			args = append(args, handle)
		}
	}

	query := `SELECT id FROM orders WHERE campaign_id = ? AND (` + strings.Join(conds, " OR ") + `) LIMIT 1`

	var id string
	err := db.conn.QueryRowContext(ctx, db.rebind(query), args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up duplicate order: %w", err)
	}

	return true, nil
}

// CreateOrder commits a claim: the campaign's claim count is raised and the
// order inserted in one transaction. With limit > 0 a campaign already
// holding limit claims fails with ErrOrderLimitReached and no order is stored.
func (db *DB) CreateOrder(ctx context.Context, o models.Order, limit int) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := db.reserveClaim(ctx, tx, o.CampaignID, limit); err != nil {
		return err
	}
	if err := db.insertOrder(ctx, tx, o); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) insertOrder(ctx context.Context, q queryer, o models.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}

	query := `INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = q.ExecContext(ctx, db.rebind(query),
		o.ID,
		o.CampaignID,
		o.CampaignName,
		o.InfluencerName,
		o.InfluencerEmail,
		o.InfluencerPhone,
		o.InfluencerHandle,
		o.InfluencerInstagram,
		o.InfluencerTiktok,
		string(items),
		string(address),
		string(o.Status),
		o.ShopifyOrderID,
		o.ShopifyOrderNumber,
		boolInt(o.TermsConsent),
		boolInt(o.MarketingOptIn),
		formatTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	return nil
}

// GetOrder returns an order by id.
func (db *DB) GetOrder(ctx context.Context, id string) (models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	return scanOrder(db.conn.QueryRowContext(ctx, db.rebind(query), id))
}

// ListOrders returns up to limit orders, newest first.
func (db *DB) ListOrders(ctx context.Context, limit int) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

// UpdateOrderCommerce records the platform order created for a claim.
func (db *DB) UpdateOrderCommerce(ctx context.Context, id, shopifyOrderID, shopifyOrderNumber string, status models.OrderStatus) error {
	query := `UPDATE orders SET shopify_order_id = ?, shopify_order_number = ?, status = ? WHERE id = ?`

	res, err := db.conn.ExecContext(ctx, db.rebind(query), shopifyOrderID, shopifyOrderNumber, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return requireRow(res)
}

func scanOrder(s scanner) (models.Order, error) {
	var o models.Order
	var items, address, status, createdAt string

	err := s.Scan(
		&o.ID,
		&o.CampaignID,
		&o.CampaignName,
		&o.InfluencerName,
		&o.InfluencerEmail,
		&o.InfluencerPhone,
		&o.InfluencerHandle,
		&o.InfluencerInstagram,
		&o.InfluencerTiktok,
		&items,
		&address,
		&status,
		&o.ShopifyOrderID,
		&o.ShopifyOrderNumber,
		&o.TermsConsent,
		&o.MarketingOptIn,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, ErrNotFound
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to scan order: %w", err)
	}

	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return models.Order{}, fmt.Errorf("failed to decode items of order %s: %w", o.ID, err)
	}
	if err := json.Unmarshal([]byte(address), &o.ShippingAddress); err != nil {
		return models.Order{}, fmt.Errorf("failed to decode address of order %s: %w", o.ID, err)
	}

	o.Status = models.OrderStatus(status)
	o.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return o, nil
}
