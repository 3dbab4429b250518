package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"influencer-gifting-api/internal/models"
)

const attemptColumns = `id, campaign_id, campaign_name, influencer_info, reason, decision, created_at`

// InsertDuplicateAttempt stores a diverted claim for merchant review.
func (db *DB) InsertDuplicateAttempt(ctx context.Context, a models.DuplicateAttempt) error {
	info, err := json.Marshal(a.InfluencerInfo)
	if err != nil {
		return fmt.Errorf("failed to encode influencer info: %w", err)
	}
	if a.Decision == "" {
		a.Decision = models.DecisionPending
	}

	query := `INSERT INTO duplicate_attempts (` + attemptColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = db.conn.ExecContext(ctx, db.rebind(query),
		a.ID,
		a.CampaignID,
		a.CampaignName,
		string(info),
		a.Reason,
		string(a.Decision),
		formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert duplicate attempt: %w", err)
	}

	return nil
}

// GetDuplicateAttempt returns a pending attempt by id.
func (db *DB) GetDuplicateAttempt(ctx context.Context, id string) (models.DuplicateAttempt, error) {
	return db.getDuplicateAttempt(ctx, db.conn, id)
}

func (db *DB) getDuplicateAttempt(ctx context.Context, q queryer, id string) (models.DuplicateAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM duplicate_attempts WHERE id = ?`
	return scanAttempt(q.QueryRowContext(ctx, db.rebind(query), id))
}

// ListDuplicateAttempts returns pending attempts, newest first. An empty
// campaignID lists attempts across all campaigns.
func (db *DB) ListDuplicateAttempts(ctx context.Context, campaignID string, limit int) ([]models.DuplicateAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM duplicate_attempts WHERE decision = ?`
	args := []any{string(models.DecisionPending)}
	if campaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, campaignID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate attempts: %w", err)
	}
	defer rows.Close()

	attempts := []models.DuplicateAttempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duplicate attempts: %w", err)
	}

	return attempts, nil
}

// AcceptDuplicateAttempt resolves a pending attempt into an order. The attempt
// is loaded, conditionally deleted, counted against the campaign's order
// limit and the order built by toOrder is inserted in one transaction. A
// concurrent accept or decline makes this call fail with ErrAlreadyResolved
// instead of creating a second order; a full campaign fails with
// ErrOrderLimitReached and leaves the attempt pending.
func (db *DB) AcceptDuplicateAttempt(ctx context.Context, id string, limit int, toOrder func(models.DuplicateAttempt) models.Order) (models.Order, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	attempt, err := db.getDuplicateAttempt(ctx, tx, id)
	if err != nil {
		return models.Order{}, err
	}

	if err := db.deletePending(ctx, tx, id); err != nil {
		return models.Order{}, err
	}

	if err := db.reserveClaim(ctx, tx, attempt.CampaignID, limit); err != nil {
		return models.Order{}, err
	}

	order := toOrder(attempt)
	if err := db.insertOrder(ctx, tx, order); err != nil {
		return models.Order{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Order{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return order, nil
}

// DeclineDuplicateAttempt deletes a pending attempt without creating an order.
func (db *DB) DeclineDuplicateAttempt(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := db.getDuplicateAttempt(ctx, tx, id); err != nil {
		return err
	}

	if err := db.deletePending(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// deletePending removes the attempt only while it is still pending. Zero
// affected rows means another reviewer action won.
func (db *DB) deletePending(ctx context.Context, q queryer, id string) error {
	query := `DELETE FROM duplicate_attempts WHERE id = ? AND decision = ?`

	res, err := q.ExecContext(ctx, db.rebind(query), id, string(models.DecisionPending))
	if err != nil {
		return fmt.Errorf("failed to delete duplicate attempt: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrAlreadyResolved
	}

	return nil
}

func scanAttempt(s scanner) (models.DuplicateAttempt, error) {
	var a models.DuplicateAttempt
	var info, decision, createdAt string

	err := s.Scan(
		&a.ID,
		&a.CampaignID,
		&a.CampaignName,
		&info,
		&a.Reason,
		&decision,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DuplicateAttempt{}, ErrNotFound
	}
	if err != nil {
		return models.DuplicateAttempt{}, fmt.Errorf("failed to scan duplicate attempt: %w", err)
	}

	if err := json.Unmarshal([]byte(info), &a.InfluencerInfo); err != nil {
		return models.DuplicateAttempt{}, fmt.Errorf("failed to decode influencer info of attempt %s: %w", a.ID, err)
	}

	a.Decision = models.DuplicateDecision(decision)
	a.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return models.DuplicateAttempt{}, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return a, nil
}
