package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zamaraev97-gif/ai-bot/internal/models"
)

// UsageRepository is the durable usage ledger. Every mutation is a single
// atomic upsert keyed by (chat, period), so concurrent turns for the same
// chat cannot lose updates and period rollover needs no reset job.
type UsageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

const (
	incDailyText = `
INSERT INTO usage_daily (chat_id, period_day, text_count, image_count)
VALUES (?, ?, 1, 0)
ON DUPLICATE KEY UPDATE text_count = text_count + 1`
	incDailyImage = `
INSERT INTO usage_daily (chat_id, period_day, text_count, image_count)
VALUES (?, ?, 0, 1)
ON DUPLICATE KEY UPDATE image_count = image_count + 1`
)

func (r *UsageRepository) IncrementDaily(ctx context.Context, chatID int64, kind models.UsageKind, day string) (int, error) {
	query := incDailyText
	if kind == models.UsageImage {
		query = incDailyImage
	}
	if _, err := r.db.ExecContext(ctx, query, chatID, day); err != nil {
		return 0, fmt.Errorf("increment daily %s usage: %w", kind, err)
	}
	return r.DailyCount(ctx, chatID, kind, day)
}

func (r *UsageRepository) DailyCount(ctx context.Context, chatID int64, kind models.UsageKind, day string) (int, error) {
	column := "text_count"
	if kind == models.UsageImage {
		column = "image_count"
	}
	query := fmt.Sprintf(`SELECT %s FROM usage_daily WHERE chat_id = ? AND period_day = ?`, column)
	row := r.db.QueryRowContext(ctx, query, chatID, day)
	var count int
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan daily %s usage: %w", kind, err)
	}
	return count, nil
}

func (r *UsageRepository) IncrementMonthlyImage(ctx context.Context, chatID int64, month string) (int, error) {
	const query = `
INSERT INTO usage_image_monthly (chat_id, period_month, count)
VALUES (?, ?, 1)
ON DUPLICATE KEY UPDATE count = count + 1`
	if _, err := r.db.ExecContext(ctx, query, chatID, month); err != nil {
		return 0, fmt.Errorf("increment monthly image usage: %w", err)
	}
	return r.MonthlyImageCount(ctx, chatID, month)
}

func (r *UsageRepository) MonthlyImageCount(ctx context.Context, chatID int64, month string) (int, error) {
	const query = `SELECT count FROM usage_image_monthly WHERE chat_id = ? AND period_month = ?`
	row := r.db.QueryRowContext(ctx, query, chatID, month)
	var count int
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan monthly image usage: %w", err)
	}
	return count, nil
}

// ResetDay zeroes the addressed day only; other days keep their rows.
func (r *UsageRepository) ResetDay(ctx context.Context, chatID int64, day string) error {
	const query = `UPDATE usage_daily SET text_count = 0, image_count = 0 WHERE chat_id = ? AND period_day = ?`
	if _, err := r.db.ExecContext(ctx, query, chatID, day); err != nil {
		return fmt.Errorf("reset daily usage: %w", err)
	}
	return nil
}

func (r *UsageRepository) DeleteAll(ctx context.Context, chatID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM usage_daily WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete daily usage: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM usage_image_monthly WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete monthly usage: %w", err)
	}
	return nil
}
