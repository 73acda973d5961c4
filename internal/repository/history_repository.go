package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zamaraev97-gif/ai-bot/internal/models"
)

// HistoryRepository is the append-only served-request log.
type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Append(ctx context.Context, rec models.HistoryRecord) error {
	const query = `INSERT INTO history (chat_id, kind, prompt, response) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, rec.ChatID, string(rec.Kind), rec.Prompt, rec.Response); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first. Each call is a fresh
// query, not a cursor.
func (r *HistoryRepository) Recent(ctx context.Context, chatID int64, limit int) ([]models.HistoryRecord, error) {
	const query = `
SELECT id, chat_id, kind, prompt, response, created_at
FROM history WHERE chat_id = ?
ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []models.HistoryRecord
	for rows.Next() {
		var rec models.HistoryRecord
		if err := rows.Scan(&rec.ID, &rec.ChatID, &rec.Kind, &rec.Prompt, &rec.Response, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *HistoryRepository) DeleteAll(ctx context.Context, chatID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM history WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}
