package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zamaraev97-gif/ai-bot/internal/models"
)

// SettingsRepository stores per-chat toggles. A missing row reads as the
// defaults: voice replies off, auto-routing on.
type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(ctx context.Context, chatID int64) (models.Settings, error) {
	const query = `SELECT voice_reply, auto_route FROM settings WHERE chat_id = ?`
	row := r.db.QueryRowContext(ctx, query, chatID)
	settings := models.Settings{ChatID: chatID, AutoRoute: true}
	var voice, auto int
	if err := row.Scan(&voice, &auto); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return settings, nil
		}
		return models.Settings{}, fmt.Errorf("scan settings: %w", err)
	}
	settings.VoiceReply = voice != 0
	settings.AutoRoute = auto != 0
	return settings, nil
}

func (r *SettingsRepository) SetVoiceReply(ctx context.Context, chatID int64, enabled bool) error {
	const query = `
INSERT INTO settings (chat_id, voice_reply)
VALUES (?, ?)
ON DUPLICATE KEY UPDATE voice_reply = VALUES(voice_reply)`
	if _, err := r.db.ExecContext(ctx, query, chatID, boolToInt(enabled)); err != nil {
		return fmt.Errorf("set voice reply: %w", err)
	}
	return nil
}

func (r *SettingsRepository) SetAutoRoute(ctx context.Context, chatID int64, enabled bool) error {
	const query = `
INSERT INTO settings (chat_id, auto_route)
VALUES (?, ?)
ON DUPLICATE KEY UPDATE auto_route = VALUES(auto_route)`
	if _, err := r.db.ExecContext(ctx, query, chatID, boolToInt(enabled)); err != nil {
		return fmt.Errorf("set auto route: %w", err)
	}
	return nil
}

func (r *SettingsRepository) Delete(ctx context.Context, chatID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM settings WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
