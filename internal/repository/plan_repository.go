package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zamaraev97-gif/ai-bot/internal/models"
)

var (
	ErrCodeNotFound = errors.New("redeem code not found")
	ErrCodeUsed     = errors.New("redeem code already used")
)

// PlanRepository owns the plans and redeem_codes tables. Redemption is a
// single transaction so two concurrent redeemers of one code get exactly
// one winner.
type PlanRepository struct {
	db *sql.DB
}

func NewPlanRepository(db *sql.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *PlanRepository) Get(ctx context.Context, chatID int64) (models.PlanInfo, error) {
	const query = `SELECT plan, expires_at FROM plans WHERE chat_id = ?`
	row := r.db.QueryRowContext(ctx, query, chatID)
	info := models.PlanInfo{ChatID: chatID, Plan: models.PlanFree}
	var plan string
	var expires sql.NullTime
	if err := row.Scan(&plan, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return info, nil
		}
		return models.PlanInfo{}, fmt.Errorf("scan plan: %w", err)
	}
	info.Plan = models.Plan(plan)
	if expires.Valid {
		t := expires.Time
		info.ExpiresAt = &t
	}
	return info, nil
}

func (r *PlanRepository) Set(ctx context.Context, chatID int64, plan models.Plan, expiresAt *time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin plan tx: %w", err)
	}
	defer tx.Rollback()

	if err := applyPlan(ctx, tx, chatID, plan, expiresAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit plan tx: %w", err)
	}
	return nil
}

// applyPlan upserts the plan row and opens a fresh monthly image window,
// a deliberate side effect of every plan (re)set.
func applyPlan(ctx context.Context, ex execer, chatID int64, plan models.Plan, expiresAt *time.Time) error {
	const upsert = `
INSERT INTO plans (chat_id, plan, expires_at)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE plan = VALUES(plan), expires_at = VALUES(expires_at)`
	if _, err := ex.ExecContext(ctx, upsert, chatID, string(plan), expiresAt); err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}
	if _, err := ex.ExecContext(ctx, `DELETE FROM usage_image_monthly WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("reset monthly image usage: %w", err)
	}
	return nil
}

func (r *PlanRepository) Delete(ctx context.Context, chatID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM plans WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	return nil
}

func (r *PlanRepository) CreateCode(ctx context.Context, code models.RedeemCode) error {
	const query = `INSERT INTO redeem_codes (code, plan, days) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, code.Code, string(code.Plan), code.Days); err != nil {
		return fmt.Errorf("insert redeem code: %w", err)
	}
	return nil
}

func (r *PlanRepository) GetCode(ctx context.Context, code string) (*models.RedeemCode, error) {
	const query = `SELECT code, plan, days, used, created_at FROM redeem_codes WHERE code = ?`
	row := r.db.QueryRowContext(ctx, query, code)
	var rc models.RedeemCode
	var used int
	if err := row.Scan(&rc.Code, &rc.Plan, &rc.Days, &used, &rc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan redeem code: %w", err)
	}
	rc.Used = used != 0
	return &rc, nil
}

// Redeem marks the code used and grants its plan in one transaction. The
// row lock plus the conditional update guarantee at most one winner.
func (r *PlanRepository) Redeem(ctx context.Context, chatID int64, code string, now time.Time) (models.RedeemCode, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.RedeemCode{}, fmt.Errorf("begin redeem tx: %w", err)
	}
	defer tx.Rollback()

	var rc models.RedeemCode
	var used int
	row := tx.QueryRowContext(ctx, `SELECT code, plan, days, used FROM redeem_codes WHERE code = ? FOR UPDATE`, code)
	if err := row.Scan(&rc.Code, &rc.Plan, &rc.Days, &used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RedeemCode{}, ErrCodeNotFound
		}
		return models.RedeemCode{}, fmt.Errorf("lock redeem code: %w", err)
	}
	if used != 0 {
		return models.RedeemCode{}, ErrCodeUsed
	}

	res, err := tx.ExecContext(ctx, `UPDATE redeem_codes SET used = 1 WHERE code = ? AND used = 0`, code)
	if err != nil {
		return models.RedeemCode{}, fmt.Errorf("mark code used: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.RedeemCode{}, fmt.Errorf("code rows affected: %w", err)
	}
	if affected == 0 {
		return models.RedeemCode{}, ErrCodeUsed
	}

	var expires *time.Time
	if rc.Days > 0 && rc.Plan != models.PlanFree {
		t := now.Add(time.Duration(rc.Days) * 24 * time.Hour)
		expires = &t
	}
	if err := applyPlan(ctx, tx, chatID, rc.Plan, expires); err != nil {
		return models.RedeemCode{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.RedeemCode{}, fmt.Errorf("commit redeem tx: %w", err)
	}
	rc.Used = true
	return rc, nil
}
