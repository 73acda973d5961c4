package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zamaraev97-gif/ai-bot/internal/models"
)

// RedemptionStore holds single-use codes. Redeem must be atomic: a
// losing concurrent redeemer observes repository.ErrCodeUsed, never a
// double grant.
type RedemptionStore interface {
	CreateCode(ctx context.Context, code models.RedeemCode) error
	GetCode(ctx context.Context, code string) (*models.RedeemCode, error)
	Redeem(ctx context.Context, chatID int64, code string, now time.Time) (models.RedeemCode, error)
}

// PlanService covers admin grants, revocation and code redemption.
type PlanService struct {
	plans PlanStore
	codes RedemptionStore
	now   func() time.Time
}

func NewPlanService(plans PlanStore, codes RedemptionStore) *PlanService {
	return &PlanService{
		plans: plans,
		codes: codes,
		now:   time.Now,
	}
}

func (s *PlanService) Get(ctx context.Context, chatID int64) (models.PlanInfo, error) {
	return s.plans.Get(ctx, chatID)
}

// Grant sets the chat's plan. A paid plan with days > 0 expires after
// that many days; otherwise the expiry is cleared.
func (s *PlanService) Grant(ctx context.Context, chatID int64, plan models.Plan, days int) error {
	var expires *time.Time
	if plan != models.PlanFree && days > 0 {
		t := s.now().UTC().Add(time.Duration(days) * 24 * time.Hour)
		expires = &t
	}
	if err := s.plans.Set(ctx, chatID, plan, expires); err != nil {
		return fmt.Errorf("grant plan: %w", err)
	}
	return nil
}

// Revoke downgrades the chat back to the free tier.
func (s *PlanService) Revoke(ctx context.Context, chatID int64) error {
	if err := s.plans.Set(ctx, chatID, models.PlanFree, nil); err != nil {
		return fmt.Errorf("revoke plan: %w", err)
	}
	return nil
}

// InspectCode looks a code up without consuming it. A nil result means
// the code does not exist.
func (s *PlanService) InspectCode(ctx context.Context, code string) (*models.RedeemCode, error) {
	return s.codes.GetCode(ctx, strings.TrimSpace(code))
}

func (s *PlanService) Redeem(ctx context.Context, chatID int64, code string) (models.RedeemCode, error) {
	return s.codes.Redeem(ctx, chatID, strings.TrimSpace(code), s.now().UTC())
}

// Wipe removes the chat's plan row entirely (conversation data wipe).
func (s *PlanService) Wipe(ctx context.Context, chatID int64) error {
	return s.plans.Delete(ctx, chatID)
}

// GenerateCodes mints count single-use codes for the plan/duration.
func (s *PlanService) GenerateCodes(ctx context.Context, plan models.Plan, days, count int) ([]string, error) {
	if count <= 0 {
		count = 1
	}
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code := newCode()
		if err := s.codes.CreateCode(ctx, models.RedeemCode{Code: code, Plan: plan, Days: days}); err != nil {
			return codes, fmt.Errorf("create code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func newCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:16]
}
