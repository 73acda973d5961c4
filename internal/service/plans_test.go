package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zamaraev97-gif/ai-bot/internal/models"
	"github.com/zamaraev97-gif/ai-bot/internal/repository"
)

func newTestPlanService(store *memStore) *PlanService {
	s := NewPlanService(store, store)
	s.now = fixedNow
	return s
}

func TestGrantSetsExpiry(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	s := newTestPlanService(store)

	if err := s.Grant(ctx, 1, models.PlanStandard, 30); err != nil {
		t.Fatal(err)
	}
	info, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if info.Plan != models.PlanStandard {
		t.Errorf("plan = %q, want standard", info.Plan)
	}
	want := fixedNow().UTC().Add(30 * 24 * time.Hour)
	if info.ExpiresAt == nil || !info.ExpiresAt.Equal(want) {
		t.Errorf("expiry = %v, want %v", info.ExpiresAt, want)
	}
}

func TestGrantWithoutDaysClearsExpiry(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	s := newTestPlanService(store)

	if err := s.Grant(ctx, 1, models.PlanStandard, 30); err != nil {
		t.Fatal(err)
	}
	if err := s.Grant(ctx, 1, models.PlanPremium, 0); err != nil {
		t.Fatal(err)
	}
	info, _ := store.Get(ctx, 1)
	if info.Plan != models.PlanPremium || info.ExpiresAt != nil {
		t.Errorf("info = %+v, want open-ended premium", info)
	}
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	s := newTestPlanService(store)

	if err := s.Grant(ctx, 1, models.PlanPremium, 7); err != nil {
		t.Fatal(err)
	}
	if err := s.Revoke(ctx, 1); err != nil {
		t.Fatal(err)
	}
	info, _ := store.Get(ctx, 1)
	if info.Plan != models.PlanFree || info.ExpiresAt != nil {
		t.Errorf("info = %+v, want free without expiry", info)
	}
}

func TestGenerateCodes(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	s := newTestPlanService(store)

	codes, err := s.GenerateCodes(ctx, models.PlanStandard, 30, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(codes) != 5 {
		t.Fatalf("got %d codes, want 5", len(codes))
	}
	seen := make(map[string]bool)
	for _, code := range codes {
		if len(code) != 16 {
			t.Errorf("code %q length = %d, want 16", code, len(code))
		}
		if seen[code] {
			t.Errorf("duplicate code %q", code)
		}
		seen[code] = true
	}

	// count <= 0 still mints one code.
	codes, err = s.GenerateCodes(ctx, models.PlanPremium, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(codes) != 1 {
		t.Fatalf("got %d codes for count 0, want 1", len(codes))
	}
}

func TestRedeemGrantsPlan(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	s := newTestPlanService(store)

	codes, err := s.GenerateCodes(ctx, models.PlanStandard, 30, 1)
	if err != nil {
		t.Fatal(err)
	}

	redeemed, err := s.Redeem(ctx, 1, "  "+codes[0]+"\n")
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if redeemed.Plan != models.PlanStandard {
		t.Errorf("redeemed plan = %q, want standard", redeemed.Plan)
	}
	info, _ := store.Get(ctx, 1)
	if info.Plan != models.PlanStandard {
		t.Errorf("plan after redeem = %q, want standard", info.Plan)
	}
	want := fixedNow().UTC().Add(30 * 24 * time.Hour)
	if info.ExpiresAt == nil || !info.ExpiresAt.Equal(want) {
		t.Errorf("expiry = %v, want %v", info.ExpiresAt, want)
	}

	if _, err := s.Redeem(ctx, 2, codes[0]); !errors.Is(err, repository.ErrCodeUsed) {
		t.Fatalf("second redeem: err = %v, want ErrCodeUsed", err)
	}
	if _, err := s.Redeem(ctx, 2, "NOSUCHCODE"); !errors.Is(err, repository.ErrCodeNotFound) {
		t.Fatalf("unknown code: err = %v, want ErrCodeNotFound", err)
	}
}

func TestRedeemResetsMonthlyImageWindow(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	s := newTestPlanService(store)
	month := models.MonthKey(fixedNow())

	if err := s.Grant(ctx, 1, models.PlanStandard, 30); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		if _, err := store.IncrementMonthlyImage(ctx, 1, month); err != nil {
			t.Fatal(err)
		}
	}

	codes, err := s.GenerateCodes(ctx, models.PlanStandard, 30, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Redeem(ctx, 1, codes[0]); err != nil {
		t.Fatal(err)
	}

	count, err := store.MonthlyImageCount(ctx, 1, month)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("monthly count after redeem = %d, want 0 (fresh window)", count)
	}
}

func TestRedeemConcurrentExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	s := newTestPlanService(store)

	codes, err := s.GenerateCodes(ctx, models.PlanPremium, 30, 1)
	if err != nil {
		t.Fatal(err)
	}

	const redeemers = 32
	var wg sync.WaitGroup
	errs := make([]error, redeemers)
	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Redeem(ctx, int64(100+i), codes[0])
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, repository.ErrCodeUsed):
			losses++
		default:
			t.Errorf("unexpected redeem error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
	if losses != redeemers-1 {
		t.Fatalf("losers = %d, want %d", losses, redeemers-1)
	}
}
