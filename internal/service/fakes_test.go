package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/zamaraev97-gif/ai-bot/internal/models"
	"github.com/zamaraev97-gif/ai-bot/internal/provider"
	"github.com/zamaraev97-gif/ai-bot/internal/repository"
)

// memStore is an in-memory stand-in for the MySQL repositories. It
// mirrors their semantics, including the monthly-image-counter reset on
// every plan write and the exactly-once code redemption.
type memStore struct {
	mu      sync.Mutex
	plans   map[int64]models.PlanInfo
	daily   map[string]int
	monthly map[string]int
	history map[int64][]models.HistoryRecord
	codes   map[string]*models.RedeemCode
}

func newMemStore() *memStore {
	return &memStore{
		plans:   make(map[int64]models.PlanInfo),
		daily:   make(map[string]int),
		monthly: make(map[string]int),
		history: make(map[int64][]models.HistoryRecord),
		codes:   make(map[string]*models.RedeemCode),
	}
}

func dailyKey(chatID int64, kind models.UsageKind, day string) string {
	return fmt.Sprintf("%d|%s|%s", chatID, kind, day)
}

func monthlyKey(chatID int64, month string) string {
	return fmt.Sprintf("%d|%s", chatID, month)
}

func (s *memStore) Get(_ context.Context, chatID int64) (models.PlanInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.plans[chatID]
	if !ok {
		return models.PlanInfo{ChatID: chatID, Plan: models.PlanFree}, nil
	}
	return info, nil
}

func (s *memStore) Set(_ context.Context, chatID int64, plan models.Plan, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setPlanLocked(chatID, plan, expiresAt)
	return nil
}

func (s *memStore) setPlanLocked(chatID int64, plan models.Plan, expiresAt *time.Time) {
	s.plans[chatID] = models.PlanInfo{ChatID: chatID, Plan: plan, ExpiresAt: expiresAt}
	prefix := fmt.Sprintf("%d|", chatID)
	for key := range s.monthly {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(s.monthly, key)
		}
	}
}

func (s *memStore) Delete(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plans, chatID)
	return nil
}

func (s *memStore) IncrementDaily(_ context.Context, chatID int64, kind models.UsageKind, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dailyKey(chatID, kind, day)
	s.daily[key]++
	return s.daily[key], nil
}

func (s *memStore) DailyCount(_ context.Context, chatID int64, kind models.UsageKind, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.daily[dailyKey(chatID, kind, day)], nil
}

func (s *memStore) IncrementMonthlyImage(_ context.Context, chatID int64, month string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := monthlyKey(chatID, month)
	s.monthly[key]++
	return s.monthly[key], nil
}

func (s *memStore) MonthlyImageCount(_ context.Context, chatID int64, month string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monthly[monthlyKey(chatID, month)], nil
}

func (s *memStore) ResetDay(_ context.Context, chatID int64, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.daily, dailyKey(chatID, models.UsageText, day))
	delete(s.daily, dailyKey(chatID, models.UsageImage, day))
	return nil
}

func (s *memStore) DeleteAll(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := fmt.Sprintf("%d|", chatID)
	for key := range s.daily {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(s.daily, key)
		}
	}
	for key := range s.monthly {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(s.monthly, key)
		}
	}
	delete(s.history, chatID)
	return nil
}

func (s *memStore) Append(_ context.Context, rec models.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = int64(len(s.history[rec.ChatID]) + 1)
	s.history[rec.ChatID] = append(s.history[rec.ChatID], rec)
	return nil
}

func (s *memStore) Recent(_ context.Context, chatID int64, limit int) ([]models.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.history[chatID]
	out := make([]models.HistoryRecord, 0, limit)
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, records[i])
	}
	return out, nil
}

func (s *memStore) historyLen(chatID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history[chatID])
}

func (s *memStore) CreateCode(_ context.Context, code models.RedeemCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code.Code]; ok {
		return fmt.Errorf("duplicate code %q", code.Code)
	}
	c := code
	s.codes[code.Code] = &c
	return nil
}

func (s *memStore) GetCode(_ context.Context, code string) (*models.RedeemCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) Redeem(_ context.Context, chatID int64, code string, now time.Time) (models.RedeemCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok {
		return models.RedeemCode{}, repository.ErrCodeNotFound
	}
	if c.Used {
		return models.RedeemCode{}, repository.ErrCodeUsed
	}
	c.Used = true
	var expires *time.Time
	if c.Plan != models.PlanFree && c.Days > 0 {
		t := now.Add(time.Duration(c.Days) * 24 * time.Hour)
		expires = &t
	}
	s.setPlanLocked(chatID, c.Plan, expires)
	return *c, nil
}

// Stub providers. Each capability is a plain function so tests can fail
// chosen models and observe call order.

type stubChat func(ctx context.Context, model, system string, messages []provider.Message) (string, error)

func (f stubChat) Complete(ctx context.Context, model, system string, messages []provider.Message) (string, error) {
	return f(ctx, model, system, messages)
}

type stubVision func(ctx context.Context, model, prompt, imageURL string) (string, error)

func (f stubVision) Describe(ctx context.Context, model, prompt, imageURL string) (string, error) {
	return f(ctx, model, prompt, imageURL)
}

type stubImage func(ctx context.Context, model, prompt, size string) (provider.Image, error)

func (f stubImage) Generate(ctx context.Context, model, prompt, size string) (provider.Image, error) {
	return f(ctx, model, prompt, size)
}

type stubTranscriber func(ctx context.Context, model string, audio []byte) (string, error)

func (f stubTranscriber) Transcribe(ctx context.Context, model string, audio []byte) (string, error) {
	return f(ctx, model, audio)
}

type stubSynthesizer func(ctx context.Context, model, text, voice string) ([]byte, error)

func (f stubSynthesizer) Synthesize(ctx context.Context, model, text, voice string) ([]byte, error) {
	return f(ctx, model, text, voice)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLimits() Limits {
	return Limits{FreeDailyText: 15, FreeDailyImages: 3, StandardMonthlyImages: 20}
}
