package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zamaraev97-gif/ai-bot/internal/dispatch"
	"github.com/zamaraev97-gif/ai-bot/internal/models"
	"github.com/zamaraev97-gif/ai-bot/internal/provider"
)

// HistoryStore is the append-only served-request log.
type HistoryStore interface {
	Append(ctx context.Context, rec models.HistoryRecord) error
	Recent(ctx context.Context, chatID int64, limit int) ([]models.HistoryRecord, error)
	DeleteAll(ctx context.Context, chatID int64) error
}

// Providers groups one implementation per capability. A single client
// usually backs them all, but the split keeps tests and future mixed
// deployments simple.
type Providers struct {
	Chat        provider.ChatProvider
	Vision      provider.VisionProvider
	Image       provider.ImageProvider
	Transcriber provider.Transcriber
	Speech      provider.Synthesizer
}

// DispatchConfig carries the ordered candidate lists and request
// parameters, built once at startup.
type DispatchConfig struct {
	ChatModels       []string
	VisionModels     []string
	ImageModels      []string
	TranscribeModels []string
	SpeechModels     []string

	SystemPrompt string
	ImageSize    string
	TTSVoice     string
}

// QuotaError is a user-presentable denial. It never reaches the provider
// dispatcher: denied attempts make no provider calls.
type QuotaError struct {
	Reason string
}

func (e *QuotaError) Error() string {
	return e.Reason
}

// UsageSummary is the current period's counters, for ops inspection.
type UsageSummary struct {
	DailyText     int `json:"daily_text"`
	DailyImages   int `json:"daily_images"`
	MonthlyImages int `json:"monthly_images"`
}

// Assistant runs the authorize -> dispatch -> record pipeline for every
// served turn.
type Assistant struct {
	cfg         DispatchConfig
	log         *slog.Logger
	entitlement *Entitlement
	usage       UsageLedger
	history     HistoryStore
	providers   Providers
	now         func() time.Time
}

func NewAssistant(cfg DispatchConfig, log *slog.Logger, entitlement *Entitlement, usage UsageLedger, history HistoryStore, providers Providers) *Assistant {
	return &Assistant{
		cfg:         cfg,
		log:         log,
		entitlement: entitlement,
		usage:       usage,
		history:     history,
		providers:   providers,
		now:         time.Now,
	}
}

// Chat serves one text turn. On denial it returns a QuotaError without
// touching any provider; on total dispatch failure it returns the
// aggregate without incrementing usage or recording history.
func (a *Assistant) Chat(ctx context.Context, chatID int64, text string) (string, error) {
	decision, err := a.entitlement.Authorize(ctx, chatID, models.CapabilityChat)
	if err != nil {
		return "", err
	}
	if !decision.Allow {
		return "", &QuotaError{Reason: decision.Reason}
	}

	var reply string
	model, err := dispatch.Try(ctx, a.log, "chat", a.cfg.ChatModels, func(ctx context.Context, model string) error {
		out, err := a.providers.Chat.Complete(ctx, model, a.cfg.SystemPrompt, []provider.Message{
			{Role: provider.RoleUser, Content: text},
		})
		if err != nil {
			return err
		}
		reply = out
		return nil
	})
	if err != nil {
		return "", err
	}

	a.recordServed(ctx, chatID, decision.Plan, models.UsageText, "chat", model, text, reply)
	return reply, nil
}

// Describe serves a photo turn: image understanding is a chat-capability
// request and is metered as text.
func (a *Assistant) Describe(ctx context.Context, chatID int64, prompt, imageURL string) (string, error) {
	decision, err := a.entitlement.Authorize(ctx, chatID, models.CapabilityChat)
	if err != nil {
		return "", err
	}
	if !decision.Allow {
		return "", &QuotaError{Reason: decision.Reason}
	}

	var reply string
	model, err := dispatch.Try(ctx, a.log, "vision", a.cfg.VisionModels, func(ctx context.Context, model string) error {
		out, err := a.providers.Vision.Describe(ctx, model, prompt, imageURL)
		if err != nil {
			return err
		}
		reply = out
		return nil
	})
	if err != nil {
		return "", err
	}

	a.recordServed(ctx, chatID, decision.Plan, models.UsageText, "vision", model, prompt, reply)
	return reply, nil
}

// GenerateImage serves an image-generation turn.
func (a *Assistant) GenerateImage(ctx context.Context, chatID int64, prompt string) (provider.Image, error) {
	decision, err := a.entitlement.Authorize(ctx, chatID, models.CapabilityImage)
	if err != nil {
		return provider.Image{}, err
	}
	if !decision.Allow {
		return provider.Image{}, &QuotaError{Reason: decision.Reason}
	}

	var image provider.Image
	model, err := dispatch.Try(ctx, a.log, "image", a.cfg.ImageModels, func(ctx context.Context, model string) error {
		out, err := a.providers.Image.Generate(ctx, model, prompt, a.cfg.ImageSize)
		if err != nil {
			return err
		}
		image = out
		return nil
	})
	if err != nil {
		return provider.Image{}, err
	}

	summary := image.URL
	if image.Inline() {
		summary = fmt.Sprintf("inline image (%d bytes)", len(image.Bytes))
	}
	a.recordServed(ctx, chatID, decision.Plan, models.UsageImage, "image", model, prompt, summary)
	return image, nil
}

// Transcribe converts a voice message to text. The transcription itself
// is unmetered; the chat turn built from it is authorized as usual.
func (a *Assistant) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var text string
	_, err := dispatch.Try(ctx, a.log, "transcribe", a.cfg.TranscribeModels, func(ctx context.Context, model string) error {
		out, err := a.providers.Transcriber.Transcribe(ctx, model, audio)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// Speak synthesizes a voice reply. Callers treat failure as best-effort:
// it never blocks or fails the primary text reply.
func (a *Assistant) Speak(ctx context.Context, text string) ([]byte, error) {
	var audio []byte
	_, err := dispatch.Try(ctx, a.log, "speech", a.cfg.SpeechModels, func(ctx context.Context, model string) error {
		out, err := a.providers.Speech.Synthesize(ctx, model, text, a.cfg.TTSVoice)
		if err != nil {
			return err
		}
		audio = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

func (a *Assistant) History(ctx context.Context, chatID int64, limit int) ([]models.HistoryRecord, error) {
	return a.history.Recent(ctx, chatID, limit)
}

// ResetToday zeroes the current day's counters, for quota troubleshooting.
func (a *Assistant) ResetToday(ctx context.Context, chatID int64) error {
	return a.usage.ResetDay(ctx, chatID, models.DayKey(a.now()))
}

func (a *Assistant) Usage(ctx context.Context, chatID int64) (UsageSummary, error) {
	now := a.now()
	day := models.DayKey(now)
	text, err := a.usage.DailyCount(ctx, chatID, models.UsageText, day)
	if err != nil {
		return UsageSummary{}, err
	}
	images, err := a.usage.DailyCount(ctx, chatID, models.UsageImage, day)
	if err != nil {
		return UsageSummary{}, err
	}
	monthly, err := a.usage.MonthlyImageCount(ctx, chatID, models.MonthKey(now))
	if err != nil {
		return UsageSummary{}, err
	}
	return UsageSummary{DailyText: text, DailyImages: images, MonthlyImages: monthly}, nil
}

// Wipe removes the chat's usage counters and history.
func (a *Assistant) Wipe(ctx context.Context, chatID int64) error {
	if err := a.usage.DeleteAll(ctx, chatID); err != nil {
		return err
	}
	return a.history.DeleteAll(ctx, chatID)
}

// recordServed runs after a successful dispatch: increment the counter
// for the consumed capability when the plan meters it, then append the
// history record. Failures here are logged, not surfaced: the reply was
// already served.
func (a *Assistant) recordServed(ctx context.Context, chatID int64, plan models.Plan, kind models.UsageKind, capability, model, prompt, response string) {
	now := a.now()
	switch kind {
	case models.UsageText:
		if plan == models.PlanFree {
			if _, err := a.usage.IncrementDaily(ctx, chatID, models.UsageText, models.DayKey(now)); err != nil {
				a.log.Error("increment text usage", "chat_id", chatID, "err", err)
			}
		}
	case models.UsageImage:
		switch plan {
		case models.PlanFree:
			if _, err := a.usage.IncrementDaily(ctx, chatID, models.UsageImage, models.DayKey(now)); err != nil {
				a.log.Error("increment image usage", "chat_id", chatID, "err", err)
			}
		case models.PlanStandard:
			if _, err := a.usage.IncrementMonthlyImage(ctx, chatID, models.MonthKey(now)); err != nil {
				a.log.Error("increment monthly image usage", "chat_id", chatID, "err", err)
			}
		}
	}

	if err := a.history.Append(ctx, models.HistoryRecord{
		ChatID:   chatID,
		Kind:     kind,
		Prompt:   prompt,
		Response: summarize(response),
	}); err != nil {
		a.log.Error("append history", "chat_id", chatID, "err", err)
	}

	a.log.Info("request served", "chat_id", chatID, "capability", capability, "model", model, "plan", string(plan))
}

// summarize bounds the stored response; history keeps a summary, not the
// full payload.
func summarize(s string) string {
	const limit = 500
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
