package service

import (
	"context"
	"fmt"
	"time"

	"github.com/zamaraev97-gif/ai-bot/internal/models"
)

// Store interfaces the services depend on. The MySQL repositories
// implement them; tests substitute in-memory fakes.

type PlanStore interface {
	Get(ctx context.Context, chatID int64) (models.PlanInfo, error)
	Set(ctx context.Context, chatID int64, plan models.Plan, expiresAt *time.Time) error
	Delete(ctx context.Context, chatID int64) error
}

type UsageLedger interface {
	IncrementDaily(ctx context.Context, chatID int64, kind models.UsageKind, day string) (int, error)
	DailyCount(ctx context.Context, chatID int64, kind models.UsageKind, day string) (int, error)
	IncrementMonthlyImage(ctx context.Context, chatID int64, month string) (int, error)
	MonthlyImageCount(ctx context.Context, chatID int64, month string) (int, error)
	ResetDay(ctx context.Context, chatID int64, day string) error
	DeleteAll(ctx context.Context, chatID int64) error
}

// Limits are the quota bounds per metered tier.
type Limits struct {
	FreeDailyText         int
	FreeDailyImages       int
	StandardMonthlyImages int
}

// Entitlement decides whether a chat may consume a capability. It only
// reads; counters are incremented after a successful generation, so a
// denied or failed attempt never consumes quota.
type Entitlement struct {
	limits Limits
	plans  PlanStore
	usage  UsageLedger
	now    func() time.Time
}

func NewEntitlement(limits Limits, plans PlanStore, usage UsageLedger) *Entitlement {
	return &Entitlement{
		limits: limits,
		plans:  plans,
		usage:  usage,
		now:    time.Now,
	}
}

// Authorize resolves the effective plan (expired paid plans count as
// free within this same call) and checks the capability's counter for
// the current period.
func (e *Entitlement) Authorize(ctx context.Context, chatID int64, capability models.Capability) (models.Decision, error) {
	info, err := e.plans.Get(ctx, chatID)
	if err != nil {
		return models.Decision{}, fmt.Errorf("get plan: %w", err)
	}
	now := e.now()
	plan := info.Effective(now)

	switch capability {
	case models.CapabilityChat:
		if plan != models.PlanFree {
			return models.Decision{Allow: true, Plan: plan}, nil
		}
		count, err := e.usage.DailyCount(ctx, chatID, models.UsageText, models.DayKey(now))
		if err != nil {
			return models.Decision{}, fmt.Errorf("daily text usage: %w", err)
		}
		if count < e.limits.FreeDailyText {
			return models.Decision{Allow: true, Plan: plan}, nil
		}
		return models.Decision{
			Plan: plan,
			Reason: fmt.Sprintf(
				"Дневной лимит сообщений исчерпан (%d в день на бесплатном тарифе). Возвращайтесь завтра или активируйте код: /redeem.",
				e.limits.FreeDailyText),
		}, nil

	case models.CapabilityImage:
		switch plan {
		case models.PlanPremium:
			return models.Decision{Allow: true, Plan: plan}, nil
		case models.PlanStandard:
			count, err := e.usage.MonthlyImageCount(ctx, chatID, models.MonthKey(now))
			if err != nil {
				return models.Decision{}, fmt.Errorf("monthly image usage: %w", err)
			}
			if count < e.limits.StandardMonthlyImages {
				return models.Decision{Allow: true, Plan: plan}, nil
			}
			return models.Decision{
				Plan: plan,
				Reason: fmt.Sprintf(
					"Месячный лимит изображений исчерпан (%d в месяц на тарифе standard). Лимит обновится в следующем месяце.",
					e.limits.StandardMonthlyImages),
			}, nil
		default:
			count, err := e.usage.DailyCount(ctx, chatID, models.UsageImage, models.DayKey(now))
			if err != nil {
				return models.Decision{}, fmt.Errorf("daily image usage: %w", err)
			}
			if count < e.limits.FreeDailyImages {
				return models.Decision{Allow: true, Plan: plan}, nil
			}
			return models.Decision{
				Plan: plan,
				Reason: fmt.Sprintf(
					"Дневной лимит изображений исчерпан (%d в день на бесплатном тарифе). Возвращайтесь завтра или активируйте код: /redeem.",
					e.limits.FreeDailyImages),
			}, nil
		}

	default:
		return models.Decision{}, fmt.Errorf("unknown capability: %q", capability)
	}
}
