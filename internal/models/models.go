package models

import (
	"fmt"
	"time"
)

// Plan is the entitlement tier of a chat.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanStandard Plan = "standard"
	PlanPremium  Plan = "premium"
)

// ParsePlan validates a user- or admin-supplied plan name.
func ParsePlan(s string) (Plan, error) {
	switch Plan(s) {
	case PlanFree, PlanStandard, PlanPremium:
		return Plan(s), nil
	default:
		return "", fmt.Errorf("unknown plan: %q", s)
	}
}

// Capability is a metered request type.
type Capability string

const (
	CapabilityChat  Capability = "chat"
	CapabilityImage Capability = "image"
)

// UsageKind selects a usage counter column.
type UsageKind string

const (
	UsageText  UsageKind = "text"
	UsageImage UsageKind = "image"
)

// PlanInfo is the stored plan row of a chat. A missing row reads as
// PlanInfo{Plan: PlanFree}.
type PlanInfo struct {
	ChatID    int64
	Plan      Plan
	ExpiresAt *time.Time
}

// Effective applies lazy expiry: a paid plan past its expiry instant is
// treated as free without rewriting the row.
func (p PlanInfo) Effective(now time.Time) Plan {
	if p.Plan == "" {
		return PlanFree
	}
	if p.Plan != PlanFree && p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return PlanFree
	}
	return p.Plan
}

// Decision is the outcome of an authorization check. Reason is set and
// user-presentable when Allow is false. Plan carries the effective plan
// the decision was made under.
type Decision struct {
	Allow  bool
	Reason string
	Plan   Plan
}

// HistoryRecord is one served request, append-only.
type HistoryRecord struct {
	ID        int64
	ChatID    int64
	Kind      UsageKind
	Prompt    string
	Response  string
	CreatedAt time.Time
}

// Settings are per-chat toggles. Auto-routing defaults to on, voice
// replies to off.
type Settings struct {
	ChatID     int64
	VoiceReply bool
	AutoRoute  bool
}

// RedeemCode is a single-use code granting Plan for Days.
type RedeemCode struct {
	Code      string
	Plan      Plan
	Days      int
	Used      bool
	CreatedAt time.Time
}

// DayKey and MonthKey build usage-counter period keys. Rollover happens
// implicitly because the key is part of the counter's primary key; both
// must be derived from a single clock read per logical operation.

func DayKey(t time.Time) string {
	return t.UTC().Format("20060102")
}

func MonthKey(t time.Time) string {
	return t.UTC().Format("200601")
}
