package proctor

import (
	"time"

	"github.com/stemsi/quizguard/internal/model"
)

// Policy holds the integrity thresholds for one attempt.
type Policy struct {
	MaxWarnings  int
	Cooldown     time.Duration
	AwayBudget   time.Duration
	Settle       time.Duration
	PollInterval time.Duration
	// SplitRatio is the fraction of the screen the window must keep in both
	// axes before it counts as split-screen.
	SplitRatio  float64
	CallTimeout time.Duration
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MaxWarnings:  3,
		Cooldown:     3 * time.Second,
		AwayBudget:   10 * time.Second,
		Settle:       300 * time.Millisecond,
		PollInterval: 250 * time.Millisecond,
		SplitRatio:   0.8,
		CallTimeout:  15 * time.Second,
	}
}

// PolicyFromModel overlays server-provided thresholds on the defaults.
// Zero or negative fields keep their default.
func PolicyFromModel(p *model.ProctorPolicy) Policy {
	pol := DefaultPolicy()
	if p == nil {
		return pol
	}
	if p.MaxWarnings > 0 {
		pol.MaxWarnings = p.MaxWarnings
	}
	if p.CooldownMs > 0 {
		pol.Cooldown = time.Duration(p.CooldownMs) * time.Millisecond
	}
	if p.AwayBudgetMs > 0 {
		pol.AwayBudget = time.Duration(p.AwayBudgetMs) * time.Millisecond
	}
	if p.SettleMs > 0 {
		pol.Settle = time.Duration(p.SettleMs) * time.Millisecond
	}
	if p.PollMs > 0 {
		pol.PollInterval = time.Duration(p.PollMs) * time.Millisecond
	}
	if p.SplitRatio > 0 && p.SplitRatio <= 1 {
		pol.SplitRatio = p.SplitRatio
	}
	return pol
}
