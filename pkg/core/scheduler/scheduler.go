// Package scheduler fires a callback at every Bangkok midnight. Each
// cycle recomputes the delay from the wall clock, so a restart at an
// arbitrary time or a host clock adjustment never accumulates drift.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/onecitymedic/opbridge/pkg/core/localtime"
)

// Midnight schedules the daily rollover tick.
type Midnight struct {
	rule   *rrule.RRule
	logger *zap.Logger
}

// New builds the daily-at-midnight recurrence in the Bangkok zone.
func New(logger *zap.Logger) (*Midnight, error) {
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: time.Date(2020, time.January, 1, 0, 0, 0, 0, localtime.Zone),
	})
	if err != nil {
		return nil, fmt.Errorf("build midnight rule: %w", err)
	}
	return &Midnight{rule: rule, logger: logger}, nil
}

// Next returns the first Bangkok midnight strictly after now.
func (m *Midnight) Next(now time.Time) time.Time {
	return m.rule.After(now.In(localtime.Zone), false)
}

// Run sleeps until each midnight and invokes fn, until ctx is cancelled.
func (m *Midnight) Run(ctx context.Context, fn func()) {
	for {
		now := time.Now()
		next := m.Next(now)
		wait := next.Sub(now)
		m.logger.Info("midnight tick scheduled",
			zap.Time("at", next), zap.Duration("in", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			m.logger.Info("midnight reached, forcing refresh")
			fn()
		}
	}
}
