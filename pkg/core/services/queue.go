package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/onecitymedic/opbridge/pkg/core/model"
	"github.com/onecitymedic/opbridge/pkg/core/render"
	"github.com/onecitymedic/opbridge/pkg/db"
)

// SnapshotStore reads the live shift document and the bindings.
type SnapshotStore interface {
	CurrentSnapshot(ctx context.Context) (*model.ShiftSnapshot, error)
	Bindings(ctx context.Context) (*model.MessageBindings, error)
}

// Resolver is the identity directory as the reconciliation passes see it.
type Resolver interface {
	render.NameResolver
	Refresh(ctx context.Context) error
}

// ReconcileQueueView drives the operations-channel view from the current
// snapshot. Active shifts edit the bound message in place; the idle state
// always gets a brand-new "waiting" message so the ended shift stays
// visible above it, unless the summary flow posted one moments earlier.
func ReconcileQueueView(
	ctx context.Context,
	store SnapshotStore,
	resolver Resolver,
	pub *Publisher,
	logger *zap.Logger,
	now time.Time,
) error {
	snap, err := store.CurrentSnapshot(ctx)
	if errors.Is(err, db.ErrNotFound) {
		logger.Warn("no current shift document, skipping queue view")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read current snapshot: %w", err)
	}

	if snap.ShiftIdle() {
		b, err := store.Bindings(ctx)
		if err != nil {
			return fmt.Errorf("read bindings: %w", err)
		}
		// The summary flow posts its own waiting notice, and an existing
		// binding means one is already live. Either way, nothing to do.
		if b.SummaryJustPosted || b.OpChannelMessageID != "" {
			logger.Debug("waiting message already in place, skipping")
			return nil
		}

		if _, err := pub.SendNew(ctx, ViewQueue, render.WaitingNotice(now)); err != nil {
			return fmt.Errorf("post waiting message: %w", err)
		}
		logger.Info("queue view: waiting message posted (shift idle)")
		return nil
	}

	// Pick up freshly linked accounts before resolving mentions. A failed
	// refresh degrades to stale (or plain-text) names, never to an error.
	if err := resolver.Refresh(ctx); err != nil {
		logger.Warn("identity refresh failed, using stale cache", zap.Error(err))
	}

	text := render.QueueView(snap, resolver, now)
	if _, err := pub.Publish(ctx, ViewQueue, text); err != nil {
		return fmt.Errorf("publish queue view: %w", err)
	}

	logger.Info("queue view updated",
		zap.String("op", snap.CurrentOP),
		zap.Int("on_duty", len(snap.OnDuty)),
		zap.Int("cases", len(render.TodayCases(snap.Cases, now))))
	return nil
}
