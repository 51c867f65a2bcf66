package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/onecitymedic/opbridge/pkg/core/localtime"
	"github.com/onecitymedic/opbridge/pkg/core/model"
	"github.com/onecitymedic/opbridge/pkg/core/render"
	"github.com/onecitymedic/opbridge/pkg/db"
)

// CaseStore is the store surface the case-view pass needs.
type CaseStore interface {
	CurrentSnapshot(ctx context.Context) (*model.ShiftSnapshot, error)
	Bindings(ctx context.Context) (*model.MessageBindings, error)
	UpdateBindings(ctx context.Context, mutate func(*model.MessageBindings)) (*model.MessageBindings, error)
}

// ReconcileCaseView drives the cases-channel view through its batch
// machine. The active batch is today's cases minus the ones already
// folded into a finalized summary; the summarized set is day-scoped and
// resets at the first pass of a new Bangkok day. Case ids repeat across
// days in the legacy data model, which is exactly why the reset exists.
func ReconcileCaseView(
	ctx context.Context,
	store CaseStore,
	resolver render.NameResolver,
	pub *Publisher,
	logger *zap.Logger,
	now time.Time,
) error {
	snap, err := store.CurrentSnapshot(ctx)
	if errors.Is(err, db.ErrNotFound) {
		logger.Warn("no current shift document, skipping case view")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read current snapshot: %w", err)
	}

	b, err := store.Bindings(ctx)
	if err != nil {
		return fmt.Errorf("read bindings: %w", err)
	}

	today := localtime.DateString(now)
	summarized := b.SummarizedStoryIDs
	if b.SummarizedDate != "" && b.SummarizedDate != today {
		summarized = nil
		logger.Info("new day, summarized case ids reset",
			zap.String("previous", b.SummarizedDate), zap.String("today", today))
	}

	inSummarized := make(map[string]bool, len(summarized))
	for _, id := range summarized {
		inSummarized[id] = true
	}

	todayCases := render.TodayCases(snap.Cases, now)
	batch := make([]model.Case, 0, len(todayCases))
	allClosed := true
	for _, c := range todayCases {
		if inSummarized[c.ID] {
			continue
		}
		batch = append(batch, c)
		if !c.Closed {
			allClosed = false
		}
	}

	// Nothing new since the last finalized summary: stay quiet rather
	// than flooding the channel with empty messages.
	if len(batch) == 0 {
		logger.Debug("no active cases to display")
		return nil
	}

	text := render.CaseView(batch, allClosed, resolver, now)

	if !allClosed {
		if _, err := pub.Publish(ctx, ViewCases, text); err != nil {
			return fmt.Errorf("publish case view: %w", err)
		}
		logger.Info("case view updated", zap.Int("cases", len(batch)))
		return nil
	}

	// Every case in the batch is closed: finalize the message, fold the
	// batch into the summarized set and drop the binding so the next new
	// case starts a fresh message instead of editing this summary.
	if err := pub.PublishFinal(ctx, ViewCases, text); err != nil {
		return fmt.Errorf("publish case summary: %w", err)
	}

	finalized := make([]string, 0, len(summarized)+len(batch))
	finalized = append(finalized, summarized...)
	for _, c := range batch {
		finalized = append(finalized, c.ID)
	}

	if _, err := store.UpdateBindings(ctx, func(b *model.MessageBindings) {
		b.StoryMessageID = ""
		b.SummarizedStoryIDs = finalized
		b.SummarizedDate = today
	}); err != nil {
		return fmt.Errorf("persist summarized batch: %w", err)
	}

	logger.Info("case batch finalized",
		zap.Int("cases", len(batch)), zap.Int("summarized_total", len(finalized)))
	return nil
}
