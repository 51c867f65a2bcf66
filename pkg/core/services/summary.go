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

// SummaryStore is the store surface of the shift-summary flow.
type SummaryStore interface {
	LatestUnpostedSummary(ctx context.Context) (*model.ShiftSummary, error)
	MarkSummaryPosted(ctx context.Context, id string) error
	UpdateBindings(ctx context.Context, mutate func(*model.MessageBindings)) (*model.MessageBindings, error)
	Bindings(ctx context.Context) (*model.MessageBindings, error)
	AppendLog(ctx context.Context, level, message string) error
}

// PostShiftSummary posts the end-of-shift report for the newest summary
// record, then a fresh waiting notice underneath it. Both are new
// messages, never edits. The record's posted flag is the sole dedup guard
// against replayed notifications and is set only after the report is
// actually on the channel.
func PostShiftSummary(
	ctx context.Context,
	store SummaryStore,
	resolver render.NameResolver,
	msgr Messenger,
	queueChannelID string,
	logger *zap.Logger,
	now time.Time,
) error {
	sum, err := store.LatestUnpostedSummary(ctx)
	if err != nil {
		return fmt.Errorf("read latest summary: %w", err)
	}
	if sum == nil {
		return nil
	}

	logger.Info("posting shift summary",
		zap.String("record_id", sum.RecordID), zap.String("type", sum.Type))

	text := render.ShiftSummary(sum, resolver, now)

	// Drop the old live queue message so only the report and the waiting
	// notice remain. Best effort: it may already be gone.
	b, err := store.Bindings(ctx)
	if err != nil {
		return fmt.Errorf("read bindings: %w", err)
	}
	if b.OpChannelMessageID != "" {
		if err := msgr.DeleteMessage(queueChannelID, b.OpChannelMessageID); err != nil {
			logger.Debug("old queue message not deleted", zap.Error(err))
		}
	}

	// summaryJustPosted opens the mutual-exclusion window that keeps the
	// snapshot-change pass from racing us into a duplicate waiting notice.
	if _, err := store.UpdateBindings(ctx, func(b *model.MessageBindings) {
		b.OpChannelMessageID = ""
		b.SummaryJustPosted = true
	}); err != nil {
		return fmt.Errorf("clear queue binding: %w", err)
	}

	if _, err := msgr.SendMessage(queueChannelID, text); err != nil {
		// Posted flag stays unset; the next notification retries the
		// whole flow.
		return fmt.Errorf("send shift summary: %w", err)
	}

	waitingID, err := msgr.SendMessage(queueChannelID, render.WaitingNotice(now))
	if err != nil {
		return fmt.Errorf("send waiting message: %w", err)
	}

	if _, err := store.UpdateBindings(ctx, func(b *model.MessageBindings) {
		b.OpChannelMessageID = waitingID
		b.SummaryJustPosted = false
	}); err != nil {
		return fmt.Errorf("persist waiting binding: %w", err)
	}

	if err := store.MarkSummaryPosted(ctx, sum.RecordID); err != nil {
		if errors.Is(err, db.ErrAlreadyPosted) {
			logger.Warn("summary already marked posted by a concurrent pass",
				zap.String("record_id", sum.RecordID))
			return nil
		}
		return fmt.Errorf("mark summary posted: %w", err)
	}

	if err := store.AppendLog(ctx, "INFO", "Shift summary posted: "+sum.Type); err != nil {
		logger.Debug("store log write failed", zap.Error(err))
	}

	logger.Info("shift summary posted", zap.String("record_id", sum.RecordID))
	return nil
}
