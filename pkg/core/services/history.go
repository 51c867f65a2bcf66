package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/onecitymedic/opbridge/pkg/core/model"
	"github.com/onecitymedic/opbridge/pkg/core/render"
	"github.com/onecitymedic/opbridge/pkg/db"
)

// HistoryStore is the store surface of the closed-case history flow.
type HistoryStore interface {
	LatestUnpostedClosedCase(ctx context.Context) (*model.ClosedCase, error)
	MarkClosedCasePosted(ctx context.Context, id string) error
	AppendLog(ctx context.Context, level, message string) error
}

// PostClosedCaseHistory appends the permanent history line for the newest
// closed-case record. Always a new message, independent of the case-view
// binding; the posted flag dedupes replayed notifications.
func PostClosedCaseHistory(
	ctx context.Context,
	store HistoryStore,
	resolver render.NameResolver,
	msgr Messenger,
	caseChannelID string,
	logger *zap.Logger,
) error {
	c, err := store.LatestUnpostedClosedCase(ctx)
	if err != nil {
		return fmt.Errorf("read latest closed case: %w", err)
	}
	if c == nil {
		return nil
	}

	text := render.ClosedCaseLine(c, resolver)
	if _, err := msgr.SendMessage(caseChannelID, text); err != nil {
		return fmt.Errorf("send closed case history: %w", err)
	}

	if err := store.MarkClosedCasePosted(ctx, c.RecordID); err != nil {
		if errors.Is(err, db.ErrAlreadyPosted) {
			logger.Warn("closed case already marked posted",
				zap.String("record_id", c.RecordID))
			return nil
		}
		return fmt.Errorf("mark closed case posted: %w", err)
	}

	if err := store.AppendLog(ctx, "INFO", "Closed case history posted"); err != nil {
		logger.Debug("store log write failed", zap.Error(err))
	}

	logger.Info("closed case history posted",
		zap.String("record_id", c.RecordID),
		zap.String("party_a", c.PartyA),
		zap.String("party_b", c.PartyB))
	return nil
}
