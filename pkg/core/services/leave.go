package services

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/onecitymedic/opbridge/pkg/core/localtime"
	"github.com/onecitymedic/opbridge/pkg/core/model"
)

// replyTTL is how long approval replies stay before self-deleting.
const replyTTL = 5 * time.Second

// leaveRange matches "15/12/2568 - 20/12/2568" style requests, with
// "-", "to" or "ถึง" joining the two dates.
var leaveRange = regexp.MustCompile(`(\d{1,2}[\/\-\.]\d{1,2}[\/\-\.]\d{2,4})\s*(?:-|to|ถึง)\s*(\d{1,2}[\/\-\.]\d{1,2}[\/\-\.]\d{2,4})`)

// Replier is the reaction/reply surface of the leave flow.
type Replier interface {
	React(channelID, messageID, emoji string) error
	Reply(channelID, messageID, content string) (string, error)
	DeleteAfter(channelID, messageID string, delay time.Duration)
}

// LeaveStore is the store surface of the leave flow.
type LeaveStore interface {
	Roster(ctx context.Context) ([]model.RosterMember, error)
	SaveRoster(ctx context.Context, items []model.RosterMember) error
	Settings(ctx context.Context) (*model.Settings, error)
	AppendLog(ctx context.Context, level, message string) error
}

// HandleLeaveMessage adds the approve/reject reactions to a leave-channel
// message when it contains a recognizable date range.
func HandleLeaveMessage(rep Replier, channelID, messageID, content string, logger *zap.Logger) {
	if !leaveRange.MatchString(content) {
		return
	}
	for _, emoji := range []string{"✅", "❌"} {
		if err := rep.React(channelID, messageID, emoji); err != nil {
			logger.Warn("failed to add leave reaction", zap.Error(err))
			return
		}
	}
}

// HandleLeaveReaction applies an approver's ✅/❌ reaction on a leave
// request. Approval sets the author's roster entry to on-leave until the
// end of the requested range; rejection posts a short-lived notice.
// Reactions from non-approvers are silently ignored.
func HandleLeaveReaction(
	ctx context.Context,
	store LeaveStore,
	rep Replier,
	logger *zap.Logger,
	channelID, messageID, content string,
	reactorID, authorID, emoji string,
) error {
	if emoji != "✅" && emoji != "❌" {
		return nil
	}

	settings, err := store.Settings(ctx)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	if !contains(settings.ApproverIDs, reactorID) {
		return nil
	}

	if emoji == "❌" {
		id, err := rep.Reply(channelID, messageID, "คำขอลาของคุณไม่ได้รับการอนุมัติ")
		if err != nil {
			return fmt.Errorf("send rejection reply: %w", err)
		}
		rep.DeleteAfter(channelID, id, replyTTL)
		return nil
	}

	match := leaveRange.FindStringSubmatch(content)
	if match == nil {
		return nil
	}
	endDay, err := localtime.ParseLeaveDate(match[2])
	if err != nil {
		logger.Warn("unparseable leave end date", zap.String("raw", match[2]), zap.Error(err))
		return nil
	}
	end := localtime.EndOfDay(endDay)

	roster, err := store.Roster(ctx)
	if err != nil {
		return fmt.Errorf("read roster: %w", err)
	}

	targetName := ""
	for i := range roster {
		if roster[i].DiscordID == authorID {
			roster[i].Status = model.RosterOnLeave
			roster[i].StatusDate = end.Format(time.RFC3339)
			targetName = roster[i].Name
		}
	}
	if targetName == "" {
		logger.Info("leave approval for unlinked author", zap.String("author_id", authorID))
		return nil
	}

	if err := store.SaveRoster(ctx, roster); err != nil {
		return fmt.Errorf("save roster: %w", err)
	}

	local := end.In(localtime.Zone)
	until := fmt.Sprintf("%d/%d/%d", local.Day(), int(local.Month()), local.Year()+543)
	id, err := rep.Reply(channelID, messageID,
		fmt.Sprintf("อนุมัติการลาของ **%s** จนถึงวันที่ %s เรียบร้อยครับ", targetName, until))
	if err != nil {
		logger.Warn("approval reply failed", zap.Error(err))
	} else {
		rep.DeleteAfter(channelID, id, replyTTL)
	}

	if err := store.AppendLog(ctx, "INFO",
		fmt.Sprintf("Leave approved: %s until %s", targetName, until)); err != nil {
		logger.Debug("store log write failed", zap.Error(err))
	}
	return nil
}

// RevertExpiredLeave walks the roster at midnight and puts members whose
// leave has lapsed back on working status. Store-only; no messages.
func RevertExpiredLeave(ctx context.Context, store LeaveStore, logger *zap.Logger, now time.Time) error {
	roster, err := store.Roster(ctx)
	if err != nil {
		return fmt.Errorf("read roster: %w", err)
	}

	changed := false
	for i := range roster {
		if roster[i].Status != model.RosterOnLeave || roster[i].StatusDate == "" {
			continue
		}
		end, err := time.Parse(time.RFC3339, roster[i].StatusDate)
		if err != nil {
			logger.Warn("bad leave end date on roster entry",
				zap.String("name", roster[i].Name), zap.Error(err))
			continue
		}
		if now.After(end) {
			roster[i].Status = model.RosterWorking
			roster[i].StatusDate = ""
			changed = true
			logger.Info("leave reverted", zap.String("name", roster[i].Name))
		}
	}

	if !changed {
		return nil
	}
	if err := store.SaveRoster(ctx, roster); err != nil {
		return fmt.Errorf("save roster: %w", err)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
