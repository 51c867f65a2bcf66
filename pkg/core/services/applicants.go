package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/onecitymedic/opbridge/pkg/core/model"
	"github.com/onecitymedic/opbridge/pkg/db"
)

// discordIDLine extracts the target id from a posted verification
// message, so the confirming reaction does not need any state beyond the
// message itself.
var discordIDLine = regexp.MustCompile(`Discord ID: (\d+)`)

// ApplicantStore is the store surface of the recruitment flow.
type ApplicantStore interface {
	LatestUnpostedApplicant(ctx context.Context) (*model.Applicant, error)
	MarkApplicantPosted(ctx context.Context, id string) error
	Settings(ctx context.Context) (*model.Settings, error)
	AppendLog(ctx context.Context, level, message string) error
}

// DMSender delivers the welcome direct message.
type DMSender interface {
	SendDM(userID, content string) error
}

// PostApplicantVerification posts the verification notice for the newest
// approved applicant to the approve channel and reacts ✅ so an approver
// can confirm the welcome DM with one click. The posted flag dedupes
// replayed notifications.
func PostApplicantVerification(
	ctx context.Context,
	store ApplicantStore,
	msgr Messenger,
	rep Replier,
	approveChannelID string,
	logger *zap.Logger,
) error {
	if approveChannelID == "" {
		return nil
	}

	a, err := store.LatestUnpostedApplicant(ctx)
	if err != nil {
		return fmt.Errorf("read latest applicant: %w", err)
	}
	if a == nil {
		return nil
	}
	if a.DiscordID == "" {
		logger.Warn("approved applicant has no discord id", zap.String("name", a.Name))
		return nil
	}

	name := a.Name
	if name == "" {
		name = "ไม่ระบุชื่อ"
	}

	var b strings.Builder
	b.WriteString("📋 **ยืนยันการรับเข้าทำงาน (Approval Check)**\n")
	b.WriteString("โปรดตรวจสอบข้อมูลและกด ✅ เพื่อยืนยันการส่ง DM\n\n")
	b.WriteString("ชื่อ (IC): " + name + "\n")
	b.WriteString("Discord ID: " + a.DiscordID + "\n")
	b.WriteString("สถานะ: รออนุมัติ DM")

	id, err := msgr.SendMessage(approveChannelID, b.String())
	if err != nil {
		return fmt.Errorf("send verification message: %w", err)
	}
	if err := rep.React(approveChannelID, id, "✅"); err != nil {
		logger.Warn("failed to add verification reaction", zap.Error(err))
	}

	if err := store.MarkApplicantPosted(ctx, a.RecordID); err != nil {
		if errors.Is(err, db.ErrAlreadyPosted) {
			logger.Warn("applicant already marked posted", zap.String("record_id", a.RecordID))
			return nil
		}
		return fmt.Errorf("mark applicant posted: %w", err)
	}

	if err := store.AppendLog(ctx, "INFO",
		fmt.Sprintf("Verification message sent for %s", name)); err != nil {
		logger.Debug("store log write failed", zap.Error(err))
	}
	return nil
}

// welcomeDM is the onboarding message sent once an approver confirms.
func welcomeDM(targetID string) string {
	return fmt.Sprintf(`ยินดีด้วย คุณ <@%s> ผ่านการสัมภาษณ์แล้ว สามารถเข้าสู่ระบบเพื่อดูข้อมูลเพิ่มเติม
Website : https://onemedicrecruitment-db.web.app/
User : %s

ดิสคอร์ดแพทย์ ONE CITY
https://discord.gg/qAWGuzX8zj

ยินดีต้อนรับสู่ทีมแพทย์ ONE CITY นะครับ/ค่ะ`, targetID, targetID)
}

// HandleApprovalReaction sends the welcome DM when an approver confirms a
// verification message with ✅. Non-approvers, other emoji and messages
// without a recognizable target are silently ignored; DM failures post a
// short-lived notice instead of erroring.
func HandleApprovalReaction(
	ctx context.Context,
	store ApplicantStore,
	dm DMSender,
	rep Replier,
	logger *zap.Logger,
	channelID, messageID, content, reactorID, emoji string,
) error {
	if emoji != "✅" {
		return nil
	}

	settings, err := store.Settings(ctx)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	if !contains(settings.ApproverIDs, reactorID) {
		return nil
	}

	match := discordIDLine.FindStringSubmatch(content)
	if match == nil {
		return nil
	}
	targetID := match[1]

	if err := dm.SendDM(targetID, welcomeDM(targetID)); err != nil {
		logger.Warn("welcome dm failed", zap.String("target_id", targetID), zap.Error(err))
		if err := store.AppendLog(ctx, "ERROR",
			fmt.Sprintf("Welcome DM failed for %s", targetID)); err != nil {
			logger.Debug("store log write failed", zap.Error(err))
		}
		if id, err := rep.Reply(channelID, messageID, "❌ ไม่สามารถส่งข้อความได้ (DM ปิดอยู่?)"); err == nil {
			rep.DeleteAfter(channelID, id, replyTTL)
		}
		return nil
	}

	if id, err := rep.Reply(channelID, messageID,
		fmt.Sprintf("✅ ส่งข้อความแจ้งเตือนไปยัง <@%s> เรียบร้อยแล้ว", targetID)); err == nil {
		rep.DeleteAfter(channelID, id, replyTTL)
	} else {
		logger.Warn("confirmation reply failed", zap.Error(err))
	}
	return nil
}
