package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/onecitymedic/opbridge/pkg/core/model"
)

// RoleBadge binds a rank badge to a Discord role id. Lists are ordered
// highest rank first; a member's badge is the first role they hold.
type RoleBadge struct {
	Badge  string
	RoleID string
}

// HighestBadge returns the badge of the highest-ranked role the member
// holds, or "".
func HighestBadge(ranked []RoleBadge, memberRoles []string) string {
	held := make(map[string]bool, len(memberRoles))
	for _, id := range memberRoles {
		held[id] = true
	}
	for _, rb := range ranked {
		if rb.RoleID != "" && held[rb.RoleID] {
			return rb.Badge
		}
	}
	return ""
}

// CaptureStore is the store surface of the shift-start capture.
type CaptureStore interface {
	AppendOpMessage(ctx context.Context, msg model.OpMessage) error
}

// HandleOpChannelMessage records shift-start announcements from the queue
// channel so the web app can pick them up. Anything else is ignored.
func HandleOpChannelMessage(
	ctx context.Context,
	store CaptureStore,
	badges []RoleBadge,
	authorID, authorName string,
	memberRoles []string,
	content string,
	logger *zap.Logger,
) error {
	if !strings.Contains(content, "เริ่มกะ") && !strings.Contains(content, "Start Shift") {
		return nil
	}

	msg := model.OpMessage{
		Type:       "shift_start",
		AuthorID:   authorID,
		AuthorName: authorName,
		Badge:      HighestBadge(badges, memberRoles),
		Content:    content,
		Timestamp:  time.Now().UnixMilli(),
	}
	if err := store.AppendOpMessage(ctx, msg); err != nil {
		return fmt.Errorf("record shift start message: %w", err)
	}

	logger.Info("shift start message captured",
		zap.String("author", authorName), zap.String("badge", msg.Badge))
	return nil
}
