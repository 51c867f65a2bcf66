package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/onecitymedic/opbridge/pkg/clients/discordclient"
	"github.com/onecitymedic/opbridge/pkg/core/model"
)

// MemberLister fetches the guild member list.
type MemberLister interface {
	GuildMembers(guildID string) ([]discordclient.Member, error)
}

// AvatarStore is the store surface of the avatar sync.
type AvatarStore interface {
	Roster(ctx context.Context) ([]model.RosterMember, error)
	SaveRoster(ctx context.Context, items []model.RosterMember) error
	ListOpUsers(ctx context.Context) ([]model.OpUser, error)
	PutOpUser(ctx context.Context, u model.OpUser) error
	AppendLog(ctx context.Context, level, message string) error
}

// SyncAvatars refreshes roster image URLs and linked-account avatar
// fields from the current guild member data. Only changed records are
// written back.
func SyncAvatars(ctx context.Context, store AvatarStore, guild MemberLister, guildID string, logger *zap.Logger) error {
	members, err := guild.GuildMembers(guildID)
	if err != nil {
		return fmt.Errorf("list guild members: %w", err)
	}

	byID := make(map[string]discordclient.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	// Roster image URLs
	roster, err := store.Roster(ctx)
	if err != nil {
		return fmt.Errorf("read roster: %w", err)
	}
	rosterChanged := false
	for i := range roster {
		m, ok := byID[roster[i].DiscordID]
		if !ok || roster[i].DiscordID == "" {
			continue
		}
		if roster[i].ImageURL != m.AvatarURL {
			roster[i].ImageURL = m.AvatarURL
			rosterChanged = true
		}
	}
	if rosterChanged {
		if err := store.SaveRoster(ctx, roster); err != nil {
			return fmt.Errorf("save roster: %w", err)
		}
	}

	// Linked op_users avatars
	users, err := store.ListOpUsers(ctx)
	if err != nil {
		return fmt.Errorf("list op users: %w", err)
	}
	updated := 0
	for _, u := range users {
		m, ok := byID[u.DiscordID]
		if !ok || u.DiscordID == "" {
			continue
		}
		if u.Avatar == m.AvatarURL && u.DiscordAvatar == m.AvatarURL {
			continue
		}
		u.Avatar = m.AvatarURL
		u.DiscordAvatar = m.AvatarURL
		u.DiscordUsername = m.Username
		u.LastAvatarSync = time.Now().UnixMilli()
		if err := store.PutOpUser(ctx, u); err != nil {
			return fmt.Errorf("update op user %s: %w", u.Username, err)
		}
		updated++
	}

	if updated > 0 {
		if err := store.AppendLog(ctx, "INFO",
			fmt.Sprintf("Synced %d Discord avatars for linked accounts", updated)); err != nil {
			logger.Debug("store log write failed", zap.Error(err))
		}
	}

	logger.Info("avatar sync complete",
		zap.Bool("roster_changed", rosterChanged), zap.Int("users_updated", updated))
	return nil
}

// UpdateMemberAvatar applies a single avatar change (from a gateway user
// update) to the roster.
func UpdateMemberAvatar(ctx context.Context, store AvatarStore, discordID, avatarURL string, logger *zap.Logger) error {
	if discordID == "" {
		return nil
	}
	roster, err := store.Roster(ctx)
	if err != nil {
		return fmt.Errorf("read roster: %w", err)
	}

	changed := false
	for i := range roster {
		if roster[i].DiscordID == discordID && roster[i].ImageURL != avatarURL {
			roster[i].ImageURL = avatarURL
			changed = true
		}
	}
	if !changed {
		return nil
	}

	if err := store.SaveRoster(ctx, roster); err != nil {
		return fmt.Errorf("save roster: %w", err)
	}
	logger.Info("roster avatar updated", zap.String("discord_id", discordID))
	return nil
}
