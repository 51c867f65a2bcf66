package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/onecitymedic/opbridge/pkg/clients/discordclient"
	"github.com/onecitymedic/opbridge/pkg/core/model"
)

type fakeGuild struct {
	members []discordclient.Member
	err     error
}

func (g *fakeGuild) GuildMembers(guildID string) ([]discordclient.Member, error) {
	return g.members, g.err
}

func TestSyncAvatars_UpdatesRosterAndUsers(t *testing.T) {
	guild := &fakeGuild{members: []discordclient.Member{
		{ID: "111", Username: "alice_m", AvatarURL: "https://cdn/new-alice.png"},
		{ID: "222", Username: "bob_w", AvatarURL: "https://cdn/bob.png"},
	}}
	store := &fakeStore{
		roster: []model.RosterMember{
			{Name: "Alice", DiscordID: "111", ImageURL: "https://cdn/old-alice.png"},
			{Name: "Unlinked"},
		},
		users: []model.OpUser{
			{Username: "alice", DiscordID: "111", Avatar: "https://cdn/old-alice.png"},
			{Username: "bob", DiscordID: "222", Avatar: "https://cdn/bob.png", DiscordAvatar: "https://cdn/bob.png"},
		},
	}

	err := SyncAvatars(context.Background(), store, guild, "guild-1", zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "https://cdn/new-alice.png", store.roster[0].ImageURL)
	assert.Equal(t, 1, store.rosterSaves)

	// Only alice changed; bob was already in sync.
	require.Len(t, store.putUsers, 1)
	u := store.putUsers[0]
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "https://cdn/new-alice.png", u.Avatar)
	assert.Equal(t, "https://cdn/new-alice.png", u.DiscordAvatar)
	assert.Equal(t, "alice_m", u.DiscordUsername)
	assert.NotZero(t, u.LastAvatarSync)
	assert.NotEmpty(t, store.logs)
}

func TestSyncAvatars_NothingChangedWritesNothing(t *testing.T) {
	guild := &fakeGuild{members: []discordclient.Member{
		{ID: "111", AvatarURL: "https://cdn/alice.png"},
	}}
	store := &fakeStore{
		roster: []model.RosterMember{{Name: "Alice", DiscordID: "111", ImageURL: "https://cdn/alice.png"}},
	}

	err := SyncAvatars(context.Background(), store, guild, "guild-1", zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, store.rosterSaves)
	assert.Empty(t, store.putUsers)
	assert.Empty(t, store.logs)
}

func TestUpdateMemberAvatar(t *testing.T) {
	store := &fakeStore{
		roster: []model.RosterMember{
			{Name: "Alice", DiscordID: "111", ImageURL: "https://cdn/old.png"},
		},
	}

	err := UpdateMemberAvatar(context.Background(), store, "111", "https://cdn/new.png", zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "https://cdn/new.png", store.roster[0].ImageURL)
	assert.Equal(t, 1, store.rosterSaves)
}

func TestUpdateMemberAvatar_NoMatchingMember(t *testing.T) {
	store := &fakeStore{
		roster: []model.RosterMember{{Name: "Alice", DiscordID: "111"}},
	}

	err := UpdateMemberAvatar(context.Background(), store, "999", "https://cdn/new.png", zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, store.rosterSaves)
}
