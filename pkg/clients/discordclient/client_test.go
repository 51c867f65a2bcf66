package discordclient

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func TestAppendMembers_SkipsNilUserAndAdvancesCursor(t *testing.T) {
	page := []*discordgo.Member{
		{User: &discordgo.User{ID: "1", Username: "alice"}, Nick: "Alice M"},
		{User: &discordgo.User{ID: "2", Username: "bob", GlobalName: "Bob W"}},
		{User: nil},
	}

	out, cursor := appendMembers(nil, page)

	assert.Len(t, out, 2)
	assert.Equal(t, "Alice M", out[0].DisplayName)
	assert.Equal(t, "Bob W", out[1].DisplayName)
	// The trailing nil-user entry must not break the cursor.
	assert.Equal(t, "2", cursor)
}

func TestAppendMembers_EmptyCursorWhenNoUsableMembers(t *testing.T) {
	out, cursor := appendMembers(nil, []*discordgo.Member{{User: nil}})

	assert.Empty(t, out)
	assert.Equal(t, "", cursor)
}
