// Package discordclient wraps the Discord session behind the narrow
// surface the services need: send/edit/delete messages, reactions,
// replies, direct messages and guild member listing. Service code depends
// on small interfaces, so nothing outside this package imports discordgo
// types.
package discordclient

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// ErrMessageNotFound is returned when a referenced message no longer
// exists (deleted externally). Publishers treat it as recoverable.
var ErrMessageNotFound = errors.New("message not found")

// ErrChannelNotFound is returned when a configured channel id does not
// resolve. This is a configuration problem, not a transient failure.
var ErrChannelNotFound = errors.New("channel not found")

// Member is a guild member as the services see it.
type Member struct {
	ID          string
	Username    string
	DisplayName string
	AvatarURL   string
	RoleIDs     []string
}

// Client wraps a discordgo session.
type Client struct {
	session *discordgo.Session
	logger  *zap.Logger
}

// NewClient builds a gateway client with the intents the bridge needs.
// The session is not connected until Open is called.
func NewClient(token string, logger *zap.Logger) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildMembers

	return &Client{session: session, logger: logger}, nil
}

// Open connects to the gateway and sets the bot presence.
func (c *Client) Open() error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	if err := c.session.UpdateWatchStatus(0, "Medical OP Systems"); err != nil {
		c.logger.Warn("failed to set presence", zap.Error(err))
	}
	return nil
}

// Close disconnects from the gateway.
func (c *Client) Close() error {
	return c.session.Close()
}

// AddHandler registers a gateway event handler on the session.
func (c *Client) AddHandler(handler any) {
	c.session.AddHandler(handler)
}

// translate maps Discord REST errors onto the package sentinels.
func translate(err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownMessage:
			return ErrMessageNotFound
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeMissingAccess:
			return ErrChannelNotFound
		}
	}
	return err
}

// SendMessage posts a new message and returns its id.
func (c *Client) SendMessage(channelID, content string) (string, error) {
	msg, err := c.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", fmt.Errorf("send message to %s: %w", channelID, translate(err))
	}
	return msg.ID, nil
}

// EditMessage replaces the content of an existing message.
func (c *Client) EditMessage(channelID, messageID, content string) error {
	if _, err := c.session.ChannelMessageEdit(channelID, messageID, content); err != nil {
		return fmt.Errorf("edit message %s: %w", messageID, translate(err))
	}
	return nil
}

// DeleteMessage removes a message. Callers treat failures as best-effort.
func (c *Client) DeleteMessage(channelID, messageID string) error {
	if err := c.session.ChannelMessageDelete(channelID, messageID); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, translate(err))
	}
	return nil
}

// React adds an emoji reaction to a message.
func (c *Client) React(channelID, messageID, emoji string) error {
	if err := c.session.MessageReactionAdd(channelID, messageID, emoji); err != nil {
		return fmt.Errorf("react to message %s: %w", messageID, translate(err))
	}
	return nil
}

// Reply posts a reply referencing an existing message and returns its id.
func (c *Client) Reply(channelID, messageID, content string) (string, error) {
	msg, err := c.session.ChannelMessageSendReply(channelID, content, &discordgo.MessageReference{
		ChannelID: channelID,
		MessageID: messageID,
	})
	if err != nil {
		return "", fmt.Errorf("reply to message %s: %w", messageID, translate(err))
	}
	return msg.ID, nil
}

// SendDM opens (or reuses) the direct-message channel to a user and
// sends content there.
func (c *Client) SendDM(userID, content string) error {
	channel, err := c.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open dm channel to %s: %w", userID, translate(err))
	}
	if _, err := c.session.ChannelMessageSend(channel.ID, content); err != nil {
		return fmt.Errorf("send dm to %s: %w", userID, translate(err))
	}
	return nil
}

// DeleteAfter schedules a best-effort delayed delete, used for the
// short-lived approval replies.
func (c *Client) DeleteAfter(channelID, messageID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if err := c.session.ChannelMessageDelete(channelID, messageID); err != nil {
			c.logger.Debug("delayed delete failed",
				zap.String("message_id", messageID), zap.Error(err))
		}
	})
}

// GuildMembers lists every member of the guild, paginating the REST
// endpoint in chunks of 1000.
func (c *Client) GuildMembers(guildID string) ([]Member, error) {
	var out []Member
	after := ""
	for {
		page, err := c.session.GuildMembers(guildID, after, 1000)
		if err != nil {
			return nil, fmt.Errorf("list guild members: %w", translate(err))
		}
		if len(page) == 0 {
			break
		}
		out, after = appendMembers(out, page)
		if after == "" || len(page) < 1000 {
			break
		}
	}
	return out, nil
}

// appendMembers converts a page of raw members, skipping entries with no
// user payload, and returns the pagination cursor (the id of the last
// usable member, or "" when the page had none).
func appendMembers(out []Member, page []*discordgo.Member) ([]Member, string) {
	cursor := ""
	for _, m := range page {
		if m.User == nil {
			continue
		}
		cursor = m.User.ID
		display := m.Nick
		if display == "" {
			display = m.User.GlobalName
		}
		if display == "" {
			display = m.User.Username
		}
		out = append(out, Member{
			ID:          m.User.ID,
			Username:    m.User.Username,
			DisplayName: display,
			AvatarURL:   m.User.AvatarURL("512"),
			RoleIDs:     m.Roles,
		})
	}
	return out, cursor
}
