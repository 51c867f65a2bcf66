// Package services implements the reconciliation flows that keep the
// Discord channels in step with the store: the two live views, the
// one-shot summary and history posts, and the leave/avatar side flows.
package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/onecitymedic/opbridge/pkg/clients/discordclient"
	"github.com/onecitymedic/opbridge/pkg/core/model"
)

// View identifies one of the two live message views.
type View string

const (
	ViewQueue View = "queue"
	ViewCases View = "cases"
)

// Messenger is the channel-message surface the publisher needs.
type Messenger interface {
	SendMessage(channelID, content string) (string, error)
	EditMessage(channelID, messageID, content string) error
	DeleteMessage(channelID, messageID string) error
}

// BindingStore persists the view-to-message bindings.
type BindingStore interface {
	Bindings(ctx context.Context) (*model.MessageBindings, error)
	UpdateBindings(ctx context.Context, mutate func(*model.MessageBindings)) (*model.MessageBindings, error)
}

// Publisher is the message channel binder: it keeps exactly one live
// message per view, editing in place when the bound message still exists
// and creating a replacement when it does not.
type Publisher struct {
	msgr           Messenger
	store          BindingStore
	queueChannelID string
	caseChannelID  string
	logger         *zap.Logger
}

// NewPublisher wires a publisher against the two configured channels.
func NewPublisher(msgr Messenger, store BindingStore, queueChannelID, caseChannelID string, logger *zap.Logger) *Publisher {
	return &Publisher{
		msgr:           msgr,
		store:          store,
		queueChannelID: queueChannelID,
		caseChannelID:  caseChannelID,
		logger:         logger,
	}
}

func (p *Publisher) channelFor(view View) string {
	if view == ViewCases {
		return p.caseChannelID
	}
	return p.queueChannelID
}

func boundID(b *model.MessageBindings, view View) string {
	if view == ViewCases {
		return b.StoryMessageID
	}
	return b.OpChannelMessageID
}

func setBoundID(b *model.MessageBindings, view View, id string) {
	if view == ViewCases {
		b.StoryMessageID = id
	} else {
		b.OpChannelMessageID = id
	}
}

// Publish ensures the view's live message shows text: edit when a bound
// message exists, otherwise create and persist the new binding. A stale
// binding (message deleted externally) falls through to create. Returns
// the id of the message now representing the view.
func (p *Publisher) Publish(ctx context.Context, view View, text string) (string, error) {
	channelID := p.channelFor(view)

	b, err := p.store.Bindings(ctx)
	if err != nil {
		return "", fmt.Errorf("read bindings: %w", err)
	}

	if bound := boundID(b, view); bound != "" {
		err := p.msgr.EditMessage(channelID, bound, text)
		if err == nil {
			p.logger.Debug("view message edited",
				zap.String("view", string(view)), zap.String("message_id", bound))
			return bound, nil
		}
		if errors.Is(err, discordclient.ErrChannelNotFound) {
			return "", err
		}
		// Stale or otherwise unusable binding: replace the message.
		p.logger.Info("bound message unusable, creating replacement",
			zap.String("view", string(view)),
			zap.String("message_id", bound),
			zap.Error(err))
	}

	return p.SendNew(ctx, view, text)
}

// SendNew always creates a fresh message for the view and persists its id,
// leaving any previous message in place. Used for the active-to-idle queue
// transition, which must be visually separated from the ended shift.
func (p *Publisher) SendNew(ctx context.Context, view View, text string) (string, error) {
	channelID := p.channelFor(view)

	id, err := p.msgr.SendMessage(channelID, text)
	if err != nil {
		return "", err
	}

	if _, err := p.store.UpdateBindings(ctx, func(b *model.MessageBindings) {
		setBoundID(b, view, id)
	}); err != nil {
		// The message is live but the binding write was lost; the next
		// pass will post a redundant replacement, which self-heals.
		return id, fmt.Errorf("persist binding for %s: %w", view, err)
	}

	p.logger.Debug("view message created",
		zap.String("view", string(view)), zap.String("message_id", id))
	return id, nil
}

// PublishFinal posts text to the view without persisting a binding:
// edit the bound message when possible, else send a new one. Used for
// the finalized case-batch summary, whose binding is cleared right after.
func (p *Publisher) PublishFinal(ctx context.Context, view View, text string) error {
	channelID := p.channelFor(view)

	b, err := p.store.Bindings(ctx)
	if err != nil {
		return fmt.Errorf("read bindings: %w", err)
	}

	if bound := boundID(b, view); bound != "" {
		if err := p.msgr.EditMessage(channelID, bound, text); err == nil {
			return nil
		} else if errors.Is(err, discordclient.ErrChannelNotFound) {
			return err
		}
	}

	if _, err := p.msgr.SendMessage(channelID, text); err != nil {
		return err
	}
	return nil
}
