package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/onecitymedic/opbridge/pkg/clients/discordclient"
	"github.com/onecitymedic/opbridge/pkg/core/model"
)

func newTestPublisher(msgr *fakeMessenger, store *fakeStore) *Publisher {
	return NewPublisher(msgr, store, "queue-ch", "case-ch", zap.NewNop())
}

func TestPublish_EditsBoundMessage(t *testing.T) {
	msgr := &fakeMessenger{}
	store := &fakeStore{bindings: model.MessageBindings{OpChannelMessageID: "m1"}}
	pub := newTestPublisher(msgr, store)

	id, err := pub.Publish(context.Background(), ViewQueue, "hello")
	require.NoError(t, err)

	assert.Equal(t, "m1", id)
	assert.Equal(t, []string{"edit:queue-ch:m1"}, msgr.ops)
	assert.Equal(t, "m1", store.bindings.OpChannelMessageID)
}

func TestPublish_NoBindingCreatesAndPersists(t *testing.T) {
	msgr := &fakeMessenger{}
	store := &fakeStore{}
	pub := newTestPublisher(msgr, store)

	id, err := pub.Publish(context.Background(), ViewQueue, "hello")
	require.NoError(t, err)

	assert.Equal(t, []string{"send:queue-ch"}, msgr.ops)
	assert.Equal(t, id, store.bindings.OpChannelMessageID)
}

func TestPublish_StaleBindingFallsThroughToCreate(t *testing.T) {
	msgr := &fakeMessenger{editErr: discordclient.ErrMessageNotFound}
	store := &fakeStore{bindings: model.MessageBindings{OpChannelMessageID: "gone"}}
	pub := newTestPublisher(msgr, store)

	id, err := pub.Publish(context.Background(), ViewQueue, "hello")
	require.NoError(t, err)

	require.Len(t, msgr.sent, 1)
	assert.Equal(t, "hello", msgr.sent[0])
	assert.Equal(t, id, store.bindings.OpChannelMessageID)
	assert.NotEqual(t, "gone", store.bindings.OpChannelMessageID)
}

func TestPublish_ChannelGoneIsFatal(t *testing.T) {
	msgr := &fakeMessenger{editErr: discordclient.ErrChannelNotFound}
	store := &fakeStore{bindings: model.MessageBindings{OpChannelMessageID: "m1"}}
	pub := newTestPublisher(msgr, store)

	_, err := pub.Publish(context.Background(), ViewQueue, "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, discordclient.ErrChannelNotFound))
	assert.Empty(t, msgr.sent, "no replacement message for a missing channel")
}

func TestPublish_CasesViewUsesStoryBinding(t *testing.T) {
	msgr := &fakeMessenger{}
	store := &fakeStore{bindings: model.MessageBindings{
		OpChannelMessageID: "queue-m",
		StoryMessageID:     "story-m",
	}}
	pub := newTestPublisher(msgr, store)

	id, err := pub.Publish(context.Background(), ViewCases, "cases")
	require.NoError(t, err)

	assert.Equal(t, "story-m", id)
	assert.Equal(t, []string{"edit:case-ch:story-m"}, msgr.ops)
}

func TestSendNew_LeavesOldMessageInPlace(t *testing.T) {
	msgr := &fakeMessenger{}
	store := &fakeStore{bindings: model.MessageBindings{OpChannelMessageID: "old"}}
	pub := newTestPublisher(msgr, store)

	id, err := pub.SendNew(context.Background(), ViewQueue, "waiting")
	require.NoError(t, err)

	// The old message is neither edited nor deleted; only the binding moves.
	assert.Equal(t, []string{"send:queue-ch"}, msgr.ops)
	assert.Equal(t, id, store.bindings.OpChannelMessageID)
}

func TestSendNew_BindingWriteFailureStillReturnsID(t *testing.T) {
	msgr := &fakeMessenger{}
	store := &fakeStore{updateErr: errors.New("redis down")}
	pub := newTestPublisher(msgr, store)

	id, err := pub.SendNew(context.Background(), ViewQueue, "waiting")
	require.Error(t, err)
	assert.NotEmpty(t, id, "message is live even though the binding write failed")
}

func TestPublishFinal_EditsWithoutTouchingBindings(t *testing.T) {
	msgr := &fakeMessenger{}
	store := &fakeStore{bindings: model.MessageBindings{StoryMessageID: "story-m"}}
	pub := newTestPublisher(msgr, store)

	err := pub.PublishFinal(context.Background(), ViewCases, "final")
	require.NoError(t, err)

	assert.Equal(t, []string{"edit:case-ch:story-m"}, msgr.ops)
	assert.Equal(t, "story-m", store.bindings.StoryMessageID)
}

func TestPublishFinal_StaleBindingSendsNewWithoutPersisting(t *testing.T) {
	msgr := &fakeMessenger{editErr: discordclient.ErrMessageNotFound}
	store := &fakeStore{bindings: model.MessageBindings{StoryMessageID: "gone"}}
	pub := newTestPublisher(msgr, store)

	err := pub.PublishFinal(context.Background(), ViewCases, "final")
	require.NoError(t, err)

	require.Len(t, msgr.sent, 1)
	assert.Equal(t, "gone", store.bindings.StoryMessageID, "final posts never rebind")
}
