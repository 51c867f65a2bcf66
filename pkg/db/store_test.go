package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onecitymedic/opbridge/pkg/core/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStoreWithClient(client)
}

func TestCurrentSnapshot_Missing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CurrentSnapshot(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSnapshot_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	snap := &model.ShiftSnapshot{
		CurrentOP:     "Alice",
		OnDuty:        []string{"Alice", "Bob"},
		MedicStatuses: map[string]string{"Alice": "accept"},
		Cases:         []model.Case{{ID: "c1", PartyA: "A", PartyB: "B", StoryDate: "2025-03-15"}},
		LastModified:  1742000000000,
	}
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	got, err := store.CurrentSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestBindings_MissingIsZeroValue(t *testing.T) {
	store := newTestStore(t)

	b, err := store.Bindings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, b.OpChannelMessageID)
	assert.Empty(t, b.StoryMessageID)
	assert.False(t, b.SummaryJustPosted)
}

func TestUpdateBindings_PreservesUntouchedFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpdateBindings(ctx, func(b *model.MessageBindings) {
		b.OpChannelMessageID = "queue-m"
		b.SummarizedStoryIDs = []string{"c1"}
		b.SummarizedDate = "2025-03-15"
	})
	require.NoError(t, err)

	_, err = store.UpdateBindings(ctx, func(b *model.MessageBindings) {
		b.StoryMessageID = "story-m"
	})
	require.NoError(t, err)

	b, err := store.Bindings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "queue-m", b.OpChannelMessageID)
	assert.Equal(t, "story-m", b.StoryMessageID)
	assert.Equal(t, []string{"c1"}, b.SummarizedStoryIDs)
	assert.Equal(t, "2025-03-15", b.SummarizedDate)
}

func TestSettings_MissingIsEmpty(t *testing.T) {
	store := newTestStore(t)

	s, err := store.Settings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.ApproverIDs)
}

func TestSettings_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSettings(ctx, &model.Settings{ApproverIDs: []string{"boss"}}))
	s, err := store.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"boss"}, s.ApproverIDs)
}

func TestBotEnabled_DefaultsOnWhenUnset(t *testing.T) {
	store := newTestStore(t)

	enabled, err := store.BotEnabled(context.Background())
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestBotEnabled_Toggle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetBotEnabled(ctx, false))
	enabled, err := store.BotEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, store.SetBotEnabled(ctx, true))
	enabled, err = store.BotEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestRoster_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	empty, err := store.Roster(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	items := []model.RosterMember{
		{Name: "Alice", DiscordID: "111", Status: model.RosterWorking},
	}
	require.NoError(t, store.SaveRoster(ctx, items))

	got, err := store.Roster(ctx)
	require.NoError(t, err)
	assert.Equal(t, items, got)
}

func TestOpUsers_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutOpUser(ctx, model.OpUser{
		Username:  "alice_m",
		DiscordID: "111",
		ICPhone:   "555-0100",
	}))

	users, err := store.ListOpUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice_m", users[0].Username)
	assert.Equal(t, "111", users[0].DiscordID)
}

func TestPutOpUser_RequiresUsername(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.PutOpUser(context.Background(), model.OpUser{DiscordID: "111"}))
}

func TestShiftSummary_AppendAndLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	none, err := store.LatestUnpostedSummary(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	id, err := store.AppendShiftSummary(ctx, &model.ShiftSummary{
		Type: model.SummaryEndShift,
		OP:   "Alice",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.LatestUnpostedSummary(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.RecordID)
	assert.Equal(t, "Alice", got.OP)
	assert.NotZero(t, got.CreatedAt)
}

func TestShiftSummary_NewestWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AppendShiftSummary(ctx, &model.ShiftSummary{Type: model.SummaryEndShift, OP: "Alice"})
	require.NoError(t, err)
	second, err := store.AppendShiftSummary(ctx, &model.ShiftSummary{Type: model.SummaryHandover, OP: "Bob"})
	require.NoError(t, err)

	got, err := store.LatestUnpostedSummary(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second, got.RecordID)
}

func TestMarkSummaryPosted_Conditional(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.AppendShiftSummary(ctx, &model.ShiftSummary{Type: model.SummaryEndShift, OP: "Alice"})
	require.NoError(t, err)

	require.NoError(t, store.MarkSummaryPosted(ctx, id))

	// The posted record no longer surfaces.
	got, err := store.LatestUnpostedSummary(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	// A second mark is a conflict, not a silent success.
	err = store.MarkSummaryPosted(ctx, id)
	assert.True(t, errors.Is(err, ErrAlreadyPosted))
}

func TestMarkSummaryPosted_MissingRecord(t *testing.T) {
	store := newTestStore(t)
	err := store.MarkSummaryPosted(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClosedCase_AppendMarkCycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.AppendClosedCase(ctx, &model.ClosedCase{
		PartyA: "A",
		PartyB: "B",
		Medics: []string{"Alice"},
	})
	require.NoError(t, err)

	got, err := store.LatestUnpostedClosedCase(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.RecordID)
	assert.NotZero(t, got.ClosedAt)

	require.NoError(t, store.MarkClosedCasePosted(ctx, id))

	none, err := store.LatestUnpostedClosedCase(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	err = store.MarkClosedCasePosted(ctx, id)
	assert.True(t, errors.Is(err, ErrAlreadyPosted))
}

func TestApplicant_AppendMarkCycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.AppendApplicant(ctx, &model.Applicant{
		Name:      "Alice Mercer",
		DiscordID: "111",
	})
	require.NoError(t, err)

	got, err := store.LatestUnpostedApplicant(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.RecordID)
	assert.Equal(t, "111", got.DiscordID)
	assert.NotZero(t, got.CreatedAt)

	require.NoError(t, store.MarkApplicantPosted(ctx, id))

	none, err := store.LatestUnpostedApplicant(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	err = store.MarkApplicantPosted(ctx, id)
	assert.True(t, errors.Is(err, ErrAlreadyPosted))
}

func TestAppendLog_Capped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < logCap+10; i++ {
		require.NoError(t, store.AppendLog(ctx, "INFO", "entry"))
	}

	n, err := store.client.LLen(ctx, keyLogs).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(logCap), n)
}

func TestAppendOpMessage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendOpMessage(ctx, model.OpMessage{
		Type:       "shift_start",
		AuthorName: "Alice",
	}))

	n, err := store.client.LLen(ctx, keyOpMsgs).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSubscribe_DeliversNotifications(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := store.Subscribe(ctx)
	require.NoError(t, err)
	defer events.Close()

	require.NoError(t, store.SaveSnapshot(ctx, &model.ShiftSnapshot{CurrentOP: "Alice"}))
	select {
	case <-events.Snapshot:
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot notification")
	}

	_, err = store.AppendShiftSummary(ctx, &model.ShiftSummary{Type: model.SummaryEndShift})
	require.NoError(t, err)
	select {
	case <-events.Summaries:
	case <-time.After(2 * time.Second):
		t.Fatal("no summary notification")
	}

	_, err = store.AppendClosedCase(ctx, &model.ClosedCase{PartyA: "A"})
	require.NoError(t, err)
	select {
	case <-events.ClosedCases:
	case <-time.After(2 * time.Second):
		t.Fatal("no closed-case notification")
	}

	_, err = store.AppendApplicant(ctx, &model.Applicant{DiscordID: "111"})
	require.NoError(t, err)
	select {
	case <-events.Applicants:
	case <-time.After(2 * time.Second):
		t.Fatal("no applicant notification")
	}
}

func TestSubscribe_CoalescesBursts(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := store.Subscribe(ctx)
	require.NoError(t, err)
	defer events.Close()

	// A burst of writes must not deadlock the router even though nobody
	// is reading yet; the one-slot buffer absorbs them.
	for i := 0; i < 10; i++ {
		require.NoError(t, store.SaveSnapshot(ctx, &model.ShiftSnapshot{CurrentOP: "Alice"}))
	}

	select {
	case <-events.Snapshot:
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot notification after burst")
	}
}
