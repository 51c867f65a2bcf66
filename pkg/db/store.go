// Package db provides the document store backing the bridge: the live
// shift snapshot, the Discord message bindings, the append-only summary
// and closed-case collections, the linked-user directory and the roster.
//
// Documents are JSON values under op:* keys; writes publish a change
// notification on the matching op.events.* channel so subscribers see the
// same push semantics the upstream web app relies on.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onecitymedic/opbridge/pkg/core/model"
)

const (
	keySnapshot   = "op:data:current"
	keyBindings   = "op:config:discord_message"
	keyUsers      = "op:users"
	keyRoster     = "op:cms:roster"
	keySettings   = "op:settings"
	keyBotStatus  = "op:config:bot_status"
	keySummaries  = "op:shift_summaries"
	keyClosed     = "op:closed_cases"
	keyOpMsgs     = "op:discord_op_messages"
	keyLogs       = "op:bot_logs"
	keyApplicants = "op:applicants"

	summaryPrefix   = "op:shift_summary:"
	closedPrefix    = "op:closed_case:"
	applicantPrefix = "op:applicant:"

	// ChannelSnapshot and friends are the pub/sub channels carrying
	// change notifications. Delivery is at-least-once from the consumer's
	// point of view; the posted flags are the dedup guard.
	ChannelSnapshot   = "op.events.snapshot"
	ChannelSummaries  = "op.events.summary"
	ChannelClosed     = "op.events.closed"
	ChannelApplicants = "op.events.applicant"

	logCap = 500
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrAlreadyPosted is returned by the Mark*Posted conditional writes when
// another pass already claimed the record.
var ErrAlreadyPosted = errors.New("record already posted")

// Store wraps the Redis connection with typed document operations.
type Store struct {
	client *redis.Client
}

// NewStore connects to Redis at the given URL and verifies the connection.
func NewStore(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client. Used by tests.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// CurrentSnapshot reads the live shift document. ErrNotFound when the
// document has never been written.
func (s *Store) CurrentSnapshot(ctx context.Context) (*model.ShiftSnapshot, error) {
	var snap model.ShiftSnapshot
	if err := s.getJSON(ctx, keySnapshot, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveSnapshot replaces the live shift document and notifies watchers.
func (s *Store) SaveSnapshot(ctx context.Context, snap *model.ShiftSnapshot) error {
	if err := s.setJSON(ctx, keySnapshot, snap); err != nil {
		return err
	}
	return s.notify(ctx, ChannelSnapshot)
}

// Bindings reads the message-binding document. A missing document decodes
// to the zero value: no bound messages, no summarized batch.
func (s *Store) Bindings(ctx context.Context) (*model.MessageBindings, error) {
	var b model.MessageBindings
	err := s.getJSON(ctx, keyBindings, &b)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return &b, nil
}

// UpdateBindings applies mutate to the current binding document and writes
// it back, preserving every key the mutation does not touch. There is no
// cross-caller atomicity; callers run on the single-writer runner, and a
// lost update only costs one redundant message on the next pass.
func (s *Store) UpdateBindings(ctx context.Context, mutate func(*model.MessageBindings)) (*model.MessageBindings, error) {
	b, err := s.Bindings(ctx)
	if err != nil {
		return nil, err
	}
	mutate(b)
	if err := s.setJSON(ctx, keyBindings, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Settings reads the settings document. Missing settings are empty, not
// an error; a fresh deployment has no approvers yet.
func (s *Store) Settings(ctx context.Context) (*model.Settings, error) {
	var cfg model.Settings
	err := s.getJSON(ctx, keySettings, &cfg)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return &cfg, nil
}

// SaveSettings replaces the settings document.
func (s *Store) SaveSettings(ctx context.Context, cfg *model.Settings) error {
	return s.setJSON(ctx, keySettings, cfg)
}

// BotEnabled reads the operator kill switch. The bridge is on unless the
// web app wrote an explicit active=false; a missing document means on.
func (s *Store) BotEnabled(ctx context.Context) (bool, error) {
	var status model.BotStatus
	err := s.getJSON(ctx, keyBotStatus, &status)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return true, err
	}
	return status.Active == nil || *status.Active, nil
}

// SetBotEnabled writes the kill switch, normally the web app's job.
func (s *Store) SetBotEnabled(ctx context.Context, active bool) error {
	return s.setJSON(ctx, keyBotStatus, &model.BotStatus{Active: &active})
}

func (s *Store) notify(ctx context.Context, channel string) error {
	if err := s.client.Publish(ctx, channel, "1").Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// AppendLog records a service event in the capped bot_logs stream. Log
// writes are best-effort bookkeeping for the web app's log view.
func (s *Store) AppendLog(ctx context.Context, level, message string) error {
	entry := model.LogEntry{
		Level:     level,
		Message:   message,
		Source:    "op-bridge",
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, keyLogs, data)
	pipe.LTrim(ctx, keyLogs, 0, logCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// AppendOpMessage records a captured queue-channel message for the web app.
func (s *Store) AppendOpMessage(ctx context.Context, msg model.OpMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode op message: %w", err)
	}
	if err := s.client.LPush(ctx, keyOpMsgs, data).Err(); err != nil {
		return fmt.Errorf("append op message: %w", err)
	}
	return nil
}
