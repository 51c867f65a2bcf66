package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/onecitymedic/opbridge/pkg/core/model"
)

// ListOpUsers returns every linked user record. Implements
// identity.UserSource.
func (s *Store) ListOpUsers(ctx context.Context) ([]model.OpUser, error) {
	fields, err := s.client.HGetAll(ctx, keyUsers).Result()
	if err != nil {
		return nil, fmt.Errorf("list op users: %w", err)
	}

	users := make([]model.OpUser, 0, len(fields))
	for username, raw := range fields {
		var u model.OpUser
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return nil, fmt.Errorf("decode op user %s: %w", username, err)
		}
		u.Username = username
		users = append(users, u)
	}
	return users, nil
}

// PutOpUser writes one linked user record, keyed by username.
func (s *Store) PutOpUser(ctx context.Context, u model.OpUser) error {
	if u.Username == "" {
		return errors.New("op user has no username")
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode op user: %w", err)
	}
	if err := s.client.HSet(ctx, keyUsers, u.Username, data).Err(); err != nil {
		return fmt.Errorf("put op user %s: %w", u.Username, err)
	}
	return nil
}

// rosterDoc mirrors the cms_content/roster document shape.
type rosterDoc struct {
	Items []model.RosterMember `json:"items"`
}

// Roster reads the roster document. A missing document is an empty roster.
func (s *Store) Roster(ctx context.Context) ([]model.RosterMember, error) {
	var doc rosterDoc
	err := s.getJSON(ctx, keyRoster, &doc)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return doc.Items, nil
}

// SaveRoster replaces the roster document.
func (s *Store) SaveRoster(ctx context.Context, items []model.RosterMember) error {
	return s.setJSON(ctx, keyRoster, rosterDoc{Items: items})
}

// AppendShiftSummary appends a new summary record and notifies watchers.
// Returns the generated record id.
func (s *Store) AppendShiftSummary(ctx context.Context, sum *model.ShiftSummary) (string, error) {
	id := uuid.NewString()
	if sum.CreatedAt == 0 {
		sum.CreatedAt = time.Now().UnixMilli()
	}
	if err := s.setJSON(ctx, summaryPrefix+id, sum); err != nil {
		return "", err
	}
	if err := s.client.LPush(ctx, keySummaries, id).Err(); err != nil {
		return "", fmt.Errorf("append shift summary: %w", err)
	}
	if err := s.notify(ctx, ChannelSummaries); err != nil {
		return "", err
	}
	return id, nil
}

// LatestUnpostedSummary returns the newest summary record if it has not
// been posted yet, or nil. Mirrors the upstream "order by createdAt desc,
// limit 1, skip when posted" subscription.
func (s *Store) LatestUnpostedSummary(ctx context.Context) (*model.ShiftSummary, error) {
	id, err := s.client.LIndex(ctx, keySummaries, 0).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read latest summary id: %w", err)
	}

	var sum model.ShiftSummary
	if err := s.getJSON(ctx, summaryPrefix+id, &sum); err != nil {
		return nil, err
	}
	if sum.PostedToDiscord {
		return nil, nil
	}
	sum.RecordID = id
	return &sum, nil
}

// MarkSummaryPosted flips the posted flag on a summary record. The write
// is conditional: if the record is already posted the call fails with
// ErrAlreadyPosted and nothing is written.
func (s *Store) MarkSummaryPosted(ctx context.Context, id string) error {
	return s.markPosted(ctx, summaryPrefix+id, func(raw []byte) ([]byte, error) {
		var sum model.ShiftSummary
		if err := json.Unmarshal(raw, &sum); err != nil {
			return nil, err
		}
		if sum.PostedToDiscord {
			return nil, ErrAlreadyPosted
		}
		sum.PostedToDiscord = true
		return json.Marshal(sum)
	})
}

// AppendClosedCase appends a new closed-case record and notifies watchers.
func (s *Store) AppendClosedCase(ctx context.Context, c *model.ClosedCase) (string, error) {
	id := uuid.NewString()
	if c.ClosedAt == 0 {
		c.ClosedAt = time.Now().UnixMilli()
	}
	if err := s.setJSON(ctx, closedPrefix+id, c); err != nil {
		return "", err
	}
	if err := s.client.LPush(ctx, keyClosed, id).Err(); err != nil {
		return "", fmt.Errorf("append closed case: %w", err)
	}
	if err := s.notify(ctx, ChannelClosed); err != nil {
		return "", err
	}
	return id, nil
}

// LatestUnpostedClosedCase returns the newest closed-case record if it has
// not been posted yet, or nil.
func (s *Store) LatestUnpostedClosedCase(ctx context.Context) (*model.ClosedCase, error) {
	id, err := s.client.LIndex(ctx, keyClosed, 0).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read latest closed case id: %w", err)
	}

	var c model.ClosedCase
	if err := s.getJSON(ctx, closedPrefix+id, &c); err != nil {
		return nil, err
	}
	if c.PostedToDiscord {
		return nil, nil
	}
	c.RecordID = id
	return &c, nil
}

// MarkClosedCasePosted flips the posted flag on a closed-case record,
// conditionally like MarkSummaryPosted.
func (s *Store) MarkClosedCasePosted(ctx context.Context, id string) error {
	return s.markPosted(ctx, closedPrefix+id, func(raw []byte) ([]byte, error) {
		var c model.ClosedCase
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		if c.PostedToDiscord {
			return nil, ErrAlreadyPosted
		}
		c.PostedToDiscord = true
		return json.Marshal(c)
	})
}

// AppendApplicant appends a newly approved applicant and notifies
// watchers. Written by the web app when it flips an application to
// approved; the bridge only consumes these records.
func (s *Store) AppendApplicant(ctx context.Context, a *model.Applicant) (string, error) {
	id := uuid.NewString()
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().UnixMilli()
	}
	if err := s.setJSON(ctx, applicantPrefix+id, a); err != nil {
		return "", err
	}
	if err := s.client.LPush(ctx, keyApplicants, id).Err(); err != nil {
		return "", fmt.Errorf("append applicant: %w", err)
	}
	if err := s.notify(ctx, ChannelApplicants); err != nil {
		return "", err
	}
	return id, nil
}

// LatestUnpostedApplicant returns the newest approved applicant whose
// verification message has not gone out yet, or nil.
func (s *Store) LatestUnpostedApplicant(ctx context.Context) (*model.Applicant, error) {
	id, err := s.client.LIndex(ctx, keyApplicants, 0).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read latest applicant id: %w", err)
	}

	var a model.Applicant
	if err := s.getJSON(ctx, applicantPrefix+id, &a); err != nil {
		return nil, err
	}
	if a.PostedToDiscord {
		return nil, nil
	}
	a.RecordID = id
	return &a, nil
}

// MarkApplicantPosted flips the posted flag on an applicant record,
// conditionally like MarkSummaryPosted.
func (s *Store) MarkApplicantPosted(ctx context.Context, id string) error {
	return s.markPosted(ctx, applicantPrefix+id, func(raw []byte) ([]byte, error) {
		var a model.Applicant
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		if a.PostedToDiscord {
			return nil, ErrAlreadyPosted
		}
		a.PostedToDiscord = true
		return json.Marshal(a)
	})
}

// markPosted performs an optimistic check-and-set on a record key: the
// transition function either returns the updated document or
// ErrAlreadyPosted. Concurrent writers to the same key retry via WATCH.
func (s *Store) markPosted(ctx context.Context, key string, transition func([]byte) ([]byte, error)) error {
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		updated, err := transition(raw)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}

	for i := 0; i < 3; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return fmt.Errorf("mark posted %s: %w", key, err)
		}
		return nil
	}
	return fmt.Errorf("mark posted %s: too many conflicts", key)
}
