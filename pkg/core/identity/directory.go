// Package identity resolves in-character names to Discord ids and
// in-character phone numbers, backed by the op_users collection with an
// in-memory TTL cache.
package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/onecitymedic/opbridge/pkg/core/model"
)

// DefaultTTL matches the refresh interval the web app assumes for
// linked-account data.
const DefaultTTL = 5 * time.Minute

// UserSource lists the linked user records backing the directory.
type UserSource interface {
	ListOpUsers(ctx context.Context) ([]model.OpUser, error)
}

// Directory is the name-to-identity cache. Lookups are served from the
// cached maps; Refresh reloads them from the source when the TTL has
// lapsed. Stale reads within the TTL window are accepted.
type Directory struct {
	source UserSource
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu          sync.RWMutex
	ids         map[string]string // lowercased name -> discord id
	phones      map[string]string // lowercased name -> ic phone
	refreshedAt time.Time
}

// NewDirectory creates an empty directory; callers should Refresh before
// the first resolve. A ttl of 0 falls back to DefaultTTL.
func NewDirectory(source UserSource, ttl time.Duration, logger *zap.Logger) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Directory{
		source: source,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		ids:    make(map[string]string),
		phones: make(map[string]string),
	}
}

// Refresh reloads the cache from the source unless the current contents
// are still within the TTL. Called at the start of every queue-view build.
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.RLock()
	fresh := d.now().Sub(d.refreshedAt) < d.ttl && len(d.ids) > 0
	d.mu.RUnlock()
	if fresh {
		return nil
	}

	users, err := d.source.ListOpUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load op users: %w", err)
	}

	ids := make(map[string]string)
	phones := make(map[string]string)
	for _, u := range users {
		register(ids, phones, u.Username, u)
		register(ids, phones, u.FirstName, u)
		register(ids, phones, u.FullName, u)
		if u.FirstName == "" {
			if fields := strings.Fields(u.FullName); len(fields) > 0 {
				register(ids, phones, fields[0], u)
			}
		}
	}

	d.mu.Lock()
	d.ids = ids
	d.phones = phones
	d.refreshedAt = d.now()
	d.mu.Unlock()

	d.logger.Debug("identity cache refreshed",
		zap.Int("ids", len(ids)),
		zap.Int("phones", len(phones)))
	return nil
}

func register(ids, phones map[string]string, name string, u model.OpUser) {
	if name == "" {
		return
	}
	key := strings.ToLower(name)
	if u.DiscordID != "" {
		ids[key] = u.DiscordID
	}
	if u.ICPhone != "" {
		phones[key] = u.ICPhone
	}
}

// lookup tries an exact lowercase match, then the first name token.
func lookup(m map[string]string, name string) string {
	if name == "" {
		return ""
	}
	lower := strings.ToLower(name)
	if v, ok := m[lower]; ok {
		return v
	}
	if first := strings.Fields(lower); len(first) > 0 {
		if v, ok := m[first[0]]; ok {
			return v
		}
	}
	return ""
}

// DiscordID returns the linked Discord id for a name, or "".
func (d *Directory) DiscordID(name string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lookup(d.ids, name)
}

// Mention renders a name as a Discord mention when linked, else as plain
// text. Implements render.NameResolver.
func (d *Directory) Mention(name string) string {
	if id := d.DiscordID(name); id != "" {
		return "<@" + id + ">"
	}
	return name
}

// Phone returns the in-character phone number for a name, or "".
// Implements render.NameResolver.
func (d *Directory) Phone(name string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lookup(d.phones, name)
}
