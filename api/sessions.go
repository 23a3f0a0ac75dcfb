/*
sessions.go - Per-analyst sessions and the report snapshot cache

SESSIONS:
  The desk keeps one ccb.Session per analyst name, created on first use.
  The session only remembers the analyst's active case; every write still
  goes to the ledger.

  X-Analyst is not authenticated, so the store is bounded. Sessions idle
  for longer than SessionIdleTimeout are dropped, and past MaxSessions the
  least recently used one goes. A dropped session only forgets its active
  case; claiming the case again restores it.

SNAPSHOT CACHE:
  Report endpoints read the whole ledger. Under a dashboard that refreshes
  often that is wasteful, so the decoded case list is kept for a short TTL.
  Any claim or finalize through this server drops it. Writes made by other
  processes show up once the TTL expires.

  A load that started before an invalidation is not stored, so a slow read
  cannot put a pre-write snapshot back in the cache.
*/
package api

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/warp/ccbdesk/ccb"
)

// =============================================================================
// SESSIONS
// =============================================================================

// Session store bounds.
const (
	SessionIdleTimeout = 12 * time.Hour
	MaxSessions        = 1024
)

type sessionEntry struct {
	sess     *ccb.Session
	lastSeen time.Time
}

// SessionStore hands out one session per analyst.
type SessionStore struct {
	idle time.Duration
	max  int
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		idle:     SessionIdleTimeout,
		max:      MaxSessions,
		now:      time.Now,
		sessions: make(map[string]*sessionEntry),
	}
}

// Get returns the analyst's session, creating it if needed. An empty name
// gets a throwaway session so the engine can reject it.
func (s *SessionStore) Get(analyst string) *ccb.Session {
	analyst = strings.TrimSpace(analyst)
	if analyst == "" {
		return ccb.NewSession("")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.sessions[analyst]; ok && now.Sub(e.lastSeen) < s.idle {
		e.lastSeen = now
		return e.sess
	}

	s.evict(now)
	e := &sessionEntry{sess: ccb.NewSession(analyst), lastSeen: now}
	s.sessions[analyst] = e
	return e.sess
}

// Len reports how many sessions are held.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// evict drops idle sessions, then the oldest ones until there is room for
// one more. Caller holds mu.
func (s *SessionStore) evict(now time.Time) {
	for name, e := range s.sessions {
		if now.Sub(e.lastSeen) >= s.idle {
			delete(s.sessions, name)
		}
	}
	for len(s.sessions) >= s.max {
		var oldest string
		var oldestAt time.Time
		for name, e := range s.sessions {
			if oldest == "" || e.lastSeen.Before(oldestAt) {
				oldest, oldestAt = name, e.lastSeen
			}
		}
		delete(s.sessions, oldest)
	}
}

// =============================================================================
// SNAPSHOT CACHE
// =============================================================================

type snapshotCache struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	cases    []ccb.Case
	loadedAt time.Time
	valid    bool
	gen      uint64
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	return &snapshotCache{ttl: ttl, now: time.Now}
}

// get returns the cached cases or loads them. Callers must not modify the
// returned slice.
func (c *snapshotCache) get(ctx context.Context, load func(context.Context) ([]ccb.Case, error)) ([]ccb.Case, error) {
	if c.ttl <= 0 {
		return load(ctx)
	}

	c.mu.Lock()
	if c.valid && c.now().Sub(c.loadedAt) < c.ttl {
		cases := c.cases
		c.mu.Unlock()
		return cases, nil
	}
	gen := c.gen
	c.mu.Unlock()

	cases, err := load(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.cases = cases
		c.loadedAt = c.now()
		c.valid = true
	}
	c.mu.Unlock()
	return cases, nil
}

func (c *snapshotCache) invalidate() {
	c.mu.Lock()
	c.valid = false
	c.cases = nil
	c.gen++
	c.mu.Unlock()
}
