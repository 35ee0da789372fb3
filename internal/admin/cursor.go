package admin

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// cursorTTL bounds how long an export cursor token stays valid, mirroring
// the OAuth state token lifetime in internal/auth.
const cursorTTL = 10 * time.Minute

type cursorEntry struct {
	lastID int64
	issued time.Time
}

// cursorStore issues and resolves single-use opaque tokens for paginating
// an export beyond its page cap (spec §4.2), the same mutex-protected
// map-with-TTL idiom as the OAuth login state in internal/auth.
type cursorStore struct {
	mu      sync.Mutex
	entries map[string]cursorEntry
}

func newCursorStore() *cursorStore {
	return &cursorStore{entries: make(map[string]cursorEntry)}
}

func (c *cursorStore) issue(lastID int64) string {
	token := uuid.NewString()
	c.mu.Lock()
	c.entries[token] = cursorEntry{lastID: lastID, issued: time.Now()}
	c.mu.Unlock()
	return token
}

// resolve looks up token, consuming it: a cursor is single-use.
func (c *cursorStore) resolve(token string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[token]
	delete(c.entries, token)
	if !ok || time.Since(e.issued) > cursorTTL {
		return 0, false
	}
	return e.lastID, true
}

// sweep removes expired cursor tokens.
func (c *cursorStore) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if time.Since(e.issued) > cursorTTL {
			delete(c.entries, k)
		}
	}
}
