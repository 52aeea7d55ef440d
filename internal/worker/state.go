package worker

import (
	"sync"
	"time"
)

// sessionMeta is the per-session bookkeeping kept outside the transcript:
// who owns the session and which language it settled on.
type sessionMeta struct {
	UserID    int64     `json:"user_id"`
	Language  string    `json:"language"`
	StartedAt time.Time `json:"started_at"`
}

type sessionCache struct {
	mu       sync.RWMutex
	sessions map[string]sessionMeta
	byUser   map[int64]map[string]struct{}
}

func newSessionCache() *sessionCache {
	return &sessionCache{
		sessions: make(map[string]sessionMeta),
		byUser:   make(map[int64]map[string]struct{}),
	}
}

func (c *sessionCache) put(sessionID string, meta sessionMeta) {
	c.mu.Lock()
	c.sessions[sessionID] = meta
	owned := c.byUser[meta.UserID]
	if owned == nil {
		owned = make(map[string]struct{})
		c.byUser[meta.UserID] = owned
	}
	owned[sessionID] = struct{}{}
	c.mu.Unlock()
}

func (c *sessionCache) get(sessionID string) (sessionMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.sessions[sessionID]
	return meta, ok
}

func (c *sessionCache) drop(sessionID string) {
	c.mu.Lock()
	if meta, ok := c.sessions[sessionID]; ok {
		delete(c.sessions, sessionID)
		if owned := c.byUser[meta.UserID]; owned != nil {
			delete(owned, sessionID)
			if len(owned) == 0 {
				delete(c.byUser, meta.UserID)
			}
		}
	}
	c.mu.Unlock()
}

// dropUser removes every session the user owns, returning their ids.
func (c *sessionCache) dropUser(userID int64) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	owned := c.byUser[userID]
	ids := make([]string, 0, len(owned))
	for sessionID := range owned {
		ids = append(ids, sessionID)
		delete(c.sessions, sessionID)
	}
	delete(c.byUser, userID)
	return ids
}
