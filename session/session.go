// Package session manages browser sessions and their single-use CSRF tokens.
//
// A session holds at most one live token. Tokens are created lazily on the
// issuance endpoint (an existing live token is returned, not replaced) and
// consumed on first successful authorization, so a replayed token can never
// authorize a second request.
//
// The Store interface is the injection point: the in-memory implementation
// suits a single instance; a shared backend can be substituted without
// touching the pipeline.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CookieName identifies the browser session.
const CookieName = "formgate_session"

// tokenBytes is the raw token size: 32 bytes = 256 bits of entropy.
const tokenBytes = 32

// DefaultTTL is how long an idle session survives in the memory store.
const DefaultTTL = 2 * time.Hour

// Store holds the live CSRF token per session.
// Implementations must be safe for concurrent use.
type Store interface {
	// Token returns the live token for the session, or "" if none exists.
	Token(sessionID string) string

	// Put stores the live token for the session, replacing any previous one.
	Put(sessionID, token string)

	// Delete removes the session's token. Deleting an absent token is a no-op.
	Delete(sessionID string)

	// Close releases any resources held by the store.
	Close() error
}

// NewToken generates a cryptographically random hex-encoded token.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ID returns the request's session ID, minting one (and setting the cookie)
// if the request carries none. The cookie is HttpOnly with SameSite=Lax;
// Secure is left to the fronting deployment.
func ID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

type memoryEntry struct {
	token      string
	expiration time.Time
}

// Memory is an in-memory implementation of Store with periodic cleanup of
// expired sessions. Suitable for single-instance deployments.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	stopCh  chan struct{}
}

// NewMemory creates an in-memory session store with the given idle TTL.
// A ttl of zero or less falls back to DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go m.cleanup()
	return m
}

func (m *Memory) Token(sessionID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.entries[sessionID]
	if !exists || time.Now().After(entry.expiration) {
		return ""
	}
	return entry.token
}

func (m *Memory) Put(sessionID, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[sessionID] = &memoryEntry{
		token:      token,
		expiration: time.Now().Add(m.ttl),
	}
}

func (m *Memory) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, sessionID)
}

func (m *Memory) Close() error {
	close(m.stopCh)
	return nil
}

func (m *Memory) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			var expiredIDs []string

			m.mu.RLock()
			for id, entry := range m.entries {
				if now.After(entry.expiration) {
					expiredIDs = append(expiredIDs, id)
				}
			}
			m.mu.RUnlock()

			if len(expiredIDs) > 0 {
				m.mu.Lock()
				for _, id := range expiredIDs {
					delete(m.entries, id)
				}
				m.mu.Unlock()
			}
		case <-m.stopCh:
			return
		}
	}
}
