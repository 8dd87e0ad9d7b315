// Package ratelimit provides the per-client sliding-window rate limiter.
//
// Clients are identified by network address, but the store never sees the
// raw address: the key is a one-way hash, so a leaked store file exposes no
// client identities. The window and capacity live in the store backend; the
// limiter only derives keys and forwards the check.
//
//	st := store.NewFile(path, 5, 15*time.Minute)
//	limiter := ratelimit.New(st)
//	decision, err := limiter.CheckAndRecord(ctx, ratelimit.ClientIP(r), time.Now())
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"time"

	"github.com/quartzclinique/formgate/ratelimit/store"
)

// Limiter checks and records submission attempts against a Store.
type Limiter struct {
	store store.Store
}

// New creates a limiter over the given store.
func New(st store.Store) *Limiter {
	return &Limiter{store: st}
}

// CheckAndRecord hashes the client address into a store key and runs one
// atomic sliding-window check. A limited attempt does not consume a slot,
// but never erases recorded ones either.
func (l *Limiter) CheckAndRecord(ctx context.Context, clientIP string, now time.Time) (store.Decision, error) {
	return l.store.CheckAndRecord(ctx, HashKey(clientIP), now)
}

// ClientIP extracts the client address from RemoteAddr, removing the port
// if present.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// HashKey derives the store key for a client address: a hex-encoded SHA-256
// of the raw address. One-way by design; the store index must not be
// reversible to client identities.
func HashKey(clientIP string) string {
	sum := sha256.Sum256([]byte(clientIP))
	return hex.EncodeToString(sum[:])
}
