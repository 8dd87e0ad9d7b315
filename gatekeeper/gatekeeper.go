// Package gatekeeper authorizes form submissions before any other work runs.
//
// Checks run in a fixed order and short-circuit on the first failure:
// transport method, then request origin, then CSRF token. Origin checking is
// deliberately lenient when the header is absent — some legitimate clients
// omit Origin and Referer entirely — but a present header that names a host
// outside the allow-list is always rejected.
//
// The CSRF token is single-use: a successful match consumes it immediately,
// before the rest of the pipeline runs, so a verbatim replay can never
// authorize a second request regardless of what happens downstream.
package gatekeeper

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"

	"github.com/quartzclinique/formgate/errlog"
	"github.com/quartzclinique/formgate/respond"
	"github.com/quartzclinique/formgate/session"
)

// FormField is the form key carrying the CSRF token.
const FormField = "csrf_token"

// HeaderName is the alternate CSRF channel for non-form submissions.
// When present it takes precedence over the form field.
const HeaderName = "X-CSRF-Token"

// Gatekeeper validates transport method, origin, and CSRF token.
type Gatekeeper struct {
	origins  map[string]struct{}
	sessions session.Store
	log      *errlog.Log
}

// New creates a Gatekeeper with the given scheme://host allow-list.
func New(allowedOrigins []string, sessions session.Store, log *errlog.Log) *Gatekeeper {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[strings.ToLower(o)] = struct{}{}
	}
	return &Gatekeeper{
		origins:  origins,
		sessions: sessions,
		log:      log,
	}
}

// Authorize runs the ordered checks against the request. A nil return means
// the request may proceed; the session's CSRF token has been consumed by
// then. Rejections are logged under their category except METHOD, which is
// noise rather than signal.
func (g *Gatekeeper) Authorize(r *http.Request) *respond.Rejection {
	if r.Method != http.MethodPost {
		return respond.ErrMethodNotAllowed
	}

	if base := originBase(r); base != "" {
		if _, ok := g.origins[base]; !ok {
			g.log.Record(errlog.CodeOrigin, base)
			return respond.ErrOriginRejected
		}
	}

	submitted := r.Header.Get(HeaderName)
	if submitted == "" {
		submitted = r.PostFormValue(FormField)
	}

	sid := sessionID(r)
	stored := ""
	if sid != "" {
		stored = g.sessions.Token(sid)
	}

	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) != 1 {
		g.log.Record(errlog.CodeCSRF, "Token mismatch")
		return respond.ErrCsrfMismatch
	}

	// Single-use: consumed on match, before anything downstream can fail.
	g.sessions.Delete(sid)
	return nil
}

func sessionID(r *http.Request) string {
	c, err := r.Cookie(session.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// originBase extracts the lowercased scheme://host from the Origin header,
// falling back to Referer. Returns "" when neither header yields a parsable
// scheme and host; absence is not a rejection.
func originBase(r *http.Request) string {
	raw := r.Header.Get("Origin")
	if raw == "" {
		raw = r.Header.Get("Referer")
	}
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Hostname())
}
