// Package submit wires the whole gatekeeping pipeline behind the two HTTP
// endpoints: the form submission itself and the CSRF token issuance.
//
// Checks run in a fixed order and the first failure terminates the request:
// authorization (method, origin, CSRF), rate limit, field validation, relay
// configuration, dispatch. Everything up to validation runs before the
// request body is trusted at all.
package submit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/nhalm/canonlog"

	"github.com/quartzclinique/formgate/config"
	"github.com/quartzclinique/formgate/dispatch"
	"github.com/quartzclinique/formgate/errlog"
	"github.com/quartzclinique/formgate/gatekeeper"
	"github.com/quartzclinique/formgate/ratelimit"
	"github.com/quartzclinique/formgate/ratelimit/store"
	"github.com/quartzclinique/formgate/respond"
	"github.com/quartzclinique/formgate/sanitize"
	"github.com/quartzclinique/formgate/session"
)

// maxBodyBytes caps the request body. Form fields are truncated far below
// this anyway; the cap only stops pathological payloads from being buffered.
const maxBodyBytes = 64 << 10

// Field length caps, in characters.
const (
	nameMaxLen     = 120
	phoneMaxLen    = 60
	serviceMaxLen  = 120
	locationMaxLen = 120
)

const successMessage = "Randevu talebiniz başarıyla gönderildi! En kısa sürede size dönüş yapacağız."

const invalidEmailMessage = "Please enter a valid email address."

// Pipeline holds the collaborators of the submission flow. All fields are
// required except Now, which defaults to time.Now.
type Pipeline struct {
	Gatekeeper *gatekeeper.Gatekeeper
	Limiter    *ratelimit.Limiter
	Sessions   session.Store
	Dispatcher dispatch.Dispatcher
	Relay      config.Relay
	Log        *errlog.Log
	Now        func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// payload is the submitted form, before sanitization. Field names double as
// the urlencoded keys.
type payload struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Service  string `json:"service"`
	Location string `json:"location"`
	Message  string `json:"message"`
}

// Contact handles POST /api/contact.
func (p *Pipeline) Contact(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if rej := p.Gatekeeper.Authorize(r); rej != nil {
		respond.Reject(w, r, rej)
		return
	}

	clientIP := ratelimit.ClientIP(r)
	canonlog.InfoAdd(r.Context(), "client_ip", clientIP)

	decision, err := p.Limiter.CheckAndRecord(r.Context(), clientIP, p.now())
	if err != nil {
		canonlog.ErrorAdd(r.Context(), fmt.Errorf("rate limit check: %w", err))
		respond.Reject(w, r, respond.ErrInternal)
		return
	}
	setRateHeaders(w, decision)
	if !decision.Allowed {
		// The raw address, not the hashed store key: the operator reading
		// this log is identifying the abuser.
		p.Log.Record(errlog.CodeRLimit, clientIP)
		respond.Reject(w, r, respond.ErrRateLimited)
		return
	}

	raw := decode(r)

	name := sanitize.Field(raw.Name, nameMaxLen)
	phone := sanitize.Field(raw.Phone, phoneMaxLen)
	service := sanitize.Field(raw.Service, serviceMaxLen)
	location := sanitize.Field(raw.Location, locationMaxLen)
	body := sanitize.Message(raw.Message)
	email, emailOK := sanitize.Email(raw.Email)

	if name == "" || phone == "" || email == "" || service == "" || location == "" {
		respond.Reject(w, r, respond.ErrValidationFailed)
		return
	}
	if !emailOK {
		respond.Reject(w, r, respond.ErrValidationFailed.With(invalidEmailMessage))
		return
	}

	// The attempt above already consumed a rate-limit slot; a broken relay
	// config does not hand clients free retries.
	if p.Relay.Missing() {
		p.Log.Record(errlog.CodeConfig, "Missing SMTP environment variables")
		respond.Reject(w, r, respond.ErrConfigMissing)
		return
	}

	msg := &dispatch.Message{
		Name:     name,
		Phone:    phone,
		Email:    email,
		Service:  service,
		Location: location,
		Body:     body,
		ClientIP: clientIP,
		Received: p.now(),
	}

	if err := p.Dispatcher.Send(r.Context(), msg); err != nil {
		canonlog.ErrorAdd(r.Context(), fmt.Errorf("dispatch: %w", err))
		p.Log.Record(errlog.CodeSMTP, errDigest(err))
		respond.Reject(w, r, respond.ErrDispatchFailed)
		return
	}

	respond.OK(w, r, successMessage)
}

// tokenResponse uses a pointer so a refused issuance serializes as
// {"token": null}.
type tokenResponse struct {
	Token *string `json:"token"`
}

// Token handles /api/csrf-token. GET returns the session's live token,
// minting one if none exists; any other method gets a 405 with a null token.
func (p *Pipeline) Token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respond.JSON(w, http.StatusMethodNotAllowed, tokenResponse{})
		return
	}

	sid := session.ID(w, r)
	tok := p.Sessions.Token(sid)
	if tok == "" {
		fresh, err := session.NewToken()
		if err != nil {
			canonlog.ErrorAdd(r.Context(), fmt.Errorf("minting token: %w", err))
			respond.JSON(w, http.StatusInternalServerError, tokenResponse{})
			return
		}
		p.Sessions.Put(sid, fresh)
		tok = fresh
	}

	respond.JSON(w, http.StatusOK, tokenResponse{Token: &tok})
}

// decode reads the submission from a JSON body when the request says it
// carries one, and from urlencoded form fields otherwise. A malformed body
// decodes to the zero payload; the empty fields fail validation downstream,
// mirroring how an empty form would.
func decode(r *http.Request) payload {
	var pl payload

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&pl); err != nil {
			return payload{}
		}
		return pl
	}

	return payload{
		Name:     r.PostFormValue("name"),
		Phone:    r.PostFormValue("phone"),
		Email:    r.PostFormValue("email"),
		Service:  r.PostFormValue("service"),
		Location: r.PostFormValue("location"),
		Message:  r.PostFormValue("message"),
	}
}

func setRateHeaders(w http.ResponseWriter, d store.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.Allowed {
		secs := int(d.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
}

// errDigest reduces an error to a short one-way digest. The log stays free
// of relay hostnames and credentials while still letting the operator match
// recurring failures.
func errDigest(err error) string {
	sum := sha256.Sum256([]byte(err.Error()))
	return hex.EncodeToString(sum[:])[:12]
}
