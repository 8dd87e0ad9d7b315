// Package respond writes the service's JSON envelope and carries the
// canonical request log.
//
// Every endpoint answers with `{"success": bool, "message": string}`.
// Failures across the pipeline are modeled as *Rejection values: a short
// category code for the operator log, an HTTP status, and a client-safe
// message. Note that validation failures deliberately carry status 200 —
// a soft failure the client UI renders inline.
//
// The middleware returned by New opens a canonlog context per request,
// recovers panics into a generic 500 envelope, and flushes one canonical
// log line (method, path, route, status, outcome, duration_ms) after the
// response. OK and Reject work without the middleware too; the outcome
// field is simply dropped then.
package respond

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nhalm/canonlog"
)

type contextKey string

const stateKey contextKey = "respond_state"

type state struct {
	mu      sync.Mutex
	outcome string
}

// Envelope is the JSON body of every response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Rejection is a terminal pipeline failure: a category code (the error-log
// key), an HTTP status, and the message shown to the client.
type Rejection struct {
	Code    string
	Status  int
	Message string
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// Is implements errors.Is by comparing category codes.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	if !ok {
		return false
	}
	return r.Code == t.Code
}

// With returns a copy of the rejection with a custom client message.
func (r *Rejection) With(message string) *Rejection {
	if r == nil {
		return nil
	}
	dup := *r
	dup.Message = message
	return &dup
}

// Predefined sentinel rejections, one per failure class.
var (
	ErrMethodNotAllowed = &Rejection{Code: "METHOD", Status: http.StatusMethodNotAllowed, Message: "Method not allowed."}
	ErrOriginRejected   = &Rejection{Code: "ORIGIN", Status: http.StatusForbidden, Message: "Invalid request origin."}
	ErrCsrfMismatch     = &Rejection{Code: "CSRF", Status: http.StatusForbidden, Message: "Security token mismatch."}
	ErrRateLimited      = &Rejection{Code: "RLIMIT", Status: http.StatusTooManyRequests, Message: "Too many requests. Please try again later."}

	// ErrValidationFailed is the one soft failure: HTTP 200 with success=false.
	ErrValidationFailed = &Rejection{Code: "FIELDS", Status: http.StatusOK, Message: "Please fill in all required fields."}

	ErrConfigMissing = &Rejection{Code: "CONFIG", Status: http.StatusInternalServerError, Message: "Mail configuration error."}

	// ErrInternal covers infrastructure failures outside the taxonomy, such
	// as an unreadable rate-limit store.
	ErrInternal = &Rejection{Code: "INTERNAL", Status: http.StatusInternalServerError, Message: "Internal server error."}

	ErrDispatchFailed = &Rejection{Code: "SMTP", Status: http.StatusInternalServerError, Message: "E-posta gönderilirken bir hata oluştu. Lütfen daha sonra tekrar deneyin."}
)

// OK writes a 200 success envelope.
func OK(w http.ResponseWriter, r *http.Request, message string) {
	setOutcome(r.Context(), "OK")
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: message})
}

// Reject writes the rejection's envelope and records its category as the
// request outcome.
func Reject(w http.ResponseWriter, r *http.Request, rej *Rejection) {
	setOutcome(r.Context(), rej.Code)
	writeJSON(w, rej.Status, Envelope{Success: false, Message: rej.Message})
}

// JSON writes an arbitrary JSON body, for endpoints outside the envelope
// (the token issuance endpoint returns {"token": ...}).
func JSON(w http.ResponseWriter, status int, body any) {
	writeJSON(w, status, body)
}

func setOutcome(ctx context.Context, code string) {
	st, _ := ctx.Value(stateKey).(*state)
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.outcome = code
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.wroteHeader {
		return
	}
	sw.status = code
	sw.wroteHeader = true
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.WriteHeader(http.StatusOK)
	}
	return sw.ResponseWriter.Write(b)
}

// New returns the outermost middleware: per-request canonical logging and
// panic recovery. Panics become a generic 500 envelope, never a stack trace.
func New() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := &state{}
			ctx := context.WithValue(r.Context(), stateKey, st)
			ctx = canonlog.NewContext(ctx)
			start := time.Now()

			canonlog.InfoAddMany(ctx, map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})

			r = r.WithContext(ctx)
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if rec := recover(); rec != nil {
					canonlog.ErrorAdd(ctx, fmt.Errorf("panic: %v", rec))
					if !sw.wroteHeader {
						writeJSON(sw, http.StatusInternalServerError, Envelope{
							Success: false,
							Message: "Internal server error.",
						})
					}
				}

				route := r.URL.Path
				if rctx := chi.RouteContext(ctx); rctx != nil {
					if pattern := rctx.RoutePattern(); pattern != "" {
						route = pattern
					}
				}

				st.mu.Lock()
				outcome := st.outcome
				st.mu.Unlock()

				canonlog.InfoAddMany(ctx, map[string]any{
					"route":       route,
					"status":      sw.status,
					"duration_ms": time.Since(start).Milliseconds(),
				})
				if outcome != "" {
					canonlog.InfoAdd(ctx, "outcome", outcome)
				}

				canonlog.Flush(ctx)
			}()

			next.ServeHTTP(sw, r)
		})
	}
}
