package session_test

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/quartzclinique/formgate/session"
)

func TestNewToken(t *testing.T) {
	tok, err := session.NewToken()
	if err != nil {
		t.Fatalf("NewToken() error = %v", err)
	}

	// 32 random bytes, hex encoded.
	if matched := regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(tok); !matched {
		t.Errorf("NewToken() = %q, want 64 lowercase hex chars", tok)
	}

	other, err := session.NewToken()
	if err != nil {
		t.Fatalf("NewToken() error = %v", err)
	}
	if tok == other {
		t.Error("two tokens are identical")
	}
}

func TestID_MintsAndSetsCookie(t *testing.T) {
	req := httptest.NewRequest("GET", "/", http.NoBody)
	rec := httptest.NewRecorder()

	id := session.ID(rec, req)
	if id == "" {
		t.Fatal("ID() returned empty session ID")
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != session.CookieName {
		t.Errorf("cookie name = %q, want %q", c.Name, session.CookieName)
	}
	if c.Value != id {
		t.Errorf("cookie value = %q, want %q", c.Value, id)
	}
	if !c.HttpOnly {
		t.Error("cookie should be HttpOnly")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Error("cookie should be SameSite=Lax")
	}
}

func TestID_ReusesExistingCookie(t *testing.T) {
	req := httptest.NewRequest("GET", "/", http.NoBody)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "existing-id"})
	rec := httptest.NewRecorder()

	if id := session.ID(rec, req); id != "existing-id" {
		t.Errorf("ID() = %q, want existing-id", id)
	}
	if got := rec.Result().Cookies(); len(got) != 0 {
		t.Errorf("got %d new cookies, want 0", len(got))
	}
}

func TestMemory_PutTokenDelete(t *testing.T) {
	m := session.NewMemory(time.Minute)
	defer m.Close()

	if got := m.Token("sid"); got != "" {
		t.Errorf("Token() on empty store = %q, want empty", got)
	}

	m.Put("sid", "tok-1")
	if got := m.Token("sid"); got != "tok-1" {
		t.Errorf("Token() = %q, want tok-1", got)
	}

	// Replacing is allowed: a session holds at most one live token.
	m.Put("sid", "tok-2")
	if got := m.Token("sid"); got != "tok-2" {
		t.Errorf("Token() = %q, want tok-2", got)
	}

	m.Delete("sid")
	if got := m.Token("sid"); got != "" {
		t.Errorf("Token() after Delete = %q, want empty", got)
	}

	// Deleting again is a no-op.
	m.Delete("sid")
}

func TestMemory_Expiry(t *testing.T) {
	m := session.NewMemory(10 * time.Millisecond)
	defer m.Close()

	m.Put("sid", "tok")
	time.Sleep(30 * time.Millisecond)

	if got := m.Token("sid"); got != "" {
		t.Errorf("Token() after expiry = %q, want empty", got)
	}
}
