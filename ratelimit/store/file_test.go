package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	testMax    = 5
	testWindow = 15 * time.Minute
)

func newFileStore(t *testing.T) *File {
	t.Helper()
	return NewFile(filepath.Join(t.TempDir(), "rate_limit.json"), testMax, testWindow)
}

func TestFile_AllowsUpToMax(t *testing.T) {
	f := newFileStore(t)
	defer f.Close()

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < testMax; i++ {
		d, err := f.CheckAndRecord(ctx, "key", now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("CheckAndRecord() error = %v", err)
		}
		if !d.Allowed {
			t.Fatalf("attempt %d not allowed, want allowed", i+1)
		}
		if want := testMax - i - 1; d.Remaining != want {
			t.Errorf("attempt %d remaining = %d, want %d", i+1, d.Remaining, want)
		}
	}

	d, err := f.CheckAndRecord(ctx, "key", now.Add(10*time.Second))
	if err != nil {
		t.Fatalf("CheckAndRecord() error = %v", err)
	}
	if d.Allowed {
		t.Error("attempt past the limit was allowed")
	}
	if d.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", d.RetryAfter)
	}
}

func TestFile_LimitedAttemptDoesNotConsumeSlot(t *testing.T) {
	f := newFileStore(t)
	defer f.Close()

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < testMax; i++ {
		if _, err := f.CheckAndRecord(ctx, "key", now); err != nil {
			t.Fatal(err)
		}
	}

	// Hammering while limited must not extend the window: once the original
	// attempts expire, the client is allowed again immediately.
	for i := 0; i < 15; i++ {
		d, err := f.CheckAndRecord(ctx, "key", now.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatal(err)
		}
		if d.Allowed {
			t.Fatalf("attempt at +%dm allowed while window still full", i)
		}
	}

	d, err := f.CheckAndRecord(ctx, "key", now.Add(testWindow))
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Error("attempt after window expiry not allowed")
	}
}

func TestFile_WindowSlides(t *testing.T) {
	f := newFileStore(t)
	defer f.Close()

	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Two early attempts, three late ones.
	for _, offset := range []time.Duration{0, time.Second, 10 * time.Minute, 10 * time.Minute, 10 * time.Minute} {
		d, err := f.CheckAndRecord(ctx, "key", base.Add(offset))
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed {
			t.Fatal("setup attempt not allowed")
		}
	}

	// At +16m the two early attempts have left the window: room for one more.
	d, err := f.CheckAndRecord(ctx, "key", base.Add(16*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Error("attempt not allowed after early entries expired")
	}
}

func TestFile_KeysAreIndependent(t *testing.T) {
	f := newFileStore(t)
	defer f.Close()

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < testMax; i++ {
		if _, err := f.CheckAndRecord(ctx, "busy", now); err != nil {
			t.Fatal(err)
		}
	}

	d, err := f.CheckAndRecord(ctx, "quiet", now)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Error("unrelated key was limited")
	}
}

func TestFile_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rate_limit.json")
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := NewFile(path, testMax, testWindow)
	for i := 0; i < testMax; i++ {
		if _, err := first.CheckAndRecord(ctx, "key", now); err != nil {
			t.Fatal(err)
		}
	}
	first.Close()

	second := NewFile(path, testMax, testWindow)
	defer second.Close()

	d, err := second.CheckAndRecord(ctx, "key", now.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Error("fresh instance forgot recorded attempts")
	}
}

func TestFile_ToleratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rate_limit.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	f := NewFile(path, testMax, testWindow)
	defer f.Close()

	d, err := f.CheckAndRecord(context.Background(), "key", time.Now())
	if err != nil {
		t.Fatalf("CheckAndRecord() error = %v", err)
	}
	if !d.Allowed {
		t.Error("corrupt file should reset, not block")
	}
}

func TestFile_StoresHashedKeysOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rate_limit.json")
	f := NewFile(path, testMax, testWindow)
	defer f.Close()

	key := "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8"
	if _, err := f.CheckAndRecord(context.Background(), key, time.Now()); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var data map[string][]int64
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("file is not a JSON mapping: %v", err)
	}
	if _, ok := data[key]; !ok {
		t.Errorf("mapping %v missing key %q", data, key)
	}
}

func TestFile_ConcurrentSameKey(t *testing.T) {
	f := newFileStore(t)
	defer f.Close()

	ctx := context.Background()
	now := time.Now()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	const callers = 20

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			d, err := f.CheckAndRecord(ctx, "key", now)
			if err != nil {
				t.Error(err)
				return
			}
			if d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != testMax {
		t.Errorf("%d attempts allowed under concurrency, want exactly %d", got, testMax)
	}
}
