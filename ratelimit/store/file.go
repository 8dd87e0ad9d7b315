package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// File is a file-backed implementation of Store: a single JSON object
// mapping hashed client keys to ordered lists of unix timestamps.
//
// The backing representation is rewritten wholesale on each write, so the
// read-filter-append-write cycle runs under a store-wide advisory file lock
// (plus an in-process mutex; the flock alone does not exclude goroutines
// sharing the same handle). Concurrent server instances on one host can
// therefore share the file without losing increments.
type File struct {
	mu     sync.Mutex
	path   string
	fl     *flock.Flock
	window time.Duration
	max    int
}

// NewFile creates a file store writing to path. The file and its lock file
// are created on first use.
func NewFile(path string, max int, window time.Duration) *File {
	return &File{
		path:   path,
		fl:     flock.New(path + ".lock"),
		window: window,
		max:    max,
	}
}

func (f *File) CheckAndRecord(_ context.Context, key string, now time.Time) (Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fl.Lock(); err != nil {
		return Decision{}, fmt.Errorf("locking rate limit file: %w", err)
	}
	defer f.fl.Unlock()

	data := f.load()

	nowUnix := now.Unix()
	cutoff := nowUnix - int64(f.window/time.Second)

	times := data[key]
	pruned := times[:0]
	for _, ts := range times {
		if ts > cutoff {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= f.max {
		// Limited: the pruned list is persisted as-is. The attempt does not
		// consume a slot, but it does not reset existing ones either.
		data[key] = pruned
		if err := f.save(data); err != nil {
			return Decision{}, err
		}
		retry := time.Duration(pruned[0]-cutoff) * time.Second
		return Decision{Allowed: false, Limit: f.max, Remaining: 0, RetryAfter: retry}, nil
	}

	pruned = append(pruned, nowUnix)
	data[key] = pruned
	if err := f.save(data); err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: true, Limit: f.max, Remaining: f.max - len(pruned)}, nil
}

// load reads the mapping, tolerating a missing or corrupt file: rate
// limiting starts fresh rather than blocking all submissions.
func (f *File) load() map[string][]int64 {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return make(map[string][]int64)
	}
	var data map[string][]int64
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		return make(map[string][]int64)
	}
	return data
}

func (f *File) save(data map[string][]int64) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding rate limit data: %w", err)
	}
	if err := os.WriteFile(f.path, raw, 0o600); err != nil {
		return fmt.Errorf("writing rate limit file: %w", err)
	}
	return nil
}

func (f *File) Close() error {
	return nil
}
