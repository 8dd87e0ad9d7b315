package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory implementation of Store with automatic cleanup of
// idle keys. Suitable for tests and single-instance development; state is
// lost on restart.
type Memory struct {
	mu      sync.Mutex
	entries map[string][]int64
	window  time.Duration
	max     int
	stopCh  chan struct{}
}

// NewMemory creates a new in-memory store.
func NewMemory(max int, window time.Duration) *Memory {
	m := &Memory{
		entries: make(map[string][]int64),
		window:  window,
		max:     max,
		stopCh:  make(chan struct{}),
	}

	go m.cleanup()
	return m
}

func (m *Memory) CheckAndRecord(_ context.Context, key string, now time.Time) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nowUnix := now.Unix()
	cutoff := nowUnix - int64(m.window/time.Second)

	times := m.entries[key]
	pruned := times[:0]
	for _, ts := range times {
		if ts > cutoff {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= m.max {
		m.entries[key] = pruned
		retry := time.Duration(pruned[0]-cutoff) * time.Second
		return Decision{Allowed: false, Limit: m.max, Remaining: 0, RetryAfter: retry}, nil
	}

	pruned = append(pruned, nowUnix)
	m.entries[key] = pruned
	return Decision{Allowed: true, Limit: m.max, Remaining: m.max - len(pruned)}, nil
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
			cutoff := time.Now().Unix() - int64(m.window/time.Second)

			m.mu.Lock()
			for key, times := range m.entries {
				live := false
				for _, ts := range times {
					if ts > cutoff {
						live = true
						break
					}
				}
				if !live {
					delete(m.entries, key)
				}
			}
			m.mu.Unlock()
		case <-m.stopCh:
			return
		}
	}
}
