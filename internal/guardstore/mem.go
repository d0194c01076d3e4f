package guardstore

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type memEntry struct {
	mu     sync.Mutex
	last   time.Time
	hashes []stampedHash
}

type stampedHash struct {
	hash string
	at   time.Time
}

// MemStore is the in-process store. Each fingerprint has its own lock, so
// submissions from different fingerprints never wait on each other. State is
// lost on restart and is not shared between instances.
type MemStore struct {
	entries *xsync.MapOf[string, *memEntry]
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{entries: xsync.NewMapOf[string, *memEntry]()}
}

func (s *MemStore) entry(fingerprint string) *memEntry {
	e, _ := s.entries.LoadOrCompute(fingerprint, func() *memEntry {
		return &memEntry{}
	})
	return e
}

func (s *MemStore) Recent(ctx context.Context, fingerprint string, since time.Time) (State, error) {
	e, ok := s.entries.Load(fingerprint)
	if !ok {
		return State{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.hashes = slices.DeleteFunc(e.hashes, func(h stampedHash) bool {
		return h.at.Before(since)
	})
	st := State{LastAccepted: e.last, Hashes: make([]string, 0, len(e.hashes))}
	for _, h := range e.hashes {
		st.Hashes = append(st.Hashes, h.hash)
	}
	return st, nil
}

func (s *MemStore) Record(ctx context.Context, fingerprint, hash string, at time.Time) error {
	e := s.entry(fingerprint)

	e.mu.Lock()
	defer e.mu.Unlock()

	if at.After(e.last) {
		e.last = at
	}
	e.hashes = append(e.hashes, stampedHash{hash: hash, at: at})
	return nil
}

// Sweep forgets fingerprints with no activity since idleSince and returns how
// many were removed. A Record racing a Sweep of the same fingerprint may be
// lost, which only makes the guard more permissive for that one submission.
func (s *MemStore) Sweep(idleSince time.Time) int {
	removed := 0
	s.entries.Range(func(fp string, e *memEntry) bool {
		e.mu.Lock()
		idle := e.last.Before(idleSince)
		e.mu.Unlock()
		if idle {
			s.entries.Delete(fp)
			removed++
		}
		return true
	})
	return removed
}

// Len is the number of tracked fingerprints.
func (s *MemStore) Len() int {
	return s.entries.Size()
}

// StartSweeper calls Sweep every interval, forgetting fingerprints idle for
// longer than idle, until done is closed.
func (s *MemStore) StartSweeper(interval, idle time.Duration, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				if removed := s.Sweep(now.Add(-idle)); removed > 0 {
					slog.Debug("guard state swept", "removed", removed, "tracked", s.Len())
				}
			case <-done:
				return
			}
		}
	}()
}
