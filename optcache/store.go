package optcache

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/flowkit/go-optfetch/model"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Entry is a cached option list together with the time it was written and
// how long it stays valid.
type Entry struct {
	Value     model.Options
	WrittenAt time.Time
	TTL       time.Duration
}

// Valid reports whether less than TTL has passed since the entry was written.
func (e Entry) Valid(now time.Time) bool {
	return now.Sub(e.WrittenAt) < e.TTL
}

// Remaining returns how much longer the entry is valid, or zero if it has
// expired.
func (e Entry) Remaining(now time.Time) time.Duration {
	d := e.TTL - now.Sub(e.WrittenAt)
	if d < 0 {
		return 0
	}
	return d
}

// Store is the in-memory entry store. Entries expire lazily: validity is
// computed when an entry is read, and an expired entry is removed then. The
// store is bounded, evicting the least recently used entry when full.
//
// Safe for concurrent use.
type Store struct {
	mutex sync.Mutex
	lru   *simplelru.LRU[string, Entry]
	clock clock.Clock

	// Called with the lock held. Must not call back into the store.
	onExpire func()
	onEvict  func()
}

// NewStore creates a Store holding at most maxEntries entries. If clk is nil
// the wall clock is used.
func NewStore(maxEntries int, clk clock.Clock) (*Store, error) {
	lru, err := simplelru.NewLRU[string, Entry](maxEntries, nil)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		lru:   lru,
		clock: clk,
	}, nil
}

// Get returns the value stored for key if it is still valid. An expired entry
// is removed and reported as absent.
//
// Do not modify the returned options.
func (s *Store) Get(key string) (model.Options, bool) {
	ent, ok := s.getEntry(key)
	if !ok {
		return nil, false
	}
	return ent.Value, true
}

func (s *Store) getEntry(key string) (Entry, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ent, ok := s.lru.Get(key)
	if !ok {
		return Entry{}, false
	}
	if !ent.Valid(s.clock.Now()) {
		s.lru.Remove(key)
		if s.onExpire != nil {
			s.onExpire()
		}
		return Entry{}, false
	}
	return ent, true
}

// Set stores value for key, valid for ttl from now. The last write wins. A
// non-positive ttl stores nothing, and removes any existing entry since it
// has been superseded.
func (s *Store) Set(key string, value model.Options, ttl time.Duration) {
	s.setEntry(key, Entry{
		Value:     value,
		WrittenAt: s.clock.Now(),
		TTL:       ttl,
	})
}

// setEntry stores an entry keeping its original write time.
func (s *Store) setEntry(key string, ent Entry) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if ent.TTL <= 0 {
		s.lru.Remove(key)
		return
	}
	if s.lru.Add(key, ent) && s.onEvict != nil {
		s.onEvict()
	}
}

// Invalidate removes the entry for key.
func (s *Store) Invalidate(key string) {
	s.mutex.Lock()
	s.lru.Remove(key)
	s.mutex.Unlock()
}

// InvalidateAll removes every entry.
func (s *Store) InvalidateAll() {
	s.mutex.Lock()
	s.lru.Purge()
	s.mutex.Unlock()
}

// Len returns the number of entries held, including expired entries that
// have not yet been read.
func (s *Store) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lru.Len()
}
