package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/bluele/gcache"
)

// MemoryStore is a single-process Store. Values live in an LRU: entries
// beyond size are evicted oldest first, so size must cover the expected
// number of live tokens and challenges. Counters created by Incr are kept
// apart in a map that is never evicted, only expired, so flooding the LRU
// cannot reset a lockout.
type MemoryStore struct {
	mu       sync.Mutex
	cache    gcache.Cache
	clock    gcache.Clock
	counters map[string]memoryEntry
	sweepAt  int
}

type memoryEntry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

const minCounterSweep = 1024

// NewMemoryStore creates a store holding at most size keys.
func NewMemoryStore(size int) *MemoryStore {
	return NewMemoryStoreWithClock(size, gcache.NewRealClock())
}

// NewMemoryStoreWithClock lets tests drive expiry with gcache.NewFakeClock.
func NewMemoryStoreWithClock(size int, clock gcache.Clock) *MemoryStore {
	return &MemoryStore{
		cache:    gcache.New(size).LRU().Clock(clock).Build(),
		clock:    clock,
		counters: make(map[string]memoryEntry),
		sweepAt:  minCounterSweep,
	}
}

func (e memoryEntry) expiredAt(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// put must be called with mu held.
func (s *MemoryStore) put(key string, value []byte, ttl time.Duration) error {
	delete(s.counters, key)

	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl <= 0 {
		return s.cache.Set(key, e)
	}
	e.expires = s.clock.Now().Add(ttl)
	return s.cache.SetWithExpire(key, e, ttl)
}

// lookup must be called with mu held.
func (s *MemoryStore) lookup(key string) (memoryEntry, error) {
	if e, ok := s.counters[key]; ok {
		if e.expiredAt(s.clock.Now()) {
			delete(s.counters, key)
			return memoryEntry{}, ErrNotFound
		}
		return e, nil
	}

	v, err := s.cache.Get(key)
	if errors.Is(err, gcache.KeyNotFoundError) {
		return memoryEntry{}, ErrNotFound
	}
	if err != nil {
		return memoryEntry{}, err
	}
	return v.(memoryEntry), nil
}

// remove must be called with mu held.
func (s *MemoryStore) remove(key string) {
	delete(s.counters, key)
	s.cache.Remove(key)
}

// sweep drops expired counters once the map has doubled since the last pass.
func (s *MemoryStore) sweep() {
	if len(s.counters) < s.sweepAt {
		return
	}
	now := s.clock.Now()
	for k, e := range s.counters {
		if e.expiredAt(now) {
			delete(s.counters, k)
		}
	}
	s.sweepAt = max(2*len(s.counters), minCounterSweep)
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(key, value, ttl)
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), e.value...), nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.remove(k)
	}
	return nil
}

func (s *MemoryStore) Take(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	s.remove(key)
	return e.value, nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookup(key); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	return true, s.put(key, value, ttl)
}

func (s *MemoryStore) Swap(_ context.Context, key string, value []byte, ttl time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.lookup(key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if perr := s.put(key, value, ttl); perr != nil {
		return nil, perr
	}
	if err != nil {
		return nil, err
	}
	return old.value, nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(key)
	switch {
	case errors.Is(err, ErrNotFound):
		e = memoryEntry{value: []byte("0")}
		if ttl > 0 {
			e.expires = s.clock.Now().Add(ttl)
		}
	case err != nil:
		return 0, err
	}

	n, err := strconv.ParseInt(string(e.value), 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))

	s.cache.Remove(key)
	s.counters[key] = e
	s.sweep()
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
	clear(s.counters)
	return nil
}
