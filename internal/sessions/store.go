// Package sessions maps a user identity to the conversation thread held at
// the remote completion service, expiring entries after a sliding idle TTL.
package sessions

import (
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// shardCount spreads entries over independently locked shards so concurrent
// turns for different users never contend on one mutex.
const shardCount = 16

// entryOverheadBytes approximates the per-entry footprint for the memory
// estimate in Metrics: key, thread id, and bookkeeping.
const entryOverheadBytes = 145

// Entry is one user's session record.
type Entry struct {
	// ThreadID is the remote conversation handle.
	ThreadID string
	// CreatedAt is set on insert and never changes.
	CreatedAt time.Time
	// LastAccessed slides forward on every successful read and every write.
	LastAccessed time.Time
}

// Options configures a Store.
type Options struct {
	// TTL is the maximum idle time before an entry expires.
	TTL time.Duration
	// CleanupInterval bounds how often an opportunistic sweep may run.
	CleanupInterval time.Duration
	// Logger receives structured store events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store is a sharded, TTL-expiring session cache. Safe for concurrent use.
type Store struct {
	ttl             time.Duration
	cleanupInterval time.Duration
	log             *slog.Logger
	nowFunc         func() time.Time

	shards [shardCount]shard

	totalCreated atomic.Int64
	totalExpired atomic.Int64
	// lastSweep is the unix-nano time of the last sweep, opportunistic or explicit.
	lastSweep atomic.Int64
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// New creates a session store.
func New(opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		ttl:             opts.TTL,
		cleanupInterval: opts.CleanupInterval,
		log:             log,
		nowFunc:         time.Now,
	}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*Entry)
	}
	s.lastSweep.Store(s.nowFunc().UnixNano())
	s.log.Info("session_store_initialized",
		"ttl", opts.TTL, "cleanup_interval", opts.CleanupInterval)
	return s
}

// SetNowFunc replaces the store's clock. Tests only; not safe to call
// concurrently with store operations.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.nowFunc = fn
	s.lastSweep.Store(fn().UnixNano())
}

func (s *Store) shardFor(userID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &s.shards[h.Sum32()%shardCount]
}

// Get returns the thread id for a user, refreshing the sliding TTL. Returns
// ("", false) when no live entry exists; an expired entry is removed on the
// way out. May piggy-back an expiry sweep, at most once per cleanup interval.
func (s *Store) Get(userID string) (string, bool) {
	s.maybeSweep()

	now := s.nowFunc()
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[userID]
	if !ok {
		return "", false
	}
	if s.expired(entry, now) {
		delete(sh.entries, userID)
		s.totalExpired.Add(1)
		s.log.Debug("session_expired", "user_hash", hashTail(userID))
		return "", false
	}
	entry.LastAccessed = now
	return entry.ThreadID, true
}

// Set upserts a user's session. CreatedAt is preserved on update; only
// LastAccessed and the thread id move. Last write wins under the shard lock.
func (s *Store) Set(userID, threadID string) {
	now := s.nowFunc()
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if entry, ok := sh.entries[userID]; ok {
		entry.ThreadID = threadID
		entry.LastAccessed = now
		return
	}
	sh.entries[userID] = &Entry{ThreadID: threadID, CreatedAt: now, LastAccessed: now}
	s.totalCreated.Add(1)
	s.log.Debug("session_created", "user_hash", hashTail(userID))
}

// Remove deletes a user's session and reports whether one existed.
func (s *Store) Remove(userID string) bool {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.entries[userID]; !ok {
		return false
	}
	delete(sh.entries, userID)
	s.log.Debug("session_removed", "user_hash", hashTail(userID))
	return true
}

// SweepExpired removes every entry whose idle time exceeds the TTL and
// returns the number removed. Live entries are untouched.
func (s *Store) SweepExpired() int {
	now := s.nowFunc()
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, entry := range sh.entries {
			if s.expired(entry, now) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	s.totalExpired.Add(int64(removed))
	s.lastSweep.Store(now.UnixNano())
	if removed > 0 {
		s.log.Info("session_sweep_completed",
			"removed", removed, "remaining", s.activeCount())
	}
	return removed
}

// maybeSweep runs a sweep when the cleanup interval has elapsed. The CAS on
// lastSweep makes sure only one caller pays for the sweep per interval.
func (s *Store) maybeSweep() {
	if s.cleanupInterval <= 0 {
		return
	}
	now := s.nowFunc()
	last := s.lastSweep.Load()
	if now.Sub(time.Unix(0, last)) < s.cleanupInterval {
		return
	}
	if s.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		s.SweepExpired()
	}
}

func (s *Store) expired(entry *Entry, now time.Time) bool {
	return now.Sub(entry.LastAccessed) > s.ttl
}

func (s *Store) activeCount() int {
	count := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		count += len(sh.entries)
		sh.mu.Unlock()
	}
	return count
}

// Metrics is a point-in-time view of the store for health reporting.
type Metrics struct {
	ActiveSessions int       `json:"active_sessions"`
	TotalCreated   int64     `json:"total_created"`
	TotalExpired   int64     `json:"total_expired"`
	EstimatedBytes int       `json:"estimated_bytes"`
	LastCleanup    time.Time `json:"last_cleanup"`
}

// Metrics returns current store metrics.
func (s *Store) Metrics() Metrics {
	active := s.activeCount()
	return Metrics{
		ActiveSessions: active,
		TotalCreated:   s.totalCreated.Load(),
		TotalExpired:   s.totalExpired.Load(),
		EstimatedBytes: active * entryOverheadBytes,
		LastCleanup:    time.Unix(0, s.lastSweep.Load()),
	}
}

// hashTail returns the last four characters of an identifier so logs can
// correlate a user without recording the identity itself.
func hashTail(userID string) string {
	if len(userID) <= 4 {
		return userID
	}
	return userID[len(userID)-4:]
}
