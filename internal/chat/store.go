package chat

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mkovalenko/chatrelay/internal/observability"
	"github.com/mkovalenko/chatrelay/internal/reliability"
)

const (
	DefaultHistoryLimit = 20
	DefaultHistoryTTL   = 24 * time.Hour
	DefaultOpTimeout    = 2 * time.Second

	defaultFailureThreshold = 5
	retryBase               = 50 * time.Millisecond
	retryCap                = 400 * time.Millisecond
)

// Options configures a Store. Zero values fall back to the defaults above.
type Options struct {
	// RedisURL selects the durable backend. Empty means volatile only.
	RedisURL     string
	HistoryLimit int
	HistoryTTL   time.Duration
	OpTimeout    time.Duration
	// FailureThreshold is the consecutive-failure count past which the
	// store permanently demotes itself to the volatile backend.
	FailureThreshold int
}

func (o *Options) setDefaults() {
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.HistoryTTL <= 0 {
		o.HistoryTTL = DefaultHistoryTTL
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = DefaultOpTimeout
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = defaultFailureThreshold
	}
}

// Store owns every conversation: it is the only component that maps user
// ids to histories. Append is an atomic read-trim-write per user; reads
// never block appends for other users.
type Store struct {
	limit     int
	threshold int

	durable  Backend
	volatile *VolatileBackend

	locks    *userLocks
	metrics  *observability.Metrics
	demoted  atomic.Bool
	failures atomic.Int32
}

// NewStore builds a store, probing the durable backend when configured.
// Construction never fails: an unreachable or unconfigured Redis degrades
// to the in-process backend with a single log line.
func NewStore(ctx context.Context, opts Options, metrics *observability.Metrics) *Store {
	opts.setDefaults()
	s := &Store{
		limit:     opts.HistoryLimit,
		threshold: opts.FailureThreshold,
		volatile:  NewVolatileBackend(),
		locks:     newUserLocks(),
		metrics:   metrics,
	}

	if strings.TrimSpace(opts.RedisURL) == "" {
		logrus.Info("no redis url configured, chat history is in-process only")
		s.setVolatileGauge(true)
		return s
	}

	durable, err := NewRedisBackend(ctx, opts.RedisURL, opts.HistoryTTL, opts.OpTimeout)
	if err != nil {
		logrus.WithError(err).Warn("redis unreachable, falling back to in-process chat history")
		s.setVolatileGauge(true)
		return s
	}
	logrus.Info("redis connected for chat history")
	s.durable = durable
	s.setVolatileGauge(false)
	return s
}

// NewVolatileStore builds a store with only the in-process backend. Used
// by tests and by deployments that explicitly opt out of Redis.
func NewVolatileStore(limit int, metrics *observability.Metrics) *Store {
	opts := Options{HistoryLimit: limit}
	opts.setDefaults()
	return &Store{
		limit:     opts.HistoryLimit,
		threshold: opts.FailureThreshold,
		volatile:  NewVolatileBackend(),
		locks:     newUserLocks(),
		metrics:   metrics,
	}
}

// newStoreWithBackend wires an explicit durable backend, for tests.
func newStoreWithBackend(durable Backend, opts Options, metrics *observability.Metrics) *Store {
	opts.setDefaults()
	return &Store{
		limit:     opts.HistoryLimit,
		threshold: opts.FailureThreshold,
		durable:   durable,
		volatile:  NewVolatileBackend(),
		locks:     newUserLocks(),
		metrics:   metrics,
	}
}

// Durable reports whether the store is currently serving from Redis.
func (s *Store) Durable() bool {
	return s.durable != nil && !s.demoted.Load()
}

// Append records one message for a user, trimming the history to the
// configured bound, oldest first. The read-trim-write sequence holds the
// user's lock so concurrent appends for the same user cannot lose updates.
func (s *Store) Append(ctx context.Context, userID string, role Role, content string) error {
	if err := validateInput(userID, role, content); err != nil {
		return err
	}
	msg := Message{Role: role, Content: content, Timestamp: time.Now().UTC()}

	s.locks.lock(userID)
	defer s.locks.unlock(userID)

	var history []Message
	onDurable := s.runDurable(ctx, "get", func(ctx context.Context) error {
		var err error
		history, err = s.durable.Get(ctx, userID)
		return err
	})
	if !onDurable {
		history, _ = s.volatile.Get(ctx, userID)
	}

	history = append(history, msg)
	if over := len(history) - s.limit; over > 0 {
		history = history[over:]
		if s.metrics != nil {
			s.metrics.TrimmedRecords.Add(float64(over))
		}
	}

	wrote := s.runDurable(ctx, "set", func(ctx context.Context) error {
		return s.durable.Set(ctx, userID, history)
	})
	if !wrote {
		_ = s.volatile.Set(ctx, userID, history)
	}
	s.countOp("append", wrote)
	return nil
}

// History returns the stored conversation, oldest first. A user without
// history gets an empty slice; storage trouble reads as empty, never as
// an error.
func (s *Store) History(ctx context.Context, userID string) ([]Message, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUser
	}

	var history []Message
	onDurable := s.runDurable(ctx, "get", func(ctx context.Context) error {
		var err error
		history, err = s.durable.Get(ctx, userID)
		return err
	})
	if !onDurable {
		history, _ = s.volatile.Get(ctx, userID)
	}
	s.countOp("read", onDurable)
	return history, nil
}

// Clear drops a user's history. Clearing a user with no history is a no-op.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUser
	}

	s.locks.lock(userID)
	defer s.locks.unlock(userID)

	onDurable := s.runDurable(ctx, "delete", func(ctx context.Context) error {
		return s.durable.Delete(ctx, userID)
	})
	// The volatile copy goes regardless, so a fallback write from an
	// earlier outage cannot resurface later.
	_ = s.volatile.Delete(ctx, userID)
	s.countOp("clear", onDurable)
	return nil
}

// ClearAll wipes every known conversation, including any that only exist
// in the volatile fallback after an outage. Only the management surface
// calls this.
func (s *Store) ClearAll(ctx context.Context) error {
	users, err := s.Users(ctx)
	if err != nil {
		return err
	}
	fallbackUsers, _ := s.volatile.Keys(ctx)

	seen := make(map[string]struct{}, len(users)+len(fallbackUsers))
	for _, u := range append(users, fallbackUsers...) {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		if err := s.Clear(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

// Users lists every user id with stored history on the active backend.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	var users []string
	onDurable := s.runDurable(ctx, "keys", func(ctx context.Context) error {
		var err error
		users, err = s.durable.Keys(ctx)
		return err
	})
	if !onDurable {
		return s.volatile.Keys(ctx)
	}
	return users, nil
}

// Summarize derives count, boundary timestamps and role distribution from
// the stored history. It holds no state of its own.
func (s *Store) Summarize(ctx context.Context, userID string) (Summary, error) {
	history, err := s.History(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{UserID: userID, Count: len(history), ByRole: make(map[Role]int)}
	for _, m := range history {
		sum.ByRole[m.Role]++
	}
	if len(history) > 0 {
		sum.First = history[0].Timestamp
		sum.Last = history[len(history)-1].Timestamp
	}
	return sum, nil
}

// Close releases backend connections.
func (s *Store) Close() error {
	if s.durable != nil {
		return s.durable.Close()
	}
	return nil
}

// runDurable executes one durable-backend operation with a single retry
// for transient failures. A false return means the operation did not take
// effect there and the caller should use the volatile path for this call.
func (s *Store) runDurable(ctx context.Context, op string, fn func(context.Context) error) bool {
	if !s.Durable() {
		return false
	}

	start := time.Now()
	err := fn(ctx)
	if err != nil && reliability.IsTransientStorageError(err) {
		time.Sleep(reliability.ExponentialBackoff(0, retryBase, retryCap))
		err = fn(ctx)
	}
	if s.metrics != nil {
		s.metrics.ObserveStorageLatency(time.Since(start))
	}

	if err == nil {
		s.failures.Store(0)
		return true
	}
	s.recordFailure(op, err)
	return false
}

func (s *Store) recordFailure(op string, err error) {
	kind := "permanent"
	if reliability.IsTransientStorageError(err) {
		kind = "transient"
	}
	if s.metrics != nil {
		s.metrics.StorageErrors.WithLabelValues("redis", kind).Inc()
	}
	logrus.WithError(err).WithField("op", op).Warn("durable chat backend failure, using in-process fallback for this call")

	if s.failures.Add(1) >= int32(s.threshold) && s.demoted.CompareAndSwap(false, true) {
		logrus.Warnf("durable chat backend failed %d times in a row, demoting to in-process history for the rest of the process", s.threshold)
		s.setVolatileGauge(true)
	}
}

func (s *Store) countOp(op string, onDurable bool) {
	if s.metrics == nil {
		return
	}
	backend := "memory"
	if onDurable {
		backend = "redis"
	}
	s.metrics.StoreOps.WithLabelValues(op, backend).Inc()
}

func (s *Store) setVolatileGauge(volatile bool) {
	if s.metrics == nil {
		return
	}
	if volatile {
		s.metrics.VolatileMode.Set(1)
	} else {
		s.metrics.VolatileMode.Set(0)
	}
}
