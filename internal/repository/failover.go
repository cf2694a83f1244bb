package repository

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"bengkelku/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStore writes to primary until it fails, then serves from fallback and
// retries primary once per recoveryInterval. Keys written during the outage are
// copied back to primary before it serves again.
type FailoverStore struct {
	primary  domain.Store
	fallback domain.Store
	logger   *zerolog.Logger

	isDown atomic.Bool
	// gate is held shared by writes that land in fallback and exclusively while
	// switching back to primary.
	gate sync.RWMutex

	mu        sync.Mutex
	lastCheck time.Time
	gen       uint64
	dirty     map[string]uint64
	cleared   uint64
}

func NewFailoverStore(primary, fallback domain.Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		dirty:    make(map[string]uint64),
	}
}

// Degraded reports whether calls are currently served by the fallback.
func (s *FailoverStore) Degraded() bool {
	return s.isDown.Load()
}

// Pending reports how many keys wait to be copied back to primary.
func (s *FailoverStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

func (s *FailoverStore) markDown(err error) {
	s.logger.Error().Err(err).Msg("Primary store failed, falling back to memory")
	s.isDown.Store(true)
	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()
}

func (s *FailoverStore) recoveryDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastCheck) <= recoveryInterval {
		return false
	}
	s.lastCheck = time.Now()
	return true
}

func (s *FailoverStore) markDirty(key string) {
	s.mu.Lock()
	s.gen++
	s.dirty[key] = s.gen
	s.mu.Unlock()
}

func (s *FailoverStore) markCleared() {
	s.mu.Lock()
	s.gen++
	s.cleared = s.gen
	clear(s.dirty)
	s.mu.Unlock()
}

// tryRecover runs at most once per recoveryInterval while primary is down.
func (s *FailoverStore) tryRecover(ctx context.Context) {
	if !s.isDown.Load() || !s.recoveryDue() {
		return
	}
	if err := s.resync(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Primary store still unavailable")
	}
}

// resync replays the outage writes onto primary: a Clear first, then every
// dirty key with its current fallback value. Keys rewritten meanwhile stay
// dirty for the next round. Primary takes over once nothing is left.
func (s *FailoverStore) resync(ctx context.Context) error {
	s.mu.Lock()
	cleared := s.cleared
	pending := maps.Clone(s.dirty)
	s.mu.Unlock()

	if cleared != 0 {
		if err := s.primary.Clear(ctx); err != nil {
			return err
		}
		s.mu.Lock()
		if s.cleared == cleared {
			s.cleared = 0
		}
		s.mu.Unlock()
	}

	for key, gen := range pending {
		val, err := s.fallback.Get(ctx, key)
		if err != nil {
			return err
		}
		if val == nil {
			err = s.primary.Delete(ctx, key)
		} else {
			err = s.primary.Set(ctx, key, val)
		}
		if err != nil {
			return err
		}

		s.mu.Lock()
		if s.dirty[key] == gen {
			delete(s.dirty, key)
		}
		s.mu.Unlock()
	}

	s.gate.Lock()
	defer s.gate.Unlock()
	s.mu.Lock()
	done := len(s.dirty) == 0 && s.cleared == 0
	s.mu.Unlock()
	if !done {
		return nil
	}
	s.isDown.Store(false)
	s.logger.Info().Int("replayed", len(pending)).Msg("Primary store recovered")
	return nil
}

// writeFallback applies op to fallback and records the write. It reports false
// when primary came back in the meantime and the caller should use it instead.
func (s *FailoverStore) writeFallback(op func() error, record func()) (bool, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if !s.isDown.Load() {
		return false, nil
	}
	if err := op(); err != nil {
		return true, err
	}
	record()
	return true, nil
}

func (s *FailoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.tryRecover(ctx)

	if !s.isDown.Load() {
		val, err := s.primary.Get(ctx, key)
		if err == nil {
			return val, nil
		}
		s.markDown(err)
	}

	return s.fallback.Get(ctx, key)
}

func (s *FailoverStore) Set(ctx context.Context, key string, value []byte) error {
	s.tryRecover(ctx)

	for {
		if !s.isDown.Load() {
			err := s.primary.Set(ctx, key, value)
			if err == nil {
				return nil
			}
			s.markDown(err)
		}

		handled, err := s.writeFallback(
			func() error { return s.fallback.Set(ctx, key, value) },
			func() { s.markDirty(key) },
		)
		if handled {
			return err
		}
	}
}

func (s *FailoverStore) Delete(ctx context.Context, key string) error {
	s.tryRecover(ctx)

	for {
		if !s.isDown.Load() {
			err := s.primary.Delete(ctx, key)
			if err == nil {
				return nil
			}
			s.markDown(err)
		}

		handled, err := s.writeFallback(
			func() error { return s.fallback.Delete(ctx, key) },
			func() { s.markDirty(key) },
		)
		if handled {
			return err
		}
	}
}

// Clear wipes both stores so stale fallback data cannot resurface. A Clear made
// during an outage is repeated on primary when it recovers.
func (s *FailoverStore) Clear(ctx context.Context) error {
	s.tryRecover(ctx)

	if !s.isDown.Load() {
		if err := s.primary.Clear(ctx); err != nil {
			s.markDown(err)
		}
	}

	handled, err := s.writeFallback(
		func() error { return s.fallback.Clear(ctx) },
		s.markCleared,
	)
	if handled {
		return err
	}
	return s.fallback.Clear(ctx)
}
