// Package simulation stands in for the remote backend: every store operation passes through
// a Network that may delay it and may fail it with domain.ErrTransient.
package simulation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"bengkelku/internal/config"
	"bengkelku/internal/domain"
	"bengkelku/internal/metrics"

	"github.com/rs/zerolog"
)

// Operation names passed to Network.Call.
const (
	OpCreateBooking       = "create_booking"
	OpUpdateBookingStatus = "update_booking_status"
	OpAddVehicle          = "add_vehicle"
	OpUpdateVehicle       = "update_vehicle"
	OpDeleteVehicle       = "delete_vehicle"
	OpLogin               = "login"
	OpRegister            = "register"
	OpVerifyOTP           = "verify_otp"
	OpUpdateUser          = "update_user"
	OpUpdateProfile       = "update_profile"
	OpLogout              = "logout"
)

type latencyRange struct {
	min, max time.Duration
}

// Задержки демо-бэкенда по группам операций
var defaultLatencies = map[string]latencyRange{
	OpCreateBooking:       {time.Second, 2500 * time.Millisecond},
	OpUpdateBookingStatus: {time.Second, 2500 * time.Millisecond},
	OpAddVehicle:          {800 * time.Millisecond, 1500 * time.Millisecond},
	OpUpdateVehicle:       {800 * time.Millisecond, 1500 * time.Millisecond},
	OpDeleteVehicle:       {800 * time.Millisecond, 1500 * time.Millisecond},
	OpLogin:               {800 * time.Millisecond, 2000 * time.Millisecond},
	OpRegister:            {800 * time.Millisecond, 2000 * time.Millisecond},
	OpVerifyOTP:           {800 * time.Millisecond, 2000 * time.Millisecond},
	OpUpdateUser:          {800 * time.Millisecond, 2000 * time.Millisecond},
	OpUpdateProfile:       {800 * time.Millisecond, 2000 * time.Millisecond},
	OpLogout:              {800 * time.Millisecond, 2000 * time.Millisecond},
}

// Simulator delays calls by a random latency and fails a fraction of the configured operations.
type Simulator struct {
	cfg     config.SimulationConfig
	failing map[string]bool
	logger  *zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand

	sleep func(ctx context.Context, d time.Duration) error
}

func NewSimulator(cfg config.SimulationConfig, logger *zerolog.Logger) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	failing := make(map[string]bool, len(cfg.FailingOperations))
	for _, op := range cfg.FailingOperations {
		failing[op] = true
	}
	return &Simulator{
		cfg:     cfg,
		failing: failing,
		logger:  logger,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		sleep:   sleepContext,
	}
}

// WithSleep replaces the wait function, e.g. with one that records durations.
func (s *Simulator) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Simulator {
	s.sleep = sleep
	return s
}

func (s *Simulator) Call(ctx context.Context, op string) error {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	delay, fail := s.roll(op)

	if err := s.sleep(ctx, delay); err != nil {
		metrics.IncTransientFailure(op)
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTransient, err)
	}

	if fail {
		metrics.IncTransientFailure(op)
		s.logger.Warn().Str("operation", op).Msg("Simulated network failure")
		return fmt.Errorf("%s: %w", op, domain.ErrTransient)
	}
	return nil
}

func (s *Simulator) roll(op string) (time.Duration, bool) {
	lr := latencyRange{s.cfg.MinLatency, s.cfg.MaxLatency}
	if lr.max == 0 {
		lr = defaultLatencies[op]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delay := lr.min
	if span := lr.max - lr.min; span > 0 {
		delay += time.Duration(s.rng.Int64N(int64(span)))
	}
	fail := s.failing[op] && s.rng.Float64() < s.cfg.FailureRate
	return delay, fail
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Nop never delays and never fails.
type Nop struct{}

func (Nop) Call(ctx context.Context, op string) error {
	return ctx.Err()
}

// Scripted fails operations on demand and counts calls. Safe for concurrent use.
type Scripted struct {
	mu    sync.Mutex
	fails map[string]int
	calls map[string]int
}

func NewScripted() *Scripted {
	return &Scripted{fails: map[string]int{}, calls: map[string]int{}}
}

// FailNext makes the next n calls of op return ErrTransient.
func (s *Scripted) FailNext(op string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[op] += n
}

func (s *Scripted) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Scripted) Call(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	if s.fails[op] > 0 {
		s.fails[op]--
		return fmt.Errorf("%s: %w", op, domain.ErrTransient)
	}
	return nil
}

// New picks the simulator for cfg: Simulator when enabled, otherwise Nop.
func New(cfg config.SimulationConfig, logger *zerolog.Logger) domain.Network {
	if !cfg.Enabled {
		return Nop{}
	}
	return NewSimulator(cfg, logger)
}
