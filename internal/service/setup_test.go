package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"bengkelku/internal/clock"
	"bengkelku/internal/config"
	"bengkelku/internal/events"
	"bengkelku/internal/ids"
	"bengkelku/internal/logging"
	"bengkelku/internal/repository"
	"bengkelku/internal/seed"
	"bengkelku/internal/simulation"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) handle(e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(eventType string) []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	coord   *Coordinator
	store   *repository.MemoryStore
	network *simulation.Scripted
	clock   *clock.Fixed
	events  *recorder
	bus     *events.EventBus
	config  *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		Auth:    config.AuthConfig{BcryptCost: bcrypt.MinCost},
		Vehicle: config.VehicleConfig{ServiceIntervalDays: 90},
		Booking: config.BookingConfig{RetryAttempts: 3},
	}
}

// newFixture builds a coordinator over memory storage and loads it. Demo data is not installed.
func newFixture(t *testing.T, edit ...func(cfg *config.Config)) *fixture {
	t.Helper()

	cfg := testConfig()
	for _, fn := range edit {
		fn(cfg)
	}

	f := &fixture{
		store:   repository.NewMemoryStore(),
		network: simulation.NewScripted(),
		clock:   clock.NewFixed(testNow),
		events:  &recorder{},
		config:  cfg,
	}

	f.bus = events.NewEventBus()
	f.bus.Subscribe(events.AllEvents, f.events.handle)

	f.coord = NewCoordinator(Deps{
		Store:   f.store,
		Network: f.network,
		Events:  f.bus,
		Clock:   f.clock,
		IDs:     &ids.Sequence{},
		Seed:    seed.NewDemo(f.clock, nil),
		Config:  cfg,
		Logger:  logging.Nop(),
	})
	require.NoError(t, f.coord.Load(context.Background()))
	return f
}

// newDemoFixture also installs the demo user, vehicles and booking history.
func newDemoFixture(t *testing.T, edit ...func(cfg *config.Config)) *fixture {
	t.Helper()
	f := newFixture(t, edit...)
	require.NoError(t, f.coord.EnsureDemoData(context.Background()))
	return f
}

// completes runs fn and fails the test if it does not return in time.
func completes(t *testing.T, fn func() error) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "call blocked on a subscriber reading back")
	}
}
