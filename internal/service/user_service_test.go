package service

import (
	"context"
	"errors"
	"testing"

	"bengkelku/internal/config"
	"bengkelku/internal/domain"
	"bengkelku/internal/events"
	"bengkelku/internal/seed"
	"bengkelku/internal/simulation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	users := f.coord.Users

	require.False(t, users.IsLoggedIn())

	_, err := users.Login(ctx, seed.DemoPhone, "wrong")
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))
	_, err = users.Login(ctx, "0800000000", seed.DemoPassword)
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))

	u, err := users.Login(ctx, seed.DemoPhone, seed.DemoPassword)
	require.NoError(t, err)
	assert.Equal(t, seed.DemoUserID, u.ID)
	assert.True(t, users.IsLoggedIn())
	assert.Equal(t, 275, users.CurrentPoints())
	assert.Len(t, f.events.ofType(events.EventUserLoggedIn), 1)
}

func TestLogin_Transient(t *testing.T) {
	f := newFixture(t)
	f.network.FailNext(simulation.OpLogin, 1)

	_, err := f.coord.Users.Login(context.Background(), seed.DemoPhone, seed.DemoPassword)
	assert.True(t, domain.IsTransient(err))
	assert.False(t, f.coord.Users.IsLoggedIn())
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	users := f.coord.Users

	u, err := users.Register(ctx, " Budi Santoso ", "081298765432", "budi@email.com", "rahasia")
	require.NoError(t, err)
	assert.Equal(t, "user_1", u.ID)
	assert.Equal(t, "Budi Santoso", u.Name)
	assert.Equal(t, 0, u.TotalPoints)
	assert.True(t, u.IsActive)
	assert.False(t, users.IsLoggedIn(), "register does not log in")

	registered := users.RegisteredUsers()
	assert.Contains(t, registered, "081298765432")
	assert.Contains(t, registered, seed.DemoPhone)

	_, err = users.Register(ctx, "Budi Lain", "081298765432", "", "rahasia")
	assert.True(t, errors.Is(err, domain.ErrAlreadyExists))

	logged, err := users.Login(ctx, "081298765432", "rahasia")
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name, fullName, phone, email, password string
	}{
		{"short password", "Budi", "081298765432", "", "123"},
		{"phone letters", "Budi", "08abc", "", "rahasia"},
		{"bad email", "Budi", "081298765432", "budi@", "rahasia"},
		{"blank name", "  ", "081298765432", "", "rahasia"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.Users.Register(ctx, tt.fullName, tt.phone, tt.email, tt.password)
			assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
		})
	}
	assert.Equal(t, 0, f.network.Calls(simulation.OpRegister))
}

func TestVerifyOTP(t *testing.T) {
	ctx := context.Background()

	t.Run("RegisteredPhone", func(t *testing.T) {
		f := newFixture(t)
		u, err := f.coord.Users.Register(ctx, "Budi", "081298765432", "", "rahasia")
		require.NoError(t, err)

		got, err := f.coord.Users.VerifyOTP(ctx, "081298765432", "123456")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		current, ok := f.coord.Users.CurrentUser()
		require.True(t, ok)
		assert.Equal(t, u.ID, current.ID)
	})

	t.Run("UnknownPhoneFallsBackToDemo", func(t *testing.T) {
		f := newFixture(t)
		got, err := f.coord.Users.VerifyOTP(ctx, "0899999999", "000000")
		require.NoError(t, err)
		assert.Equal(t, seed.DemoUserID, got.ID)
	})

	t.Run("BadCode", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.coord.Users.VerifyOTP(ctx, seed.DemoPhone, "12345")
		assert.True(t, errors.Is(err, domain.ErrValidation))
		assert.False(t, f.coord.Users.IsLoggedIn())
	})

	t.Run("RateLimited", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.Config) {
			cfg.Auth.OTPAttemptsPerMinute = 1
			cfg.Auth.OTPBurst = 2
		})
		_, err := f.coord.Users.VerifyOTP(ctx, seed.DemoPhone, "bad")
		assert.True(t, errors.Is(err, domain.ErrValidation))
		_, err = f.coord.Users.VerifyOTP(ctx, seed.DemoPhone, "bad")
		assert.True(t, errors.Is(err, domain.ErrValidation))

		_, err = f.coord.Users.VerifyOTP(ctx, seed.DemoPhone, "123456")
		assert.True(t, errors.Is(err, domain.ErrTooManyAttempts))

		// Limits are per phone.
		_, err = f.coord.Users.VerifyOTP(ctx, "081298765432", "123456")
		assert.NoError(t, err)
	})
}

func TestPoints(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()
	users := f.coord.Users

	require.NoError(t, users.AddPoints(ctx, 25))
	assert.Equal(t, 300, users.CurrentPoints())
	assert.True(t, users.CanRedeem())

	ok, err := users.DeductPoints(ctx, 1000)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, domain.ErrInsufficientBalance))
	assert.Equal(t, 300, users.CurrentPoints())

	ok, err = users.DeductPoints(ctx, 250)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 50, users.CurrentPoints())
	assert.False(t, users.CanRedeem())

	assert.True(t, errors.Is(users.AddPoints(ctx, -5), domain.ErrValidation))
	_, err = users.DeductPoints(ctx, -5)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	// Registry follows the session user.
	assert.Equal(t, 50, users.RegisteredUsers()[seed.DemoPhone].TotalPoints)
	assert.Len(t, f.events.ofType(events.EventPointsDeducted), 1)
}

func TestUserEvents_SubscribersReadBack(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()
	users := f.coord.Users

	seen := map[string]int{}
	for _, eventType := range []string{events.EventUserLoggedIn, events.EventUserRegistered, events.EventPointsDeducted, events.EventUserLoggedOut} {
		eventType := eventType
		f.bus.Subscribe(eventType, func(*events.Event) error {
			seen[eventType] = users.CurrentPoints()
			_ = users.RegisteredUsers()
			return nil
		})
	}

	completes(t, func() error {
		_, err := users.DeductPoints(ctx, 75)
		return err
	})
	completes(t, func() error {
		_, err := users.Register(ctx, "Budi", "081298765432", "", "rahasia")
		return err
	})
	completes(t, func() error { return users.Logout(ctx) })
	completes(t, func() error {
		_, err := users.Login(ctx, seed.DemoPhone, seed.DemoPassword)
		return err
	})

	assert.Equal(t, 200, seen[events.EventPointsDeducted])
	assert.Equal(t, 200, seen[events.EventUserRegistered])
	assert.Equal(t, 0, seen[events.EventUserLoggedOut])
	assert.Equal(t, 200, seen[events.EventUserLoggedIn])
}

func TestPoints_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.True(t, errors.Is(f.coord.Users.AddPoints(ctx, 10), domain.ErrUnauthenticated))
	_, err := f.coord.Users.DeductPoints(ctx, 10)
	assert.True(t, errors.Is(err, domain.ErrUnauthenticated))
	assert.Equal(t, 0, f.coord.Users.CurrentPoints())
}

func TestAddPointsTo(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()
	users := f.coord.Users

	u, err := users.Register(ctx, "Budi", "081298765432", "", "rahasia")
	require.NoError(t, err)

	require.NoError(t, users.AddPointsTo(ctx, u.ID, 40))
	assert.Equal(t, 40, users.RegisteredUsers()["081298765432"].TotalPoints)
	assert.Equal(t, 275, users.CurrentPoints(), "session user untouched")

	require.NoError(t, users.AddPointsTo(ctx, u.ID, 0))
	assert.True(t, errors.Is(users.AddPointsTo(ctx, "user_ghost", 10), domain.ErrNotFound))

	// Password survives the registry rewrite.
	_, err = users.Login(ctx, "081298765432", "rahasia")
	require.NoError(t, err)
	assert.Equal(t, 40, users.CurrentPoints())
}

func TestUpdateProfile(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()
	users := f.coord.Users

	_, err := users.Register(ctx, "Budi", "081298765432", "", "rahasia")
	require.NoError(t, err)

	err = users.UpdateProfile(ctx, "Fathin", "fathin@email.com", "081298765432")
	assert.True(t, errors.Is(err, domain.ErrAlreadyExists))

	err = users.UpdateProfile(ctx, "Fathin", "not-an-email", seed.DemoPhone)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	require.NoError(t, users.UpdateProfile(ctx, "Fathin MP", "fathin@bengkel.id", "08111222333"))
	current, ok := users.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "Fathin MP", current.Name)
	assert.Equal(t, "08111222333", current.Phone)
	assert.Equal(t, 275, current.TotalPoints)

	registered := users.RegisteredUsers()
	assert.NotContains(t, registered, seed.DemoPhone)
	assert.Contains(t, registered, "08111222333")

	require.NoError(t, users.Logout(ctx))
	_, err = users.Login(ctx, "08111222333", seed.DemoPassword)
	require.NoError(t, err)

	require.NoError(t, users.Logout(ctx))
	assert.True(t, errors.Is(users.UpdateProfile(ctx, "X Y", "", "08111222333"), domain.ErrUnauthenticated))
}

func TestUpdateUser(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()

	current, ok := f.coord.Users.CurrentUser()
	require.True(t, ok)
	current.TotalPoints = 500
	require.NoError(t, f.coord.Users.UpdateUser(ctx, *current))
	assert.Equal(t, 500, f.coord.Users.CurrentPoints())

	current.Phone = "x"
	assert.True(t, errors.Is(f.coord.Users.UpdateUser(ctx, *current), domain.ErrValidation))
}

func TestLogoutAndReset(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()
	users := f.coord.Users

	require.NoError(t, users.AddPoints(ctx, 100))
	require.NoError(t, users.Logout(ctx))
	assert.False(t, users.IsLoggedIn())
	assert.Equal(t, 0, users.CurrentPoints())
	_, ok := users.CurrentUserID()
	assert.False(t, ok)
	assert.Contains(t, users.RegisteredUsers(), seed.DemoPhone)
	assert.Len(t, f.events.ofType(events.EventUserLoggedOut), 1)

	require.NoError(t, users.ResetToDefaultUser(ctx))
	assert.True(t, users.IsLoggedIn())
	assert.Equal(t, 275, users.CurrentPoints())
}

func TestUsers_RefreshFromStorage(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()

	require.NoError(t, f.coord.Users.AddPoints(ctx, 10))

	reloaded := NewCoordinator(Deps{Store: f.store, Clock: f.clock, Config: f.config})
	reloaded.Users.Refresh(ctx)
	assert.Equal(t, 285, reloaded.Users.CurrentPoints())
	assert.Len(t, reloaded.Users.RegisteredUsers(), 1)
}
