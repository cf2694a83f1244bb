package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"bengkelku/internal/config"
	"bengkelku/internal/domain"
	"bengkelku/internal/events"
	"bengkelku/internal/models"
	"bengkelku/internal/simulation"
	"bengkelku/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draftBooking() models.Booking {
	return models.Booking{
		VehicleID:     "vehicle_001",
		ServiceTypeID: "1",
		BookingDate:   "2025-01-10",
		TimeSlot:      "09:00-10:00",
		Notes:         "Oli mulai hitam",
	}
}

func TestCreateBooking(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()
	bookings := f.coord.Bookings

	id, err := bookings.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)
	assert.Equal(t, "BK1", id)

	b, err := bookings.GetBooking(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, "user_fathin_001", b.UserID)
	assert.Equal(t, 50000, b.TotalPrice, "price taken from catalog")
	assert.Equal(t, 0, b.PointsEarned)
	assert.True(t, b.CompletedAt.IsZero())
	assert.Equal(t, testNow, b.CreatedAt)

	list := bookings.UserBookings("")
	require.Len(t, list, 7)
	assert.Equal(t, id, list[0].ID, "newest first")

	assert.Len(t, f.events.ofType(events.EventBookingCreated), 1)
	assert.Equal(t, 1, f.network.Calls(simulation.OpCreateBooking))
}

func TestCreateBooking_KeepsDraftPrice(t *testing.T) {
	f := newDemoFixture(t)
	draft := draftBooking()
	draft.TotalPrice = 45000
	draft.Status = models.StatusCompleted
	draft.PointsEarned = 999

	id, err := f.coord.Bookings.CreateBooking(context.Background(), draft)
	require.NoError(t, err)

	b, err := f.coord.Bookings.GetBooking(id)
	require.NoError(t, err)
	assert.Equal(t, 45000, b.TotalPrice)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, 0, b.PointsEarned)
}

func TestCreateBooking_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("Validation", func(t *testing.T) {
		f := newDemoFixture(t)
		draft := draftBooking()
		draft.TimeSlot = "10:00-09:00"
		_, err := f.coord.Bookings.CreateBooking(ctx, draft)
		assert.True(t, errors.Is(err, domain.ErrValidation))
		assert.Equal(t, 0, f.network.Calls(simulation.OpCreateBooking))
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		f := newDemoFixture(t)
		require.NoError(t, f.coord.Users.Logout(ctx))
		_, err := f.coord.Bookings.CreateBooking(ctx, draftBooking())
		assert.True(t, errors.Is(err, domain.ErrUnauthenticated))
	})

	t.Run("TransientLeavesNoTrace", func(t *testing.T) {
		f := newDemoFixture(t)
		f.network.FailNext(simulation.OpCreateBooking, 1)

		_, err := f.coord.Bookings.CreateBooking(ctx, draftBooking())
		assert.True(t, domain.IsTransient(err))
		assert.Len(t, f.coord.Bookings.UserBookings(""), 6)
		assert.Empty(t, f.events.ofType(events.EventBookingCreated))
	})
}

func TestCreateBookingWithRetry(t *testing.T) {
	f := newDemoFixture(t)
	f.network.FailNext(simulation.OpCreateBooking, 2)
	policy := worker.RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	id, err := f.coord.CreateBookingWithRetry(context.Background(), draftBooking(), policy)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 3, f.network.Calls(simulation.OpCreateBooking))
	assert.Len(t, f.coord.Bookings.UserBookings(""), 7)

	f.network.FailNext(simulation.OpCreateBooking, 5)
	_, err = f.coord.CreateBookingWithRetry(context.Background(), draftBooking(), policy)
	assert.True(t, domain.IsTransient(err))
}

func TestCompleteBooking_SideEffects(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()
	require.Equal(t, 275, f.coord.Users.CurrentPoints())

	id, err := f.coord.Bookings.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.coord.Bookings.UpdateBookingStatus(ctx, id, models.StatusCompleted))

	b, err := f.coord.Bookings.GetBooking(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, b.Status)
	assert.Equal(t, 50, b.PointsEarned)
	assert.Equal(t, testNow.Add(time.Hour), b.CompletedAt)

	assert.Equal(t, 325, f.coord.Users.CurrentPoints())
	v, err := f.coord.Vehicles.GetVehicle("vehicle_001")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-05", v.LastServiceDate)

	assert.Len(t, f.events.ofType(events.EventBookingCompleted), 1)
	assert.Len(t, f.events.ofType(events.EventPointsCredited), 1)
	assert.Empty(t, f.events.ofType(events.EventSideEffectFailed))
}

func TestCompleteBooking_Twice(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()

	id, err := f.coord.Bookings.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)
	require.NoError(t, f.coord.Bookings.UpdateBookingStatus(ctx, id, models.StatusCompleted))
	first, err := f.coord.Bookings.GetBooking(id)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	require.NoError(t, f.coord.Bookings.UpdateBookingStatus(ctx, id, models.StatusCompleted))

	second, err := f.coord.Bookings.GetBooking(id)
	require.NoError(t, err)
	assert.Equal(t, first.CompletedAt, second.CompletedAt)
	assert.Equal(t, 50, second.PointsEarned)
	assert.Equal(t, 325, f.coord.Users.CurrentPoints(), "no double credit")
	assert.Len(t, f.events.ofType(events.EventBookingCompleted), 1)
}

func TestCancelAfterComplete_KeepsBalance(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()

	id, err := f.coord.Bookings.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)
	require.NoError(t, f.coord.Bookings.UpdateBookingStatus(ctx, id, models.StatusCompleted))
	require.NoError(t, f.coord.Bookings.CancelBooking(ctx, id))

	b, err := f.coord.Bookings.GetBooking(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, b.Status)
	assert.Equal(t, 0, b.PointsEarned)
	assert.True(t, b.CompletedAt.IsZero())
	assert.Equal(t, 325, f.coord.Users.CurrentPoints(), "credited points are not taken back")
	assert.Len(t, f.events.ofType(events.EventBookingCancelled), 1)
}

func TestRecompleteAfterCancel_CreditsAgain(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()

	id, err := f.coord.Bookings.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)
	require.NoError(t, f.coord.Bookings.UpdateBookingStatus(ctx, id, models.StatusCompleted))
	require.NoError(t, f.coord.Bookings.CancelBooking(ctx, id))
	require.Equal(t, 325, f.coord.Users.CurrentPoints())

	f.clock.Advance(48 * time.Hour)
	require.NoError(t, f.coord.Bookings.UpdateBookingStatus(ctx, id, models.StatusCompleted))

	b, err := f.coord.Bookings.GetBooking(id)
	require.NoError(t, err)
	assert.Equal(t, 50, b.PointsEarned)
	assert.Equal(t, testNow.Add(48*time.Hour), b.CompletedAt)
	assert.Equal(t, 375, f.coord.Users.CurrentPoints(), "a fresh completion credits again")
	assert.Len(t, f.events.ofType(events.EventBookingCompleted), 2)
	assert.Len(t, f.events.ofType(events.EventPointsCredited), 2)
}

func TestRecompleteAfterCancel_StrictRejects(t *testing.T) {
	f := newDemoFixture(t, func(cfg *config.Config) { cfg.Booking.StrictTransitions = true })
	ctx := context.Background()

	id, err := f.coord.Bookings.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)
	require.NoError(t, f.coord.Bookings.CancelBooking(ctx, id))

	err = f.coord.Bookings.UpdateBookingStatus(ctx, id, models.StatusCompleted)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
	assert.Equal(t, 275, f.coord.Users.CurrentPoints())
}

func TestCompleteBooking_SubscribersReadBack(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()

	var balance int
	var serviced string
	f.bus.Subscribe(events.EventPointsCredited, func(*events.Event) error {
		balance = f.coord.Users.CurrentPoints()
		return nil
	})
	f.bus.Subscribe(events.EventVehicleServiced, func(e *events.Event) error {
		var payload events.VehicleEventPayload
		if err := e.Decode(&payload); err != nil {
			return err
		}
		stored, err := f.coord.Vehicles.GetVehicle(payload.VehicleID)
		if err != nil {
			return err
		}
		serviced = stored.LastServiceDate
		return nil
	})

	id, err := f.coord.Bookings.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)

	completes(t, func() error {
		return f.coord.Bookings.UpdateBookingStatus(ctx, id, models.StatusCompleted)
	})
	assert.Equal(t, 325, balance)
	assert.Equal(t, "2025-01-05", serviced)
}

func TestCompleteBooking_MissingVehicleStillCredits(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()

	id, err := f.coord.Bookings.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)
	require.NoError(t, f.coord.Vehicles.DeleteVehicle(ctx, "vehicle_001"))

	require.NoError(t, f.coord.Bookings.UpdateBookingStatus(ctx, id, models.StatusCompleted))
	assert.Equal(t, 325, f.coord.Users.CurrentPoints())

	failed := f.events.ofType(events.EventSideEffectFailed)
	require.Len(t, failed, 1)
	var payload events.SideEffectPayload
	require.NoError(t, failed[0].Decode(&payload))
	assert.Equal(t, id, payload.BookingID)
	assert.Equal(t, EffectVehicleServiceDate, payload.Effect)
}

func TestCompleteBooking_UnknownServiceEarnsNothing(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()

	draft := draftBooking()
	draft.ServiceTypeID = "99"
	id, err := f.coord.Bookings.CreateBooking(ctx, draft)
	require.NoError(t, err)

	require.NoError(t, f.coord.Bookings.UpdateBookingStatus(ctx, id, models.StatusCompleted))
	b, err := f.coord.Bookings.GetBooking(id)
	require.NoError(t, err)
	assert.Equal(t, 0, b.TotalPrice)
	assert.Equal(t, 0, b.PointsEarned)
	assert.Equal(t, 275, f.coord.Users.CurrentPoints())

	v, err := f.coord.Vehicles.GetVehicle("vehicle_001")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-05", v.LastServiceDate)
}

func TestUpdateBookingStatus_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("UnknownStatus", func(t *testing.T) {
		f := newDemoFixture(t)
		err := f.coord.Bookings.UpdateBookingStatus(ctx, "BK005", models.BookingStatus("DONE"))
		assert.True(t, errors.Is(err, domain.ErrValidation))
	})

	t.Run("UnknownBooking", func(t *testing.T) {
		f := newDemoFixture(t)
		err := f.coord.Bookings.UpdateBookingStatus(ctx, "BK404", models.StatusConfirmed)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("Transient", func(t *testing.T) {
		f := newDemoFixture(t)
		f.network.FailNext(simulation.OpUpdateBookingStatus, 1)
		err := f.coord.Bookings.UpdateBookingStatus(ctx, "BK005", models.StatusConfirmed)
		assert.True(t, domain.IsTransient(err))

		b, err := f.coord.Bookings.GetBooking("BK005")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, b.Status)
	})
}

func TestUpdateBookingStatus_Permissive(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()

	// PENDING straight to IN_PROGRESS and back is accepted by default.
	require.NoError(t, f.coord.Bookings.UpdateBookingStatus(ctx, "BK005", models.StatusInProgress))
	require.NoError(t, f.coord.Bookings.UpdateBookingStatus(ctx, "BK005", models.StatusPending))
}

func TestUpdateBookingStatus_Strict(t *testing.T) {
	f := newDemoFixture(t, func(cfg *config.Config) { cfg.Booking.StrictTransitions = true })
	ctx := context.Background()

	err := f.coord.Bookings.UpdateBookingStatus(ctx, "BK005", models.StatusCompleted)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	require.NoError(t, f.coord.Bookings.UpdateBookingStatus(ctx, "BK005", models.StatusConfirmed))
	require.NoError(t, f.coord.Bookings.UpdateBookingStatus(ctx, "BK005", models.StatusConfirmed))
	require.NoError(t, f.coord.Bookings.UpdateBookingStatus(ctx, "BK005", models.StatusInProgress))
	require.NoError(t, f.coord.Bookings.UpdateBookingStatus(ctx, "BK005", models.StatusCompleted))

	err = f.coord.Bookings.CancelBooking(ctx, "BK005")
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestBookingStats(t *testing.T) {
	f := newDemoFixture(t)

	stats := f.coord.Bookings.BookingStats("")
	assert.Equal(t, models.BookingStats{
		TotalBookings:     6,
		CompletedBookings: 4,
		TotalSpent:        300000,
		TotalPointsEarned: 275,
		PendingBookings:   1,
		ConfirmedBookings: 1,
	}, stats)

	assert.Equal(t, stats.TotalPointsEarned, f.coord.Users.CurrentPoints())
	assert.Equal(t, models.BookingStats{}, f.coord.Bookings.BookingStats("user_nobody"))
}

func TestBookingQueries(t *testing.T) {
	f := newDemoFixture(t)
	b := f.coord.Bookings

	assert.Len(t, b.ActiveBookings(""), 2)
	assert.Len(t, b.CompletedBookings(""), 4)
	assert.Len(t, b.BookingsByStatus(models.StatusPending, ""), 1)
	assert.Len(t, b.AvailableTimeSlots(), 8)

	ids := func(list []models.Booking) []string {
		out := make([]string, 0, len(list))
		for _, bk := range list {
			out = append(out, bk.ID)
		}
		return out
	}
	assert.Equal(t, []string{"BK005", "BK006", "BK001", "BK002", "BK003", "BK004"}, ids(b.UserBookings("")))
	assert.Equal(t, []string{"BK005", "BK001", "BK003"}, ids(b.SearchBookings("HONDA", "")))
	assert.Equal(t, []string{"BK003"}, ids(b.SearchBookings("tune", "")))
	assert.Equal(t, []string{"BK004"}, ids(b.SearchBookings("acara keluarga", "")))
	assert.Len(t, b.SearchBookings("  ", ""), 6)
	assert.Empty(t, b.SearchBookings("zzz", ""))

	require.NoError(t, f.coord.Users.Logout(context.Background()))
	assert.Empty(t, b.UserBookings(""))
	assert.Len(t, b.UserBookings("user_fathin_001"), 6)
}

func TestEnrichedBookings(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()

	enriched := f.coord.Bookings.EnrichedBookings("")
	require.Len(t, enriched, 6)
	assert.Equal(t, "Honda Beat", enriched[0].VehicleName)
	assert.Equal(t, "B 1234 XYZ", enriched[0].VehiclePlateNumber)
	assert.Equal(t, "Service Rutin", enriched[0].ServiceName)

	require.NoError(t, f.coord.Vehicles.DeleteVehicle(ctx, "vehicle_002"))
	enriched = f.coord.Bookings.EnrichedBookings("")
	assert.Equal(t, "BK006", enriched[1].Booking.ID)
	assert.Equal(t, models.VehicleNotFound, enriched[1].VehicleName)
	assert.Equal(t, "Ganti Oli", enriched[1].ServiceName)

	draft := draftBooking()
	draft.ServiceTypeID = "99"
	_, err := f.coord.Bookings.CreateBooking(ctx, draft)
	require.NoError(t, err)
	enriched = f.coord.Bookings.EnrichedBookings("")
	assert.Equal(t, models.ServiceNotFound, enriched[0].ServiceName)
}

func TestBookings_PersistAcrossReload(t *testing.T) {
	f := newDemoFixture(t)
	ctx := context.Background()

	id, err := f.coord.Bookings.CreateBooking(ctx, draftBooking())
	require.NoError(t, err)

	reloaded := NewCoordinator(Deps{Store: f.store, Clock: f.clock, Config: f.config})
	require.NoError(t, reloaded.Load(ctx))

	b, err := reloaded.Bookings.GetBooking(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.True(t, reloaded.IsDataInitialized(ctx))
	assert.False(t, reloaded.IsFirstLaunch(ctx))
}
