package seed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bengkelku/internal/clock"
	"bengkelku/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoProvider(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	demo := NewDemo(clock.NewFixed(now), nil)

	user := demo.DemoUser()
	assert.Equal(t, DemoUserID, user.ID)
	assert.Equal(t, DemoPhone, user.Phone)
	assert.Equal(t, now.AddDate(0, 0, -365), user.CreatedAt)

	bookings := demo.DemoBookings()
	require.Len(t, bookings, 6)
	assert.Equal(t, 275, EarnedPoints(bookings))

	for i := 1; i < len(bookings); i++ {
		assert.False(t, bookings[i].CreatedAt.After(bookings[i-1].CreatedAt), "bookings must be newest first")
	}
	for _, b := range bookings {
		if b.Status != models.StatusCompleted {
			assert.Zero(t, b.PointsEarned)
			assert.True(t, b.CompletedAt.IsZero())
		}
	}

	vehicles := demo.DemoVehicles()
	require.Len(t, vehicles, 2)
	assert.Equal(t, "Honda Beat", vehicles[0].DisplayName())
	assert.Len(t, demo.ServiceCatalog(), 6)
}

func TestLoadServices(t *testing.T) {
	dir := t.TempDir()

	t.Run("Valid", func(t *testing.T) {
		path := filepath.Join(dir, "services.yaml")
		content := `
services:
  - id: "1"
    name: Ganti Oli
    price: 50000
    points_reward: 50
    estimated_time: 30 menit
    vehicle_type: both
    is_active: true
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		services, err := LoadServices(path)
		require.NoError(t, err)
		require.Len(t, services, 1)
		assert.Equal(t, "Rp 50.000", services[0].FormattedPrice())

		demo := NewDemo(nil, services)
		assert.Len(t, demo.ServiceCatalog(), 1)
	})

	t.Run("Duplicate", func(t *testing.T) {
		path := filepath.Join(dir, "dup.yaml")
		content := `
services:
  - {id: "1", name: A, vehicle_type: both}
  - {id: "1", name: B, vehicle_type: both}
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err := LoadServices(path)
		assert.Error(t, err)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := LoadServices(filepath.Join(dir, "none.yaml"))
		assert.Error(t, err)
	})
}
