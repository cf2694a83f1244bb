package worker

import (
	"context"
	"fmt"
	"time"

	"bengkelku/internal/clock"
	"bengkelku/internal/config"
	"bengkelku/internal/domain"
	"bengkelku/internal/events"
	"bengkelku/internal/metrics"
	"bengkelku/internal/models"

	"github.com/rs/zerolog"
)

// DueVehicles is the part of the vehicle registry the reminder reads.
type DueVehicles interface {
	VehiclesNeedingService() []models.Vehicle
}

// ServiceReminder announces vehicles due for service once a day.
type ServiceReminder struct {
	vehicles DueVehicles
	eventBus domain.EventPublisher
	clock    clock.Clock
	config   config.ReminderConfig
	logger   *zerolog.Logger
}

func NewServiceReminder(vehicles DueVehicles, eventBus domain.EventPublisher, clk clock.Clock, cfg config.ReminderConfig, logger *zerolog.Logger) *ServiceReminder {
	if clk == nil {
		clk = clock.Real{}
	}
	return &ServiceReminder{
		vehicles: vehicles,
		eventBus: eventBus,
		clock:    clk,
		config:   cfg,
		logger:   logger,
	}
}

// Start schedules the daily run at the configured HH:MM and returns immediately.
func (r *ServiceReminder) Start(ctx context.Context) {
	if !r.config.Enabled {
		r.logger.Info().Msg("Service reminder is disabled")
		return
	}

	hour, minute, err := parseClock(r.config.Time)
	if err != nil {
		r.logger.Error().Err(err).Str("reminder_time", r.config.Time).Msg("Invalid reminder time format")
		return
	}

	go func() {
		// First wait until next reminder time, then tick every 24h.
		timer := time.NewTimer(timeUntil(r.clock.Now(), hour, minute))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				r.RunOnce(ctx)
				timer.Reset(24 * time.Hour)
			}
		}
	}()
}

// RunOnce publishes a service_due event per vehicle needing service and returns how many.
func (r *ServiceReminder) RunOnce(ctx context.Context) int {
	due := r.vehicles.VehiclesNeedingService()
	metrics.SetVehiclesDue(len(due))

	now := r.clock.Now()
	for _, v := range due {
		if ctx.Err() != nil {
			break
		}
		days, _ := v.DaysSinceService(now)
		payload := events.VehicleEventPayload{
			VehicleID:       v.ID,
			UserID:          v.UserID,
			DisplayName:     v.DisplayName(),
			PlateNumber:     v.PlateNumber,
			LastServiceDate: v.LastServiceDate,
			DaysSince:       days,
		}
		if r.eventBus != nil {
			if err := r.eventBus.PublishJSON(events.EventServiceDue, payload); err != nil {
				r.logger.Error().Err(err).Str("vehicle_id", v.ID).Msg("reminder: publish error")
			}
		}
	}

	r.logger.Info().Int("due", len(due)).Msg("Service reminder run finished")
	return len(due)
}

func parseClock(s string) (int, int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, err
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time out of range: %s", s)
	}
	return hour, minute, nil
}

func timeUntil(now time.Time, hour, minute int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
