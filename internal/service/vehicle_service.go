package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"bengkelku/internal/clock"
	"bengkelku/internal/config"
	"bengkelku/internal/domain"
	"bengkelku/internal/events"
	"bengkelku/internal/ids"
	"bengkelku/internal/models"
	"bengkelku/internal/repository"
	"bengkelku/internal/simulation"

	"github.com/rs/zerolog"
)

type VehicleService struct {
	store    domain.Store
	network  domain.Network
	eventBus domain.EventPublisher
	session  domain.Session
	clock    clock.Clock
	ids      ids.Generator
	config   config.VehicleConfig
	logger   *zerolog.Logger

	mu       sync.RWMutex
	vehicles []models.Vehicle
}

func NewVehicleService(
	store domain.Store,
	network domain.Network,
	eventBus domain.EventPublisher,
	session domain.Session,
	clk clock.Clock,
	gen ids.Generator,
	cfg config.VehicleConfig,
	logger *zerolog.Logger,
) *VehicleService {
	if cfg.ServiceIntervalDays <= 0 {
		cfg.ServiceIntervalDays = models.ServiceIntervalDays
	}
	return &VehicleService{
		store:    store,
		network:  network,
		eventBus: eventBus,
		session:  session,
		clock:    clk,
		ids:      gen,
		config:   cfg,
		logger:   logger,
	}
}

// ParseYear converts form input into a model year.
func ParseYear(input string) (int, error) {
	year, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, domain.NewValidationError("year", "numeric")
	}
	return year, nil
}

func (s *VehicleService) Refresh(ctx context.Context) {
	vehicles := repository.ReadCollection[models.Vehicle](ctx, s.store, repository.KeyVehicles, s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.vehicles = vehicles
}

// Seed stores vehicles as the whole registry.
func (s *VehicleService) Seed(ctx context.Context, vehicles []models.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, append([]models.Vehicle(nil), vehicles...))
}

func (s *VehicleService) validate(v *models.Vehicle) error {
	v.Brand = strings.TrimSpace(v.Brand)
	v.Model = strings.TrimSpace(v.Model)
	v.PlateNumber = strings.ToUpper(strings.TrimSpace(v.PlateNumber))
	v.Type = strings.ToLower(strings.TrimSpace(v.Type))
	if err := validateStruct(*v); err != nil {
		return err
	}
	// Год выпуска от 1980 до текущего
	if v.Year < models.MinVehicleYear || v.Year > s.clock.Now().Year() {
		return domain.NewValidationError("year", "range")
	}
	if v.LastServiceDate != "" {
		if _, err := time.Parse(models.DateLayout, v.LastServiceDate); err != nil {
			return domain.NewValidationError("last_service_date", "datetime")
		}
	}
	return nil
}

// AddVehicle registers a vehicle for the session user and returns its id.
func (s *VehicleService) AddVehicle(ctx context.Context, vehicle models.Vehicle) (string, error) {
	if err := s.validate(&vehicle); err != nil {
		return "", err
	}
	userID, ok := s.session.CurrentUserID()
	if !ok {
		return "", domain.ErrUnauthenticated
	}
	if err := s.network.Call(ctx, simulation.OpAddVehicle); err != nil {
		return "", err
	}

	vehicle.ID = s.ids.New(ids.PrefixVehicle)
	vehicle.UserID = userID
	vehicle.CreatedAt = s.clock.Now()

	s.mu.Lock()
	updated := make([]models.Vehicle, 0, len(s.vehicles)+1)
	updated = append(updated, s.vehicles...)
	updated = append(updated, vehicle)
	err := s.commit(ctx, updated)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	s.logger.Info().Str("vehicle_id", vehicle.ID).Str("user_id", userID).Msg("Vehicle added")
	s.publish(events.EventVehicleAdded, vehicle)
	return vehicle.ID, nil
}

// UpdateVehicle replaces the stored vehicle with the same id. Owner and creation time are kept.
func (s *VehicleService) UpdateVehicle(ctx context.Context, vehicle models.Vehicle) error {
	if err := s.validate(&vehicle); err != nil {
		return err
	}
	if err := s.network.Call(ctx, simulation.OpUpdateVehicle); err != nil {
		return err
	}

	stored, err := s.replace(ctx, vehicle)
	if err != nil {
		return err
	}
	s.publish(events.EventVehicleUpdated, stored)
	return nil
}

func (s *VehicleService) replace(ctx context.Context, vehicle models.Vehicle) (models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(vehicle.ID)
	if idx < 0 {
		return models.Vehicle{}, fmt.Errorf("vehicle %s: %w", vehicle.ID, domain.ErrNotFound)
	}
	existing := s.vehicles[idx]
	vehicle.UserID = existing.UserID
	vehicle.CreatedAt = existing.CreatedAt

	updated := append([]models.Vehicle(nil), s.vehicles...)
	updated[idx] = vehicle
	if err := s.commit(ctx, updated); err != nil {
		return models.Vehicle{}, err
	}
	return vehicle, nil
}

func (s *VehicleService) DeleteVehicle(ctx context.Context, vehicleID string) error {
	if err := s.network.Call(ctx, simulation.OpDeleteVehicle); err != nil {
		return err
	}

	removed, err := s.remove(ctx, vehicleID)
	if err != nil {
		return err
	}

	s.logger.Info().Str("vehicle_id", vehicleID).Msg("Vehicle deleted")
	s.publish(events.EventVehicleDeleted, removed)
	return nil
}

func (s *VehicleService) remove(ctx context.Context, vehicleID string) (models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(vehicleID)
	if idx < 0 {
		return models.Vehicle{}, fmt.Errorf("vehicle %s: %w", vehicleID, domain.ErrNotFound)
	}
	removed := s.vehicles[idx]

	updated := make([]models.Vehicle, 0, len(s.vehicles)-1)
	updated = append(updated, s.vehicles[:idx]...)
	updated = append(updated, s.vehicles[idx+1:]...)
	if err := s.commit(ctx, updated); err != nil {
		return models.Vehicle{}, err
	}
	return removed, nil
}

// UpdateLastServiceDate records a service visit. It is called by the booking engine and
// does not go through the network simulation.
func (s *VehicleService) UpdateLastServiceDate(ctx context.Context, vehicleID, date string) error {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return domain.NewValidationError("last_service_date", "datetime")
	}

	serviced, err := s.stampServiced(ctx, vehicleID, date)
	if err != nil {
		return err
	}
	s.publish(events.EventVehicleServiced, serviced)
	return nil
}

func (s *VehicleService) stampServiced(ctx context.Context, vehicleID, date string) (models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(vehicleID)
	if idx < 0 {
		return models.Vehicle{}, fmt.Errorf("vehicle %s: %w", vehicleID, domain.ErrNotFound)
	}
	updated := append([]models.Vehicle(nil), s.vehicles...)
	updated[idx].LastServiceDate = date
	if err := s.commit(ctx, updated); err != nil {
		return models.Vehicle{}, err
	}
	return updated[idx], nil
}

func (s *VehicleService) GetVehicle(vehicleID string) (*models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOf(vehicleID)
	if idx < 0 {
		return nil, fmt.Errorf("vehicle %s: %w", vehicleID, domain.ErrNotFound)
	}
	v := s.vehicles[idx]
	return &v, nil
}

// UserVehicles lists vehicles of userID; an empty userID means the session user.
func (s *VehicleService) UserVehicles(userID string) []models.Vehicle {
	if userID == "" {
		id, ok := s.session.CurrentUserID()
		if !ok {
			return []models.Vehicle{}
		}
		userID = id
	}
	return s.filter(func(v models.Vehicle) bool { return v.UserID == userID })
}

func (s *VehicleService) VehiclesByType(vehicleType string) []models.Vehicle {
	return s.filter(func(v models.Vehicle) bool { return strings.EqualFold(v.Type, vehicleType) })
}

func (s *VehicleService) VehiclesNeedingService() []models.Vehicle {
	return s.filter(s.NeedsService)
}

// NeedsService reports whether the last service is at least the configured interval ago.
// Vehicles never serviced are flagged only with flag_never_serviced.
func (s *VehicleService) NeedsService(vehicle models.Vehicle) bool {
	days, ok := vehicle.DaysSinceService(s.clock.Now())
	if !ok {
		return s.config.FlagNeverServiced && strings.TrimSpace(vehicle.LastServiceDate) == ""
	}
	return days >= s.config.ServiceIntervalDays
}

// SearchVehicles matches brand, model, plate and type case-insensitively. A blank query
// returns every vehicle.
func (s *VehicleService) SearchVehicles(query string) []models.Vehicle {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s.filter(func(models.Vehicle) bool { return true })
	}
	return s.filter(func(v models.Vehicle) bool {
		return strings.Contains(strings.ToLower(v.Brand), q) ||
			strings.Contains(strings.ToLower(v.Model), q) ||
			strings.Contains(strings.ToLower(v.PlateNumber), q) ||
			strings.Contains(strings.ToLower(v.Type), q)
	})
}

func (s *VehicleService) VehiclesByYear(year int) []models.Vehicle {
	return s.filter(func(v models.Vehicle) bool { return v.Year == year })
}

func (s *VehicleService) VehiclesByBrand(brand string) []models.Vehicle {
	return s.filter(func(v models.Vehicle) bool { return strings.EqualFold(v.Brand, brand) })
}

func (s *VehicleService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vehicles)
}

func (s *VehicleService) HasVehicles() bool {
	return s.Count() > 0
}

func (s *VehicleService) filter(keep func(models.Vehicle) bool) []models.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		if keep(v) {
			result = append(result, v)
		}
	}
	return result
}

func (s *VehicleService) indexOf(vehicleID string) int {
	for i, v := range s.vehicles {
		if v.ID == vehicleID {
			return i
		}
	}
	return -1
}

// commit persists the new list and only then swaps it in. Callers hold s.mu.
func (s *VehicleService) commit(ctx context.Context, vehicles []models.Vehicle) error {
	if err := repository.WriteCollection(ctx, s.store, repository.KeyVehicles, vehicles); err != nil {
		return err
	}
	s.vehicles = vehicles
	return nil
}

func (s *VehicleService) publish(eventType string, v models.Vehicle) {
	if s.eventBus == nil {
		return
	}
	payload := events.VehicleEventPayload{
		VehicleID:       v.ID,
		UserID:          v.UserID,
		DisplayName:     v.DisplayName(),
		PlateNumber:     v.PlateNumber,
		LastServiceDate: v.LastServiceDate,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("vehicle_id", v.ID).Msg("publish event error")
	}
}
