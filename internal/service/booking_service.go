package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"bengkelku/internal/clock"
	"bengkelku/internal/config"
	"bengkelku/internal/domain"
	"bengkelku/internal/events"
	"bengkelku/internal/ids"
	"bengkelku/internal/metrics"
	"bengkelku/internal/models"
	"bengkelku/internal/repository"
	"bengkelku/internal/simulation"

	"github.com/rs/zerolog"
)

// Side effects of completing a booking.
const (
	EffectCreditPoints       = "credit_points"
	EffectVehicleServiceDate = "vehicle_service_date"
)

// Допустимые переходы в строгом режиме; повтор текущего статуса разрешён всегда
var strictTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.StatusPending:    {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed:  {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted, models.StatusCancelled},
}

// BookingService owns the booking list. Completion credits the owner's points and stamps the
// vehicle's service date; those two writes are best-effort and never rolled back.
type BookingService struct {
	store    domain.Store
	network  domain.Network
	eventBus domain.EventPublisher
	session  domain.Session
	catalog  domain.ServiceCatalog
	vehicles domain.VehicleLookup
	points   domain.PointsLedger
	clock    clock.Clock
	ids      ids.Generator
	config   config.BookingConfig
	logger   *zerolog.Logger

	mu       sync.RWMutex
	bookings []models.Booking // newest first
}

func NewBookingService(
	store domain.Store,
	network domain.Network,
	eventBus domain.EventPublisher,
	session domain.Session,
	catalog domain.ServiceCatalog,
	vehicles domain.VehicleLookup,
	points domain.PointsLedger,
	clk clock.Clock,
	gen ids.Generator,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *BookingService {
	return &BookingService{
		store:    store,
		network:  network,
		eventBus: eventBus,
		session:  session,
		catalog:  catalog,
		vehicles: vehicles,
		points:   points,
		clock:    clk,
		ids:      gen,
		config:   cfg,
		logger:   logger,
	}
}

func (s *BookingService) Refresh(ctx context.Context) {
	bookings := repository.ReadCollection[models.Booking](ctx, s.store, repository.KeyBookings, s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = bookings
}

// Seed stores bookings as the whole history.
func (s *BookingService) Seed(ctx context.Context, bookings []models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, append([]models.Booking(nil), bookings...))
}

// CreateBooking books draft for the session user and returns the new id. Status, owner and
// timestamps of draft are ignored; a zero price is taken from the catalog.
func (s *BookingService) CreateBooking(ctx context.Context, draft models.Booking) (string, error) {
	if err := validateStruct(draft); err != nil {
		return "", err
	}
	userID, ok := s.session.CurrentUserID()
	if !ok {
		return "", domain.ErrUnauthenticated
	}

	if err := s.network.Call(ctx, simulation.OpCreateBooking); err != nil {
		s.logger.Warn().Err(err).Str("vehicle_id", draft.VehicleID).Msg("Create booking failed")
		return "", err
	}

	booking := draft
	booking.ID = s.ids.New(ids.PrefixBooking)
	booking.UserID = userID
	booking.Status = models.StatusPending
	booking.CreatedAt = s.clock.Now()
	booking.CompletedAt = time.Time{}
	booking.PointsEarned = 0
	if booking.TotalPrice == 0 {
		if svc, err := s.catalog.GetByID(booking.ServiceTypeID); err == nil {
			booking.TotalPrice = svc.Price
		}
	}

	s.mu.Lock()
	updated := make([]models.Booking, 0, len(s.bookings)+1)
	updated = append(updated, booking)
	updated = append(updated, s.bookings...)
	err := s.commit(ctx, updated)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	metrics.IncBookingCreated()
	s.logger.Info().Str("booking_id", booking.ID).Str("user_id", userID).Str("service_type_id", booking.ServiceTypeID).Msg("Booking created")
	s.publishBooking(events.EventBookingCreated, booking, "")
	return booking.ID, nil
}

// UpdateBookingStatus moves a booking to status. Entering COMPLETED sets completedAt and
// pointsEarned and triggers the completion side effects once; any other status clears both.
func (s *BookingService) UpdateBookingStatus(ctx context.Context, bookingID string, status models.BookingStatus) error {
	if !status.Valid() {
		return domain.NewValidationError("status", "oneof")
	}

	if err := s.network.Call(ctx, simulation.OpUpdateBookingStatus); err != nil {
		return err
	}

	before, after, err := s.applyStatus(ctx, bookingID, status)
	if err != nil {
		return err
	}

	metrics.IncStatusTransition(string(status))
	s.logger.Info().
		Str("booking_id", bookingID).
		Str("from", string(before.Status)).
		Str("to", string(status)).
		Msg("Booking status updated")
	s.publishBooking(events.EventBookingStatusChanged, after, before.Status)
	if status == models.StatusCancelled && before.Status != models.StatusCancelled {
		s.publishBooking(events.EventBookingCancelled, after, before.Status)
	}

	if status == models.StatusCompleted && before.Status != models.StatusCompleted {
		s.completeSideEffects(ctx, after)
	}
	return nil
}

func (s *BookingService) CancelBooking(ctx context.Context, bookingID string) error {
	return s.UpdateBookingStatus(ctx, bookingID, models.StatusCancelled)
}

func (s *BookingService) applyStatus(ctx context.Context, bookingID string, status models.BookingStatus) (models.Booking, models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(bookingID)
	if idx < 0 {
		return models.Booking{}, models.Booking{}, fmt.Errorf("booking %s: %w", bookingID, domain.ErrNotFound)
	}
	before := s.bookings[idx]

	if s.config.StrictTransitions && !transitionAllowed(before.Status, status) {
		return before, before, fmt.Errorf("%s -> %s: %w", before.Status, status, domain.ErrInvalidTransition)
	}

	after := before
	after.Status = status
	switch {
	case status != models.StatusCompleted:
		after.CompletedAt = time.Time{}
		after.PointsEarned = 0
	case before.Status != models.StatusCompleted:
		after.CompletedAt = s.clock.Now()
		after.PointsEarned = 0
		if svc, err := s.catalog.GetByID(before.ServiceTypeID); err == nil {
			after.PointsEarned = svc.PointsReward
		}
	}

	updated := append([]models.Booking(nil), s.bookings...)
	updated[idx] = after
	if err := s.commit(ctx, updated); err != nil {
		return before, before, err
	}
	return before, after, nil
}

func transitionAllowed(from, to models.BookingStatus) bool {
	if from == to {
		return true
	}
	return slices.Contains(strictTransitions[from], to)
}

// completeSideEffects runs outside the booking lock. A failure is logged, counted and
// published; earlier effects stay applied.
func (s *BookingService) completeSideEffects(ctx context.Context, booking models.Booking) {
	if booking.PointsEarned > 0 {
		if err := s.points.AddPointsTo(ctx, booking.UserID, booking.PointsEarned); err != nil {
			s.sideEffectFailed(booking, EffectCreditPoints, err)
		}
	}

	if err := s.vehicles.UpdateLastServiceDate(ctx, booking.VehicleID, clock.Today(s.clock)); err != nil {
		s.sideEffectFailed(booking, EffectVehicleServiceDate, err)
	}

	s.publishBooking(events.EventBookingCompleted, booking, "")
}

func (s *BookingService) sideEffectFailed(booking models.Booking, effect string, err error) {
	metrics.IncSideEffectFailure(effect)
	s.logger.Error().Err(err).Str("booking_id", booking.ID).Str("effect", effect).Msg("Completion side effect failed")
	if s.eventBus == nil {
		return
	}
	payload := events.SideEffectPayload{BookingID: booking.ID, Effect: effect, Error: err.Error()}
	if perr := s.eventBus.PublishJSON(events.EventSideEffectFailed, payload); perr != nil {
		s.logger.Error().Err(perr).Msg("publish event error")
	}
}

func (s *BookingService) GetBooking(bookingID string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOf(bookingID)
	if idx < 0 {
		return nil, fmt.Errorf("booking %s: %w", bookingID, domain.ErrNotFound)
	}
	b := s.bookings[idx]
	return &b, nil
}

// UserBookings lists the bookings of userID newest first; an empty userID means the session user.
func (s *BookingService) UserBookings(userID string) []models.Booking {
	return s.userBookings(userID, func(models.Booking) bool { return true })
}

func (s *BookingService) BookingsByStatus(status models.BookingStatus, userID string) []models.Booking {
	return s.userBookings(userID, func(b models.Booking) bool { return b.Status == status })
}

func (s *BookingService) ActiveBookings(userID string) []models.Booking {
	return s.userBookings(userID, func(b models.Booking) bool { return b.Status.Active() })
}

func (s *BookingService) CompletedBookings(userID string) []models.Booking {
	return s.BookingsByStatus(models.StatusCompleted, userID)
}

// EnrichedBookings joins the user's bookings with vehicle and service names. Dangling
// references get placeholder text instead of an error.
func (s *BookingService) EnrichedBookings(userID string) []models.EnrichedBooking {
	bookings := s.UserBookings(userID)
	result := make([]models.EnrichedBooking, 0, len(bookings))
	for _, b := range bookings {
		eb := models.EnrichedBooking{
			Booking:     b,
			VehicleName: models.VehicleNotFound,
			ServiceName: models.ServiceNotFound,
		}
		if v, err := s.vehicles.GetVehicle(b.VehicleID); err == nil {
			eb.VehicleName = v.DisplayName()
			eb.VehiclePlateNumber = v.PlateNumber
		}
		if svc, err := s.catalog.GetByID(b.ServiceTypeID); err == nil {
			eb.ServiceName = svc.Name
			eb.ServiceDescription = svc.Description
		}
		result = append(result, eb)
	}
	return result
}

func (s *BookingService) BookingStats(userID string) models.BookingStats {
	var stats models.BookingStats
	for _, b := range s.UserBookings(userID) {
		stats.TotalBookings++
		switch b.Status {
		case models.StatusCompleted:
			stats.CompletedBookings++
			stats.TotalSpent += b.TotalPrice
			stats.TotalPointsEarned += b.PointsEarned
		case models.StatusPending:
			stats.PendingBookings++
		case models.StatusConfirmed:
			stats.ConfirmedBookings++
		}
	}
	return stats
}

// SearchBookings matches notes, booking id, vehicle brand/model and service name
// case-insensitively. A blank query returns all of the user's bookings.
func (s *BookingService) SearchBookings(query, userID string) []models.Booking {
	bookings := s.UserBookings(userID)
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return bookings
	}

	result := make([]models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if s.matches(b, q) {
			result = append(result, b)
		}
	}
	return result
}

func (s *BookingService) matches(b models.Booking, q string) bool {
	if strings.Contains(strings.ToLower(b.Notes), q) || strings.Contains(strings.ToLower(b.ID), q) {
		return true
	}
	if v, err := s.vehicles.GetVehicle(b.VehicleID); err == nil {
		if strings.Contains(strings.ToLower(v.Brand), q) || strings.Contains(strings.ToLower(v.Model), q) {
			return true
		}
	}
	if svc, err := s.catalog.GetByID(b.ServiceTypeID); err == nil {
		return strings.Contains(strings.ToLower(svc.Name), q)
	}
	return false
}

func (s *BookingService) AvailableTimeSlots() []string {
	return append([]string(nil), models.TimeSlots...)
}

func (s *BookingService) userBookings(userID string, keep func(models.Booking) bool) []models.Booking {
	if userID == "" {
		id, ok := s.session.CurrentUserID()
		if !ok {
			return []models.Booking{}
		}
		userID = id
	}

	s.mu.RLock()
	result := make([]models.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		if b.UserID == userID && keep(b) {
			result = append(result, b)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(result, func(a, b models.Booking) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return result
}

func (s *BookingService) indexOf(bookingID string) int {
	for i, b := range s.bookings {
		if b.ID == bookingID {
			return i
		}
	}
	return -1
}

// commit persists the new list and only then swaps it in. Callers hold s.mu.
func (s *BookingService) commit(ctx context.Context, bookings []models.Booking) error {
	if err := repository.WriteCollection(ctx, s.store, repository.KeyBookings, bookings); err != nil {
		return err
	}
	s.bookings = bookings
	return nil
}

func (s *BookingService) publishBooking(eventType string, b models.Booking, previous models.BookingStatus) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:      b.ID,
		UserID:         b.UserID,
		VehicleID:      b.VehicleID,
		ServiceTypeID:  b.ServiceTypeID,
		Status:         string(b.Status),
		PreviousStatus: string(previous),
		BookingDate:    b.BookingDate,
		TimeSlot:       b.TimeSlot,
		TotalPrice:     b.TotalPrice,
		PointsEarned:   b.PointsEarned,
		ChangedAt:      s.clock.Now(),
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", b.ID).Msg("publish event error")
	}
}
