package domain

import (
	"context"

	"bengkelku/internal/models"
)

// Store is the raw key-value backend behind every collection.
// Get returns (nil, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Network stands in for the remote backend: it may delay and may fail an operation.
type Network interface {
	Call(ctx context.Context, op string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Session exposes the logged-in user to the other stores.
type Session interface {
	CurrentUserID() (string, bool)
}

// PointsLedger is the part of the user store the booking engine writes to.
type PointsLedger interface {
	AddPointsTo(ctx context.Context, userID string, points int) error
}

// VehicleLookup is the part of the vehicle registry the booking engine reads and writes.
type VehicleLookup interface {
	GetVehicle(vehicleID string) (*models.Vehicle, error)
	UpdateLastServiceDate(ctx context.Context, vehicleID, date string) error
}

type ServiceCatalog interface {
	ListActive() []models.ServiceType
	ListActiveForVehicleType(vehicleType string) []models.ServiceType
	GetByID(id string) (*models.ServiceType, error)
}

type UserService interface {
	Login(ctx context.Context, phone, password string) (*models.User, error)
	Register(ctx context.Context, name, phone, email, password string) (*models.User, error)
	VerifyOTP(ctx context.Context, phone, code string) (*models.User, error)
	UpdateUser(ctx context.Context, user models.User) error
	UpdateProfile(ctx context.Context, name, email, phone string) error
	AddPoints(ctx context.Context, points int) error
	AddPointsTo(ctx context.Context, userID string, points int) error
	DeductPoints(ctx context.Context, points int) (bool, error)
	CurrentUser() (*models.User, bool)
	CurrentUserID() (string, bool)
	CurrentPoints() int
	IsLoggedIn() bool
	Logout(ctx context.Context) error
	RegisteredUsers() map[string]models.User
	ResetToDefaultUser(ctx context.Context) error
	Refresh(ctx context.Context)
}

type VehicleService interface {
	AddVehicle(ctx context.Context, vehicle models.Vehicle) (string, error)
	UpdateVehicle(ctx context.Context, vehicle models.Vehicle) error
	DeleteVehicle(ctx context.Context, vehicleID string) error
	UpdateLastServiceDate(ctx context.Context, vehicleID, date string) error
	GetVehicle(vehicleID string) (*models.Vehicle, error)
	UserVehicles(userID string) []models.Vehicle
	VehiclesByType(vehicleType string) []models.Vehicle
	VehiclesNeedingService() []models.Vehicle
	NeedsService(vehicle models.Vehicle) bool
	SearchVehicles(query string) []models.Vehicle
	VehiclesByYear(year int) []models.Vehicle
	VehiclesByBrand(brand string) []models.Vehicle
	Count() int
	HasVehicles() bool
	Refresh(ctx context.Context)
}

type BookingService interface {
	CreateBooking(ctx context.Context, draft models.Booking) (string, error)
	UpdateBookingStatus(ctx context.Context, bookingID string, status models.BookingStatus) error
	CancelBooking(ctx context.Context, bookingID string) error
	GetBooking(bookingID string) (*models.Booking, error)
	UserBookings(userID string) []models.Booking
	BookingsByStatus(status models.BookingStatus, userID string) []models.Booking
	ActiveBookings(userID string) []models.Booking
	CompletedBookings(userID string) []models.Booking
	EnrichedBookings(userID string) []models.EnrichedBooking
	BookingStats(userID string) models.BookingStats
	SearchBookings(query, userID string) []models.Booking
	AvailableTimeSlots() []string
	Refresh(ctx context.Context)
}
