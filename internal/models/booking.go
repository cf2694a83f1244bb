package models

import "time"

type Booking struct {
	ID            string        `json:"booking_id"`
	UserID        string        `json:"user_id"`
	VehicleID     string        `json:"vehicle_id" validate:"required"`
	ServiceTypeID string        `json:"service_type_id" validate:"required"`
	BookingDate   string        `json:"booking_date" validate:"required,datetime=2006-01-02"` // yyyy-MM-dd
	TimeSlot      string        `json:"time_slot" validate:"required,timeslot"`               // 09:00-10:00
	Status        BookingStatus `json:"status"`
	Notes         string        `json:"notes" validate:"max=500"`
	TotalPrice    int           `json:"total_price" validate:"gte=0"`
	PointsEarned  int           `json:"points_earned"`
	CreatedAt     time.Time     `json:"created_at"`
	CompletedAt   time.Time     `json:"completed_at"`
}

// EnrichedBooking is a booking joined with display data of its vehicle and service.
type EnrichedBooking struct {
	Booking            Booking `json:"booking"`
	VehicleName        string  `json:"vehicle_name"`
	VehiclePlateNumber string  `json:"vehicle_plate_number"`
	ServiceName        string  `json:"service_name"`
	ServiceDescription string  `json:"service_description"`
}

// BookingStats aggregates a user's bookings.
type BookingStats struct {
	TotalBookings     int `json:"total_bookings"`
	CompletedBookings int `json:"completed_bookings"`
	TotalSpent        int `json:"total_spent"`
	TotalPointsEarned int `json:"total_points_earned"`
	PendingBookings   int `json:"pending_bookings"`
	ConfirmedBookings int `json:"confirmed_bookings"`
}
