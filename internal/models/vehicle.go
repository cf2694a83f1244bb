package models

import (
	"strings"
	"time"
)

type Vehicle struct {
	ID              string    `json:"vehicle_id"`
	UserID          string    `json:"user_id"`
	Brand           string    `json:"brand" validate:"required,max=50"`
	Model           string    `json:"model" validate:"required,max=50"`
	PlateNumber     string    `json:"plate_number" validate:"required,max=15"`
	Year            int       `json:"year" validate:"required"`
	Type            string    `json:"type" validate:"required,vehicletype"` // motor, mobil
	LastServiceDate string    `json:"last_service_date"`                    // yyyy-MM-dd, empty if never serviced
	CreatedAt       time.Time `json:"created_at"`
}

// DisplayName returns "brand model".
func (v Vehicle) DisplayName() string {
	return v.Brand + " " + v.Model
}

// LastService parses LastServiceDate. ok is false when empty or malformed.
func (v Vehicle) LastService() (time.Time, bool) {
	if strings.TrimSpace(v.LastServiceDate) == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, v.LastServiceDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DaysSinceService returns whole days elapsed between the last service and today.
func (v Vehicle) DaysSinceService(today time.Time) (int, bool) {
	last, ok := v.LastService()
	if !ok {
		return 0, false
	}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(day.Sub(last).Hours() / 24), true
}
