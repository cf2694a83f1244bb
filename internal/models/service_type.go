package models

import (
	"fmt"
	"strings"
)

type ServiceType struct {
	ID            string `yaml:"id" json:"service_id"`
	Name          string `yaml:"name" json:"name"`
	Description   string `yaml:"description" json:"description"`
	Price         int    `yaml:"price" json:"price"`
	PointsReward  int    `yaml:"points_reward" json:"points_reward"`
	EstimatedTime string `yaml:"estimated_time" json:"estimated_time"`
	VehicleType   string `yaml:"vehicle_type" json:"vehicle_type"` // motor, mobil, both
	IsActive      bool   `yaml:"is_active" json:"is_active"`
}

// AppliesTo reports whether the service can be booked for the given vehicle type.
func (s ServiceType) AppliesTo(vehicleType string) bool {
	return strings.EqualFold(s.VehicleType, VehicleTypeBoth) || strings.EqualFold(s.VehicleType, vehicleType)
}

// FormattedPrice renders the price as rupiah with thousands separators.
func (s ServiceType) FormattedPrice() string {
	digits := fmt.Sprintf("%d", s.Price)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return "Rp " + b.String()
}
