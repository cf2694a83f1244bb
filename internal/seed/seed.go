// Package seed provides the catalog and demo account the app starts with.
package seed

import (
	"fmt"
	"os"
	"time"

	"bengkelku/internal/clock"
	"bengkelku/internal/config"
	"bengkelku/internal/models"

	"gopkg.in/yaml.v3"
)

// Демо-аккаунт
const (
	DemoUserID   = "user_fathin_001"
	DemoPhone    = "08123456789"
	DemoPassword = "password123"
)

const day = 24 * time.Hour

// Provider supplies seed data. Timestamps are relative to the provider's clock.
type Provider interface {
	ServiceCatalog() []models.ServiceType
	DemoUser() models.User
	DemoVehicles() []models.Vehicle
	DemoBookings() []models.Booking
}

type Demo struct {
	clock    clock.Clock
	services []models.ServiceType
}

// NewDemo builds the demo provider. A nil services list uses DefaultServices.
func NewDemo(c clock.Clock, services []models.ServiceType) *Demo {
	if c == nil {
		c = clock.Real{}
	}
	if len(services) == 0 {
		services = DefaultServices()
	}
	return &Demo{clock: c, services: services}
}

func (d *Demo) ServiceCatalog() []models.ServiceType {
	return append([]models.ServiceType(nil), d.services...)
}

func (d *Demo) DemoUser() models.User {
	return models.User{
		ID:          DemoUserID,
		Name:        "Fathin Muhashibi Putra",
		Phone:       DemoPhone,
		Email:       "fathin@email.com",
		TotalPoints: 275,
		CreatedAt:   d.clock.Now().Add(-365 * day),
		IsActive:    true,
	}
}

func (d *Demo) DemoVehicles() []models.Vehicle {
	now := d.clock.Now()
	return []models.Vehicle{
		{
			ID:              "vehicle_001",
			UserID:          DemoUserID,
			Brand:           "Honda",
			Model:           "Beat",
			PlateNumber:     "B 1234 XYZ",
			Year:            2020,
			Type:            models.VehicleTypeMotor,
			LastServiceDate: "2024-12-15",
			CreatedAt:       now.Add(-200 * day),
		},
		{
			ID:              "vehicle_002",
			UserID:          DemoUserID,
			Brand:           "Yamaha",
			Model:           "Mio",
			PlateNumber:     "B 5678 ABC",
			Year:            2019,
			Type:            models.VehicleTypeMotor,
			LastServiceDate: "2024-11-20",
			CreatedAt:       now.Add(-300 * day),
		},
	}
}

// DemoBookings returns the history newest first.
func (d *Demo) DemoBookings() []models.Booking {
	now := d.clock.Now()
	return []models.Booking{
		{
			ID:            "BK005",
			UserID:        DemoUserID,
			VehicleID:     "vehicle_001",
			ServiceTypeID: "2",
			BookingDate:   "2024-12-28",
			TimeSlot:      "09:00-10:00",
			Status:        models.StatusPending,
			Notes:         "Service rutin akhir tahun",
			TotalPrice:    75000,
			CreatedAt:     now.Add(-2 * time.Hour),
		},
		{
			ID:            "BK006",
			UserID:        DemoUserID,
			VehicleID:     "vehicle_002",
			ServiceTypeID: "1",
			BookingDate:   "2024-12-30",
			TimeSlot:      "11:00-12:00",
			Status:        models.StatusConfirmed,
			Notes:         "Persiapan tahun baru",
			TotalPrice:    50000,
			CreatedAt:     now.Add(-1 * day),
		},
		{
			ID:            "BK001",
			UserID:        DemoUserID,
			VehicleID:     "vehicle_001",
			ServiceTypeID: "1",
			BookingDate:   "2024-12-15",
			TimeSlot:      "09:00-10:00",
			Status:        models.StatusCompleted,
			Notes:         "Oli sudah mulai kehitaman, ganti dengan oli synthetic",
			TotalPrice:    50000,
			PointsEarned:  50,
			CreatedAt:     now.Add(-8 * day),
			CompletedAt:   now.Add(-7 * day),
		},
		{
			ID:            "BK002",
			UserID:        DemoUserID,
			VehicleID:     "vehicle_002",
			ServiceTypeID: "2",
			BookingDate:   "2024-11-20",
			TimeSlot:      "14:00-15:00",
			Status:        models.StatusCompleted,
			Notes:         "Service rutin bulanan, kondisi mesin baik",
			TotalPrice:    75000,
			PointsEarned:  75,
			CreatedAt:     now.Add(-33 * day),
			CompletedAt:   now.Add(-32 * day),
		},
		{
			ID:            "BK003",
			UserID:        DemoUserID,
			VehicleID:     "vehicle_001",
			ServiceTypeID: "3",
			BookingDate:   "2024-10-25",
			TimeSlot:      "10:00-11:30",
			Status:        models.StatusCompleted,
			Notes:         "Busi baru, karburator dibersihkan, performa meningkat",
			TotalPrice:    150000,
			PointsEarned:  150,
			CreatedAt:     now.Add(-59 * day),
			CompletedAt:   now.Add(-58 * day),
		},
		{
			// мойка баллов не даёт
			ID:            "BK004",
			UserID:        DemoUserID,
			VehicleID:     "vehicle_002",
			ServiceTypeID: "5",
			BookingDate:   "2024-10-10",
			TimeSlot:      "15:00-16:00",
			Status:        models.StatusCompleted,
			Notes:         "Cuci dan poles untuk acara keluarga",
			TotalPrice:    25000,
			CreatedAt:     now.Add(-74 * day),
			CompletedAt:   now.Add(-74 * day),
		},
	}
}

// EarnedPoints sums pointsEarned over completed bookings.
func EarnedPoints(bookings []models.Booking) int {
	total := 0
	for _, b := range bookings {
		if b.Status == models.StatusCompleted {
			total += b.PointsEarned
		}
	}
	return total
}

func DefaultServices() []models.ServiceType {
	return []models.ServiceType{
		{ID: "1", Name: "Ganti Oli", Description: "Ganti oli mesin dan filter oli berkualitas", Price: 50000, PointsReward: 50, EstimatedTime: "30 menit", VehicleType: models.VehicleTypeBoth, IsActive: true},
		{ID: "2", Name: "Service Rutin", Description: "Pemeriksaan rutin kondisi kendaraan menyeluruh", Price: 75000, PointsReward: 75, EstimatedTime: "45 menit", VehicleType: models.VehicleTypeBoth, IsActive: true},
		{ID: "3", Name: "Tune Up", Description: "Tune up lengkap mesin untuk performa optimal", Price: 150000, PointsReward: 150, EstimatedTime: "90 menit", VehicleType: models.VehicleTypeBoth, IsActive: true},
		{ID: "4", Name: "Ganti Ban", Description: "Ganti ban kendaraan dengan ban berkualitas", Price: 200000, PointsReward: 200, EstimatedTime: "60 menit", VehicleType: models.VehicleTypeBoth, IsActive: true},
		{ID: "5", Name: "Cuci Motor", Description: "Cuci dan poles kendaraan hingga mengkilap", Price: 25000, PointsReward: 25, EstimatedTime: "20 menit", VehicleType: models.VehicleTypeMotor, IsActive: true},
		{ID: "6", Name: "Cuci Mobil", Description: "Cuci dan poles mobil lengkap dengan vacuum", Price: 50000, PointsReward: 50, EstimatedTime: "40 menit", VehicleType: models.VehicleTypeMobil, IsActive: true},
	}
}

// LoadServices reads a catalog file of the form `services: [...]`.
func LoadServices(path string) ([]models.ServiceType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read services: %w", err)
	}

	var servicesConfig struct {
		Services []models.ServiceType `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &servicesConfig); err != nil {
		return nil, fmt.Errorf("parse services: %w", err)
	}
	if err := config.ValidateServices(servicesConfig.Services); err != nil {
		return nil, err
	}

	return servicesConfig.Services, nil
}
