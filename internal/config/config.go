package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"bengkelku/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

type Config struct {
	App        AppConfig            `yaml:"app"`
	Storage    StorageConfig        `yaml:"storage"`
	Redis      RedisConfig          `yaml:"redis"`
	Backup     BackupConfig         `yaml:"backup"`
	Simulation SimulationConfig     `yaml:"simulation"`
	Booking    BookingConfig        `yaml:"booking"`
	Vehicle    VehicleConfig        `yaml:"vehicle"`
	Auth       AuthConfig           `yaml:"auth"`
	Reminder   ReminderConfig       `yaml:"reminder"`
	Exports    ExportConfig         `yaml:"exports"`
	Monitoring MonitoringConfig     `yaml:"monitoring"`
	Logging    LoggingConfig        `yaml:"logging"`
	Services   []models.ServiceType `yaml:"services"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	SeedDemo    bool   `yaml:"seed_demo"`
}

type StorageConfig struct {
	Driver   string `yaml:"driver"`   // memory, sqlite, redis
	Path     string `yaml:"path"`     // sqlite file
	Failover bool   `yaml:"failover"` // fall back to memory when redis is down
}

type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type SimulationConfig struct {
	Enabled           bool          `yaml:"enabled"`
	MinLatency        time.Duration `yaml:"min_latency"`
	MaxLatency        time.Duration `yaml:"max_latency"`
	FailureRate       float64       `yaml:"failure_rate"`
	FailingOperations []string      `yaml:"failing_operations"`
	Timeout           time.Duration `yaml:"timeout"`
	Seed              uint64        `yaml:"seed"`
}

type BookingConfig struct {
	StrictTransitions bool `yaml:"strict_transitions"`
	RetryAttempts     int  `yaml:"retry_attempts"`
}

type VehicleConfig struct {
	ServiceIntervalDays int  `yaml:"service_interval_days"`
	FlagNeverServiced   bool `yaml:"flag_never_serviced"`
}

type AuthConfig struct {
	OTPAttemptsPerMinute float64 `yaml:"otp_attempts_per_minute"`
	OTPBurst             int     `yaml:"otp_burst"`
	BcryptCost           int     `yaml:"bcrypt_cost"` // 0 means bcrypt.DefaultCost
}

type ReminderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Time    string `yaml:"time"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for sqlite")
		}
	case StorageRedis:
		if c.Redis.Address == "" {
			return errors.New("redis.address is required for redis storage")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Simulation.FailureRate < 0 || c.Simulation.FailureRate > 1 {
		return fmt.Errorf("simulation.failure_rate must be within [0, 1], got %v", c.Simulation.FailureRate)
	}
	if c.Simulation.MinLatency > c.Simulation.MaxLatency {
		return errors.New("simulation.min_latency must not exceed simulation.max_latency")
	}

	if c.Reminder.Enabled {
		var h, m int
		if _, err := fmt.Sscanf(c.Reminder.Time, "%d:%d", &h, &m); err != nil || h < 0 || h > 23 || m < 0 || m > 59 {
			return fmt.Errorf("invalid reminder.time %q", c.Reminder.Time)
		}
	}

	return ValidateServices(c.Services)
}

func ValidateServices(services []models.ServiceType) error {
	// Check for duplicate service IDs
	ids := make(map[string]bool)
	for _, s := range services {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("service '%s' has empty ID", s.Name)
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate service ID found: %s", s.ID)
		}
		ids[s.ID] = true

		if s.Price < 0 || s.PointsReward < 0 {
			return fmt.Errorf("service '%s' has negative price or points", s.ID)
		}
		switch strings.ToLower(s.VehicleType) {
		case models.VehicleTypeMotor, models.VehicleTypeMobil, models.VehicleTypeBoth:
		default:
			return fmt.Errorf("service '%s' has unknown vehicle type %q", s.ID, s.VehicleType)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "bengkelku"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "bengkelku:"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	// Zero latency range leaves per-operation defaults to the simulator; failures hit create only.
	if c.Simulation.Enabled {
		if c.Simulation.FailureRate == 0 {
			c.Simulation.FailureRate = 0.05
		}
		if len(c.Simulation.FailingOperations) == 0 {
			c.Simulation.FailingOperations = []string{"create_booking"}
		}
	}

	if c.Booking.RetryAttempts == 0 {
		c.Booking.RetryAttempts = 3
	}
	if c.Vehicle.ServiceIntervalDays == 0 {
		c.Vehicle.ServiceIntervalDays = models.ServiceIntervalDays
	}
	if c.Auth.OTPAttemptsPerMinute == 0 {
		c.Auth.OTPAttemptsPerMinute = 5
	}
	if c.Auth.OTPBurst == 0 {
		c.Auth.OTPBurst = 3
	}
	if c.Reminder.Time == "" {
		c.Reminder.Time = "09:00"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
