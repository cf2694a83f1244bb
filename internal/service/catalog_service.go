package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"bengkelku/internal/domain"
	"bengkelku/internal/models"
	"bengkelku/internal/repository"

	"github.com/rs/zerolog"
)

// CatalogService keeps the service price list. It is seeded once and read-only afterwards.
type CatalogService struct {
	store       domain.Store
	logger      *zerolog.Logger
	services    []models.ServiceType
	servicesMap map[string]models.ServiceType
	mu          sync.RWMutex
}

func NewCatalogService(store domain.Store, logger *zerolog.Logger) *CatalogService {
	return &CatalogService{
		store:       store,
		logger:      logger,
		servicesMap: make(map[string]models.ServiceType),
	}
}

// Seed persists services when storage holds no catalog yet, then loads whatever storage has.
func (s *CatalogService) Seed(ctx context.Context, services []models.ServiceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := repository.ReadCollection[models.ServiceType](ctx, s.store, repository.KeyServiceTypes, s.logger)
	if len(stored) == 0 {
		if err := repository.WriteCollection(ctx, s.store, repository.KeyServiceTypes, services); err != nil {
			return fmt.Errorf("seed service catalog: %w", err)
		}
		stored = services
		s.logger.Info().Int("count", len(services)).Msg("Service catalog seeded")
	}
	s.swap(stored)
	return nil
}

func (s *CatalogService) Refresh(ctx context.Context) {
	services := repository.ReadCollection[models.ServiceType](ctx, s.store, repository.KeyServiceTypes, s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.swap(services)
}

func (s *CatalogService) swap(services []models.ServiceType) {
	s.services = append([]models.ServiceType(nil), services...)
	s.servicesMap = make(map[string]models.ServiceType, len(services))
	for _, svc := range services {
		s.servicesMap[svc.ID] = svc
	}
}

func (s *CatalogService) ListActive() []models.ServiceType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.ServiceType, 0, len(s.services))
	for _, svc := range s.services {
		if svc.IsActive {
			result = append(result, svc)
		}
	}
	return result
}

// ListActiveForVehicleType returns active services marked "both" or matching vehicleType.
func (s *CatalogService) ListActiveForVehicleType(vehicleType string) []models.ServiceType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.ServiceType, 0, len(s.services))
	for _, svc := range s.services {
		if svc.IsActive && svc.AppliesTo(vehicleType) {
			result = append(result, svc)
		}
	}
	return result
}

func (s *CatalogService) GetByID(id string) (*models.ServiceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.servicesMap[id]
	if !ok {
		return nil, fmt.Errorf("service %s: %w", id, domain.ErrNotFound)
	}
	return &svc, nil
}

// GetByName matches case-insensitively.
func (s *CatalogService) GetByName(name string) (*models.ServiceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, svc := range s.services {
		if strings.EqualFold(svc.Name, name) {
			return &svc, nil
		}
	}
	return nil, fmt.Errorf("service %q: %w", name, domain.ErrNotFound)
}
