package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"bengkelku/internal/domain"
	"bengkelku/internal/metrics"

	"github.com/rs/zerolog"
)

// Collection keys.
const (
	KeyUsers        = "users"
	KeyCurrentUser  = "current_user"
	KeyVehicles     = "vehicles"
	KeyBookings     = "bookings"
	KeyServiceTypes = "service_types"
	KeyFirstLaunch  = "first_launch"
)

// ReadCollection decodes the list stored under key. Missing keys, backend errors and corrupt
// payloads all read as an empty list; the latter two are logged.
func ReadCollection[T any](ctx context.Context, store domain.Store, key string, logger *zerolog.Logger) []T {
	data, err := store.Get(ctx, key)
	if err != nil {
		metrics.IncStorageError("read")
		logger.Warn().Err(err).Str("collection", key).Msg("Failed to read collection, using empty")
		return []T{}
	}
	if len(data) == 0 {
		return []T{}
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		metrics.IncStorageError("decode")
		logger.Warn().Err(err).Str("collection", key).Msg("Corrupt collection payload, using empty")
		return []T{}
	}
	if items == nil {
		items = []T{}
	}
	return items
}

func WriteCollection[T any](ctx context.Context, store domain.Store, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := store.Set(ctx, key, data); err != nil {
		metrics.IncStorageError("write")
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// ReadSingleton returns nil when the value is absent or unreadable.
func ReadSingleton[T any](ctx context.Context, store domain.Store, key string, logger *zerolog.Logger) *T {
	data, err := store.Get(ctx, key)
	if err != nil {
		metrics.IncStorageError("read")
		logger.Warn().Err(err).Str("key", key).Msg("Failed to read value")
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		metrics.IncStorageError("decode")
		logger.Warn().Err(err).Str("key", key).Msg("Corrupt value payload, ignoring")
		return nil
	}
	return &v
}

// WriteSingleton stores v under key; a nil v deletes the key.
func WriteSingleton[T any](ctx context.Context, store domain.Store, key string, v *T) error {
	if v == nil {
		if err := store.Delete(ctx, key); err != nil {
			metrics.IncStorageError("delete")
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := store.Set(ctx, key, data); err != nil {
		metrics.IncStorageError("write")
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
