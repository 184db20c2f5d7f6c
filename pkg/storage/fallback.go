package storage

import (
	"context"
	"errors"

	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

// Backend is a blob destination returning the public URL of the stored object.
type Backend interface {
	Store(ctx context.Context, path string, data []byte) (string, error)
}

// FallbackStore writes to the primary backend and falls back to local disk
// when the primary fails or is not configured.
type FallbackStore struct {
	primary  Backend
	fallback Backend
	logg     *logger.Logger
}

func NewFallbackStore(primary, fallback Backend, logg *logger.Logger) (*FallbackStore, error) {
	if fallback == nil {
		return nil, errors.New("fallback store is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &FallbackStore{primary: primary, fallback: fallback, logg: logg}, nil
}

func (s *FallbackStore) Store(ctx context.Context, path string, data []byte) (string, error) {
	if s.primary != nil {
		url, err := s.primary.Store(ctx, path, data)
		if err == nil {
			return url, nil
		}
		s.logg.Error(s.logg.WithField(ctx, "object", path), "primary blob store failed, writing to local disk", err)
	}
	return s.fallback.Store(ctx, path, data)
}
