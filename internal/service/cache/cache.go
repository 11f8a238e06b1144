package cache

import (
	"context"
	"errors"
	"time"

	pcache "MarketPulse/pkg/cache"
)

// Store adapts a pkg/cache.Service to the domain Cache interface, turning
// ErrCacheMiss into a plain miss.
type Store struct {
	svc pcache.Service
}

func NewStore(svc pcache.Service) *Store {
	return &Store{svc: svc}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.svc.Get(ctx, key)
	if err != nil {
		if errors.Is(err, pcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.svc.Set(ctx, key, value, ttl)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.svc.Delete(ctx, key)
}
