// Package history resolves customer acquisition origin across full order
// history, beyond the current dashboard window.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// cacheTTL bounds how long a customer's acquisition origin is memoized.
// First-order channels never change retroactively, but rule edits plus
// reclassification can rewrite them.
const cacheTTL = 15 * time.Minute

// Service answers whether customers were acquired via an AI channel,
// looking at each customer's first-ever order rather than the orders
// inside the current window.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates an acquisition history service. The cache is
// optional; a nil cache disables memoization.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// AcquiredViaAI returns, per customer ID, whether the customer's first
// order was AI-attributed. Customers with no persisted orders are omitted
// so callers can distinguish "not acquired via AI" from "unknown".
func (s *Service) AcquiredViaAI(ctx context.Context, shopID string, customerIDs []string) (map[string]bool, error) {
	if shopID == "" {
		return nil, fmt.Errorf("shopID is required")
	}
	if s.repo == nil {
		return nil, fmt.Errorf("no data source available")
	}

	result := make(map[string]bool, len(customerIDs))
	misses := make([]string, 0, len(customerIDs))

	for _, id := range customerIDs {
		if id == "" {
			continue
		}
		if acquired, ok := s.cached(ctx, shopID, id); ok {
			result[id] = acquired
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) == 0 {
		return result, nil
	}

	channels, err := s.repo.FirstOrderChannels(ctx, shopID, misses)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve first-order channels: %w", err)
	}

	for id, channel := range channels {
		acquired := channel != domain.ChannelNone
		result[id] = acquired
		s.memoize(ctx, shopID, id, acquired)
	}
	return result, nil
}

func cacheKey(customerID string) string {
	return "acquired:" + customerID
}

func (s *Service) cached(ctx context.Context, shopID, customerID string) (bool, bool) {
	if s.cache == nil {
		return false, false
	}
	data, err := s.cache.Get(ctx, shopID, cacheKey(customerID))
	if err != nil || len(data) == 0 {
		return false, false
	}
	return data[0] == '1', true
}

func (s *Service) memoize(ctx context.Context, shopID, customerID string, acquired bool) {
	if s.cache == nil {
		return
	}
	value := []byte("0")
	if acquired {
		value = []byte("1")
	}
	// Best effort: a failed cache write only costs a future repo query.
	_ = s.cache.Set(ctx, shopID, cacheKey(customerID), value, cacheTTL)
}

// Invalidate drops memoized acquisition flags for the given customers,
// used after reclassification runs.
func (s *Service) Invalidate(ctx context.Context, shopID string, customerIDs []string) {
	if s.cache == nil {
		return
	}
	for _, id := range customerIDs {
		_ = s.cache.Delete(ctx, shopID, cacheKey(id))
	}
}
