package rules

import (
	"context"
	"log/slog"
	"sync"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// Registry caches one compiled CustomEngine per shop. Compilation of CEL
// programs is the expensive step, so engines are built lazily on first
// use and dropped when a shop's rules change.
type Registry struct {
	mu      sync.Mutex
	repo    domain.Repository
	engines map[string]*CustomEngine
}

// NewRegistry creates a per-shop rule engine cache backed by the
// repository. A nil repository yields empty engines for every shop.
func NewRegistry(repo domain.Repository) *Registry {
	return &Registry{
		repo:    repo,
		engines: make(map[string]*CustomEngine),
	}
}

// ForShop returns the shop's compiled rule engine, loading and compiling
// its enabled rules on first access.
func (r *Registry) ForShop(ctx context.Context, shopID string) (*CustomEngine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if eng, ok := r.engines[shopID]; ok {
		return eng, nil
	}

	eng, err := NewCustomEngine()
	if err != nil {
		return nil, err
	}

	if r.repo != nil {
		configs, err := r.repo.ListCustomRules(ctx, shopID)
		if err != nil {
			return nil, err
		}
		for _, cfg := range configs {
			if err := eng.LoadRule(cfg); err != nil {
				// A rule that stopped compiling must not block the rest
				// of the shop's rules or classification itself.
				slog.Warn("skipping rule that failed to compile",
					"shop_id", shopID,
					"rule_id", cfg.ID,
					"error", err,
				)
			}
		}
	}

	r.engines[shopID] = eng
	return eng, nil
}

// Invalidate drops the shop's cached engine so the next ForShop call
// recompiles from the repository.
func (r *Registry) Invalidate(shopID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.engines, shopID)
}

// Close releases all cached engines.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for shopID, eng := range r.engines {
		_ = eng.Close()
		delete(r.engines, shopID)
	}
	return nil
}
