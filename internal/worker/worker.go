// Package worker provides async order processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-commerce/kestrel/internal/attribution"
	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/rules"
)

// Worker classifies and persists orders consumed from the EventBus.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	registry *rules.Registry
	baseCfg  domain.AttributionConfig

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// ShopIDs is the list of shops to process.
	ShopIDs []string

	// WorkerCount is the number of concurrent workers per shop.
	WorkerCount int
}

// NewWorker creates a new async order worker. baseCfg carries the
// built-in rule tables and display language; merchant rules are layered
// on top per shop at classification time.
func NewWorker(bus domain.EventBus, repo domain.Repository, registry *rules.Registry, baseCfg domain.AttributionConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		registry: registry,
		baseCfg:  baseCfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing orders for the given shops.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.ShopIDs) == 0 {
		return fmt.Errorf("at least one shop is required")
	}

	for _, shopID := range cfg.ShopIDs {
		if err := w.startShopWorker(shopID); err != nil {
			slog.Error("failed to start worker for shop",
				"shop_id", shopID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"shop_count", len(cfg.ShopIDs),
	)

	return nil
}

// startShopWorker subscribes one shop's ingestion and rule-change topics.
func (w *Worker) startShopWorker(shopID string) error {
	sub, err := w.bus.Subscribe(w.ctx, shopID, domain.TopicOrderIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processOrder(ctx, shopID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	// Rule edits invalidate the shop's compiled rule engine so the next
	// order picks up the new rules.
	rulesSub, err := w.bus.Subscribe(w.ctx, shopID, domain.TopicRulesUpdated, func(ctx context.Context, msg *domain.Message) error {
		w.registry.Invalidate(msg.ShopID)
		slog.Info("rule cache invalidated",
			"shop_id", msg.ShopID,
		)
		return nil
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, rulesSub)

	slog.Info("shop worker started",
		"shop_id", shopID,
		"topic", domain.TopicOrderIngested,
	)

	return nil
}

// processOrder classifies one ingested order and persists the result.
func (w *Worker) processOrder(ctx context.Context, shopID string, msg *domain.Message) error {
	start := time.Now()

	var order domain.Order
	if err := json.Unmarshal(msg.Payload, &order); err != nil {
		slog.Error("failed to parse order message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// The order payload wins over the subscription shop when set.
	if order.ShopID != "" {
		shopID = order.ShopID
	}
	order.ShopID = shopID

	if order.IngestedAt.IsZero() {
		order.IngestedAt = time.Now().UTC()
	}

	att, err := w.classify(ctx, shopID, &order)
	if err != nil {
		slog.Error("classification failed",
			"order_id", order.ID,
			"shop_id", shopID,
			"error", err,
		)
		return err
	}

	order.Channel = att.Channel
	order.DetectionNote = att.Narrative
	order.Signals = att.Signals

	if w.repo != nil {
		if err := w.repo.SaveOrder(ctx, shopID, &order); err != nil {
			slog.Error("failed to save order",
				"order_id", order.ID,
				"shop_id", shopID,
				"error", err,
			)
			return err
		}
	}

	resultPayload, _ := json.Marshal(&order)
	if err := w.bus.Publish(ctx, shopID, domain.TopicOrderClassified, resultPayload); err != nil {
		slog.Error("failed to publish classified order",
			"order_id", order.ID,
			"shop_id", shopID,
			"error", err,
		)
	}

	slog.Info("order processed",
		"order_id", order.ID,
		"shop_id", shopID,
		"channel", order.Channel,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// classify runs the detection chain with the shop's merchant rules
// layered over the built-in tables.
func (w *Worker) classify(ctx context.Context, shopID string, order *domain.Order) (domain.Attribution, error) {
	cfg := w.baseCfg

	if w.repo != nil {
		domainRules, err := w.repo.ListDomainRules(ctx, shopID)
		if err != nil {
			return domain.Attribution{}, err
		}
		utmRules, err := w.repo.ListUTMRules(ctx, shopID)
		if err != nil {
			return domain.Attribution{}, err
		}
		cfg = cfg.WithMerchantRules(domainRules, utmRules)
	}

	eng := attribution.NewEngine()
	if w.registry != nil {
		custom, err := w.registry.ForShop(ctx, shopID)
		if err != nil {
			return domain.Attribution{}, err
		}
		eng.SetCustomMatcher(custom)
	}

	return eng.ClassifyOrder(order, cfg), nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
