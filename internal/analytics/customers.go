package analytics

import (
	"sort"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// BuildTopCustomers ranks customers by in-window GMV. The acquired-via-AI
// flag prefers the externally supplied cross-history map; without one it
// falls back to inferring first-order origin from the earliest order seen
// inside the current window, which is a best-effort approximation: the
// customer's true first order may predate the window.
func BuildTopCustomers(orders []*domain.Order, metric domain.Metric, acquiredViaAI map[string]bool) []domain.CustomerStat {
	type customerAcc struct {
		stat     domain.CustomerStat
		earliest *domain.Order
	}
	customers := make(map[string]*customerAcc)

	for _, o := range orders {
		if o.CustomerID == "" {
			continue
		}
		acc, ok := customers[o.CustomerID]
		if !ok {
			acc = &customerAcc{stat: domain.CustomerStat{CustomerID: o.CustomerID}}
			customers[o.CustomerID] = acc
		}

		acc.stat.GMV += o.Value(metric)
		acc.stat.Orders++
		if o.Attributed() {
			acc.stat.HasAIOrder = true
		}
		if acc.earliest == nil || o.CreatedAt.Before(acc.earliest.CreatedAt) {
			acc.earliest = o
		}
	}

	stats := make([]domain.CustomerStat, 0, len(customers))
	for id, acc := range customers {
		if acc.stat.Orders > 1 {
			acc.stat.RepeatOrders = acc.stat.Orders - 1
		}
		if acquired, ok := acquiredViaAI[id]; ok {
			acc.stat.AcquiredViaAI = acquired
		} else if acc.earliest != nil {
			acc.stat.AcquiredViaAI = acc.earliest.Attributed()
		}
		stats = append(stats, acc.stat)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].GMV != stats[j].GMV {
			return stats[i].GMV > stats[j].GMV
		}
		return stats[i].CustomerID < stats[j].CustomerID
	})

	if len(stats) > topN {
		stats = stats[:topN]
	}
	return stats
}
