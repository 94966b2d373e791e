package analytics

import (
	"sort"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// topN caps the top-products and top-customers lists.
const topN = 8

// allocateLineShares distributes an order's GMV across its line items
// proportionally to each line's price×quantity share. When the line total
// is zero the value is split evenly rather than dividing by zero.
func allocateLineShares(o *domain.Order, metric domain.Metric) []float64 {
	if len(o.LineItems) == 0 {
		return nil
	}

	value := o.Value(metric)
	shares := make([]float64, len(o.LineItems))

	var lineTotal float64
	for _, li := range o.LineItems {
		lineTotal += li.Price * float64(li.Quantity)
	}

	if lineTotal == 0 {
		even := value / float64(len(o.LineItems))
		for i := range shares {
			shares[i] = even
		}
		return shares
	}

	for i, li := range o.LineItems {
		shares[i] = value * (li.Price * float64(li.Quantity)) / lineTotal
	}
	return shares
}

// BuildTopProducts allocates AI-attributed GMV to products and returns
// the top entries by allocated GMV. A product appearing as two line items
// in one order counts as one order for that product.
func BuildTopProducts(orders []*domain.Order, metric domain.Metric) []domain.ProductStat {
	type productAcc struct {
		stat       domain.ProductStat
		channelGMV map[domain.Channel]float64
	}
	products := make(map[string]*productAcc)

	for _, o := range orders {
		if !o.Attributed() {
			continue
		}
		shares := allocateLineShares(o, metric)
		seen := make(map[string]bool, len(o.LineItems))

		for i, li := range o.LineItems {
			key := li.Handle
			if key == "" {
				key = li.Title
			}
			if key == "" {
				key = li.ID
			}

			acc, ok := products[key]
			if !ok {
				acc = &productAcc{
					stat: domain.ProductStat{
						Title:  li.Title,
						Handle: li.Handle,
						URL:    li.URL,
					},
					channelGMV: make(map[domain.Channel]float64),
				}
				products[key] = acc
			}

			acc.stat.AIGMV += shares[i]
			acc.channelGMV[o.Channel] += shares[i]
			if !seen[key] {
				seen[key] = true
				acc.stat.AIOrders++
			}
		}
	}

	stats := make([]domain.ProductStat, 0, len(products))
	for _, acc := range products {
		acc.stat.TopChannel = topChannel(acc.channelGMV)
		stats = append(stats, acc.stat)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].AIGMV != stats[j].AIGMV {
			return stats[i].AIGMV > stats[j].AIGMV
		}
		return stats[i].Title < stats[j].Title
	})

	if len(stats) > topN {
		stats = stats[:topN]
	}
	return stats
}

// topChannel picks the single highest-contributing channel, breaking ties
// by enumeration order for determinism.
func topChannel(gmv map[domain.Channel]float64) domain.Channel {
	best := domain.ChannelNone
	bestGMV := 0.0
	for _, c := range domain.AllChannels() {
		if v, ok := gmv[c]; ok && v > bestGMV {
			best = c
			bestGMV = v
		}
	}
	return best
}
