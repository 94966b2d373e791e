package analytics

import (
	"github.com/opensource-commerce/kestrel/internal/domain"
)

// BuildChannelBreakdown produces one row per enumerated channel in
// display order. Channels with zero orders still appear.
func BuildChannelBreakdown(orders []*domain.Order, metric domain.Metric) []domain.ChannelStat {
	accs := make(map[domain.Channel]*accumulator, len(domain.AllChannels()))
	for _, c := range domain.AllChannels() {
		accs[c] = newAccumulator()
	}

	for _, o := range orders {
		if acc, ok := accs[o.Channel]; ok {
			acc.add(o, metric)
		}
	}

	stats := make([]domain.ChannelStat, 0, len(accs))
	for _, c := range domain.AllChannels() {
		acc := accs[c]
		stats = append(stats, domain.ChannelStat{
			Channel:      c,
			Color:        c.Color(),
			GMV:          acc.gmv,
			Orders:       acc.orders,
			NewCustomers: acc.newCustomers,
		})
	}
	return stats
}
