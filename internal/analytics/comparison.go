package analytics

import (
	"github.com/opensource-commerce/kestrel/internal/domain"
)

// BuildComparison produces the channel-vs-overall comparison: one row for
// the overall scope plus one per enumerated channel. Rows with fewer than
// domain.LowSampleThreshold orders carry the low-sample flag.
func BuildComparison(orders []*domain.Order, metric domain.Metric) []domain.ComparisonRow {
	overall := newAccumulator()
	perChannel := make(map[domain.Channel]*accumulator, len(domain.AllChannels()))
	for _, c := range domain.AllChannels() {
		perChannel[c] = newAccumulator()
	}

	for _, o := range orders {
		overall.add(o, metric)
		if acc, ok := perChannel[o.Channel]; ok {
			acc.add(o, metric)
		}
	}

	rows := make([]domain.ComparisonRow, 0, len(perChannel)+1)
	rows = append(rows, comparisonRow(domain.ScopeOverall, overall))
	for _, c := range domain.AllChannels() {
		rows = append(rows, comparisonRow(string(c), perChannel[c]))
	}
	return rows
}

func comparisonRow(scope string, acc *accumulator) domain.ComparisonRow {
	return domain.ComparisonRow{
		Scope:           scope,
		AOV:             acc.aov(),
		NewCustomerRate: acc.newCustomerRate(),
		RepeatRate:      acc.repeatRate(),
		SampleSize:      acc.orders,
		LowSample:       acc.orders < domain.LowSampleThreshold,
	}
}
