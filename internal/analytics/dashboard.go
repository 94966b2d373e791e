package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// recentOrdersLimit caps the recent-orders list.
const recentOrdersLimit = 10

// excludedSourceChannels are order origins that never qualify for
// attribution analytics (no web traffic signals exist for them).
var excludedSourceChannels = map[string]bool{
	"pos":                 true,
	"point_of_sale":       true,
	"point of sale":       true,
	"draft":               true,
	"shopify_draft_order": true,
}

// BuildDashboard assembles the full dashboard from a collection of
// already-classified orders: date-range filter, source-channel exclusion,
// currency partition, then all builders against the primary-currency set.
// The result is built once per query and immutable thereafter.
func BuildDashboard(orders []*domain.Order, q domain.AggregateQuery) *domain.Dashboard {
	loc := q.Timezone
	if loc == nil {
		loc = time.UTC
	}
	lang := PickLang(q.Language)

	// Date-range filter.
	inRange := make([]*domain.Order, 0, len(orders))
	for _, o := range orders {
		if q.Range.Contains(o.CreatedAt) {
			inRange = append(inRange, o)
		}
	}

	// Source-channel exclusion.
	qualifying := make([]*domain.Order, 0, len(inRange))
	excluded := 0
	for _, o := range inRange {
		if excludedSourceChannels[strings.ToLower(o.SourceChannel)] {
			excluded++
			continue
		}
		qualifying = append(qualifying, o)
	}

	// Currency partition: configured primary, else first observed.
	currency := q.PrimaryCurrency
	if currency == "" && len(qualifying) > 0 {
		currency = qualifying[0].Currency
	}
	primary := make([]*domain.Order, 0, len(qualifying))
	foreign := 0
	for _, o := range qualifying {
		if o.Currency == currency {
			primary = append(primary, o)
		} else {
			foreign++
		}
	}

	d := &domain.Dashboard{
		Range:    q.Range,
		Metric:   q.Metric,
		Currency: currency,

		Overview:     BuildOverview(primary, q.Metric),
		Channels:     BuildChannelBreakdown(primary, q.Metric),
		Comparison:   BuildComparison(primary, q.Metric),
		Trend:        BuildTrend(primary, q.Range, q.Metric, loc),
		TopProducts:  BuildTopProducts(primary, q.Metric),
		TopCustomers: BuildTopCustomers(primary, q.Metric, q.AcquiredViaAI),
		RecentOrders: recentOrders(primary),

		ExcludedOrders:        excluded,
		ForeignCurrencyOrders: foreign,
		Clamped:               q.Clamped,
	}
	d.Caveat = buildCaveat(lang, len(primary), foreign, excluded, currency, q.Clamped)
	return d
}

func recentOrders(orders []*domain.Order) []domain.OrderSummary {
	sorted := make([]*domain.Order, len(orders))
	copy(sorted, orders)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > recentOrdersLimit {
		sorted = sorted[:recentOrdersLimit]
	}

	summaries := make([]domain.OrderSummary, len(sorted))
	for i, o := range sorted {
		summaries[i] = domain.OrderSummary{
			ID:        o.ID,
			Name:      o.Name,
			CreatedAt: o.CreatedAt,
			Value:     o.TotalPrice,
			Currency:  o.Currency,
			Channel:   o.Channel,
		}
	}
	return summaries
}

// buildCaveat composes the localized sample-size and exclusion note.
func buildCaveat(lang string, sampleSize, foreign, excluded int, currency string, clamped bool) string {
	var parts []string
	if sampleSize < domain.LowSampleThreshold {
		parts = append(parts, caveatMsg(lang, "low_sample", sampleSize))
	}
	if foreign > 0 {
		parts = append(parts, caveatMsg(lang, "foreign_currency", foreign, currency))
	}
	if excluded > 0 {
		parts = append(parts, caveatMsg(lang, "excluded", excluded))
	}
	if clamped {
		parts = append(parts, caveatMsg(lang, "clamped"))
	}
	return strings.Join(parts, " ")
}
