package analytics

import (
	"github.com/opensource-commerce/kestrel/internal/domain"
)

// BuildOverview totals GMV and net GMV for all orders and for the
// AI-attributed subset, plus the detectability coverage ratios. The
// coverage ratios measure signal quality (how many orders carried a
// referrer or UTM parameter at all), not AI share.
func BuildOverview(orders []*domain.Order, metric domain.Metric) domain.Overview {
	overall := newAccumulator()
	ai := newAccumulator()

	withReferrer := 0
	withUTM := 0
	withEither := 0

	for _, o := range orders {
		overall.add(o, metric)
		if o.Attributed() {
			ai.add(o, metric)
		}

		hasReferrer := o.ReferringSite != ""
		hasUTM := o.UTMSource != "" || o.UTMMedium != ""
		if hasReferrer {
			withReferrer++
		}
		if hasUTM {
			withUTM++
		}
		if hasReferrer || hasUTM {
			withEither++
		}
	}

	total := float64(len(orders))

	return domain.Overview{
		TotalGMV:    overall.gmv,
		TotalNetGMV: overall.netGMV,
		TotalOrders: overall.orders,

		AIGMV:          ai.gmv,
		AINetGMV:       ai.netGMV,
		AIOrders:       ai.orders,
		AINewCustomers: ai.newCustomers,

		AIGMVShare:        ratio(ai.gmv, overall.gmv),
		AIOrderShare:      ratio(float64(ai.orders), float64(overall.orders)),
		AINewCustomerRate: ai.newCustomerRate(),

		ReferrerCoverage: ratio(float64(withReferrer), total),
		UTMCoverage:      ratio(float64(withUTM), total),
		SignalCoverage:   ratio(float64(withEither), total),
	}
}
