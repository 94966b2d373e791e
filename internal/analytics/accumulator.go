// Package analytics aggregates classified orders into dashboard facets.
// Every builder takes the same filtered order collection plus a metric
// selector; all working state is call-scoped and discarded on return.
package analytics

import (
	"github.com/opensource-commerce/kestrel/internal/domain"
)

// accumulator collects running totals for one scope (overall, AI-only,
// or a single channel) in a single pass over the orders.
type accumulator struct {
	gmv            float64
	netGMV         float64
	orders         int
	newCustomers   int
	customerOrders map[string]int
}

func newAccumulator() *accumulator {
	return &accumulator{customerOrders: make(map[string]int)}
}

func (a *accumulator) add(o *domain.Order, metric domain.Metric) {
	a.gmv += o.Value(metric)
	a.netGMV += o.NetValue(metric)
	a.orders++
	if o.NewCustomer {
		a.newCustomers++
	}
	if o.CustomerID != "" {
		a.customerOrders[o.CustomerID]++
	}
}

// aov returns GMV per order, 0 when the scope is empty.
func (a *accumulator) aov() float64 {
	return ratio(a.gmv, float64(a.orders))
}

func (a *accumulator) newCustomerRate() float64 {
	return ratio(float64(a.newCustomers), float64(a.orders))
}

// repeatRate is the share of distinct customers with more than one order.
func (a *accumulator) repeatRate() float64 {
	repeat := 0
	for _, n := range a.customerOrders {
		if n > 1 {
			repeat++
		}
	}
	return ratio(float64(repeat), float64(len(a.customerOrders)))
}

// ratio guards every division: a zero denominator yields 0, never NaN
// or Inf.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
