package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuildOverview(t *testing.T) {
	t.Run("TotalsAndShares", func(t *testing.T) {
		orders := []*domain.Order{
			{ID: "o1", TotalPrice: 100, Channel: domain.ChannelChatGPT, NewCustomer: true, ReferringSite: "https://chatgpt.com/"},
			{ID: "o2", TotalPrice: 50, Channel: domain.ChannelPerplexity, UTMSource: "perplexity"},
			{ID: "o3", TotalPrice: 150},
			{ID: "o4", TotalPrice: 200, ReferringSite: "https://google.com/", UTMSource: "newsletter"},
		}

		ov := BuildOverview(orders, domain.MetricGrossTotal)

		if ov.TotalGMV != 500 {
			t.Errorf("expected total GMV 500, got %.2f", ov.TotalGMV)
		}
		if ov.TotalOrders != 4 {
			t.Errorf("expected 4 orders, got %d", ov.TotalOrders)
		}
		if ov.AIGMV != 150 {
			t.Errorf("expected AI GMV 150, got %.2f", ov.AIGMV)
		}
		if ov.AIOrders != 2 {
			t.Errorf("expected 2 AI orders, got %d", ov.AIOrders)
		}
		if ov.AINewCustomers != 1 {
			t.Errorf("expected 1 AI new customer, got %d", ov.AINewCustomers)
		}
		if !approx(ov.AIGMVShare, 0.3) {
			t.Errorf("expected AI GMV share 0.3, got %.4f", ov.AIGMVShare)
		}
		if !approx(ov.AIOrderShare, 0.5) {
			t.Errorf("expected AI order share 0.5, got %.4f", ov.AIOrderShare)
		}
	})

	t.Run("CoverageCountsSignalsNotAttribution", func(t *testing.T) {
		orders := []*domain.Order{
			{ID: "o1", TotalPrice: 10, ReferringSite: "https://google.com/"},
			{ID: "o2", TotalPrice: 10, UTMMedium: "email"},
			{ID: "o3", TotalPrice: 10, ReferringSite: "https://bing.com/", UTMSource: "bing"},
			{ID: "o4", TotalPrice: 10},
		}

		ov := BuildOverview(orders, domain.MetricGrossTotal)

		if !approx(ov.ReferrerCoverage, 0.5) {
			t.Errorf("expected referrer coverage 0.5, got %.4f", ov.ReferrerCoverage)
		}
		if !approx(ov.UTMCoverage, 0.5) {
			t.Errorf("expected UTM coverage 0.5, got %.4f", ov.UTMCoverage)
		}
		if !approx(ov.SignalCoverage, 0.75) {
			t.Errorf("expected signal coverage 0.75, got %.4f", ov.SignalCoverage)
		}
	})

	t.Run("EmptyInputYieldsZeros", func(t *testing.T) {
		ov := BuildOverview(nil, domain.MetricGrossTotal)

		if ov.TotalGMV != 0 || ov.AIGMVShare != 0 || ov.SignalCoverage != 0 {
			t.Errorf("expected all-zero overview, got %+v", ov)
		}
		if math.IsNaN(ov.AIOrderShare) || math.IsInf(ov.AIGMVShare, 0) {
			t.Error("shares must never be NaN or Inf")
		}
	})

	t.Run("SubtotalMetricFallsBackToGross", func(t *testing.T) {
		sub := 80.0
		orders := []*domain.Order{
			{ID: "o1", TotalPrice: 100, SubtotalPrice: &sub},
			{ID: "o2", TotalPrice: 50},
		}

		ov := BuildOverview(orders, domain.MetricSubtotal)

		if ov.TotalGMV != 130 {
			t.Errorf("expected subtotal GMV 130, got %.2f", ov.TotalGMV)
		}
	})

	t.Run("NetGMVSubtractsRefunds", func(t *testing.T) {
		orders := []*domain.Order{
			{ID: "o1", TotalPrice: 100, RefundedTotal: 30},
			{ID: "o2", TotalPrice: 50, RefundedTotal: 80},
		}

		ov := BuildOverview(orders, domain.MetricGrossTotal)

		// Over-refunded orders floor at zero rather than going negative.
		if ov.TotalNetGMV != 70 {
			t.Errorf("expected net GMV 70, got %.2f", ov.TotalNetGMV)
		}
	})
}

func TestComparisonLowSample(t *testing.T) {
	orders := []*domain.Order{
		{ID: "o1", TotalPrice: 100, Channel: domain.ChannelChatGPT, CustomerID: "c1", CreatedAt: time.Now()},
		{ID: "o2", TotalPrice: 200, Channel: domain.ChannelChatGPT, CustomerID: "c1", CreatedAt: time.Now()},
		{ID: "o3", TotalPrice: 60, CustomerID: "c2", CreatedAt: time.Now()},
		{ID: "o4", TotalPrice: 40, CustomerID: "c3", NewCustomer: true, CreatedAt: time.Now()},
		{ID: "o5", TotalPrice: 100, CustomerID: "c4", CreatedAt: time.Now()},
	}

	rows := BuildComparison(orders, domain.MetricGrossTotal)

	if len(rows) != len(domain.AllChannels())+1 {
		t.Fatalf("expected %d rows, got %d", len(domain.AllChannels())+1, len(rows))
	}
	overall := rows[0]
	if overall.Scope != domain.ScopeOverall {
		t.Fatalf("expected first row scope %q, got %q", domain.ScopeOverall, overall.Scope)
	}
	if overall.AOV != 100 {
		t.Errorf("expected overall AOV 100, got %.2f", overall.AOV)
	}
	if overall.LowSample {
		t.Error("overall row with 5 orders must not be low-sample")
	}
	if !approx(overall.RepeatRate, 0.25) {
		t.Errorf("expected repeat rate 0.25, got %.4f", overall.RepeatRate)
	}

	for _, row := range rows[1:] {
		if row.Scope == string(domain.ChannelChatGPT) {
			if row.SampleSize != 2 {
				t.Errorf("expected ChatGPT sample 2, got %d", row.SampleSize)
			}
			if !row.LowSample {
				t.Error("2-order channel row must be low-sample")
			}
			if row.AOV != 150 {
				t.Errorf("expected ChatGPT AOV 150, got %.2f", row.AOV)
			}
			if !approx(row.RepeatRate, 1.0) {
				t.Errorf("expected ChatGPT repeat rate 1.0, got %.4f", row.RepeatRate)
			}
		}
	}
}

func TestChannelBreakdownPreSeedsAllChannels(t *testing.T) {
	orders := []*domain.Order{
		{ID: "o1", TotalPrice: 100, Channel: domain.ChannelClaude, NewCustomer: true},
	}

	stats := BuildChannelBreakdown(orders, domain.MetricGrossTotal)

	if len(stats) != len(domain.AllChannels()) {
		t.Fatalf("expected %d rows, got %d", len(domain.AllChannels()), len(stats))
	}
	for i, c := range domain.AllChannels() {
		if stats[i].Channel != c {
			t.Errorf("row %d: expected channel %s, got %s", i, c, stats[i].Channel)
		}
		if stats[i].Color == "" {
			t.Errorf("row %d: missing color", i)
		}
	}
	for _, s := range stats {
		switch s.Channel {
		case domain.ChannelClaude:
			if s.GMV != 100 || s.Orders != 1 || s.NewCustomers != 1 {
				t.Errorf("unexpected Claude row %+v", s)
			}
		default:
			if s.GMV != 0 || s.Orders != 0 {
				t.Errorf("expected empty row for %s, got %+v", s.Channel, s)
			}
		}
	}
}
