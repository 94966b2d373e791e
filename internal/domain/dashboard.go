package domain

import "time"

// LowSampleThreshold is the sample size below which derived ratios are
// flagged as statistically unreliable. Used consistently everywhere a
// low-sample caveat is surfaced.
const LowSampleThreshold = 5

// ScopeOverall is the comparison row covering all qualifying orders.
const ScopeOverall = "overall"

// Overview holds headline totals plus signal-quality coverage ratios.
// The coverage ratios describe how detectable the traffic is, not how
// much of it is AI-driven; they are reported separately for that reason.
type Overview struct {
	TotalGMV    float64 `json:"totalGmv"`
	TotalNetGMV float64 `json:"totalNetGmv"`
	TotalOrders int     `json:"totalOrders"`

	AIGMV          float64 `json:"aiGmv"`
	AINetGMV       float64 `json:"aiNetGmv"`
	AIOrders       int     `json:"aiOrders"`
	AINewCustomers int     `json:"aiNewCustomers"`

	AIGMVShare        float64 `json:"aiGmvShare"`
	AIOrderShare      float64 `json:"aiOrderShare"`
	AINewCustomerRate float64 `json:"aiNewCustomerRate"`

	ReferrerCoverage float64 `json:"referrerCoverage"`
	UTMCoverage      float64 `json:"utmCoverage"`
	SignalCoverage   float64 `json:"signalCoverage"`
}

// ChannelStat is one channel-breakdown row. Channels with zero orders
// still appear; all channels are pre-seeded.
type ChannelStat struct {
	Channel      Channel `json:"channel"`
	Color        string  `json:"color"`
	GMV          float64 `json:"gmv"`
	Orders       int     `json:"orders"`
	NewCustomers int     `json:"newCustomers"`
}

// ComparisonRow compares a scope ("overall" or a channel name) on derived
// ratios. LowSample is set whenever SampleSize < LowSampleThreshold.
type ComparisonRow struct {
	Scope           string  `json:"scope"`
	AOV             float64 `json:"aov"`
	NewCustomerRate float64 `json:"newCustomerRate"`
	RepeatRate      float64 `json:"repeatRate"`
	SampleSize      int     `json:"sampleSize"`
	LowSample       bool    `json:"lowSample"`
}

// ChannelSlice is a per-channel split inside a trend bucket.
type ChannelSlice struct {
	GMV    float64 `json:"gmv"`
	Orders int     `json:"orders"`
}

// TrendBucket is one time bucket of the trend series. Start is the
// earliest contributing instant and orders the series chronologically;
// labels are not lexically sortable across year boundaries.
type TrendBucket struct {
	Label       string                  `json:"label"`
	Start       time.Time               `json:"start"`
	TotalGMV    float64                 `json:"totalGmv"`
	TotalOrders int                     `json:"totalOrders"`
	AIGMV       float64                 `json:"aiGmv"`
	AIOrders    int                     `json:"aiOrders"`
	Channels    map[Channel]ChannelSlice `json:"channels,omitempty"`
}

// ProductStat is one top-product row. AIGMV is the AI-attributed GMV
// allocated to the product by line-share weighting.
type ProductStat struct {
	Title      string  `json:"title"`
	Handle     string  `json:"handle,omitempty"`
	URL        string  `json:"url,omitempty"`
	AIGMV      float64 `json:"aiGmv"`
	AIOrders   int     `json:"aiOrders"`
	TopChannel Channel `json:"topChannel,omitempty"`
}

// CustomerStat is one top-customer row. AcquiredViaAI is authoritative
// when derived from cross-window history and best-effort when inferred
// from the earliest order inside the current window only.
type CustomerStat struct {
	CustomerID    string  `json:"customerId"`
	GMV           float64 `json:"gmv"`
	Orders        int     `json:"orders"`
	RepeatOrders  int     `json:"repeatOrders"`
	HasAIOrder    bool    `json:"hasAiOrder"`
	AcquiredViaAI bool    `json:"acquiredViaAi"`
}

// OrderSummary is a compact order row for the recent-orders list.
type OrderSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Value     float64   `json:"value"`
	Currency  string    `json:"currency"`
	Channel   Channel   `json:"channel,omitempty"`
}

// Dashboard is the externally visible aggregate, built once per query and
// immutable thereafter.
type Dashboard struct {
	Range    DateRange `json:"range"`
	Metric   Metric    `json:"metric"`
	Currency string    `json:"currency"`

	Overview     Overview        `json:"overview"`
	Channels     []ChannelStat   `json:"channels"`
	Comparison   []ComparisonRow `json:"comparison"`
	Trend        []TrendBucket   `json:"trend"`
	TopProducts  []ProductStat   `json:"topProducts"`
	TopCustomers []CustomerStat  `json:"topCustomers"`
	RecentOrders []OrderSummary  `json:"recentOrders"`

	// Caveat is the localized sample-size and exclusion note.
	Caveat string `json:"caveat,omitempty"`

	ExcludedOrders        int  `json:"excludedOrders"`
	ForeignCurrencyOrders int  `json:"foreignCurrencyOrders"`
	Clamped               bool `json:"clamped"`
}

// AggregateQuery carries everything the aggregation engine needs besides
// the order collection itself. AcquiredViaAI, when supplied, is derived
// from full cross-window history and is preferred over the in-window
// approximation.
type AggregateQuery struct {
	Range           DateRange
	Metric          Metric
	Timezone        *time.Location
	PrimaryCurrency string
	Language        string
	AcquiredViaAI   map[string]bool

	// Clamped indicates the caller truncated the order collection.
	Clamped bool
}
