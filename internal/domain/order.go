package domain

import (
	"time"
)

// Order represents a single e-commerce order as ingested from the shop
// platform. It carries both the raw traffic signals used for attribution
// and, once classified, the persisted attribution result.
type Order struct {
	// Core identifiers
	ID     string `json:"id"`
	Name   string `json:"name"`
	ShopID string `json:"shopId"`

	// Financial details. Currency is attached per order; a shop's orders
	// are not assumed to share a currency.
	Currency      string   `json:"currency"`
	TotalPrice    float64  `json:"totalPrice"`
	SubtotalPrice *float64 `json:"subtotalPrice,omitempty"`
	RefundedTotal float64  `json:"refundedTotal"`

	// Traffic signals
	ReferringSite string `json:"referringSite,omitempty"`
	LandingSite   string `json:"landingSite,omitempty"`
	UTMSource     string `json:"utmSource,omitempty"`
	UTMMedium     string `json:"utmMedium,omitempty"`

	// SourceChannel is the platform's order origin label
	// (e.g. "web", "pos", "draft").
	SourceChannel string `json:"sourceChannel,omitempty"`

	Tags           []string        `json:"tags,omitempty"`
	NoteAttributes []NoteAttribute `json:"noteAttributes,omitempty"`

	// Customer. CustomerID is empty for guest checkouts.
	CustomerID  string `json:"customerId,omitempty"`
	NewCustomer bool   `json:"newCustomer"`

	LineItems []LineItem `json:"lineItems,omitempty"`

	// Temporal
	CreatedAt  time.Time `json:"createdAt"`
	IngestedAt time.Time `json:"ingestedAt"`

	// Persisted classification, written at ingestion time.
	Channel       Channel  `json:"channel,omitempty"`
	DetectionNote string   `json:"detectionNote,omitempty"`
	Signals       []string `json:"signals,omitempty"`
}

// NoteAttribute is a free-form name/value pair attached to an order,
// typically written by checkout scripts or integrations.
type NoteAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LineItem is a single purchased product line. Used only for weighted
// GMV allocation to products.
type LineItem struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Handle   string  `json:"handle,omitempty"`
	URL      string  `json:"url,omitempty"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Currency string  `json:"currency,omitempty"`
}

// OrderRequest is the API request payload for order ingestion.
type OrderRequest struct {
	ID             string          `json:"id,omitempty"`
	Name           string          `json:"name"`
	Currency       string          `json:"currency"`
	TotalPrice     float64         `json:"totalPrice"`
	SubtotalPrice  *float64        `json:"subtotalPrice,omitempty"`
	RefundedTotal  float64         `json:"refundedTotal,omitempty"`
	ReferringSite  string          `json:"referringSite,omitempty"`
	LandingSite    string          `json:"landingSite,omitempty"`
	UTMSource      string          `json:"utmSource,omitempty"`
	UTMMedium      string          `json:"utmMedium,omitempty"`
	SourceChannel  string          `json:"sourceChannel,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	NoteAttributes []NoteAttribute `json:"noteAttributes,omitempty"`
	CustomerID     string          `json:"customerId,omitempty"`
	NewCustomer    bool            `json:"newCustomer"`
	CreatedAt      *time.Time      `json:"createdAt,omitempty"`
	LineItems      []LineItem      `json:"lineItems,omitempty"`
}

// ToOrder converts a request to an Order domain object.
func (r *OrderRequest) ToOrder(shopID string) *Order {
	now := time.Now().UTC()
	createdAt := now
	if r.CreatedAt != nil {
		createdAt = r.CreatedAt.UTC()
	}
	return &Order{
		ID:             r.ID,
		Name:           r.Name,
		ShopID:         shopID,
		Currency:       r.Currency,
		TotalPrice:     r.TotalPrice,
		SubtotalPrice:  r.SubtotalPrice,
		RefundedTotal:  r.RefundedTotal,
		ReferringSite:  r.ReferringSite,
		LandingSite:    r.LandingSite,
		UTMSource:      r.UTMSource,
		UTMMedium:      r.UTMMedium,
		SourceChannel:  r.SourceChannel,
		Tags:           r.Tags,
		NoteAttributes: r.NoteAttributes,
		CustomerID:     r.CustomerID,
		NewCustomer:    r.NewCustomer,
		LineItems:      r.LineItems,
		CreatedAt:      createdAt,
		IngestedAt:     now,
	}
}

// Value returns the order's GMV under the selected metric. Subtotal falls
// back to the gross total when absent.
func (o *Order) Value(metric Metric) float64 {
	if metric == MetricSubtotal && o.SubtotalPrice != nil {
		return *o.SubtotalPrice
	}
	return o.TotalPrice
}

// NetValue returns GMV minus refunds, floored at zero.
func (o *Order) NetValue(metric Metric) float64 {
	net := o.Value(metric) - o.RefundedTotal
	if net < 0 {
		return 0
	}
	return net
}

// Attributed reports whether the order has been classified to an AI channel.
func (o *Order) Attributed() bool {
	return o.Channel != ChannelNone
}
