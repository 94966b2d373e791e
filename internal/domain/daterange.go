package domain

import (
	"fmt"
	"time"
)

// Metric selects the GMV basis for aggregation.
type Metric string

const (
	// MetricGrossTotal uses the order's gross total.
	MetricGrossTotal Metric = "gross-total"

	// MetricSubtotal uses the order's subtotal, falling back to the
	// gross total when the subtotal is absent.
	MetricSubtotal Metric = "subtotal"
)

// ParseMetric parses a metric selector, defaulting to gross total.
func ParseMetric(s string) Metric {
	if s == string(MetricSubtotal) {
		return MetricSubtotal
	}
	return MetricGrossTotal
}

// RangeKind tags canonical presets. It is used only to pick trend
// granularity; filtering always goes by Start/End.
type RangeKind string

const (
	Range7d     RangeKind = "7d"
	Range30d    RangeKind = "30d"
	Range90d    RangeKind = "90d"
	RangeCustom RangeKind = "custom"
)

// DateRange is a half-open window [Start, End) with a display label.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
	Days  int       `json:"days"`
	Kind  RangeKind `json:"kind"`
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// NewPresetRange builds one of the canonical preset ranges ending now,
// anchored to day boundaries in the given location.
func NewPresetRange(kind RangeKind, now time.Time, loc *time.Location) DateRange {
	if loc == nil {
		loc = time.UTC
	}
	days := 30
	switch kind {
	case Range7d:
		days = 7
	case Range30d:
		days = 30
	case Range90d:
		days = 90
	}
	local := now.In(loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -days)
	return DateRange{
		Start: start,
		End:   end,
		Label: string(kind),
		Days:  days,
		Kind:  kind,
	}
}

// NewCustomRange builds a window from explicit bounds. End is exclusive.
func NewCustomRange(start, end time.Time) (DateRange, error) {
	if !end.After(start) {
		return DateRange{}, fmt.Errorf("range end must be after start")
	}
	days := int((end.Sub(start) + 24*time.Hour - 1) / (24 * time.Hour))
	return DateRange{
		Start: start,
		End:   end,
		Label: string(RangeCustom),
		Days:  days,
		Kind:  RangeCustom,
	}, nil
}
