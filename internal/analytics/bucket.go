package analytics

import (
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

type granularity int

const (
	granDay granularity = iota
	granWeek
	granMonth
)

// pickGranularity chooses the trend bucket size from the range length,
// honoring the canonical presets.
func pickGranularity(r domain.DateRange) granularity {
	switch {
	case r.Kind == domain.Range7d, r.Days <= 14:
		return granDay
	case r.Kind == domain.Range30d, r.Days <= 60:
		return granWeek
	default:
		return granMonth
	}
}

// bucketStart computes the start of the calendar day, week, or month
// containing t. The boundary is computed in loc and then carried as an
// absolute instant, not truncated in UTC. Weeks start on Monday.
func bucketStart(t time.Time, g granularity, loc *time.Location) time.Time {
	lt := t.In(loc)
	switch g {
	case granWeek:
		day := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -offset)
	case granMonth:
		return time.Date(lt.Year(), lt.Month(), 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	}
}

// bucketLabel formats the display label for a bucket start. Month labels
// are not lexically sortable across year boundaries, which is why the
// series is ordered by instant, never by label.
func bucketLabel(start time.Time, g granularity) string {
	if g == granMonth {
		return start.Format("Jan 2006")
	}
	return start.Format("Jan 2")
}
