package analytics

import (
	"sort"
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// BuildTrend groups orders into day, week, or month buckets with
// timezone-correct boundaries and returns the series ordered by each
// bucket's earliest contributing instant.
func BuildTrend(orders []*domain.Order, rng domain.DateRange, metric domain.Metric, loc *time.Location) []domain.TrendBucket {
	if loc == nil {
		loc = time.UTC
	}
	gran := pickGranularity(rng)

	type bucketAcc struct {
		bucket   domain.TrendBucket
		earliest time.Time
	}
	buckets := make(map[string]*bucketAcc)

	for _, o := range orders {
		start := bucketStart(o.CreatedAt, gran, loc)
		label := bucketLabel(start, gran)

		acc, ok := buckets[label]
		if !ok {
			acc = &bucketAcc{
				bucket: domain.TrendBucket{
					Label:    label,
					Channels: make(map[domain.Channel]domain.ChannelSlice),
				},
				earliest: o.CreatedAt,
			}
			buckets[label] = acc
		}
		if o.CreatedAt.Before(acc.earliest) {
			acc.earliest = o.CreatedAt
		}

		value := o.Value(metric)
		acc.bucket.TotalGMV += value
		acc.bucket.TotalOrders++
		if o.Attributed() {
			acc.bucket.AIGMV += value
			acc.bucket.AIOrders++
			slice := acc.bucket.Channels[o.Channel]
			slice.GMV += value
			slice.Orders++
			acc.bucket.Channels[o.Channel] = slice
		}
	}

	series := make([]domain.TrendBucket, 0, len(buckets))
	for _, acc := range buckets {
		acc.bucket.Start = acc.earliest
		series = append(series, acc.bucket)
	}

	// Chronological by earliest instant. Labels are display-only and do
	// not sort lexically across year boundaries.
	sort.Slice(series, func(i, j int) bool {
		return series[i].Start.Before(series[j].Start)
	})
	return series
}
