// Package series implements the pure aggregation pipeline: extract a numeric
// field from raw sample payloads, drop noise, bucket by time granularity,
// and reduce each bucket to a line point or a candlestick.
package series

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"chainstats/internal/storage"
)

// Granularity is the bucket width used for aggregation.
type Granularity string

const (
	GranularityHour   Granularity = "hour"
	GranularityMinute Granularity = "minute"
)

// ParseGranularity validates a configured granularity name.
func ParseGranularity(name string) (Granularity, error) {
	switch Granularity(name) {
	case GranularityHour, GranularityMinute:
		return Granularity(name), nil
	}
	return "", fmt.Errorf("unsupported granularity %q", name)
}

// Truncate returns the bucket start for a timestamp.
func (g Granularity) Truncate(t time.Time) time.Time {
	switch g {
	case GranularityMinute:
		return t.UTC().Truncate(time.Minute)
	default:
		return t.UTC().Truncate(time.Hour)
	}
}

// Value is one extracted measurement, ascending by At within a series.
type Value struct {
	At time.Time
	V  decimal.Decimal
}

/// LinePoint is one chart point: bucket start and the bucket's peak value.
type LinePoint struct {
	X time.Time       `json:"x"`
	Y decimal.Decimal `json:"y"`
}

// CandlePoint summarises one bucket of price values.
type CandlePoint struct {
	X     time.Time       `json:"x"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

// Bucket groups the values whose timestamps truncate to Start. Values keep
// the order they arrived in.
type Bucket struct {
	Start  time.Time
	Values []decimal.Decimal
}

// Extract pulls the numeric field at path out of each sample payload.
// Samples without the field, or with an unparseable value, are dropped.
func Extract(samples []storage.Sample, path string) []Value {
	values := make([]Value, 0, len(samples))
	for _, sample := range samples {
		res := gjson.GetBytes(sample.Payload, path)
		if !res.Exists() {
			continue
		}
		v, err := decimal.NewFromString(res.String())
		if err != nil {
			continue
		}
		values = append(values, Value{At: sample.CreatedAt, V: v})
	}
	return values
}

// FilterFloor drops values at or below the floor. Used to discard
// pending-count readings that are sensor noise.
func FilterFloor(values []Value, floor decimal.Decimal) []Value {
	kept := make([]Value, 0, len(values))
	for _, value := range values {
		if value.V.GreaterThan(floor) {
			kept = append(kept, value)
		}
	}
	return kept
}

// Bucketize groups values by truncated timestamp. Buckets appear in
// first-seen order, so chronologically ascending input yields buckets with
// monotonically increasing Start. Values are never reordered.
func Bucketize(values []Value, g Granularity) []Bucket {
	buckets := make([]Bucket, 0)
	index := make(map[time.Time]int)
	for _, value := range values {
		start := g.Truncate(value.At)
		i, ok := index[start]
		if !ok {
			i = len(buckets)
			index[start] = i
			buckets = append(buckets, Bucket{Start: start})
		}
		buckets[i].Values = append(buckets[i].Values, value.V)
	}
	return buckets
}

// ReduceLine maps each bucket to its maximum value. The peak within a
// bucket is the signal of interest for pending-transaction spikes.
func ReduceLine(buckets []Bucket) []LinePoint {
	points := make([]LinePoint, 0, len(buckets))
	for _, bucket := range buckets {
		if len(bucket.Values) == 0 {
			continue
		}
		max := bucket.Values[0]
		for _, v := range bucket.Values[1:] {
			if v.GreaterThan(max) {
				max = v
			}
		}
		points = append(points, LinePoint{X: bucket.Start, Y: max})
	}
	return points
}

// ReduceCandle maps each bucket to an OHLC point. Open and close come from
// the first and last values in arrival order, so the input must already be
// ascending by creation time.
func ReduceCandle(buckets []Bucket) []CandlePoint {
	points := make([]CandlePoint, 0, len(buckets))
	for _, bucket := range buckets {
		if len(bucket.Values) == 0 {
			continue
		}
		open := bucket.Values[0]
		close := bucket.Values[len(bucket.Values)-1]
		low := bucket.Values[0]
		high := bucket.Values[0]
		for _, v := range bucket.Values[1:] {
			if v.LessThan(low) {
				low = v
			}
			if v.GreaterThan(high) {
				high = v
			}
		}
		points = append(points, CandlePoint{
			X:     bucket.Start,
			Open:  open,
			High:  high,
			Low:   low,
			Close: close,
		})
	}
	return points
}
