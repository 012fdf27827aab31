package stats

import (
	"math"
	"time"
)

// Bucket is a half-open interval [Low, High) with the number of values in it.
// CumulativePercent is the share of in-range values below Low, rounded half to even.
type Bucket struct {
	Low               int
	High              int
	Count             int
	CumulativePercent int
}

type bucketOptions struct {
	trim bool
}

// BucketOption tweaks Bucketize.
type BucketOption func(*bucketOptions)

// Untrimmed keeps leading and trailing empty buckets.
func Untrimmed() BucketOption {
	return func(o *bucketOptions) { o.trim = false }
}

// Bucketize counts values into fixed-width buckets covering [low, high).
// Values outside the range are dropped. Empty buckets at both ends are
// trimmed unless Untrimmed is given, so an input without in-range values
// yields no buckets.
func Bucketize(values []int, low, high, binSize int, opts ...BucketOption) ([]Bucket, error) {
	o := bucketOptions{trim: true}
	for _, opt := range opts {
		opt(&o)
	}
	if binSize < 1 {
		return nil, configErrorf("bucketize", "bin size must be >= 1, got %d", binSize)
	}
	if high <= low {
		return nil, configErrorf("bucketize", "empty range [%d, %d)", low, high)
	}
	if (high-low)%binSize != 0 {
		return nil, configErrorf("bucketize", "bin size %d does not divide range [%d, %d)", binSize, low, high)
	}

	count := (high - low) / binSize
	buckets := make([]Bucket, count)
	for i := range buckets {
		buckets[i].Low = low + i*binSize
		buckets[i].High = low + (i+1)*binSize
	}
	total := 0
	for _, v := range values {
		if v < low || v >= high {
			continue
		}
		buckets[(v-low)/binSize].Count++
		total++
	}

	running := 0
	for i := range buckets {
		buckets[i].CumulativePercent = roundPercent(running, total)
		running += buckets[i].Count
	}

	if !o.trim {
		return buckets, nil
	}
	l, r := 0, len(buckets)-1
	for l <= r && buckets[l].Count == 0 {
		l++
	}
	for r >= l && buckets[r].Count == 0 {
		r--
	}
	return buckets[l : r+1], nil
}

func roundPercent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.RoundToEven(100 * float64(part) / float64(total)))
}

// TimeBucket is a half-open time interval [Start, End) with a count.
type TimeBucket struct {
	Start time.Time
	End   time.Time
	Count int
}

// BucketizeTimes splits [low, high) into bins equal-width intervals and
// counts the times in each. Times outside the range are dropped.
func BucketizeTimes(times []time.Time, low, high time.Time, bins int) ([]TimeBucket, error) {
	if bins < 1 {
		return nil, configErrorf("bucketize times", "bin count must be >= 1, got %d", bins)
	}
	if !high.After(low) {
		return nil, configErrorf("bucketize times", "empty range [%s, %s)",
			low.Format(time.DateOnly), high.Format(time.DateOnly))
	}
	span := high.Sub(low)
	width := span / time.Duration(bins)
	buckets := make([]TimeBucket, bins)
	for i := range buckets {
		buckets[i].Start = low.Add(time.Duration(i) * width)
		buckets[i].End = low.Add(time.Duration(i+1) * width)
	}
	buckets[bins-1].End = high
	for _, t := range times {
		if t.Before(low) || !t.Before(high) {
			continue
		}
		idx := int(float64(t.Sub(low)) / float64(span) * float64(bins))
		if idx >= bins {
			idx = bins - 1
		}
		buckets[idx].Count++
	}
	return buckets, nil
}
