package stats

import (
	"math"
	"time"
)

// TimePoint is a value observed at a point in time.
type TimePoint struct {
	Time  time.Time
	Value float64
}

// RunningMean computes a sliding-window average using prefix sums.
// The result has max(0, len(values)-window+1) elements.
func RunningMean(values []float64, window int) ([]float64, error) {
	if window < 1 {
		return nil, configErrorf("running mean", "window must be >= 1, got %d", window)
	}
	n := len(values)
	if n < window {
		return []float64{}, nil
	}
	cumSum := make([]float64, n+1)
	for i, v := range values {
		cumSum[i+1] = cumSum[i] + v
	}
	out := make([]float64, n-window+1)
	for i := window; i <= n; i++ {
		out[i-window] = (cumSum[i] - cumSum[i-window]) / float64(window)
	}
	return out, nil
}

// Smooth averages both the time axis and the value axis over a sliding window.
func Smooth(points []TimePoint, window int) ([]TimePoint, error) {
	if window < 1 {
		return nil, configErrorf("smooth", "window must be >= 1, got %d", window)
	}
	stamps := make([]float64, len(points))
	values := make([]float64, len(points))
	for i, p := range points {
		stamps[i] = float64(p.Time.UnixNano()) / float64(time.Second)
		values[i] = p.Value
	}
	meanStamps, err := RunningMean(stamps, window)
	if err != nil {
		return nil, err
	}
	meanValues, err := RunningMean(values, window)
	if err != nil {
		return nil, err
	}
	out := make([]TimePoint, len(meanStamps))
	for i := range meanStamps {
		out[i] = TimePoint{Time: fromUnixSeconds(meanStamps[i]), Value: meanValues[i]}
	}
	return out, nil
}

func fromUnixSeconds(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(math.Round(frac*float64(time.Second))))
}
