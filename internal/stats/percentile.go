package stats

import (
	"slices"
	"sort"
)

// PercentilePoint pairs a rating with its percentile rank.
type PercentilePoint struct {
	Rating     int
	Percentile float64
}

// Population is a sorted, read-only snapshot of known ratings.
type Population struct {
	sorted []int
}

// NewPopulation sorts a copy of ratings. An empty population is rejected.
func NewPopulation(ratings []int) (*Population, error) {
	if len(ratings) == 0 {
		return nil, configErrorf("percentile", "rating population is empty")
	}
	sorted := slices.Clone(ratings)
	slices.Sort(sorted)
	return &Population{sorted: sorted}, nil
}

// Len returns the population size.
func (p *Population) Len() int {
	return len(p.sorted)
}

// Min returns the lowest rating.
func (p *Population) Min() int {
	return p.sorted[0]
}

// Max returns the highest rating.
func (p *Population) Max() int {
	return p.sorted[len(p.sorted)-1]
}

// Ratings returns a copy of the sorted ratings.
func (p *Population) Ratings() []int {
	return slices.Clone(p.sorted)
}

// Curve returns (ratings[i], 100*i/n) for every member of the population.
func (p *Population) Curve() []PercentilePoint {
	n := float64(len(p.sorted))
	out := make([]PercentilePoint, len(p.sorted))
	for i, r := range p.sorted {
		out[i] = PercentilePoint{Rating: r, Percentile: 100 * float64(i) / n}
	}
	return out
}

// PercentileOf returns the share of the population strictly below q, times 100.
func (p *Population) PercentileOf(q int) float64 {
	return percentileOfSorted(p.sorted, q)
}

// PercentileCurve sorts all and returns its percentile curve.
func PercentileCurve(all []int) ([]PercentilePoint, error) {
	pop, err := NewPopulation(all)
	if err != nil {
		return nil, err
	}
	return pop.Curve(), nil
}

// PercentileOf looks q up in an already sorted population.
func PercentileOf(sorted []int, q int) (float64, error) {
	if len(sorted) == 0 {
		return 0, configErrorf("percentile", "rating population is empty")
	}
	return percentileOfSorted(sorted, q), nil
}

func percentileOfSorted(sorted []int, q int) float64 {
	ix := sort.SearchInts(sorted, q)
	return 100 * float64(ix) / float64(len(sorted))
}
