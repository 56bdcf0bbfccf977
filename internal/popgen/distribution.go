package popgen

import (
	"fmt"
	"sort"

	"mitostat/pkg/domain"
)

// Bucket is one distance value with its frequency and probability.
type Bucket struct {
	Diff      int     `json:"diff_num"`
	Frequency int     `json:"frequency"`
	P         float64 `json:"p"`
}

// Distribution is a discrete frequency table ordered by ascending distance.
// Distances that never occur have no bucket.
type Distribution struct {
	Buckets []Bucket `json:"buckets"`
	Total   int      `json:"total"`
}

// Aggregate groups distances into buckets.
func Aggregate(d Distances) (Distribution, error) {
	return AggregateValues(d.Values())
}

// AggregateValues groups raw distance values into buckets.
func AggregateValues(values []int) (Distribution, error) {
	if len(values) == 0 {
		return Distribution{}, domain.ErrEmptyPopulation
	}
	counts := make(map[int]int)
	for _, v := range values {
		if v < 0 {
			return Distribution{}, fmt.Errorf("negative distance %d", v)
		}
		counts[v]++
	}
	return fromCounts(counts, len(values)), nil
}

func fromCounts(counts map[int]int, total int) Distribution {
	buckets := make([]Bucket, 0, len(counts))
	for diff, f := range counts {
		if f == 0 {
			continue
		}
		buckets = append(buckets, Bucket{Diff: diff, Frequency: f, P: float64(f) / float64(total)})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Diff < buckets[j].Diff })
	return Distribution{Buckets: buckets, Total: total}
}

// Empty reports whether the distribution has no observations.
func (d Distribution) Empty() bool { return d.Total == 0 }

// Frequency returns the count for diff, or 0 when absent.
func (d Distribution) Frequency(diff int) int {
	i := sort.Search(len(d.Buckets), func(i int) bool { return d.Buckets[i].Diff >= diff })
	if i < len(d.Buckets) && d.Buckets[i].Diff == diff {
		return d.Buckets[i].Frequency
	}
	return 0
}

// Halved converts an ordered-pair distribution into unordered-pair counts.
// Probabilities are unchanged.
func (d Distribution) Halved() Distribution {
	counts := make(map[int]int, len(d.Buckets))
	total := 0
	for _, b := range d.Buckets {
		counts[b.Diff] = b.Frequency / 2
		total += b.Frequency / 2
	}
	if total == 0 {
		return Distribution{}
	}
	return fromCounts(counts, total)
}

// Series zero-fills the display range [0, n) with frequencies and probabilities.
// Buckets at or beyond n are left out.
func (d Distribution) Series(n int) (freq []int, p []float64) {
	if n < 0 {
		n = 0
	}
	freq = make([]int, n)
	p = make([]float64, n)
	for _, b := range d.Buckets {
		if b.Diff >= n {
			break
		}
		freq[b.Diff] = b.Frequency
		p[b.Diff] = b.P
	}
	return freq, p
}
