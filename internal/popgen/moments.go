package popgen

import (
	"math"

	"mitostat/pkg/domain"
)

// Moments summarizes a distance distribution.
type Moments struct {
	Mean float64 `json:"mean"`
	// Std is the population standard deviation (no sample correction).
	Std  float64 `json:"std"`
	Mode int     `json:"mode"`
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	// Coeff is Std/Mean, or NaN when Mean is 0.
	Coeff float64 `json:"coeff"`
}

// HasCoeff reports whether the coefficient of variation is defined.
func (m Moments) HasCoeff() bool { return !math.IsNaN(m.Coeff) }

// ComputeMoments derives the moments from d. The mode is the most frequent
// distance; ties go to the smallest distance. A zero mean leaves Coeff as NaN
// rather than failing.
func ComputeMoments(d Distribution) (Moments, error) {
	if d.Empty() || len(d.Buckets) == 0 {
		return Moments{}, domain.ErrEmptyPopulation
	}
	var m Moments
	best := -1
	for i, b := range d.Buckets {
		m.Mean += float64(b.Diff) * b.P
		if b.Frequency > best {
			best = b.Frequency
			m.Mode = b.Diff
		}
		if i == 0 {
			m.Min = b.Diff
		}
		m.Max = b.Diff
	}
	var variance float64
	for _, b := range d.Buckets {
		dev := float64(b.Diff) - m.Mean
		variance += dev * dev * b.P
	}
	m.Std = math.Sqrt(variance)
	coeff, err := CoefficientOfVariation(m.Mean, m.Std)
	if err != nil {
		coeff = math.NaN()
	}
	m.Coeff = coeff
	return m, nil
}

// CoefficientOfVariation returns std/mean, failing with domain.ErrZeroMean when mean is 0.
func CoefficientOfVariation(mean, std float64) (float64, error) {
	if mean == 0 {
		return 0, domain.ErrZeroMean
	}
	return std / mean, nil
}
