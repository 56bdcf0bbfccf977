package popgen

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"mitostat/pkg/domain"
)

func TestAggregateBucketsAscending(t *testing.T) {
	d, err := AggregateValues([]int{2, 0, 1})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	want := []Bucket{
		{Diff: 0, Frequency: 1, P: 1.0 / 3},
		{Diff: 1, Frequency: 1, P: 1.0 / 3},
		{Diff: 2, Frequency: 1, P: 1.0 / 3},
	}
	if !reflect.DeepEqual(d.Buckets, want) || d.Total != 3 {
		t.Fatalf("distribution = %+v", d)
	}
}

func TestAggregateMatchesOrderedValues(t *testing.T) {
	d := Distances{{A: 3, B: 9}: 2, {A: 1, B: 9}: 0, {A: 2, B: 9}: 2}
	got, err := Aggregate(d)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	want, err := AggregateValues(d.Values())
	if err != nil {
		t.Fatalf("aggregate values: %v", err)
	}
	if !reflect.DeepEqual(got, want) || got.Total != 3 || got.Frequency(2) != 2 {
		t.Fatalf("Aggregate = %+v, want %+v", got, want)
	}
	if _, err := Aggregate(Distances{}); !errors.Is(err, domain.ErrEmptyPopulation) {
		t.Fatalf("expected empty population, got %v", err)
	}
}

func TestAggregateProbabilitiesSumToOne(t *testing.T) {
	values := []int{0, 0, 3, 5, 5, 5, 8, 13, 13, 2, 2, 2, 2}
	d, err := AggregateValues(values)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	sum := 0.0
	freq := 0
	for i, b := range d.Buckets {
		if b.Frequency <= 0 {
			t.Fatalf("zero bucket present: %+v", b)
		}
		if i > 0 && d.Buckets[i-1].Diff >= b.Diff {
			t.Fatalf("buckets not ascending: %+v", d.Buckets)
		}
		sum += b.P
		freq += b.Frequency
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("probabilities sum to %v", sum)
	}
	if freq != len(values) || d.Total != len(values) {
		t.Fatalf("frequencies sum to %d (total %d), want %d", freq, d.Total, len(values))
	}
}

func TestAggregateRoundTrip(t *testing.T) {
	values := []int{4, 1, 1, 0, 4, 4, 7}
	d, err := AggregateValues(values)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	var expanded []int
	for _, b := range d.Buckets {
		for i := 0; i < b.Frequency; i++ {
			expanded = append(expanded, b.Diff)
		}
	}
	want := []int{0, 1, 1, 4, 4, 4, 7}
	if !reflect.DeepEqual(expanded, want) {
		t.Fatalf("expanded = %v, want %v", expanded, want)
	}
}

func TestAggregateErrors(t *testing.T) {
	if _, err := Aggregate(Distances{}); !errors.Is(err, domain.ErrEmptyPopulation) {
		t.Fatalf("expected empty population, got %v", err)
	}
	if _, err := AggregateValues([]int{1, -1}); err == nil {
		t.Fatalf("expected error for negative distance")
	}
}

func TestAllPairsDistributionHalved(t *testing.T) {
	dist, err := AllPairs(seqs("AA", "AB"))
	if err != nil {
		t.Fatalf("all pairs: %v", err)
	}
	d, err := Aggregate(dist)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if d.Frequency(1) != 2 || d.Buckets[0].P != 1.0 {
		t.Fatalf("ordered distribution = %+v", d)
	}
	h := d.Halved()
	if h.Frequency(1) != 1 || h.Total != 1 || h.Buckets[0].P != 1.0 {
		t.Fatalf("halved distribution = %+v", h)
	}
	if !(Distribution{}).Halved().Empty() {
		t.Fatalf("halving empty distribution should stay empty")
	}
}

func TestSeriesZeroFills(t *testing.T) {
	d, err := AggregateValues([]int{1, 1, 3, 25})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	freq, p := d.Series(5)
	if !reflect.DeepEqual(freq, []int{0, 2, 0, 1, 0}) {
		t.Fatalf("freq = %v", freq)
	}
	if p[1] != 0.5 || p[3] != 0.25 || p[0] != 0 {
		t.Fatalf("p = %v", p)
	}
	if d.Frequency(25) != 1 || d.Frequency(2) != 0 {
		t.Fatalf("frequency lookup mismatch")
	}
	freq, p = d.Series(-1)
	if len(freq) != 0 || len(p) != 0 {
		t.Fatalf("negative range should produce empty series")
	}
}
