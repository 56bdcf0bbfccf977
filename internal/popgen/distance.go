// Package popgen computes population statistics over aligned sequences:
// mismatch distances, their discrete distribution and moments, per-position
// consensus, and polymorphic site counts. It works on in-memory data only;
// callers load the population from the store once and pass it in.
package popgen

import (
	"fmt"
	"sort"

	"mitostat/pkg/domain"
)

// Aligned is the minimal view of a sequence needed for comparison.
type Aligned struct {
	ID    int64
	Fasta string
}

// FromSequences projects stored sequences onto Aligned values, keeping order.
func FromSequences(seqs []domain.Sequence) []Aligned {
	out := make([]Aligned, len(seqs))
	for i, s := range seqs {
		out[i] = Aligned{ID: s.ID, Fasta: s.Fasta}
	}
	return out
}

// Of wraps a single stored sequence.
func Of(s domain.Sequence) Aligned {
	return Aligned{ID: s.ID, Fasta: s.Fasta}
}

// Mode selects what each sample is compared against.
type Mode int

const (
	// ModeVsReference compares every sample with one reference sequence.
	ModeVsReference Mode = iota
	// ModeAllPairs compares every ordered pair of distinct samples.
	ModeAllPairs
)

func (m Mode) String() string {
	switch m {
	case ModeVsReference:
		return "vs_reference"
	case ModeAllPairs:
		return "all_pairs"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Key identifies one comparison. In ModeVsReference A is the sample and B the
// reference; in ModeAllPairs (A, B) is an ordered pair and (B, A) is present too.
type Key struct {
	A int64
	B int64
}

// Distances maps each comparison to its mismatch count.
type Distances map[Key]int

// Values returns the distances ordered by key.
func (d Distances) Values() []int {
	keys := make([]Key, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].A != keys[j].A {
			return keys[i].A < keys[j].A
		}
		return keys[i].B < keys[j].B
	})
	out := make([]int, len(keys))
	for i, k := range keys {
		out[i] = d[k]
	}
	return out
}

// Mismatches counts positions where a and b differ.
func Mismatches(a, b Aligned) (int, error) {
	if len(a.Fasta) != len(b.Fasta) {
		return 0, &domain.AlignmentError{SequenceID: b.ID, Length: len(b.Fasta), ReferenceID: a.ID, Expected: len(a.Fasta)}
	}
	n := 0
	for i := 0; i < len(a.Fasta); i++ {
		if a.Fasta[i] != b.Fasta[i] {
			n++
		}
	}
	return n, nil
}

// VsReference computes the distance of every sample to ref.
func VsReference(ref Aligned, samples []Aligned) (Distances, error) {
	out := make(Distances, len(samples))
	for _, s := range samples {
		d, err := Mismatches(ref, s)
		if err != nil {
			return nil, err
		}
		out[Key{A: s.ID, B: ref.ID}] = d
	}
	return out, nil
}

// AllPairs computes the distance of every ordered pair of distinct samples.
// Each unordered pair is compared once and recorded under both orders, so the
// resulting distribution counts every pair twice.
func AllPairs(samples []Aligned) (Distances, error) {
	if err := checkAligned(samples); err != nil {
		return nil, err
	}
	out := make(Distances, len(samples)*(len(samples)-1))
	for i := 0; i < len(samples); i++ {
		for j := i + 1; j < len(samples); j++ {
			d, err := Mismatches(samples[i], samples[j])
			if err != nil {
				return nil, err
			}
			out[Key{A: samples[i].ID, B: samples[j].ID}] = d
			out[Key{A: samples[j].ID, B: samples[i].ID}] = d
		}
	}
	return out, nil
}

// Compute dispatches on mode. ref is required for ModeVsReference and ignored otherwise.
func Compute(mode Mode, ref *Aligned, samples []Aligned) (Distances, error) {
	switch mode {
	case ModeVsReference:
		if ref == nil {
			return nil, fmt.Errorf("%s: reference sequence required", mode)
		}
		return VsReference(*ref, samples)
	case ModeAllPairs:
		return AllPairs(samples)
	default:
		return nil, fmt.Errorf("unknown distance mode %d", int(mode))
	}
}

func checkAligned(seqs []Aligned) error {
	if len(seqs) == 0 {
		return nil
	}
	anchor := seqs[0]
	for _, s := range seqs[1:] {
		if len(s.Fasta) != len(anchor.Fasta) {
			return &domain.AlignmentError{SequenceID: s.ID, Length: len(s.Fasta), ReferenceID: anchor.ID, Expected: len(anchor.Fasta)}
		}
	}
	return nil
}
