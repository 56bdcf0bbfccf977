package popgen

import (
	"errors"
	"testing"

	"mitostat/pkg/domain"
)

func TestCountPolymorphic(t *testing.T) {
	cases := []struct {
		name       string
		population []Aligned
		comparison *Aligned
		want       int
	}{
		{name: "identical", population: seqs("ACGT", "ACGT"), want: 0},
		{name: "population only", population: seqs("ACGT", "ACGA", "TCGA"), want: 2},
		{name: "comparison adds site", population: seqs("ACGT", "ACGT"), comparison: &Aligned{ID: 99, Fasta: "ACCT"}, want: 1},
		{name: "comparison agrees", population: seqs("ACGT", "ACGA"), comparison: &Aligned{ID: 99, Fasta: "ACGT"}, want: 1},
		{name: "single sequence", population: seqs("ACGT"), want: 0},
		{name: "comparison alone", comparison: &Aligned{ID: 99, Fasta: "ACGT"}, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CountPolymorphic(tc.population, tc.comparison)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if got != tc.want {
				t.Fatalf("polymorphic sites = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCountPolymorphicErrors(t *testing.T) {
	if _, err := CountPolymorphic(nil, nil); !errors.Is(err, domain.ErrEmptyPopulation) {
		t.Fatalf("expected empty population, got %v", err)
	}
	var alignment *domain.AlignmentError
	if _, err := CountPolymorphic(seqs("ACGT"), &Aligned{ID: 5, Fasta: "ACG"}); !errors.As(err, &alignment) {
		t.Fatalf("expected alignment error, got %v", err)
	}
}
