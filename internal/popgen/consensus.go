package popgen

import "mitostat/pkg/domain"

// Consensus returns the per-position majority character of samples. Ties go
// to the smallest byte value so the result never depends on input order.
func Consensus(samples []Aligned) (string, error) {
	if len(samples) == 0 {
		return "", domain.ErrEmptyPopulation
	}
	if err := checkAligned(samples); err != nil {
		return "", err
	}
	n := len(samples[0].Fasta)
	out := make([]byte, n)
	var counts [256]int
	for i := 0; i < n; i++ {
		counts = [256]int{}
		for _, s := range samples {
			counts[s.Fasta[i]]++
		}
		var best byte
		most := 0
		for c := 0; c < len(counts); c++ {
			if counts[c] > most {
				most = counts[c]
				best = byte(c)
			}
		}
		out[i] = best
	}
	return string(out), nil
}
