package popgen

import "mitostat/pkg/domain"

// CountPolymorphic counts positions where the population plus the optional
// comparison sequence shows more than one distinct character.
func CountPolymorphic(population []Aligned, comparison *Aligned) (int, error) {
	all := make([]Aligned, 0, len(population)+1)
	if comparison != nil {
		all = append(all, *comparison)
	}
	all = append(all, population...)
	if len(all) == 0 {
		return 0, domain.ErrEmptyPopulation
	}
	if err := checkAligned(all); err != nil {
		return 0, err
	}
	first := all[0].Fasta
	count := 0
	for i := 0; i < len(first); i++ {
		for _, s := range all[1:] {
			if s.Fasta[i] != first[i] {
				count++
				break
			}
		}
	}
	return count, nil
}
