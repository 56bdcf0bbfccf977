package core

import (
	"context"
	"fmt"

	"mitostat/pkg/domain"
)

// NewSampleMembershipRule returns the rule requiring every sample sequence
// created in a transaction to be claimed by exactly one person from the same
// transaction.
func NewSampleMembershipRule() domain.Rule {
	return sampleMembershipRule{}
}

type sampleMembershipRule struct{}

func (sampleMembershipRule) Name() string { return "sample_membership" }

func (sampleMembershipRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	claims := make(map[int64]int)
	for _, change := range changes {
		if p, ok := change.After.(domain.Person); ok {
			claims[p.SequenceID]++
		}
	}
	res := domain.Result{}
	for _, change := range changes {
		seq, ok := change.After.(domain.Sequence)
		if !ok || seq.Type != domain.SequenceSample {
			continue
		}
		if n := claims[seq.ID]; n != 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "sample_membership",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("sample sequence %d claimed by %d people, want 1", seq.ID, n),
				Entity:   domain.EntitySequence,
				EntityID: seq.ID,
			})
		}
	}
	return res, nil
}
