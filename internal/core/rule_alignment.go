package core

import (
	"context"
	"fmt"

	"mitostat/pkg/domain"
)

// NewAlignmentRule returns a warning rule flagging new sequences whose length
// differs from any of the named references already in the store.
func NewAlignmentRule(referenceNames ...string) domain.Rule {
	return alignmentRule{references: append([]string(nil), referenceNames...)}
}

type alignmentRule struct {
	references []string
}

func (alignmentRule) Name() string { return "alignment_length" }

func (r alignmentRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		seq, ok := change.After.(domain.Sequence)
		if !ok {
			continue
		}
		for _, name := range r.references {
			if name == seq.Name {
				continue
			}
			ref, found := view.FindSequenceByName(name)
			if !found || ref.Len() == seq.Len() {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "alignment_length",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("sequence %d has length %d, reference %s has %d", seq.ID, seq.Len(), name, ref.Len()),
				Entity:   domain.EntitySequence,
				EntityID: seq.ID,
			})
		}
	}
	return res, nil
}
