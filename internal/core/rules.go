package core

import "mitostat/pkg/domain"

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
// Reference names enable the alignment warning for newly stored sequences.
func NewDefaultRulesEngine(referenceNames ...string) *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewSampleMembershipRule())
	if len(referenceNames) > 0 {
		engine.Register(NewAlignmentRule(referenceNames...))
	}
	return engine
}
