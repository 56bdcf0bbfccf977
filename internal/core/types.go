package core

import "mitostat/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Region             = domain.Region
	Sequence           = domain.Sequence
	SequenceType       = domain.SequenceType
	Person             = domain.Person
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityRegion   = domain.EntityRegion
	EntitySequence = domain.EntitySequence
	EntityPerson   = domain.EntityPerson
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const ActionCreate = domain.ActionCreate
