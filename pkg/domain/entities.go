// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by mitostat.
package domain

import "strings"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence tables.
const (
	// EntityRegion identifies a sampling region.
	EntityRegion EntityType = "region"
	// EntitySequence identifies an aligned sequence record.
	EntitySequence EntityType = "sequence"
	// EntityPerson identifies a population member.
	EntityPerson EntityType = "person"
)

// SequenceType classifies a stored sequence. The numeric values are persisted.
type SequenceType int

// Sequence classifications.
const (
	// SequenceSample is a population member's sequence.
	SequenceSample SequenceType = 0
	// SequenceReference is a named baseline such as EVA or ANDREWS.
	SequenceReference SequenceType = 1
	// SequenceConsensus is a derived per-region wild type.
	SequenceConsensus SequenceType = 2
)

func (t SequenceType) String() string {
	switch t {
	case SequenceSample:
		return "sample"
	case SequenceReference:
		return "reference"
	case SequenceConsensus:
		return "consensus"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the known classifications.
func (t SequenceType) Valid() bool {
	return t >= SequenceSample && t <= SequenceConsensus
}

// AllRegionsLabel names the unfiltered population in sheet titles and
// consensus names.
const AllRegionsLabel = "ALL"

// WildTypePrefix prefixes every consensus sequence name.
const WildTypePrefix = "WILD_TYPE_"

// Region is a sampling location. Names are unique.
type Region struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Sequence is an aligned nucleotide string. All sequences compared together
// must share the same length; alignment is assumed, never computed.
type Sequence struct {
	ID    int64        `json:"id"`
	Fasta string       `json:"fasta"`
	Type  SequenceType `json:"sequence_type"`
	Name  string       `json:"name,omitempty"`
	URL   string       `json:"url,omitempty"`
}

// Len returns the aligned length.
func (s Sequence) Len() int { return len(s.Fasta) }

// Positions materializes the per-character index of the sequence.
func (s Sequence) Positions() []FastaPosition {
	out := make([]FastaPosition, len(s.Fasta))
	for i := 0; i < len(s.Fasta); i++ {
		out[i] = FastaPosition{Position: i, Value: s.Fasta[i], SequenceID: s.ID}
	}
	return out
}

// Person is a population member carrying exactly one sample sequence.
type Person struct {
	ID         int64  `json:"id"`
	RegionID   int64  `json:"region_id"`
	SequenceID int64  `json:"sequence_id"`
	SourceURL  string `json:"source_url,omitempty"`
}

// FastaPosition is one character of a sequence at a zero-based offset.
type FastaPosition struct {
	Position   int   `json:"position"`
	Value      byte  `json:"value"`
	SequenceID int64 `json:"sequence_id"`
}

// ScopeLabel renders an optional region filter. A nil filter means every region.
func ScopeLabel(region *string) string {
	if region == nil {
		return AllRegionsLabel
	}
	return *region
}

// WildTypeName returns the consensus sequence name for a region scope.
func WildTypeName(region *string) string {
	return WildTypePrefix + ScopeLabel(region)
}

// ParseScope converts a sheet label back into a region filter; "ALL" (any case)
// and the empty string map to nil.
func ParseScope(label string) *string {
	label = strings.TrimSpace(label)
	if label == "" || strings.EqualFold(label, AllRegionsLabel) {
		return nil
	}
	return &label
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions. Sequences and people are immutable once ingested, so only
// creation is recorded.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID int64
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
	Changes    []Change
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking violations.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity != SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
