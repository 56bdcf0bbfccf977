package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	// EnsureRegion returns the region with the given name, creating it on first use.
	EnsureRegion(name string) (Region, error)
	// CreateSequence stores a sequence. Named sequences fail with ErrDuplicateSequence
	// when the name is taken.
	CreateSequence(Sequence) (Sequence, error)
	CreatePerson(Person) (Person, error)
	FindSequenceByName(name string) (Sequence, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	ListRegions() []Region
	ListSequences() []Sequence
	ListPersons() []Person
	FindRegion(name string) (Region, bool)
	FindSequence(id int64) (Sequence, bool)
	FindSequenceByName(name string) (Sequence, bool)
	FindRegionByID(id int64) (Region, bool)
	// FindPersonBySourceURL returns the person whose record is published at url.
	FindPersonBySourceURL(url string) (Person, bool)
	// ListSamples returns the sample sequences of members in the region, or of
	// every member when region is nil, ordered by sequence ID.
	ListSamples(region *string) []Sequence
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Close() error
}
