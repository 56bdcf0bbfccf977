// Package memory provides an in-memory implementation of the core persistence
// store used for tests, ephemeral runs, and as the transactional layer beneath
// the relational backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"mitostat/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Region aliases domain.Region for in-memory persistence operations.
	Region = domain.Region
	// Sequence aliases domain.Sequence.
	Sequence = domain.Sequence
	// Person aliases domain.Person.
	Person = domain.Person
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// CommitHook runs after rules pass and before the new state becomes visible.
// Returning an error discards the transaction.
type CommitHook func(ctx context.Context, changes []Change) error

type memoryState struct {
	regions   map[int64]Region
	sequences map[int64]Sequence
	persons   map[int64]Person

	regionByName     map[string]int64
	sequenceByName   map[string]int64
	personBySequence map[int64]int64
	personByURL      map[string]int64

	nextRegion   int64
	nextSequence int64
	nextPerson   int64
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Regions   map[int64]Region   `json:"regions"`
	Sequences map[int64]Sequence `json:"sequences"`
	Persons   map[int64]Person   `json:"persons"`
}

func newMemoryState() memoryState {
	return memoryState{
		regions:          make(map[int64]Region),
		sequences:        make(map[int64]Sequence),
		persons:          make(map[int64]Person),
		regionByName:     make(map[string]int64),
		sequenceByName:   make(map[string]int64),
		personBySequence: make(map[int64]int64),
		personByURL:      make(map[string]int64),
		nextRegion:       1,
		nextSequence:     1,
		nextPerson:       1,
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Regions:   make(map[int64]Region, len(state.regions)),
		Sequences: make(map[int64]Sequence, len(state.sequences)),
		Persons:   make(map[int64]Person, len(state.persons)),
	}
	for k, v := range state.regions {
		s.Regions[k] = v
	}
	for k, v := range state.sequences {
		s.Sequences[k] = v
	}
	for k, v := range state.persons {
		s.Persons[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Regions {
		v.ID = k
		state.putRegion(v)
	}
	for k, v := range s.Sequences {
		v.ID = k
		state.putSequence(v)
	}
	for k, v := range s.Persons {
		v.ID = k
		state.putPerson(v)
	}
	return state
}

func (s memoryState) clone() memoryState {
	cp := memoryState{
		regions:          make(map[int64]Region, len(s.regions)),
		sequences:        make(map[int64]Sequence, len(s.sequences)),
		persons:          make(map[int64]Person, len(s.persons)),
		regionByName:     make(map[string]int64, len(s.regionByName)),
		sequenceByName:   make(map[string]int64, len(s.sequenceByName)),
		personBySequence: make(map[int64]int64, len(s.personBySequence)),
		personByURL:      make(map[string]int64, len(s.personByURL)),
		nextRegion:       s.nextRegion,
		nextSequence:     s.nextSequence,
		nextPerson:       s.nextPerson,
	}
	for k, v := range s.regions {
		cp.regions[k] = v
	}
	for k, v := range s.sequences {
		cp.sequences[k] = v
	}
	for k, v := range s.persons {
		cp.persons[k] = v
	}
	for k, v := range s.regionByName {
		cp.regionByName[k] = v
	}
	for k, v := range s.sequenceByName {
		cp.sequenceByName[k] = v
	}
	for k, v := range s.personBySequence {
		cp.personBySequence[k] = v
	}
	for k, v := range s.personByURL {
		cp.personByURL[k] = v
	}
	return cp
}

func (s *memoryState) putRegion(r Region) {
	s.regions[r.ID] = r
	s.regionByName[r.Name] = r.ID
	if r.ID >= s.nextRegion {
		s.nextRegion = r.ID + 1
	}
}

func (s *memoryState) putSequence(seq Sequence) {
	s.sequences[seq.ID] = seq
	if seq.Name != "" {
		s.sequenceByName[seq.Name] = seq.ID
	}
	if seq.ID >= s.nextSequence {
		s.nextSequence = seq.ID + 1
	}
}

func (s *memoryState) putPerson(p Person) {
	s.persons[p.ID] = p
	s.personBySequence[p.SequenceID] = p.ID
	if p.SourceURL != "" {
		if id, taken := s.personByURL[p.SourceURL]; !taken || p.ID < id {
			s.personByURL[p.SourceURL] = p.ID
		}
	}
	if p.ID >= s.nextPerson {
		s.nextPerson = p.ID + 1
	}
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot. ID
// counters resume after the highest imported ID per entity.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

type transaction struct {
	state   memoryState
	changes []Change
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListRegions returns all regions ordered by ID.
func (v transactionView) ListRegions() []Region {
	out := make([]Region, 0, len(v.state.regions))
	for _, r := range v.state.regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListSequences returns all sequences ordered by ID.
func (v transactionView) ListSequences() []Sequence {
	out := make([]Sequence, 0, len(v.state.sequences))
	for _, s := range v.state.sequences {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListPersons returns all persons ordered by ID.
func (v transactionView) ListPersons() []Person {
	out := make([]Person, 0, len(v.state.persons))
	for _, p := range v.state.persons {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) FindRegion(name string) (Region, bool) {
	id, ok := v.state.regionByName[name]
	if !ok {
		return Region{}, false
	}
	return v.state.regions[id], true
}

func (v transactionView) FindSequence(id int64) (Sequence, bool) {
	s, ok := v.state.sequences[id]
	return s, ok
}

func (v transactionView) FindSequenceByName(name string) (Sequence, bool) {
	id, ok := v.state.sequenceByName[name]
	if !ok {
		return Sequence{}, false
	}
	return v.state.sequences[id], true
}

// FindPersonBySourceURL returns the lowest-ID person stored with url.
func (v transactionView) FindPersonBySourceURL(url string) (Person, bool) {
	id, ok := v.state.personByURL[url]
	if !ok {
		return Person{}, false
	}
	return v.state.persons[id], true
}

// FindRegionByID returns the region with the given ID.
func (v transactionView) FindRegionByID(id int64) (Region, bool) {
	r, ok := v.state.regions[id]
	return r, ok
}

// ListSamples returns the sample sequences of members in region (all members
// when region is nil) ordered by sequence ID.
func (v transactionView) ListSamples(region *string) []Sequence {
	var regionID int64
	if region != nil {
		id, ok := v.state.regionByName[*region]
		if !ok {
			return nil
		}
		regionID = id
	}
	out := make([]Sequence, 0, len(v.state.persons))
	for _, p := range v.state.persons {
		if region != nil && p.RegionID != regionID {
			continue
		}
		seq, ok := v.state.sequences[p.SequenceID]
		if !ok || seq.Type != domain.SequenceSample {
			continue
		}
		out = append(out, seq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	return s.RunInTransactionWithHook(ctx, fn, nil)
}

// RunInTransactionWithHook behaves like RunInTransaction and calls hook with
// the recorded changes once rules pass. The state is only swapped when the
// hook succeeds.
func (s *Store) RunInTransactionWithHook(ctx context.Context, fn func(tx Transaction) error, hook CommitHook) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: s.state.clone()}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}
	result.Changes = append([]Change(nil), tx.changes...)

	if hook != nil && len(tx.changes) > 0 {
		if err := hook(ctx, tx.changes); err != nil {
			return result, err
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := newTransactionView(&s.state)
	return fn(view)
}

// ListRegions returns a snapshot of all regions.
func (s *Store) ListRegions() []Region {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListRegions()
}

// ListSequences returns a snapshot of all sequences.
func (s *Store) ListSequences() []Sequence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListSequences()
}

// ListPersons returns a snapshot of all persons.
func (s *Store) ListPersons() []Person {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListPersons()
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindSequenceByName exposes named sequence lookup within the transaction scope.
func (tx *transaction) FindSequenceByName(name string) (Sequence, bool) {
	return newTransactionView(&tx.state).FindSequenceByName(name)
}

// EnsureRegion returns the named region, creating it on first use.
func (tx *transaction) EnsureRegion(name string) (Region, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Region{}, fmt.Errorf("region name required")
	}
	if id, ok := tx.state.regionByName[name]; ok {
		return tx.state.regions[id], nil
	}
	r := Region{ID: tx.state.nextRegion, Name: name}
	tx.state.putRegion(r)
	tx.recordChange(Change{Entity: domain.EntityRegion, Action: domain.ActionCreate, After: r})
	return r, nil
}

// CreateSequence stores a new sequence. Named sequences are unique.
func (tx *transaction) CreateSequence(seq Sequence) (Sequence, error) {
	if !seq.Type.Valid() {
		return Sequence{}, fmt.Errorf("sequence type %d invalid", int(seq.Type))
	}
	if seq.Fasta == "" {
		return Sequence{}, fmt.Errorf("sequence fasta required")
	}
	if seq.Name != "" {
		if _, exists := tx.state.sequenceByName[seq.Name]; exists {
			return Sequence{}, fmt.Errorf("sequence %q: %w", seq.Name, domain.ErrDuplicateSequence)
		}
	}
	if seq.ID == 0 {
		seq.ID = tx.state.nextSequence
	}
	if _, exists := tx.state.sequences[seq.ID]; exists {
		return Sequence{}, fmt.Errorf("sequence %d already exists", seq.ID)
	}
	tx.state.putSequence(seq)
	tx.recordChange(Change{Entity: domain.EntitySequence, Action: domain.ActionCreate, After: seq})
	return seq, nil
}

// CreatePerson stores a population member linking a region to a sample sequence.
func (tx *transaction) CreatePerson(p Person) (Person, error) {
	if _, ok := tx.state.regions[p.RegionID]; !ok {
		return Person{}, domain.ErrNotFound{Entity: domain.EntityRegion, Key: fmt.Sprint(p.RegionID)}
	}
	seq, ok := tx.state.sequences[p.SequenceID]
	if !ok {
		return Person{}, domain.ErrNotFound{Entity: domain.EntitySequence, Key: fmt.Sprint(p.SequenceID)}
	}
	if seq.Type != domain.SequenceSample {
		return Person{}, fmt.Errorf("sequence %d is a %s, not a sample", seq.ID, seq.Type)
	}
	if owner, taken := tx.state.personBySequence[p.SequenceID]; taken {
		return Person{}, fmt.Errorf("sequence %d already belongs to person %d", p.SequenceID, owner)
	}
	if p.ID == 0 {
		p.ID = tx.state.nextPerson
	}
	if _, exists := tx.state.persons[p.ID]; exists {
		return Person{}, fmt.Errorf("person %d already exists", p.ID)
	}
	tx.state.putPerson(p)
	tx.recordChange(Change{Entity: domain.EntityPerson, Action: domain.ActionCreate, After: p})
	return p, nil
}
