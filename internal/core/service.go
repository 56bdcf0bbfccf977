package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"mitostat/internal/infra/persistence/memory"
	"mitostat/internal/popgen"
	"mitostat/pkg/domain"
)

// Service is the engine's entry point: it loads populations from the store,
// runs the popgen computations, and persists derived sequences.
type Service struct {
	store   PersistentStore
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	clock   Clock
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the operation tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithClock overrides the time source used for operation timing.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		audit:   noopAudit{},
		clock:   systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

type auditRef struct {
	entity EntityType
	id     int64
}

// run wraps an operation with tracing, metrics, audit, and logging.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) (auditRef, error)) error {
	started := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	ref, err := fn(ctx)
	elapsed := s.clock.Now().Sub(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	entry := AuditEntry{
		Operation: op,
		Status:    AuditStatusSuccess,
		Entity:    ref.entity,
		EntityID:  ref.id,
		StartedAt: started,
		Duration:  elapsed,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.logger.Error("operation failed", "operation", op, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", op, "duration", elapsed)
	}
	s.audit.Record(ctx, entry)
	return err
}

func (s *Service) logWarnings(op string, res Result) {
	for _, v := range res.Warnings() {
		s.logger.Warn("rule warning", "operation", op, "rule", v.Rule, "message", v.Message)
	}
}

// ReferenceResult reports the outcome of RegisterReference.
type ReferenceResult struct {
	Sequence Sequence
	Created  bool
}

// RegisterReference stores a named REFERENCE sequence. Registering the same
// name and fasta again is a no-op; a different fasta under a taken name fails.
func (s *Service) RegisterReference(ctx context.Context, name, fasta, url string) (ReferenceResult, error) {
	var out ReferenceResult
	err := s.run(ctx, "register_reference", func(ctx context.Context) (auditRef, error) {
		name = strings.TrimSpace(name)
		if name == "" {
			return auditRef{}, fmt.Errorf("reference name required")
		}
		if fasta == "" {
			return auditRef{}, fmt.Errorf("reference %s: fasta required", name)
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if existing, ok := tx.FindSequenceByName(name); ok {
				if existing.Fasta != fasta {
					return fmt.Errorf("reference %s: %w with different content", name, domain.ErrDuplicateSequence)
				}
				out = ReferenceResult{Sequence: existing}
				return nil
			}
			created, err := tx.CreateSequence(Sequence{Fasta: fasta, Type: domain.SequenceReference, Name: name, URL: url})
			if err != nil {
				return err
			}
			out = ReferenceResult{Sequence: created, Created: true}
			return nil
		})
		if err != nil {
			return auditRef{}, err
		}
		s.logWarnings("register_reference", res)
		return auditRef{entity: EntitySequence, id: out.Sequence.ID}, nil
	})
	return out, err
}

// SampleInput is one record of the ingestion feed.
type SampleInput struct {
	Identifier string
	Region     string
	Fasta      string
	// URL is the public record location; empty leaves it unset.
	URL string
}

// IngestResult holds the rows of one sample. Existing is set when a person
// with the same source URL was already stored and nothing was written.
type IngestResult struct {
	Region   Region
	Sequence Sequence
	Person   Person
	Existing bool
}

// IngestSample stores a sample sequence and the person carrying it, creating
// the region on first use. Each call commits independently. A sample whose URL
// is already stored returns the stored rows; samples without a URL are always
// stored.
func (s *Service) IngestSample(ctx context.Context, in SampleInput) (IngestResult, Result, error) {
	var (
		out IngestResult
		res Result
	)
	err := s.run(ctx, "ingest_sample", func(ctx context.Context) (auditRef, error) {
		if strings.TrimSpace(in.Region) == "" {
			return auditRef{}, fmt.Errorf("sample %s: region required", in.Identifier)
		}
		if in.Fasta == "" {
			return auditRef{}, fmt.Errorf("sample %s: fasta required", in.Identifier)
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if in.URL != "" {
				if existing, ok := storedSample(tx.Snapshot(), in.URL); ok {
					out = existing
					return nil
				}
			}
			region, err := tx.EnsureRegion(in.Region)
			if err != nil {
				return err
			}
			seq, err := tx.CreateSequence(Sequence{Fasta: in.Fasta, Type: domain.SequenceSample, URL: in.URL})
			if err != nil {
				return err
			}
			person, err := tx.CreatePerson(Person{RegionID: region.ID, SequenceID: seq.ID, SourceURL: in.URL})
			if err != nil {
				return err
			}
			out = IngestResult{Region: region, Sequence: seq, Person: person}
			return nil
		})
		if err != nil {
			return auditRef{}, err
		}
		if out.Existing {
			s.logger.Debug("sample already stored", "url", in.URL, "person", out.Person.ID)
			if out.Region.Name != strings.TrimSpace(in.Region) || out.Sequence.Fasta != in.Fasta {
				s.logger.Warn("stored sample differs from feed record", "url", in.URL, "region", out.Region.Name, "feed_region", in.Region)
			}
		}
		s.logWarnings("ingest_sample", res)
		return auditRef{entity: EntityPerson, id: out.Person.ID}, nil
	})
	return out, res, err
}

func storedSample(v TransactionView, url string) (IngestResult, bool) {
	person, ok := v.FindPersonBySourceURL(url)
	if !ok {
		return IngestResult{}, false
	}
	region, _ := v.FindRegionByID(person.RegionID)
	seq, _ := v.FindSequence(person.SequenceID)
	return IngestResult{Region: region, Sequence: seq, Person: person, Existing: true}, true
}

// Regions returns the names of all stored regions, sorted.
func (s *Service) Regions(ctx context.Context) ([]string, error) {
	var names []string
	err := s.run(ctx, "list_regions", func(ctx context.Context) (auditRef, error) {
		return auditRef{}, s.store.View(ctx, func(v TransactionView) error {
			for _, r := range v.ListRegions() {
				names = append(names, r.Name)
			}
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

// DistanceQuery selects the comparison performed by ComputeDistances.
type DistanceQuery struct {
	// Reference names the sequence samples are compared against; required for ModeVsReference.
	Reference *string
	// Region limits the population; nil means every region.
	Region *string
	Mode   popgen.Mode
}

// Label renders the comparison for logs and report rows.
func (q DistanceQuery) Label() string {
	if q.Mode == popgen.ModeAllPairs {
		return "pairwise"
	}
	if q.Reference == nil {
		return "reference"
	}
	return *q.Reference
}

// population loads the samples in scope and, when named, one extra sequence.
func population(v TransactionView, region *string, named *string) ([]popgen.Aligned, *popgen.Aligned, error) {
	if region != nil {
		if _, ok := v.FindRegion(*region); !ok {
			return nil, nil, domain.ErrNotFound{Entity: EntityRegion, Key: *region}
		}
	}
	samples := popgen.FromSequences(v.ListSamples(region))
	if named == nil {
		return samples, nil, nil
	}
	seq, ok := v.FindSequenceByName(*named)
	if !ok {
		return nil, nil, domain.ErrNotFound{Entity: EntitySequence, Key: *named}
	}
	a := popgen.Of(seq)
	return samples, &a, nil
}

// ComputeDistances returns the mismatch count of every comparison selected by q.
func (s *Service) ComputeDistances(ctx context.Context, q DistanceQuery) (popgen.Distances, error) {
	var out popgen.Distances
	err := s.run(ctx, "compute_distances", func(ctx context.Context) (auditRef, error) {
		var named *string
		if q.Mode == popgen.ModeVsReference {
			if q.Reference == nil {
				return auditRef{}, fmt.Errorf("%s: reference name required", q.Mode)
			}
			named = q.Reference
		}
		return auditRef{}, s.store.View(ctx, func(v TransactionView) error {
			samples, ref, err := population(v, q.Region, named)
			if err != nil {
				return err
			}
			out, err = popgen.Compute(q.Mode, ref, samples)
			return err
		})
	})
	return out, err
}

// Analysis bundles a distance distribution with its moments.
type Analysis struct {
	Query        DistanceQuery
	Distribution popgen.Distribution
	Moments      popgen.Moments
}

// Analyze computes the distances for q, aggregates them, and derives moments.
// An undefined coefficient of variation is logged, not returned as an error.
func (s *Service) Analyze(ctx context.Context, q DistanceQuery) (Analysis, error) {
	distances, err := s.ComputeDistances(ctx, q)
	if err != nil {
		return Analysis{}, err
	}
	out := Analysis{Query: q}
	err = s.run(ctx, "analyze", func(context.Context) (auditRef, error) {
		var err error
		out.Distribution, err = popgen.Aggregate(distances)
		if err != nil {
			return auditRef{}, err
		}
		out.Moments, err = popgen.ComputeMoments(out.Distribution)
		if err != nil {
			return auditRef{}, err
		}
		if !out.Moments.HasCoeff() {
			s.logger.Warn("coefficient of variation undefined", "comparison", q.Label(), "region", domain.ScopeLabel(q.Region), "error", domain.ErrZeroMean)
		}
		return auditRef{}, nil
	})
	if err != nil {
		return Analysis{}, err
	}
	return out, nil
}

// ConsensusResult reports the wild type for a scope and whether this call stored it.
type ConsensusResult struct {
	Sequence Sequence
	Created  bool
}

// BuildConsensus stores the majority sequence of the samples in region as
// WILD_TYPE_<region>. When it already exists the stored one is returned unchanged.
func (s *Service) BuildConsensus(ctx context.Context, region *string) (ConsensusResult, error) {
	var out ConsensusResult
	name := domain.WildTypeName(region)
	err := s.run(ctx, "build_consensus", func(ctx context.Context) (auditRef, error) {
		var (
			fasta  string
			exists bool
		)
		err := s.store.View(ctx, func(v TransactionView) error {
			if seq, ok := v.FindSequenceByName(name); ok {
				out = ConsensusResult{Sequence: seq}
				exists = true
				return nil
			}
			samples, _, err := population(v, region, nil)
			if err != nil {
				return err
			}
			fasta, err = popgen.Consensus(samples)
			return err
		})
		if err != nil {
			return auditRef{}, err
		}
		if exists {
			s.logger.Debug("consensus already stored", "name", name)
			return auditRef{entity: EntitySequence, id: out.Sequence.ID}, nil
		}
		_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if seq, ok := tx.FindSequenceByName(name); ok {
				out = ConsensusResult{Sequence: seq}
				return nil
			}
			created, err := tx.CreateSequence(Sequence{Fasta: fasta, Type: domain.SequenceConsensus, Name: name})
			if err != nil {
				return err
			}
			out = ConsensusResult{Sequence: created, Created: true}
			return nil
		})
		if errors.Is(err, domain.ErrDuplicateSequence) {
			err = s.store.View(ctx, func(v TransactionView) error {
				seq, ok := v.FindSequenceByName(name)
				if !ok {
					return domain.ErrNotFound{Entity: EntitySequence, Key: name}
				}
				out = ConsensusResult{Sequence: seq}
				return nil
			})
		}
		if err != nil {
			return auditRef{}, err
		}
		if out.Created {
			s.logger.Info("consensus stored", "name", name, "length", out.Sequence.Len())
		}
		return auditRef{entity: EntitySequence, id: out.Sequence.ID}, nil
	})
	return out, err
}

// CountPolymorphic counts the polymorphic positions of the samples in region
// together with the named comparison sequence. An empty name counts the
// samples alone.
func (s *Service) CountPolymorphic(ctx context.Context, region *string, comparison string) (int, error) {
	var count int
	err := s.run(ctx, "count_polymorphic", func(ctx context.Context) (auditRef, error) {
		var named *string
		if comparison != "" {
			named = &comparison
		}
		return auditRef{}, s.store.View(ctx, func(v TransactionView) error {
			samples, extra, err := population(v, region, named)
			if err != nil {
				return err
			}
			if len(samples) == 0 {
				return domain.ErrEmptyPopulation
			}
			count, err = popgen.CountPolymorphic(samples, extra)
			return err
		})
	})
	return count, err
}

// SequenceDistance returns the mismatch count between two named sequences.
func (s *Service) SequenceDistance(ctx context.Context, a, b string) (int, error) {
	var d int
	err := s.run(ctx, "sequence_distance", func(ctx context.Context) (auditRef, error) {
		return auditRef{}, s.store.View(ctx, func(v TransactionView) error {
			left, ok := v.FindSequenceByName(a)
			if !ok {
				return domain.ErrNotFound{Entity: EntitySequence, Key: a}
			}
			right, ok := v.FindSequenceByName(b)
			if !ok {
				return domain.ErrNotFound{Entity: EntitySequence, Key: b}
			}
			var err error
			d, err = popgen.Mismatches(popgen.Of(left), popgen.Of(right))
			return err
		})
	})
	return d, err
}
