package core_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"mitostat/internal/core"
	"mitostat/internal/popgen"
	"mitostat/pkg/domain"
)

func strptr(s string) *string { return &s }

// seedService stores EVA and three IF samples at distance 0, 1 and 2 from it,
// plus one CU sample.
func seedService(t *testing.T, opts ...core.Option) *core.Service {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), opts...)
	ctx := context.Background()
	if _, err := svc.RegisterReference(ctx, "EVA", "AAAA", ""); err != nil {
		t.Fatalf("register EVA: %v", err)
	}
	for i, in := range []core.SampleInput{
		{Identifier: "MK1", Region: "IF", Fasta: "AAAA"},
		{Identifier: "MK2", Region: "IF", Fasta: "AAAT"},
		{Identifier: "MK3", Region: "IF", Fasta: "AATT"},
		{Identifier: "MK4", Region: "CU", Fasta: "TTTT", URL: "https://www.ncbi.nlm.nih.gov/nuccore/MK4"},
	} {
		if _, _, err := svc.IngestSample(ctx, in); err != nil {
			t.Fatalf("ingest sample %d: %v", i, err)
		}
	}
	return svc
}

func TestRegisterReferenceIsIdempotent(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	ctx := context.Background()
	first, err := svc.RegisterReference(ctx, "ANDREWS", "ACGT", "https://example.org/rcrs")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !first.Created || first.Sequence.Type != domain.SequenceReference {
		t.Fatalf("expected created reference, got %+v", first)
	}
	again, err := svc.RegisterReference(ctx, "ANDREWS", "ACGT", "")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if again.Created || again.Sequence.ID != first.Sequence.ID {
		t.Fatalf("expected existing reference, got %+v", again)
	}
	if _, err := svc.RegisterReference(ctx, "ANDREWS", "TTTT", ""); !errors.Is(err, domain.ErrDuplicateSequence) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := svc.RegisterReference(ctx, " ", "ACGT", ""); err == nil {
		t.Fatalf("expected blank name error")
	}
}

func TestIngestSampleCreatesRegionAndPerson(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	ctx := context.Background()
	out, res, err := svc.IngestSample(ctx, core.SampleInput{Identifier: "MK1", Region: "IF", Fasta: "ACGT", URL: "https://example.org/MK1"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(res.Changes) != 3 {
		t.Fatalf("expected region, sequence and person changes, got %d", len(res.Changes))
	}
	if out.Person.RegionID != out.Region.ID || out.Person.SequenceID != out.Sequence.ID {
		t.Fatalf("person not linked: %+v", out)
	}
	if out.Sequence.Type != domain.SequenceSample || out.Person.SourceURL != "https://example.org/MK1" {
		t.Fatalf("unexpected sample %+v", out)
	}
	second, _, err := svc.IngestSample(ctx, core.SampleInput{Identifier: "MK2", Region: "IF", Fasta: "ACGA"})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if second.Region.ID != out.Region.ID {
		t.Fatalf("expected region reuse, got %d and %d", second.Region.ID, out.Region.ID)
	}
	if _, _, err := svc.IngestSample(ctx, core.SampleInput{Identifier: "MK3", Fasta: "ACGT"}); err == nil {
		t.Fatalf("expected missing region error")
	}
	if _, _, err := svc.IngestSample(ctx, core.SampleInput{Identifier: "MK3", Region: "IF"}); err == nil {
		t.Fatalf("expected missing fasta error")
	}
}

func TestIngestSampleReturnsStoredRecordForKnownURL(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	ctx := context.Background()
	in := core.SampleInput{Identifier: "MK1", Region: "IF", Fasta: "ACGT", URL: "https://example.org/MK1"}
	first, _, err := svc.IngestSample(ctx, in)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	again, res, err := svc.IngestSample(ctx, in)
	if err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if !again.Existing || first.Existing {
		t.Fatalf("expected only the second ingest to be existing: %+v %+v", first, again)
	}
	if len(res.Changes) != 0 {
		t.Fatalf("re-ingest must not write, got %d changes", len(res.Changes))
	}
	if again.Person.ID != first.Person.ID || again.Sequence.ID != first.Sequence.ID || again.Region.Name != "IF" {
		t.Fatalf("expected the stored rows %+v, got %+v", first, again)
	}
	// samples without a URL have no identity and are always stored
	for i := 0; i < 2; i++ {
		out, _, err := svc.IngestSample(ctx, core.SampleInput{Identifier: "anon", Region: "IF", Fasta: "ACGA"})
		if err != nil || out.Existing {
			t.Fatalf("anonymous ingest %d: %+v %v", i, out, err)
		}
	}
	err = svc.Store().View(ctx, func(v core.TransactionView) error {
		if n := len(v.ListPersons()); n != 3 {
			t.Fatalf("expected 3 persons, got %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestRegionsSorted(t *testing.T) {
	svc := seedService(t)
	regions, err := svc.Regions(context.Background())
	if err != nil {
		t.Fatalf("regions: %v", err)
	}
	if len(regions) != 2 || regions[0] != "CU" || regions[1] != "IF" {
		t.Fatalf("unexpected regions %v", regions)
	}
}

func TestAnalyzeVsReference(t *testing.T) {
	svc := seedService(t)
	an, err := svc.Analyze(context.Background(), core.DistanceQuery{Reference: strptr("EVA"), Region: strptr("IF"), Mode: popgen.ModeVsReference})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if an.Distribution.Total != 3 || len(an.Distribution.Buckets) != 3 {
		t.Fatalf("unexpected distribution %+v", an.Distribution)
	}
	m := an.Moments
	if m.Mean != 1 || m.Mode != 0 || m.Min != 0 || m.Max != 2 {
		t.Fatalf("unexpected moments %+v", m)
	}
	if math.Abs(m.Std-math.Sqrt(2.0/3.0)) > 1e-12 {
		t.Fatalf("unexpected std %v", m.Std)
	}
	if an.Query.Label() != "EVA" {
		t.Fatalf("unexpected label %q", an.Query.Label())
	}
}

func TestAnalyzeAllPairsCountsOrderedPairs(t *testing.T) {
	svc := seedService(t)
	an, err := svc.Analyze(context.Background(), core.DistanceQuery{Region: strptr("IF"), Mode: popgen.ModeAllPairs})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if an.Distribution.Frequency(1) != 4 || an.Distribution.Frequency(2) != 2 {
		t.Fatalf("unexpected all-pairs distribution %+v", an.Distribution)
	}
	half := an.Distribution.Halved()
	if half.Frequency(1) != 2 || half.Frequency(2) != 1 || half.Total != 3 {
		t.Fatalf("unexpected halved distribution %+v", half)
	}
}

func TestAnalyzeZeroMeanWarns(t *testing.T) {
	log := &captureLogger{}
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), core.WithLogger(log))
	ctx := context.Background()
	if _, err := svc.RegisterReference(ctx, "EVA", "ACGT", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, id := range []string{"MK1", "MK2"} {
		if _, _, err := svc.IngestSample(ctx, core.SampleInput{Identifier: id, Region: "IF", Fasta: "ACGT"}); err != nil {
			t.Fatalf("ingest %s: %v", id, err)
		}
	}
	an, err := svc.Analyze(ctx, core.DistanceQuery{Reference: strptr("EVA"), Mode: popgen.ModeVsReference})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if an.Moments.HasCoeff() || !math.IsNaN(an.Moments.Coeff) {
		t.Fatalf("expected undefined coefficient, got %v", an.Moments.Coeff)
	}
	if !log.has("w:coefficient of variation undefined") {
		t.Fatalf("expected warning, got %v", log.calls)
	}
}

func TestComputeDistancesErrors(t *testing.T) {
	svc := seedService(t)
	ctx := context.Background()
	var missing domain.ErrNotFound
	_, err := svc.ComputeDistances(ctx, core.DistanceQuery{Reference: strptr("ANDREWS"), Mode: popgen.ModeVsReference})
	if !errors.As(err, &missing) || missing.Entity != domain.EntitySequence {
		t.Fatalf("expected missing reference, got %v", err)
	}
	_, err = svc.ComputeDistances(ctx, core.DistanceQuery{Reference: strptr("EVA"), Region: strptr("XX"), Mode: popgen.ModeVsReference})
	if !errors.As(err, &missing) || missing.Entity != domain.EntityRegion || !domain.IsRegionScoped(err) {
		t.Fatalf("expected missing region, got %v", err)
	}
	if _, err := svc.ComputeDistances(ctx, core.DistanceQuery{Mode: popgen.ModeVsReference}); err == nil {
		t.Fatalf("expected reference required error")
	}
}

func TestAnalyzeEmptyPopulation(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	if _, err := svc.RegisterReference(context.Background(), "EVA", "ACGT", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Analyze(context.Background(), core.DistanceQuery{Reference: strptr("EVA"), Mode: popgen.ModeVsReference})
	if !errors.Is(err, domain.ErrEmptyPopulation) {
		t.Fatalf("expected empty population, got %v", err)
	}
}

func TestAnalyzeMisalignedSample(t *testing.T) {
	svc := seedService(t)
	ctx := context.Background()
	if _, _, err := svc.IngestSample(ctx, core.SampleInput{Identifier: "MK9", Region: "PL", Fasta: "AAA"}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	_, err := svc.Analyze(ctx, core.DistanceQuery{Reference: strptr("EVA"), Region: strptr("PL"), Mode: popgen.ModeVsReference})
	var alignment *domain.AlignmentError
	if !errors.As(err, &alignment) || alignment.Length != 3 || alignment.Expected != 4 {
		t.Fatalf("expected alignment error, got %v", err)
	}
	// other regions are unaffected
	if _, err := svc.Analyze(ctx, core.DistanceQuery{Reference: strptr("EVA"), Region: strptr("IF"), Mode: popgen.ModeVsReference}); err != nil {
		t.Fatalf("IF analyze: %v", err)
	}
}

func TestBuildConsensusStoresOnce(t *testing.T) {
	svc := seedService(t)
	ctx := context.Background()
	first, err := svc.BuildConsensus(ctx, strptr("IF"))
	if err != nil {
		t.Fatalf("consensus: %v", err)
	}
	if !first.Created || first.Sequence.Fasta != "AAAT" || first.Sequence.Name != "WILD_TYPE_IF" || first.Sequence.Type != domain.SequenceConsensus {
		t.Fatalf("unexpected consensus %+v", first)
	}
	again, err := svc.BuildConsensus(ctx, strptr("IF"))
	if err != nil {
		t.Fatalf("second consensus: %v", err)
	}
	if again.Created || again.Sequence.ID != first.Sequence.ID {
		t.Fatalf("expected stored consensus, got %+v", again)
	}
	all, err := svc.BuildConsensus(ctx, nil)
	if err != nil {
		t.Fatalf("all consensus: %v", err)
	}
	// column 2 ties A/T and resolves to A
	if all.Sequence.Name != "WILD_TYPE_ALL" || all.Sequence.Fasta != "AAAT" {
		t.Fatalf("unexpected all-regions consensus %+v", all.Sequence)
	}
	// consensus sequences are not samples
	an, err := svc.Analyze(ctx, core.DistanceQuery{Reference: strptr("EVA"), Mode: popgen.ModeVsReference})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if an.Distribution.Total != 4 {
		t.Fatalf("expected 4 samples, got %d", an.Distribution.Total)
	}
	if _, err := svc.BuildConsensus(ctx, strptr("XX")); !domain.IsRegionScoped(err) {
		t.Fatalf("expected region-scoped error, got %v", err)
	}
}

func TestCountPolymorphicAndSequenceDistance(t *testing.T) {
	svc := seedService(t)
	ctx := context.Background()
	n, err := svc.CountPolymorphic(ctx, strptr("IF"), "EVA")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 polymorphic positions, got %d", n)
	}
	n, err = svc.CountPolymorphic(ctx, nil, "")
	if err != nil {
		t.Fatalf("count all: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 polymorphic positions, got %d", n)
	}
	if _, err := svc.BuildConsensus(ctx, strptr("IF")); err != nil {
		t.Fatalf("consensus: %v", err)
	}
	d, err := svc.SequenceDistance(ctx, "WILD_TYPE_IF", "EVA")
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if d != 1 {
		t.Fatalf("expected distance 1, got %d", d)
	}
	if _, err := svc.SequenceDistance(ctx, "EVA", "ANDREWS"); err == nil {
		t.Fatalf("expected missing sequence error")
	}
}

func TestSampleMembershipRuleBlocksOrphanSample(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	_, err := svc.Store().RunInTransaction(context.Background(), func(tx core.Transaction) error {
		_, err := tx.CreateSequence(domain.Sequence{Fasta: "ACGT", Type: domain.SequenceSample})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if len(violation.Result.Violations) != 1 || violation.Result.Violations[0].Rule != "sample_membership" {
		t.Fatalf("unexpected violations %+v", violation.Result.Violations)
	}
}

func TestAlignmentRuleWarns(t *testing.T) {
	log := &captureLogger{}
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine("EVA"), core.WithLogger(log))
	ctx := context.Background()
	if _, err := svc.RegisterReference(ctx, "EVA", "ACGT", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, res, err := svc.IngestSample(ctx, core.SampleInput{Identifier: "MK1", Region: "IF", Fasta: "ACGTA"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	warnings := res.Warnings()
	if len(warnings) != 1 || warnings[0].Rule != "alignment_length" {
		t.Fatalf("expected alignment warning, got %+v", res.Violations)
	}
	if !log.has("w:rule warning") {
		t.Fatalf("expected warning log, got %v", log.calls)
	}
}
