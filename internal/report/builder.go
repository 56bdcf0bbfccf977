package report

import (
	"context"
	"fmt"

	"mitostat/internal/core"
	"mitostat/internal/popgen"
	"mitostat/pkg/domain"
)

// DefaultDistRange is the number of distance columns in a sheet.
const DefaultDistRange = 20

// DefaultReferences are compared against in this order: RSRS, then rCRS.
var DefaultReferences = []string{"EVA", "ANDREWS"}

// Engine is the subset of core.Service the builder drives.
type Engine interface {
	Analyze(ctx context.Context, q core.DistanceQuery) (core.Analysis, error)
	BuildConsensus(ctx context.Context, region *string) (core.ConsensusResult, error)
	CountPolymorphic(ctx context.Context, region *string, comparison string) (int, error)
	SequenceDistance(ctx context.Context, a, b string) (int, error)
}

var _ Engine = (*core.Service)(nil)

// Builder computes one sheet per region scope and writes it to a Sink.
type Builder struct {
	engine     Engine
	sink       Sink
	distRange  int
	references []string
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithDistRange sets the number of distance columns.
func WithDistRange(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.distRange = n
		}
	}
}

// WithReferences replaces the reference sequence names.
func WithReferences(names ...string) BuilderOption {
	return func(b *Builder) {
		if len(names) > 0 {
			b.references = append([]string(nil), names...)
		}
	}
}

// NewBuilder returns a builder writing to sink.
func NewBuilder(engine Engine, sink Sink, opts ...BuilderOption) *Builder {
	b := &Builder{
		engine:     engine,
		sink:       sink,
		distRange:  DefaultDistRange,
		references: append([]string(nil), DefaultReferences...),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type sheetPlan struct {
	name     string
	header   []int
	blocks   []DistributionBlock
	wildType WildTypeBlock
}

// Build computes every block for region before writing any of them, so a
// failed region leaves no partial sheet behind.
func (b *Builder) Build(ctx context.Context, region *string) error {
	plan, err := b.plan(ctx, region)
	if err != nil {
		return err
	}
	if err := b.sink.WriteHeader(plan.name, plan.header); err != nil {
		return err
	}
	for _, block := range plan.blocks {
		if err := b.sink.WriteDistribution(plan.name, block); err != nil {
			return err
		}
	}
	return b.sink.WriteWildType(plan.name, plan.wildType)
}

func (b *Builder) plan(ctx context.Context, region *string) (sheetPlan, error) {
	plan := sheetPlan{name: domain.ScopeLabel(region), header: make([]int, b.distRange)}
	if err := CheckSheetName(plan.name); err != nil {
		return sheetPlan{}, err
	}
	for i := range plan.header {
		plan.header[i] = i
	}
	wild, err := b.engine.BuildConsensus(ctx, region)
	if err != nil {
		return sheetPlan{}, fmt.Errorf("wild type %s: %w", plan.name, err)
	}
	wildName := wild.Sequence.Name

	for _, ref := range append(append([]string(nil), b.references...), wildName) {
		an, err := b.engine.Analyze(ctx, core.DistanceQuery{Reference: &ref, Region: region, Mode: popgen.ModeVsReference})
		if err != nil {
			return sheetPlan{}, fmt.Errorf("distribution vs %s: %w", ref, err)
		}
		plan.blocks = append(plan.blocks, b.block("Distribution vs "+ref, an.Distribution, an.Moments))
	}
	pairs, err := b.engine.Analyze(ctx, core.DistanceQuery{Region: region, Mode: popgen.ModeAllPairs})
	if err != nil {
		return sheetPlan{}, fmt.Errorf("pairwise distribution: %w", err)
	}
	plan.blocks = append(plan.blocks, b.block("Distribution each with each", pairs.Distribution.Halved(), pairs.Moments))

	plan.wildType.WildType = wild.Sequence.Fasta
	for _, ref := range b.references {
		d, err := b.engine.SequenceDistance(ctx, wildName, ref)
		if err != nil {
			return sheetPlan{}, err
		}
		plan.wildType.Counts = append(plan.wildType.Counts, Count{Label: "Polymorphisms of wild type vs " + ref, Value: d})
	}
	for _, ref := range b.references {
		n, err := b.engine.CountPolymorphic(ctx, region, ref)
		if err != nil {
			return sheetPlan{}, err
		}
		plan.wildType.Counts = append(plan.wildType.Counts, Count{Label: "Polymorphisms of population vs " + ref, Value: n})
	}
	return plan, nil
}

func (b *Builder) block(name string, d popgen.Distribution, m popgen.Moments) DistributionBlock {
	freq, p := d.Series(b.distRange)
	return DistributionBlock{Name: name, Frequencies: freq, Shares: p, Moments: m}
}
