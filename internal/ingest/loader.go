package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"mitostat/internal/core"
)

// DefaultSourceBaseURL prefixes sample identifiers to build record URLs.
const DefaultSourceBaseURL = "https://www.ncbi.nlm.nih.gov/nuccore/"

const defaultProgressEvery = 100

// Target is the subset of the core service the loader drives.
type Target interface {
	IngestSample(ctx context.Context, in core.SampleInput) (core.IngestResult, core.Result, error)
	RegisterReference(ctx context.Context, name, fasta, url string) (core.ReferenceResult, error)
}

var _ Target = (*core.Service)(nil)

// Loader pushes feed records into the store, one transaction per record.
type Loader struct {
	target  Target
	baseURL string
	logger  core.Logger
	every   int
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithSourceBaseURL overrides the URL prefix for sample records.
func WithSourceBaseURL(base string) LoaderOption {
	return func(l *Loader) {
		if base != "" {
			l.baseURL = base
		}
	}
}

// WithLogger sets the progress logger.
func WithLogger(logger core.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithProgressEvery logs progress after every n loaded records.
func WithProgressEvery(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.every = n
		}
	}
}

// NewLoader builds a loader over target.
func NewLoader(target Target, opts ...LoaderOption) *Loader {
	l := &Loader{target: target, baseURL: DefaultSourceBaseURL, logger: nopLogger{}, every: defaultProgressEvery}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Stats counts what a load did. Duplicates are records already in the store.
type Stats struct {
	Loaded     int
	Duplicates int
	Skipped    int
	Warnings   int
}

type outcome struct {
	existing bool
	warnings int
}

// LoadSamples ingests every record of feed. Records whose URL is already
// stored count as duplicates. Malformed records and records rejected by
// blocking rules are skipped; any other error stops the load.
func (l *Loader) LoadSamples(ctx context.Context, feed Feed) (Stats, error) {
	return l.load(ctx, feed, func(ctx context.Context, rec Record) (outcome, error) {
		out, res, err := l.target.IngestSample(ctx, core.SampleInput{
			Identifier: rec.Identifier,
			Region:     rec.Region,
			Fasta:      rec.Fasta,
			URL:        l.url(rec.Identifier),
		})
		return outcome{existing: out.Existing, warnings: len(res.Warnings())}, err
	})
}

// LoadReferences registers every record of feed as a named reference.
func (l *Loader) LoadReferences(ctx context.Context, feed Feed) (Stats, error) {
	return l.load(ctx, feed, func(ctx context.Context, rec Record) (outcome, error) {
		ref, err := l.target.RegisterReference(ctx, rec.Identifier, rec.Fasta, "")
		return outcome{existing: err == nil && !ref.Created}, err
	})
}

func (l *Loader) load(ctx context.Context, feed Feed, store func(context.Context, Record) (outcome, error)) (Stats, error) {
	var stats Stats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rec, err := feed.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var recErr *RecordError
		if errors.As(err, &recErr) {
			stats.Skipped++
			l.logger.Warn("record skipped", "error", err)
			continue
		}
		if err != nil {
			return stats, err
		}
		out, err := store(ctx, rec)
		var violation core.RuleViolationError
		if errors.As(err, &violation) {
			stats.Skipped++
			l.logger.Warn("record rejected", "id", rec.Identifier, "error", err)
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("record %s: %w", rec.Identifier, err)
		}
		if out.existing {
			stats.Duplicates++
			continue
		}
		stats.Loaded++
		stats.Warnings += out.warnings
		if stats.Loaded%l.every == 0 {
			l.logger.Info("ingest progress", "loaded", stats.Loaded, "skipped", stats.Skipped)
		}
	}
	l.logger.Info("ingest finished", "loaded", stats.Loaded, "duplicates", stats.Duplicates, "skipped", stats.Skipped, "warnings", stats.Warnings)
	return stats, nil
}

func (l *Loader) url(id string) string {
	if id == "" {
		return ""
	}
	return strings.TrimSpace(l.baseURL) + id
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
