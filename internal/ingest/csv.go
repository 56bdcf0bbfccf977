package ingest

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jgbaldwinbrown/csvh"
)

// csvHeader is the first column of the header row written by the crawler.
const csvHeader = "version"

// CSVFeed reads `version,region,fasta` rows. A leading header row is skipped.
type CSVFeed struct {
	closer io.Closer
	read   func() ([]string, error)
	line   int
}

// OpenCSV opens a plain or gzipped CSV feed.
func OpenCSV(path string) (*CSVFeed, error) {
	r, err := csvh.OpenMaybeGz(path)
	if err != nil {
		return nil, fmt.Errorf("open csv feed: %w", err)
	}
	feed := NewCSVFeed(r)
	feed.closer = r
	return feed, nil
}

// NewCSVFeed reads from r. The caller owns r.
func NewCSVFeed(r io.Reader) *CSVFeed {
	cr := csvh.CsvIn(r)
	cr.Comma = ','
	cr.FieldsPerRecord = -1
	return &CSVFeed{read: cr.Read}
}

// Next returns the following sample row.
func (f *CSVFeed) Next() (Record, error) {
	for {
		fields, err := f.read()
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		f.line++
		if err != nil {
			return Record{}, fmt.Errorf("csv line %d: %w", f.line, err)
		}
		if f.line == 1 && len(fields) > 0 && strings.EqualFold(strings.TrimSpace(fields[0]), csvHeader) {
			continue
		}
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			continue
		}
		if len(fields) < 3 {
			return Record{}, &RecordError{Line: f.line, Err: fmt.Errorf("expected 3 fields, got %d", len(fields))}
		}
		var rec Record
		if _, err := csvh.Scan(fields[:3], &rec.Identifier, &rec.Region, &rec.Fasta); err != nil {
			return Record{}, &RecordError{Line: f.line, Err: err}
		}
		return rec, nil
	}
}

// Close releases the underlying file when the feed opened it.
func (f *CSVFeed) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}
