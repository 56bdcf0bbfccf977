// Package ingest reads sample and reference feeds and loads them through the
// core service.
package ingest

import (
	"errors"
	"fmt"
)

// Record is one entry read from a feed. Region is empty for reference feeds.
type Record struct {
	Identifier string
	Region     string
	Fasta      string
}

// Feed yields records until it returns io.EOF.
type Feed interface {
	Next() (Record, error)
	Close() error
}

// ErrNoRegion reports a FASTA record whose description carries no isolate tag.
var ErrNoRegion = errors.New("no isolate region in description")

// RecordError reports a single malformed record. The feed stays usable after
// returning one.
type RecordError struct {
	Line int
	ID   string
	Err  error
}

func (e *RecordError) Error() string {
	switch {
	case e.ID != "":
		return fmt.Sprintf("record %s: %v", e.ID, e.Err)
	default:
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
}

func (e *RecordError) Unwrap() error { return e.Err }
