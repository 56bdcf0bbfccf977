package ingest

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"github.com/jgbaldwinbrown/csvh"
)

var isolateRe = regexp.MustCompile(`isolate ([A-Z]+)`)

// FastaFeed reads FASTA records. For sample feeds the region comes from the
// `isolate <REGION>` tag in each description.
type FastaFeed struct {
	closer     io.Closer
	sc         *seqio.Scanner
	withRegion bool
}

// OpenFasta opens a plain or gzipped sample FASTA feed.
func OpenFasta(path string) (*FastaFeed, error) {
	return openFasta(path, true)
}

// OpenReferences opens a FASTA file of named references. Each record ID is
// used as the reference name.
func OpenReferences(path string) (*FastaFeed, error) {
	return openFasta(path, false)
}

func openFasta(path string, withRegion bool) (*FastaFeed, error) {
	r, err := csvh.OpenMaybeGz(path)
	if err != nil {
		return nil, fmt.Errorf("open fasta feed: %w", err)
	}
	feed := newFastaFeed(r, withRegion)
	feed.closer = r
	return feed, nil
}

// NewFastaFeed reads sample records from r. The caller owns r.
func NewFastaFeed(r io.Reader) *FastaFeed { return newFastaFeed(r, true) }

// NewReferenceFeed reads reference records from r. The caller owns r.
func NewReferenceFeed(r io.Reader) *FastaFeed { return newFastaFeed(r, false) }

func newFastaFeed(r io.Reader, withRegion bool) *FastaFeed {
	template := linear.NewSeq("", nil, alphabet.DNAredundant)
	return &FastaFeed{sc: seqio.NewScanner(fasta.NewReader(r, template)), withRegion: withRegion}
}

// Next returns the following record.
func (f *FastaFeed) Next() (Record, error) {
	if !f.sc.Next() {
		if err := f.sc.Error(); err != nil {
			return Record{}, fmt.Errorf("read fasta: %w", err)
		}
		return Record{}, io.EOF
	}
	s, ok := f.sc.Seq().(*linear.Seq)
	if !ok {
		return Record{}, fmt.Errorf("unexpected sequence type %T", f.sc.Seq())
	}
	rec := Record{Identifier: s.Name(), Fasta: letters(s.Seq)}
	if rec.Fasta == "" {
		return Record{}, &RecordError{ID: rec.Identifier, Err: fmt.Errorf("empty sequence")}
	}
	if !f.withRegion {
		return rec, nil
	}
	m := isolateRe.FindStringSubmatch(s.Description())
	if m == nil {
		return Record{}, &RecordError{ID: rec.Identifier, Err: ErrNoRegion}
	}
	rec.Region = m[1]
	return rec, nil
}

// Close releases the underlying file when the feed opened it.
func (f *FastaFeed) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

func letters(ls alphabet.Letters) string {
	var b strings.Builder
	b.Grow(len(ls))
	for _, l := range ls {
		b.WriteByte(byte(l))
	}
	return b.String()
}
