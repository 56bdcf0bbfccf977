package ingest

import (
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func drain(feed Feed) ([]Record, error) {
	var out []Record
	for {
		rec, err := feed.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

func TestCSVFeedSkipsHeader(t *testing.T) {
	feed := NewCSVFeed(strings.NewReader("version,region,fasta\nMK1.1,IF,ACGT\n\nMK2.1,CU,ACGA\n"))
	recs, err := drain(feed)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	want := []Record{
		{Identifier: "MK1.1", Region: "IF", Fasta: "ACGT"},
		{Identifier: "MK2.1", Region: "CU", Fasta: "ACGA"},
	}
	if len(recs) != len(want) {
		t.Fatalf("expected %d records, got %+v", len(want), recs)
	}
	for i := range want {
		if recs[i] != want[i] {
			t.Fatalf("record %d: expected %+v, got %+v", i, want[i], recs[i])
		}
	}
	if err := feed.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestCSVFeedWithoutHeader(t *testing.T) {
	recs, err := drain(NewCSVFeed(strings.NewReader("MK1.1,IF,ACGT\n")))
	if err != nil || len(recs) != 1 || recs[0].Identifier != "MK1.1" {
		t.Fatalf("unexpected %+v %v", recs, err)
	}
}

func TestCSVFeedShortRowIsRecordError(t *testing.T) {
	feed := NewCSVFeed(strings.NewReader("version,region,fasta\nMK1.1,IF\nMK2.1,CU,ACGA\n"))
	_, err := feed.Next()
	var recErr *RecordError
	if !errors.As(err, &recErr) || recErr.Line != 2 {
		t.Fatalf("expected record error on line 2, got %v", err)
	}
	rec, err := feed.Next()
	if err != nil || rec.Identifier != "MK2.1" {
		t.Fatalf("feed should continue after a bad row, got %+v %v", rec, err)
	}
	if _, err := feed.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestOpenCSVReadsGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := gzip.NewWriter(f)
	if _, err := io.WriteString(zw, "version,region,fasta\nMK1.1,IF,ACGT\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("file close: %v", err)
	}

	feed, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer feed.Close()
	recs, err := drain(feed)
	if err != nil || len(recs) != 1 || recs[0].Fasta != "ACGT" {
		t.Fatalf("unexpected %+v %v", recs, err)
	}
}

func TestOpenCSVMissingFile(t *testing.T) {
	if _, err := OpenCSV(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Fatalf("expected open error")
	}
}

const sampleFasta = `>MK1.1 Homo sapiens isolate IF12 mitochondrion, complete genome
ACGT
ACGT
>MK2.1 Homo sapiens mitochondrion
ACGA
>MK3.1 Homo sapiens isolate CU7 mitochondrion
TTTT
`

func TestFastaFeedParsesIsolateRegion(t *testing.T) {
	feed := NewFastaFeed(strings.NewReader(sampleFasta))
	first, err := feed.Next()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.Identifier != "MK1.1" || first.Region != "IF" || first.Fasta != "ACGTACGT" {
		t.Fatalf("unexpected first record %+v", first)
	}
	_, err = feed.Next()
	if !errors.Is(err, ErrNoRegion) {
		t.Fatalf("expected missing region, got %v", err)
	}
	var recErr *RecordError
	if !errors.As(err, &recErr) || recErr.ID != "MK2.1" {
		t.Fatalf("expected record error for MK2.1, got %v", err)
	}
	third, err := feed.Next()
	if err != nil || third.Region != "CU" || third.Fasta != "TTTT" {
		t.Fatalf("unexpected third record %+v %v", third, err)
	}
	if _, err := feed.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestReferenceFeedUsesRecordID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refs.fa")
	if err := os.WriteFile(path, []byte(">EVA reconstructed sapiens reference\nACGT\n>ANDREWS revised Cambridge reference\nACGA\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	feed, err := OpenReferences(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer feed.Close()
	recs, err := drain(feed)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(recs) != 2 || recs[0].Identifier != "EVA" || recs[1].Identifier != "ANDREWS" || recs[1].Fasta != "ACGA" || recs[0].Region != "" {
		t.Fatalf("unexpected references %+v", recs)
	}
}
