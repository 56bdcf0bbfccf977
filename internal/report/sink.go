// Package report lays the per-region statistics out as spreadsheet sheets and
// publishes the finished workbook to artifact storage.
package report

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"mitostat/internal/popgen"
)

var (
	// ErrHeaderMissing is returned when a block is written to a sheet whose
	// distance header has not been written yet.
	ErrHeaderMissing = errors.New("report: sheet header not written")
	// ErrHeaderWritten is returned when a sheet header is written twice.
	ErrHeaderWritten = errors.New("report: sheet header already written")
	// ErrInvalidSheetName is returned for region names a spreadsheet cannot
	// use as a sheet name.
	ErrInvalidSheetName = errors.New("report: invalid sheet name")
)

// MaxSheetNameLength is the longest sheet name spreadsheet applications accept.
const MaxSheetNameLength = 31

// CheckSheetName rejects names that are empty, longer than
// MaxSheetNameLength characters, contain any of : \ / ? * [ ] or start or end
// with an apostrophe.
func CheckSheetName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidSheetName)
	case utf8.RuneCountInString(name) > MaxSheetNameLength:
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidSheetName, name, MaxSheetNameLength)
	case strings.ContainsAny(name, `:\/?*[]`):
		return fmt.Errorf("%w: %q contains one of : \\ / ? * [ ]", ErrInvalidSheetName, name)
	case strings.HasPrefix(name, "'") || strings.HasSuffix(name, "'"):
		return fmt.Errorf("%w: %q starts or ends with an apostrophe", ErrInvalidSheetName, name)
	}
	return nil
}

// DistributionBlock is one comparison: the frequency row, the share row, and
// the moments of the distribution.
type DistributionBlock struct {
	Name        string
	Frequencies []int
	Shares      []float64
	Moments     popgen.Moments
}

// Count is a labelled integer row of the wild-type block.
type Count struct {
	Label string
	Value int
}

// WildTypeBlock closes a sheet with the region's consensus sequence and the
// polymorphism counts relative to the references.
type WildTypeBlock struct {
	WildType string
	Counts   []Count
}

// Sink receives report blocks sheet by sheet. WriteHeader must come first for
// every sheet.
type Sink interface {
	WriteHeader(sheet string, distances []int) error
	WriteDistribution(sheet string, block DistributionBlock) error
	WriteWildType(sheet string, block WildTypeBlock) error
}
