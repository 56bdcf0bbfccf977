package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Row labels.
const (
	labelDistance = "Distance"
	labelWildType = "Wild type sequence"
	undefined     = "n/a"
)

var momentLabels = []string{"Mean", "Std. deviation", "Mode", "Min", "Max", "Coeff. of variation"}

// ContentType is the media type of the serialized workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Workbook is a Sink writing an xlsx file. Each sheet tracks its own next row;
// distribution and wild-type blocks are followed by one blank row.
type Workbook struct {
	file         *excelize.File
	defaultSheet string
	next         map[string]int
	order        []string
}

var _ Sink = (*Workbook)(nil)

// NewWorkbook returns an empty workbook.
func NewWorkbook() *Workbook {
	f := excelize.NewFile()
	return &Workbook{file: f, defaultSheet: f.GetSheetName(0), next: make(map[string]int)}
}

// Sheets returns the written sheet names in creation order.
func (w *Workbook) Sheets() []string {
	return append([]string(nil), w.order...)
}

func (w *Workbook) row(sheet string, col int, values ...any) error {
	r := w.next[sheet]
	cell, err := excelize.CoordinatesToCellName(col, r)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("sheet %s row %d: %w", sheet, r, err)
	}
	w.next[sheet] = r + 1
	return nil
}

func (w *Workbook) blank(sheet string) { w.next[sheet]++ }

func (w *Workbook) started(sheet string) error {
	if _, ok := w.next[sheet]; !ok {
		return fmt.Errorf("sheet %s: %w", sheet, ErrHeaderMissing)
	}
	return nil
}

// WriteHeader creates the sheet and writes the distance row.
func (w *Workbook) WriteHeader(sheet string, distances []int) error {
	if _, ok := w.next[sheet]; ok {
		return fmt.Errorf("sheet %s: %w", sheet, ErrHeaderWritten)
	}
	if sheet != w.defaultSheet {
		if _, err := w.file.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}
	}
	w.next[sheet] = 1
	w.order = append(w.order, sheet)
	values := make([]any, 0, len(distances)+1)
	values = append(values, labelDistance)
	for _, d := range distances {
		values = append(values, d)
	}
	return w.row(sheet, 1, values...)
}

// WriteDistribution writes the frequency and share rows, then the moments
// block starting at column B.
func (w *Workbook) WriteDistribution(sheet string, block DistributionBlock) error {
	if err := w.started(sheet); err != nil {
		return err
	}
	freq := make([]any, 0, len(block.Frequencies)+1)
	freq = append(freq, block.Name)
	for _, f := range block.Frequencies {
		freq = append(freq, f)
	}
	if err := w.row(sheet, 1, freq...); err != nil {
		return err
	}
	shares := make([]any, 0, len(block.Shares)+1)
	shares = append(shares, block.Name+" (share)")
	for _, p := range block.Shares {
		shares = append(shares, p)
	}
	if err := w.row(sheet, 1, shares...); err != nil {
		return err
	}
	names := make([]any, len(momentLabels))
	for i, l := range momentLabels {
		names[i] = l
	}
	if err := w.row(sheet, 2, names...); err != nil {
		return err
	}
	m := block.Moments
	var coeff any = undefined
	if m.HasCoeff() {
		coeff = m.Coeff
	}
	if err := w.row(sheet, 2, m.Mean, m.Std, m.Mode, m.Min, m.Max, coeff); err != nil {
		return err
	}
	w.blank(sheet)
	return nil
}

// WriteWildType writes the consensus row and one row per count, starting at column B.
func (w *Workbook) WriteWildType(sheet string, block WildTypeBlock) error {
	if err := w.started(sheet); err != nil {
		return err
	}
	if err := w.row(sheet, 2, labelWildType, block.WildType); err != nil {
		return err
	}
	for _, c := range block.Counts {
		if err := w.row(sheet, 2, c.Label, c.Value); err != nil {
			return err
		}
	}
	w.blank(sheet)
	return nil
}

// WriteTo serializes the workbook. The initial empty sheet is dropped when
// other sheets were written.
func (w *Workbook) WriteTo(out io.Writer) (int64, error) {
	if _, used := w.next[w.defaultSheet]; w.defaultSheet != "" && !used && len(w.order) > 0 {
		if err := w.file.DeleteSheet(w.defaultSheet); err != nil {
			return 0, fmt.Errorf("remove default sheet: %w", err)
		}
		idx, err := w.file.GetSheetIndex(w.order[0])
		if err != nil {
			return 0, err
		}
		w.file.SetActiveSheet(idx)
		w.defaultSheet = ""
	}
	return w.file.WriteTo(out)
}

// Close releases the workbook's temporary resources.
func (w *Workbook) Close() error { return w.file.Close() }
