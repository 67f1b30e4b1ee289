// Package xlsx writes the voltage log into Excel workbooks.
package xlsx

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bft-labs/voltship/internal/domain"
	"github.com/bft-labs/voltship/pkg/log"
)

// DefaultSheet is the sheet created in new workbooks.
const DefaultSheet = "Sheet1"

// ValueHeader is the column title above the voltages.
const ValueHeader = "Voltage (V)"

// Result summarizes one export.
type Result struct {
	Path    string
	Rows    int
	Skipped int
	// First is the index written in column A for the first new row.
	First int
}

// Exporter converts voltage log lines into workbook rows.
type Exporter struct {
	logger log.Logger
}

// NewExporter creates an exporter.
func NewExporter(logger log.Logger) *Exporter {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Exporter{logger: logger}
}

// Parse converts log lines to values. Blank lines are ignored; every other
// line that is not a number yields one *domain.ExportError and is skipped.
func Parse(lines []string) ([]float64, []error) {
	var values []float64
	var errs []error
	for i, line := range lines {
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			errs = append(errs, &domain.ExportError{Line: i + 1, Text: text, Err: domain.ErrNotANumber})
			continue
		}
		values = append(values, v)
	}
	return values, errs
}

// Export writes lines to the workbook at path. With appendTo set, rows are
// added after those already on the workbook's first sheet and the index
// continues; otherwise a new workbook replaces any file at path.
// report, if non-nil, receives one error per skipped line.
func (e *Exporter) Export(path string, lines []string, appendTo bool, report func(error)) (Result, error) {
	values, errs := Parse(lines)
	for _, err := range errs {
		e.logger.Warn("skipping log line", log.Err(err))
		if report != nil {
			report(err)
		}
	}

	var (
		f     *excelize.File
		sheet = DefaultSheet
		row   = 1
		index = 0
		err   error
	)
	if appendTo {
		f, err = excelize.OpenFile(path)
		if err != nil {
			return Result{}, &domain.ExportError{Text: path, Err: err}
		}
		sheet = f.GetSheetName(0)
		rows, err := f.GetRows(sheet)
		if err != nil {
			f.Close()
			return Result{}, &domain.ExportError{Text: path, Err: err}
		}
		row, index = nextRow(rows)
	} else {
		f = excelize.NewFile()
	}
	defer f.Close()

	if row == 1 {
		if err := f.SetSheetRow(sheet, "A1", &[]interface{}{"", ValueHeader}); err != nil {
			return Result{}, &domain.ExportError{Text: path, Err: err}
		}
		row = 2
	}

	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(1, row+i)
		if err != nil {
			return Result{}, &domain.ExportError{Text: path, Err: err}
		}
		if err := f.SetSheetRow(sheet, cell, &[]interface{}{index + i, v}); err != nil {
			return Result{}, &domain.ExportError{Text: path, Err: err}
		}
	}

	if appendTo {
		err = f.Save()
	} else {
		err = f.SaveAs(path)
	}
	if err != nil {
		return Result{}, &domain.ExportError{Text: path, Err: err}
	}

	res := Result{Path: path, Rows: len(values), Skipped: len(errs), First: index}
	e.logger.Info("workbook exported",
		log.Path(path),
		log.Int("rows", res.Rows),
		log.Int("skipped", res.Skipped),
		log.Bool("append", appendTo),
	)
	return res, nil
}

// nextRow returns the 1-based row to write next and the index value it
// should carry. A sheet with only a header continues at index 0.
func nextRow(rows [][]string) (row, index int) {
	// GetRows omits trailing empty rows.
	if len(rows) == 0 {
		return 1, 0
	}
	row = len(rows) + 1
	index = len(rows) - 1
	last := rows[len(rows)-1]
	if len(last) > 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(last[0])); err == nil && len(rows) > 1 {
			index = n + 1
		}
	}
	return row, index
}

// Exists reports whether a workbook is present at path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}
