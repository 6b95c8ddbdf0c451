// Package dataio reads instrumental flows and proxy principal components from
// CSV files or an XLSX workbook, and writes engine results as CSV.
package dataio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ntthung/mbr"
	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/mat"
)

// ErrMalformed signals a table that does not have the expected layout.
var ErrMalformed = errors.New("malformed input")

// InstrumentalSheet is the workbook sheet holding the long instrumental table.
const InstrumentalSheet = "instrumental"

// Dataset is everything a reconstruction needs.
type Dataset struct {
	Inst      *mbr.Instrumental
	StartYear int          // 説明変数の最初の年
	PCs       []*mat.Dense // 対象ごとの説明変数 (対象の正規順)
}

// ReadInstrumentalCSV reads a long table with the columns season, year and Qa.
// Targets keep the order in which they first appear, so the annual target
// must come last.
func ReadInstrumentalCSV(r io.Reader) (*mbr.Instrumental, error) {
	rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	return instrumentalFromRows(rows)
}

// ReadPCsCSV reads a table whose first column is year and whose other
// columns are principal components. Years must be consecutive.
func ReadPCsCSV(r io.Reader) ([]int, *mat.Dense, error) {
	rows, err := readCSV(r)
	if err != nil {
		return nil, nil, err
	}
	return pcsFromRows(rows)
}

// LoadCSV reads the instrumental file and one principal component file per
// target, in the targets' order.
func LoadCSV(instPath string, pcPaths []string) (*Dataset, error) {
	f, err := os.Open(instPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	inst, err := ReadInstrumentalCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", instPath, err)
	}

	tables := make([]pcTable, len(pcPaths))
	for k, path := range pcPaths {
		pf, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		years, pcs, err := ReadPCsCSV(pf)
		pf.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		tables[k] = pcTable{name: path, years: years, pcs: pcs}
	}
	return assemble(inst, tables)
}

// ReadXLSX reads the workbook at path: the sheet "instrumental" in the long
// layout of ReadInstrumentalCSV, and one sheet per target, named after it, in
// the layout of ReadPCsCSV.
func ReadXLSX(path string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(InstrumentalSheet)
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", ErrMalformed, InstrumentalSheet, err)
	}
	inst, err := instrumentalFromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", InstrumentalSheet, err)
	}

	tables := make([]pcTable, len(inst.Targets))
	for k, target := range inst.Targets {
		rows, err := f.GetRows(target)
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q: %v", ErrMalformed, target, err)
		}
		years, pcs, err := pcsFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", target, err)
		}
		tables[k] = pcTable{name: target, years: years, pcs: pcs}
	}
	return assemble(inst, tables)
}

// Window returns the principal components from start to the last
// instrumental year, the row range the engine expects.
func (ds *Dataset) Window(start int) ([]*mat.Dense, error) {
	last := ds.Inst.LastYear()
	if start < ds.StartYear || start > ds.Inst.FirstYear() {
		return nil, fmt.Errorf("%w: start year %d outside %d-%d", ErrMalformed, start, ds.StartYear, ds.Inst.FirstYear())
	}
	from, to := start-ds.StartYear, last-ds.StartYear+1
	out := make([]*mat.Dense, len(ds.PCs))
	for k, b := range ds.PCs {
		r, c := b.Dims()
		if to > r {
			return nil, fmt.Errorf("%w: principal components end in %d, before the last instrumental year %d", ErrMalformed, ds.StartYear+r-1, last)
		}
		out[k] = mat.DenseCopyOf(b.Slice(from, to, 0, c))
	}
	return out, nil
}

type pcTable struct {
	name  string
	years []int
	pcs   *mat.Dense
}

// assemble checks that every principal component table covers the same years.
func assemble(inst *mbr.Instrumental, tables []pcTable) (*Dataset, error) {
	if len(tables) != inst.NumTargets() {
		return nil, fmt.Errorf("%w: %d principal component tables for %d targets", ErrMalformed, len(tables), inst.NumTargets())
	}
	first := tables[0]
	for _, tb := range tables[1:] {
		if len(tb.years) != len(first.years) || tb.years[0] != first.years[0] {
			return nil, fmt.Errorf("%w: %s covers %d-%d, %s covers %d-%d", ErrMalformed,
				tb.name, tb.years[0], tb.years[len(tb.years)-1],
				first.name, first.years[0], first.years[len(first.years)-1])
		}
	}
	pcs := make([]*mat.Dense, len(tables))
	for k, tb := range tables {
		pcs[k] = tb.pcs
	}
	return &Dataset{Inst: inst, StartYear: first.years[0], PCs: pcs}, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return rows, nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func instrumentalFromRows(rows [][]string) (*mbr.Instrumental, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: instrumental table has no data rows", ErrMalformed)
	}
	cols := make([]int, 3)
	for i, name := range []string{"season", "year", "Qa"} {
		if cols[i] = columnIndex(rows[0], name); cols[i] < 0 {
			return nil, fmt.Errorf("%w: instrumental table has no %q column", ErrMalformed, name)
		}
	}

	var targets []string
	seen := make(map[string]bool)
	records := make([]mbr.Observation, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		for _, c := range cols {
			if c >= len(row) {
				return nil, fmt.Errorf("%w: row %d has %d fields", ErrMalformed, i+2, len(row))
			}
		}
		season := strings.TrimSpace(row[cols[0]])
		year, err := strconv.Atoi(strings.TrimSpace(row[cols[1]]))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: year: %v", ErrMalformed, i+2, err)
		}
		flow, err := strconv.ParseFloat(strings.TrimSpace(row[cols[2]]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: Qa: %v", ErrMalformed, i+2, err)
		}
		if !seen[season] {
			seen[season] = true
			targets = append(targets, season)
		}
		records = append(records, mbr.Observation{Target: season, Year: year, Flow: flow})
	}
	return mbr.NewInstrumental(targets, records)
}

func pcsFromRows(rows [][]string) ([]int, *mat.Dense, error) {
	if len(rows) < 2 || len(rows[0]) < 2 {
		return nil, nil, fmt.Errorf("%w: need a year column, at least one component and one data row", ErrMalformed)
	}
	if columnIndex(rows[0][:1], "year") != 0 {
		return nil, nil, fmt.Errorf("%w: first column is %q, want \"year\"", ErrMalformed, rows[0][0])
	}
	numCols := len(rows[0]) - 1

	var years []int
	var data []float64
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		if len(row) != numCols+1 {
			return nil, nil, fmt.Errorf("%w: row %d has %d fields, want %d", ErrMalformed, i+2, len(row), numCols+1)
		}
		year, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: row %d: year: %v", ErrMalformed, i+2, err)
		}
		if len(years) > 0 && year != years[len(years)-1]+1 {
			return nil, nil, fmt.Errorf("%w: row %d: year %d does not follow %d", ErrMalformed, i+2, year, years[len(years)-1])
		}
		years = append(years, year)
		for j, s := range row[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: row %d, column %q: %v", ErrMalformed, i+2, rows[0][j+1], err)
			}
			data = append(data, v)
		}
	}
	if len(years) == 0 {
		return nil, nil, fmt.Errorf("%w: no data rows", ErrMalformed)
	}
	return years, mat.NewDense(len(years), numCols, data), nil
}

func isBlank(row []string) bool {
	for _, s := range row {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}
