package dataio

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/ntthung/mbr"
	"github.com/ntthung/mbr/metrics"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeAll(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteFlowsCSV writes reconstructed flows as season,year,Q,lambda.
func WriteFlowsCSV(w io.Writer, records []mbr.FlowRecord) error {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{r.Season, strconv.Itoa(r.Year), formatFloat(r.Flow), formatFloat(r.Lambda)}
	}
	return writeAll(w, []string{"season", "year", "Q", "lambda"}, rows)
}

// WriteMetricsCSV writes one row per metric record; rep is empty for robust means.
func WriteMetricsCSV(w io.Writer, records []mbr.MetricRecord) error {
	header := append([]string{"season", "rep"}, metrics.Names()...)
	header = append(header, "fval")
	rows := make([][]string, len(records))
	for i, r := range records {
		rep := ""
		if r.Rep > 0 {
			rep = strconv.Itoa(r.Rep)
		}
		row := []string{r.Season, rep}
		for _, v := range r.Scores.Values() {
			row = append(row, formatFloat(v))
		}
		rows[i] = append(row, formatFloat(r.FVal))
	}
	return writeAll(w, header, rows)
}

// WriteFValsCSV writes the held-out objective of every fold as rep,fval.
func WriteFValsCSV(w io.Writer, fvals []float64) error {
	rows := make([][]string, len(fvals))
	for i, v := range fvals {
		rows[i] = []string{strconv.Itoa(i + 1), formatFloat(v)}
	}
	return writeAll(w, []string{"rep", "fval"}, rows)
}

// WriteCVFlowsCSV writes per-fold predictions as season,year,Q,rep.
func WriteCVFlowsCSV(w io.Writer, records []mbr.CVFlowRecord) error {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{r.Season, strconv.Itoa(r.Year), formatFloat(r.Flow), strconv.Itoa(r.Rep)}
	}
	return writeAll(w, []string{"season", "year", "Q", "rep"}, rows)
}

// WriteFoldsCSV writes the held-out years of every fold as rep,year.
func WriteFoldsCSV(w io.Writer, folds [][]int, years []int) error {
	var rows [][]string
	for i, z := range folds {
		for _, idx := range z {
			rows = append(rows, []string{strconv.Itoa(i + 1), strconv.Itoa(years[idx])})
		}
	}
	return writeAll(w, []string{"rep", "year"}, rows)
}

// WriteCVResult writes whichever part of res its return type selected.
func WriteCVResult(w io.Writer, res *mbr.CVResult) error {
	switch res.Type {
	case mbr.ReturnFVal:
		return WriteFValsCSV(w, res.FVals)
	case mbr.ReturnQ:
		return WriteCVFlowsCSV(w, res.Flows)
	default:
		return WriteMetricsCSV(w, res.Metrics)
	}
}
