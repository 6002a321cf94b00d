// Package metrics folds history transitions into a churn series and writes
// the data file and gnuplot script that chart it.
package metrics

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrOutOfOrder is returned when a record does not come after the series end.
var ErrOutOfOrder = errors.New("record out of date order")

// Record is the churn observed on one date.
type Record struct {
	Date    string
	Same    int
	Added   int
	Deleted int
	// Total is the number of statements on Date.
	Total int
}

// Series is the accumulated churn. Start is the first sampled date, which
// may precede the first record because the first day only seeds the
// comparison.
type Series struct {
	Records            []Record
	Start              string
	End                string
	MaxAddedFraction   float64
	MaxDeletedFraction float64
}

// NewSeries returns an empty series beginning at start.
func NewSeries(start string) Series {
	return Series{Start: start, End: start}
}

// Accumulate returns series with rec appended. The input series is not
// modified. Fractions are only taken over records with a non-zero Same count.
func Accumulate(series Series, rec Record) (Series, error) {
	if _, err := time.Parse(time.DateOnly, rec.Date); err != nil {
		return series, fmt.Errorf("record date %q: %w", rec.Date, err)
	}
	if series.End != "" && rec.Date <= series.End {
		return series, fmt.Errorf("%w: %s after %s", ErrOutOfOrder, rec.Date, series.End)
	}

	next := series
	next.Records = make([]Record, len(series.Records), len(series.Records)+1)
	copy(next.Records, series.Records)
	next.Records = append(next.Records, rec)

	if next.Start == "" {
		next.Start = rec.Date
	}
	next.End = rec.Date

	if rec.Same != 0 {
		next.MaxAddedFraction = max(next.MaxAddedFraction, float64(rec.Added)/float64(rec.Same))
		next.MaxDeletedFraction = max(next.MaxDeletedFraction, float64(rec.Deleted)/float64(rec.Same))
	}
	return next, nil
}

const dataHeader = "#date     same added deleted (wrt previous version)  num\n"

// WriteData writes the whitespace-column data file: one header line, then
// date, same, added, deleted and total per record.
func WriteData(w io.Writer, series Series) error {
	if _, err := io.WriteString(w, dataHeader); err != nil {
		return err
	}
	for _, r := range series.Records {
		if _, err := fmt.Fprintf(w, "%10s  %8d %8d %8d  %8d\n", r.Date, r.Same, r.Added, r.Deleted, r.Total); err != nil {
			return err
		}
	}
	return nil
}
