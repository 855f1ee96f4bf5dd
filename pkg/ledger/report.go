package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"

	"github.com/cyclopcam/dsprep/pkg/dataset"
	"gonum.org/v1/gonum/stat"
)

// SplitWeight is the requested share of a split, as a percentage
type SplitWeight struct {
	Name    string
	Percent float64
}

type SplitStat struct {
	Split       string
	Count       int
	Fraction    float64 // percent of the class's boxes
	TargetDelta float64 // percent
}

// Row is the distribution of one class
type Row struct {
	Category dataset.Category
	Total    int
	Splits   []SplitStat
}

// Report is the class distribution across splits
type Report struct {
	Splits    []SplitWeight
	Rows      []Row
	ZeroCount []dataset.Category // Classes without a single box
}

// Balance summarizes |target delta| over every class and split with boxes
type Balance struct {
	Max    float64
	Mean   float64
	StdDev float64
}

func BuildReport(l *Ledger, cats []dataset.Category, splits []SplitWeight) *Report {
	r := &Report{Splits: splits}
	for _, c := range cats {
		row := Row{
			Category: c,
			Total:    l.Total(c.ID),
		}
		for _, s := range splits {
			row.Splits = append(row.Splits, SplitStat{
				Split:       s.Name,
				Count:       l.Count(c.ID, s.Name),
				Fraction:    l.Fraction(c.ID, s.Name),
				TargetDelta: l.TargetDelta(c.ID, s.Name, s.Percent),
			})
		}
		if row.Total == 0 {
			r.ZeroCount = append(r.ZeroCount, c)
		}
		r.Rows = append(r.Rows, row)
	}
	return r
}

func (r *Report) deltas() []float64 {
	d := []float64{}
	for _, row := range r.Rows {
		if row.Total == 0 {
			continue
		}
		for _, s := range row.Splits {
			d = append(d, math.Abs(s.TargetDelta))
		}
	}
	return d
}

// MaxAbsDelta is the largest |target delta| of any class in any split
func (r *Report) MaxAbsDelta() float64 {
	m := 0.0
	for _, d := range r.deltas() {
		m = max(m, d)
	}
	return m
}

// SplitMaxAbsDelta is the largest |target delta| of any class in one split
func (r *Report) SplitMaxAbsDelta(split string) float64 {
	m := 0.0
	for _, row := range r.Rows {
		if row.Total == 0 {
			continue
		}
		for _, s := range row.Splits {
			if s.Split == split {
				m = max(m, math.Abs(s.TargetDelta))
			}
		}
	}
	return m
}

func (r *Report) Balance() Balance {
	d := r.deltas()
	b := Balance{Max: r.MaxAbsDelta()}
	switch len(d) {
	case 0:
	case 1:
		b.Mean = d[0]
	default:
		b.Mean, b.StdDev = stat.MeanStdDev(d, nil)
	}
	return b
}

// WriteCSV writes the distribution table
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{"class id", "class", "#bbox"}
	for _, s := range r.Splits {
		header = append(header, "#bbox in "+s.Name, fmt.Sprintf("fraction %v [%%]", s.Name), fmt.Sprintf("target delta %v [%%]", s.Name))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range r.Rows {
		rec := []string{fmt.Sprint(row.Category.ID), row.Category.Name, fmt.Sprint(row.Total)}
		for _, s := range row.Splits {
			rec = append(rec, fmt.Sprint(s.Count), fmt.Sprintf("%.2f", s.Fraction), fmt.Sprintf("%.2f", s.TargetDelta))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
