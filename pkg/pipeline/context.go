// Package pipeline runs a whole conversion: categories, partition, label
// reading, image copy, serializers and bookkeeping.
package pipeline

import (
	"github.com/cyclopcam/dsprep/pkg/annotation"
	"github.com/cyclopcam/dsprep/pkg/category"
	"github.com/cyclopcam/dsprep/pkg/ledger"
	"github.com/cyclopcam/dsprep/pkg/partition"
)

// DatasetContext is the state shared by the stages of one run
type DatasetContext struct {
	Categories *category.Set
	Assignment *partition.Assignment
	Ledger     *ledger.Ledger
	Warnings   *Warnings

	// Normalized records of each split, in assignment order
	Records map[string][]annotation.Result
}

func newContext(set *category.Set, w *Warnings) *DatasetContext {
	return &DatasetContext{
		Categories: set,
		Ledger:     ledger.New(),
		Warnings:   w,
		Records:    map[string][]annotation.Result{},
	}
}

// SplitWeights returns the requested share of every split, in percent
func (dc *DatasetContext) SplitWeights() []ledger.SplitWeight {
	w := []ledger.SplitWeight{}
	for _, name := range dc.Assignment.Names() {
		w = append(w, ledger.SplitWeight{Name: name, Percent: dc.Assignment.WeightPercent(name)})
	}
	return w
}

func (dc *DatasetContext) Report() *ledger.Report {
	return ledger.BuildReport(dc.Ledger, dc.Categories.Categories(), dc.SplitWeights())
}
