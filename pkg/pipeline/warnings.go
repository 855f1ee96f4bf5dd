package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/serialize"
	"github.com/cyclopcam/logs"
)

// Warnings collects the soft problems of a run. They are logged once, at the end.
type Warnings struct {
	Remap      []string
	Unverified []string // Label records without a verification marker
	Duplicates []string
	Skipped    []serialize.Skipped
	ZeroCount  []dataset.Category
}

func (w *Warnings) Log(log logs.Log) {
	for _, msg := range w.Remap {
		log.Warnf("%v", msg)
	}
	if len(w.Unverified) != 0 {
		log.Warnf("Not verified label files found in folder %v", filepath.Dir(w.Unverified[0]))
		for _, fn := range w.Unverified {
			log.Warnf("    %v", filepath.Base(fn))
		}
	}
	for _, msg := range w.Duplicates {
		log.Warnf("%v", msg)
	}
	for _, s := range w.Skipped {
		log.Warnf("%v", s)
	}
	if len(w.ZeroCount) != 0 {
		log.Warnf("%v", w.ZeroCountMessage())
	}
}

// ZeroCountMessage recommends excluding the classes without any box
func (w *Warnings) ZeroCountMessage() string {
	ids := []string{}
	for _, c := range w.ZeroCount {
		ids = append(ids, fmt.Sprint(c.ID))
	}
	return "Recommended to exclude the following class ids with 0 bboxes: " + strings.Join(ids, ", ")
}
