package pipeline

import (
	"github.com/cyclopcam/dsprep/pkg/category"
	"github.com/cyclopcam/dsprep/pkg/config"
	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/remap"
	"github.com/cyclopcam/logs"
)

// BuildCategories resolves the final, frozen category set of a job:
// label map, exclude/include, remap rules, and id rearrangement.
func BuildCategories(log logs.Log, cfg *config.Config, w *Warnings) (*category.Set, error) {
	raw, err := category.Load(cfg.LabelMap)
	if err != nil {
		return nil, err
	}
	set, err := category.NewSet(log, raw, cfg.Selection())
	if err != nil {
		return nil, err
	}
	if cfg.RemapFile != "" {
		all, err := remap.LoadRules(cfg.RemapFile)
		if err != nil {
			return nil, err
		}
		rs, ok := all[cfg.RemapKey]
		if !ok {
			return nil, dataset.ConfigErrorf("Remap file %v has no rule set '%v'", cfg.RemapFile, cfg.RemapKey)
		}
		report, err := remap.Apply(log, set, rs)
		if err != nil {
			return nil, err
		}
		w.Remap = append(w.Remap, report.Warnings...)
	}
	if cfg.RearrangeIDs {
		if _, err := remap.Rearrange(set); err != nil {
			return nil, err
		}
	}
	if err := set.Freeze(); err != nil {
		return nil, err
	}
	log.Infof("%v classes included, %v excluded", set.Len(), set.ExcludedIDs().Len())
	return set, nil
}
