package pipeline

import (
	"context"
	"math"

	"github.com/cyclopcam/dsprep/pkg/annotation"
	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/ledger"
	"github.com/cyclopcam/dsprep/pkg/partition"
	"github.com/cyclopcam/dsprep/pkg/rundb"
)

// Pseudo split under which split search reads the whole pool
const searchSplit = "all"

// Attempt is one scored shuffle
type Attempt struct {
	Seed    uint64
	Balance ledger.Balance
	RunID   string // Empty if run history is disabled
}

type SearchResult struct {
	SearchID string
	Attempts []Attempt
	Best     Attempt // Attempt with the smallest max |target delta|, then mean
}

// SearchSplit reads every label record once, then tries the given number of
// shuffles and keeps the one whose class balance is closest to the split weights.
// With a configured seed, attempt i uses seed+i. Otherwise seeds are random.
func (p *Pipeline) SearchSplit(ctx context.Context, attempts int) (*SearchResult, error) {
	if attempts <= 0 {
		return nil, dataset.ConfigErrorf("Split search needs at least one attempt")
	}
	if len(p.cfg.FileLists) != 0 {
		return nil, dataset.ConfigErrorf("Split search does not apply to presplit file lists")
	}
	w := &Warnings{}
	set, err := BuildCategories(p.log, p.cfg, w)
	if err != nil {
		return nil, err
	}
	pool, err := p.Pool()
	if err != nil {
		return nil, err
	}
	reader, err := annotation.NewReader(p.log, set, ledger.New(), p.readOptions())
	if err != nil {
		return nil, err
	}
	all, err := reader.ReadSplit(ctx, searchSplit, pool)
	if err != nil {
		return nil, err
	}
	anns := map[string][]dataset.Annotation{}
	for i, r := range all {
		anns[pool[i].Name] = r.Image.Annotations
		if !r.Verified {
			w.Unverified = append(w.Unverified, r.Label)
		}
	}

	res := &SearchResult{SearchID: rundb.NewRunID()}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seed := attemptSeed(p.cfg.Seed, i)
		// Split weights were validated, so Partition can only fail on a bug
		a, err := partition.Partition(pool, p.cfg.Sets, partition.Options{Shuffle: true, Seed: seed})
		if err != nil {
			return nil, err
		}
		dc := newContext(set, w)
		dc.Assignment = a
		for _, split := range a.Names() {
			for _, it := range a.Items(split) {
				for _, ann := range anns[it.Name] {
					dc.Ledger.Increment(ann.CategoryID, split)
				}
			}
		}
		report := dc.Report()
		at := Attempt{
			Seed:    a.Seed,
			Balance: report.Balance(),
		}
		p.Metrics.AddAttempt()
		if p.runs != nil {
			if at.RunID, err = p.record(rundb.KindSearch, res.SearchID, dc, report); err != nil {
				return nil, err
			}
		}
		p.log.Infof("Attempt %v: seed %v, max target delta %.2f%%", i+1, at.Seed, at.Balance.Max)
		res.Attempts = append(res.Attempts, at)
		if i == 0 || better(at.Balance, res.Best.Balance) {
			res.Best = at
		}
	}
	if err := p.writeMetrics(); err != nil {
		return nil, err
	}
	w.Log(p.log)
	p.log.Infof("Best split: seed %v, max target delta %.2f%%", res.Best.Seed, res.Best.Balance.Max)
	return res, nil
}

// attemptSeed is base+i, wrapped into [1, MaxInt64] so that every seed fits
// the run history. Zero base means random seeds.
func attemptSeed(base uint64, i int) uint64 {
	if base == 0 {
		return 0
	}
	return (base+uint64(i)-1)%math.MaxInt64 + 1
}

// better orders by max |delta|, then by mean |delta|
func better(a, b ledger.Balance) bool {
	if a.Max != b.Max {
		return a.Max < b.Max
	}
	return a.Mean < b.Mean
}
