// Package annotation turns raw label records into normalized image records.
package annotation

import (
	"context"
	"path/filepath"

	"github.com/cyclopcam/dsprep/pkg/category"
	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/ledger"
	"github.com/cyclopcam/dsprep/pkg/partition"
	"github.com/cyclopcam/dsprep/pkg/voc"
	"github.com/cyclopcam/logs"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Objects with area <= ExcludeArea are dropped. Disabled if nil.
	ExcludeArea *float64

	// Same-class boxes with IoU >= DuplicateIoU are reported. Disabled if zero.
	DuplicateIoU float32

	// Number of records parsed in parallel. Defaults to 1.
	Workers int

	// Parses one label record. Defaults to voc.ParseFile.
	Parse func(filename string) (dataset.RawRecord, error)
}

// Result is one normalized record
type Result struct {
	Image       dataset.ImageRecord
	Label       string // Path of the label record
	Verified    bool
	Excluded    int // Objects of excluded classes
	AreaDropped int // Objects dropped by the area threshold
	Duplicates  []Duplicate
}

// Reader normalizes label records against a frozen category set
type Reader struct {
	log    logs.Log
	set    *category.Set
	ledger *ledger.Ledger
	opt    Options
}

func NewReader(log logs.Log, set *category.Set, l *ledger.Ledger, opt Options) (*Reader, error) {
	if !set.Frozen() {
		return nil, dataset.ConfigErrorf("Category set must be frozen before records are read")
	}
	if opt.ExcludeArea != nil && *opt.ExcludeArea <= 0 {
		return nil, dataset.ConfigErrorf("Exclude area threshold must be positive, but is %v", *opt.ExcludeArea)
	}
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	if opt.Parse == nil {
		opt.Parse = voc.ParseFile
	}
	return &Reader{
		log:    log,
		set:    set,
		ledger: l,
		opt:    opt,
	}, nil
}

// Normalize resolves the objects of one record. Retained annotations are
// counted into counts, under split. name identifies the record in errors.
func (r *Reader) Normalize(name string, rec dataset.RawRecord, split string, counts ledger.Counts) (Result, error) {
	res := Result{
		Image: dataset.ImageRecord{
			Filename:    rec.Filename,
			Width:       rec.Width,
			Height:      rec.Height,
			Annotations: []dataset.Annotation{},
		},
		Verified: rec.Verified,
	}
	for _, obj := range rec.Objects {
		if !obj.Valid() {
			return res, dataset.DataMismatchErrorf("%v: invalid bounding box (%v,%v)-(%v,%v) for class %v", name, obj.Xmin, obj.Ymin, obj.Xmax, obj.Ymax, obj.RawClassID)
		}
		classID := obj.RawClassID + 1
		id, outcome := r.set.Resolve(classID)
		switch outcome {
		case category.Dropped:
			res.Excluded++
			continue
		case category.Unknown:
			return res, dataset.RecordErrorf(name, classID, "Class id %v is not in the label map", classID)
		}
		if !r.set.IsIncluded(id) {
			return res, dataset.RecordErrorf(name, id, "Class id %v resolves to %v, which is not an included class", classID, id)
		}
		if r.opt.ExcludeArea != nil && float64(obj.Area()) <= *r.opt.ExcludeArea {
			res.AreaDropped++
			continue
		}
		res.Image.Annotations = append(res.Image.Annotations, dataset.Annotation{CategoryID: id, Box: obj.Box})
		counts.Add(id, split, 1)
	}
	if r.opt.DuplicateIoU > 0 {
		res.Duplicates = FindDuplicates(res.Image.Annotations, r.opt.DuplicateIoU)
	}
	return res, nil
}

// ReadSplit parses and normalizes every item of a split.
// Results are in the order of items. The shared ledger is only updated when
// every record of the split was read successfully.
func (r *Reader) ReadSplit(ctx context.Context, split string, items []partition.Item) ([]Result, error) {
	results := make([]Result, len(items))
	nWorkers := min(r.opt.Workers, max(len(items), 1))
	local := make([]ledger.Counts, nWorkers)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < nWorkers; w++ {
		local[w] = ledger.Counts{}
		g.Go(func() error {
			for i := w; i < len(items); i += nWorkers {
				if err := ctx.Err(); err != nil {
					return err
				}
				rec, err := r.opt.Parse(items[i].Label)
				if err != nil {
					return err
				}
				res, err := r.Normalize(items[i].Label, rec, split, local[w])
				if err != nil {
					return err
				}
				// The image on disk is the source of truth for the name
				res.Image.Filename = filepath.Base(items[i].Image)
				res.Label = items[i].Label
				results[i] = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, c := range local {
		r.ledger.Merge(c)
	}
	r.log.Infof("Read %v label records of split %v", len(items), split)
	return results, nil
}
