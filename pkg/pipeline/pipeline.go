package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/dsprep/pkg/annotation"
	"github.com/cyclopcam/dsprep/pkg/config"
	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/imagecopy"
	"github.com/cyclopcam/dsprep/pkg/ledger"
	"github.com/cyclopcam/dsprep/pkg/metrics"
	"github.com/cyclopcam/dsprep/pkg/partition"
	"github.com/cyclopcam/dsprep/pkg/rundb"
	"github.com/cyclopcam/dsprep/pkg/serialize"
	"github.com/cyclopcam/dsprep/pkg/storage"
	"github.com/cyclopcam/logs"
)

// Extension of label records
const LabelExt = ".xml"

// Pipeline converts the dataset described by one job config
type Pipeline struct {
	Metrics *metrics.Metrics

	log  logs.Log
	cfg  *config.Config
	out  storage.Storage
	runs *rundb.RunDB // nil if run history is disabled
}

// Summary is the outcome of a conversion
type Summary struct {
	RunID    string // Empty if run history is disabled
	Seed     uint64
	Images   map[string]int // Images written, per split
	Boxes    int
	Files    []string // Output files, relative to the output storage
	Report   *ledger.Report
	Warnings *Warnings
}

// New validates cfg. runs may be nil.
func New(log logs.Log, cfg *config.Config, out storage.Storage, runs *rundb.RunDB) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		Metrics: metrics.New(),
		log:     log,
		cfg:     cfg,
		out:     out,
		runs:    runs,
	}, nil
}

// Run performs the whole conversion. A fatal error stops the run before any
// serializer output is written for the failing split.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	w := &Warnings{}
	set, err := BuildCategories(p.log, p.cfg, w)
	if err != nil {
		return nil, err
	}
	pool, err := p.Pool()
	if err != nil {
		return nil, err
	}
	dc := newContext(set, w)
	dc.Assignment, err = p.Assign(pool, partition.Options{Shuffle: p.cfg.Shuffle, Seed: p.cfg.Seed})
	if err != nil {
		return nil, err
	}
	if err := p.Read(ctx, dc); err != nil {
		return nil, err
	}
	return p.Write(ctx, dc)
}

// Pool pairs every image with its label record
func (p *Pipeline) Pool() ([]partition.Item, error) {
	pool, err := partition.Pairs(p.cfg.ImagePath, p.cfg.ImageSrcType, p.cfg.LabelPath, LabelExt)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, dataset.DataMismatchErrorf("No %v images found in %v", p.cfg.ImageSrcType, p.cfg.ImagePath)
	}
	p.log.Infof("Found %v images with labels", len(pool))
	return pool, nil
}

// Assign splits the pool, either by weight or by presplit file lists
func (p *Pipeline) Assign(pool []partition.Item, opt partition.Options) (*partition.Assignment, error) {
	var a *partition.Assignment
	var err error
	if len(p.cfg.FileLists) != 0 {
		lists := []partition.List{}
		for _, fn := range p.cfg.FileLists {
			l, err := readFileList(fn)
			if err != nil {
				return nil, err
			}
			lists = append(lists, l)
		}
		a, err = partition.FromLists(pool, lists)
	} else {
		a, err = partition.Partition(pool, p.cfg.Sets, opt)
	}
	if err != nil {
		return nil, err
	}
	for _, name := range a.Names() {
		p.log.Infof("Split %v: %v images", name, len(a.Items(name)))
	}
	if a.Seed != 0 {
		p.log.Infof("Shuffle seed %v", a.Seed)
	}
	return a, nil
}

func readFileList(fn string) (partition.List, error) {
	f, err := os.Open(fn)
	if err != nil {
		return partition.List{}, dataset.ConfigErrorf("Failed to open file list %v: %w", fn, err)
	}
	defer f.Close()
	l, err := partition.ReadFileList(f)
	if err != nil {
		return l, fmt.Errorf("File list %v: %w", fn, err)
	}
	return l, nil
}

func (p *Pipeline) readOptions() annotation.Options {
	return annotation.Options{
		ExcludeArea:  p.cfg.ExcludeArea,
		DuplicateIoU: p.cfg.DuplicateIoU,
		Workers:      p.cfg.Workers,
	}
}

// Read normalizes the label records of every split, and fills the ledger
func (p *Pipeline) Read(ctx context.Context, dc *DatasetContext) error {
	reader, err := annotation.NewReader(p.log, dc.Categories, dc.Ledger, p.readOptions())
	if err != nil {
		return err
	}
	for _, split := range dc.Assignment.Names() {
		results, err := reader.ReadSplit(ctx, split, dc.Assignment.Items(split))
		if err != nil {
			return fmt.Errorf("Failed to read split %v: %w", split, err)
		}
		dc.Records[split] = results
		p.note(dc, split, results)
	}
	return nil
}

func (p *Pipeline) note(dc *DatasetContext, split string, results []annotation.Result) {
	w := dc.Warnings
	for _, r := range results {
		if !r.Verified {
			w.Unverified = append(w.Unverified, r.Label)
		}
		for _, d := range r.Duplicates {
			w.Duplicates = append(w.Duplicates, fmt.Sprintf("%v: boxes %v and %v of class %v overlap with IoU %.2f", r.Label, d.A, d.B, r.Image.Annotations[d.A].CategoryID, d.IoU))
		}
		p.Metrics.AddBoxes(split, metrics.OutcomeRetained, len(r.Image.Annotations))
		p.Metrics.AddBoxes(split, metrics.OutcomeExcluded, r.Excluded)
		p.Metrics.AddBoxes(split, metrics.OutcomeArea, r.AreaDropped)
	}
}

// Write copies images, runs the serializers and writes the bookkeeping files.
// If any of that fails, the files written so far are removed again.
func (p *Pipeline) Write(ctx context.Context, dc *DatasetContext) (_ *Summary, err error) {
	out := newTrackedOutput(p.out)
	defer func() {
		if err != nil {
			out.discard(p.log)
		}
	}()

	names := dc.Assignment.Names()
	images := map[string][]dataset.ImageRecord{}
	jobs := []imagecopy.Job{}
	for _, split := range names {
		items := dc.Assignment.Items(split)
		recs := []dataset.ImageRecord{}
		for i, r := range dc.Records[split] {
			if p.cfg.SkipImagesWithoutLabel && len(r.Image.Annotations) == 0 {
				continue
			}
			img := r.Image
			if !p.cfg.NoCopy {
				img.Filename = dataset.ReplaceExt(img.Filename, p.cfg.ImageDestType)
				jobs = append(jobs, imagecopy.Job{Src: items[i].Image, Dest: path.Join(split, img.Filename)})
			}
			recs = append(recs, img)
		}
		images[split] = recs
	}
	if !p.cfg.NoCopy {
		copier := imagecopy.NewCopier(p.log, out, imagecopy.Options{Workers: p.cfg.Workers, Quality: p.cfg.JPEGQuality})
		if err := copier.Run(ctx, jobs); err != nil {
			return nil, err
		}
	}

	sum := &Summary{
		Seed:     dc.Assignment.Seed,
		Images:   map[string]int{},
		Warnings: dc.Warnings,
	}
	for _, split := range names {
		sum.Images[split] = len(images[split])
		p.Metrics.AddImages(split, len(images[split]))
	}

	env := serialize.Env{
		Log:            p.log,
		Out:            out,
		Images:         p.imageSource,
		Year:           p.cfg.Year,
		Description:    p.cfg.Description,
		DarknetRelPath: p.cfg.DarknetRelPath,
		DatasetName:    p.cfg.DatasetName,
	}
	formats, err := p.cfg.Formats()
	if err != nil {
		return nil, err
	}
	for _, f := range formats {
		s, err := serialize.New(f, env)
		if err != nil {
			return nil, err
		}
		for _, split := range names {
			res, err := s.Emit(ctx, split, dc.Categories, images[split])
			if err != nil {
				return nil, fmt.Errorf("Failed to write %v output of split %v: %w", f, split, err)
			}
			sum.Files = append(sum.Files, res.Files...)
			dc.Warnings.Skipped = append(dc.Warnings.Skipped, res.Skipped...)
			p.Metrics.AddBoxes(split, metrics.OutcomeBounds, len(res.Skipped))
			p.Metrics.AddFiles(string(f), len(res.Files))
		}
		files, err := s.Finish(ctx, dc.Categories, names)
		if err != nil {
			return nil, fmt.Errorf("Failed to finish %v output: %w", f, err)
		}
		sum.Files = append(sum.Files, files...)
		p.Metrics.AddFiles(string(f), len(files))
	}

	sum.Report = dc.Report()
	dc.Warnings.ZeroCount = sum.Report.ZeroCount
	files, err := writeBookkeeping(out, dc, sum.Report)
	if err != nil {
		return nil, err
	}
	sum.Files = append(sum.Files, files...)
	for _, row := range sum.Report.Rows {
		sum.Boxes += row.Total
	}
	for _, split := range names {
		p.Metrics.SetMaxDelta(split, sum.Report.SplitMaxAbsDelta(split))
	}

	if err := p.writeMetrics(); err != nil {
		return nil, err
	}
	// Recorded last, so that a recorded run always has its output
	if p.runs != nil {
		if sum.RunID, err = p.record(rundb.KindConvert, "", dc, sum.Report); err != nil {
			return nil, err
		}
	}
	dc.Warnings.Log(p.log)
	p.log.Infof("Wrote %v files to %v, max target delta %.2f%%", len(sum.Files), p.out.Describe(""), sum.Report.MaxAbsDelta())
	return sum, nil
}

// imageSource reads an image back for serializers that embed the pixels
func (p *Pipeline) imageSource(split string, img dataset.ImageRecord) ([]byte, error) {
	if p.cfg.NoCopy {
		return os.ReadFile(filepath.Join(p.cfg.ImagePath, img.Filename))
	}
	return storage.ReadFile(p.out, path.Join(split, img.Filename))
}

func (p *Pipeline) record(kind, searchID string, dc *DatasetContext, report *ledger.Report) (string, error) {
	bal := report.Balance()
	run := &rundb.Run{
		Kind:      kind,
		SearchID:  searchID,
		Formats:   strings.Join(p.cfg.TargetFormats, ","),
		Seed:      int64(dc.Assignment.Seed),
		Images:    dc.Assignment.Len(),
		MaxDelta:  bal.Max,
		MeanDelta: bal.Mean,
		Config:    p.cfg.JSON(),
	}
	splits := []rundb.RunSplit{}
	for _, name := range dc.Assignment.Names() {
		splits = append(splits, rundb.RunSplit{
			Split:  name,
			Images: len(dc.Assignment.Items(name)),
			Boxes:  dc.Ledger.SplitTotal(name),
		})
	}
	boxes := []rundb.RunBox{}
	for _, row := range report.Rows {
		run.Boxes += row.Total
		for _, s := range row.Splits {
			boxes = append(boxes, rundb.RunBox{
				ClassID:   row.Category.ID,
				ClassName: row.Category.Name,
				Split:     s.Split,
				Count:     s.Count,
			})
		}
	}
	if err := p.runs.Save(run, splits, boxes); err != nil {
		return "", fmt.Errorf("Failed to record run: %w", err)
	}
	return run.ID, nil
}

func (p *Pipeline) writeMetrics() error {
	if p.cfg.MetricsFile == "" {
		return nil
	}
	if err := p.Metrics.WriteFile(p.cfg.MetricsFile); err != nil {
		return fmt.Errorf("Failed to write metrics to %v: %w", p.cfg.MetricsFile, err)
	}
	return nil
}
