package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/dsprep/pkg/config"
	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/pipeline"
	"github.com/cyclopcam/dsprep/pkg/rundb"
	"github.com/cyclopcam/logs"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	logger, err := logs.NewLog()
	check(err)

	parser := argparse.NewParser("dsprep", "Normalize object detection datasets into COCO, CSV, TFRecord and Darknet form")

	convertCmd := parser.NewCommand("convert", "Convert a dataset")
	convertConfig := convertCmd.String("c", "config", &argparse.Options{Help: "Job config file", Required: true})
	convertOutput := convertCmd.String("o", "output", &argparse.Options{Help: "Output directory (overrides the output of the config)"})
	convertSeed := convertCmd.Int("", "seed", &argparse.Options{Help: "Shuffle seed (overrides the config, and enables shuffle)"})
	convertFormats := convertCmd.StringList("f", "format", &argparse.Options{Help: "Target format (coco, csv, tfrecord, darknet). May be repeated."})

	searchCmd := parser.NewCommand("search-split", "Find the shuffle seed whose class balance best matches the split weights")
	searchConfig := searchCmd.String("c", "config", &argparse.Options{Help: "Job config file", Required: true})
	searchAttempts := searchCmd.Int("n", "attempts", &argparse.Options{Help: "Number of shuffles to try", Default: 20})
	searchConvert := searchCmd.Flag("", "convert", &argparse.Options{Help: "Convert the dataset with the best seed"})
	searchOutput := searchCmd.String("o", "output", &argparse.Options{Help: "Output directory (overrides the output of the config)"})

	historyCmd := parser.NewCommand("history", "List recent runs")
	historyDB := historyCmd.String("d", "db", &argparse.Options{Help: "Run history database", Required: true})
	historyLimit := historyCmd.Int("n", "limit", &argparse.Options{Help: "Number of runs to list", Default: 20})
	historyRun := historyCmd.String("r", "run", &argparse.Options{Help: "Show the class distribution of one run"})
	historySearch := historyCmd.String("s", "search", &argparse.Options{Help: "Show the best attempt of a split search"})

	err = parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case convertCmd.Happened():
		cfg := loadConfig(logger, *convertConfig, *convertOutput)
		if *convertSeed != 0 {
			cfg.Shuffle = true
			cfg.Seed = uint64(*convertSeed)
		}
		if len(*convertFormats) != 0 {
			cfg.TargetFormats = *convertFormats
		}
		convert(ctx, logger, cfg)
	case searchCmd.Happened():
		cfg := loadConfig(logger, *searchConfig, *searchOutput)
		p, closeRuns := newPipeline(ctx, logger, cfg)
		res, err := p.SearchSplit(ctx, *searchAttempts)
		closeRuns()
		exitOnError(logger, err)
		fmt.Printf("Best seed %v: max target delta %.2f%%, mean %.2f%%\n", res.Best.Seed, res.Best.Balance.Max, res.Best.Balance.Mean)
		if *searchConvert {
			cfg.Shuffle = true
			cfg.Seed = res.Best.Seed
			convert(ctx, logger, cfg)
		}
	case historyCmd.Happened():
		runs, err := rundb.Open(logger, *historyDB)
		exitOnError(logger, err)
		switch {
		case *historySearch != "":
			showBest(runs, *historySearch)
		case *historyRun != "":
			showRun(runs, *historyRun)
		default:
			listRuns(runs, *historyLimit)
		}
	}
}

func loadConfig(log logs.Log, filename, output string) *config.Config {
	cfg, err := config.Load(filename)
	exitOnError(log, err)
	if output != "" {
		cfg.Output = config.OutputConfig{Filesystem: &config.OutputConfigFS{Root: output}}
	}
	return cfg
}

func newPipeline(ctx context.Context, log logs.Log, cfg *config.Config) (*pipeline.Pipeline, func()) {
	// Validate before opening anything
	exitOnError(log, cfg.Validate())
	out, err := cfg.OpenOutput(ctx, log)
	exitOnError(log, err)
	var runs *rundb.RunDB
	closeRuns := func() {}
	if cfg.RunDB != "" {
		runs, err = rundb.Open(log, cfg.RunDB)
		exitOnError(log, err)
		closeRuns = func() {
			if sqlDB, err := runs.DB.DB(); err == nil {
				sqlDB.Close()
			}
		}
	}
	p, err := pipeline.New(log, cfg, out, runs)
	exitOnError(log, err)
	return p, closeRuns
}

func convert(ctx context.Context, log logs.Log, cfg *config.Config) {
	p, closeRuns := newPipeline(ctx, log, cfg)
	defer closeRuns()
	sum, err := p.Run(ctx)
	exitOnError(log, err)
	for split, n := range sum.Images {
		log.Infof("%v: %v images", split, n)
	}
	if sum.RunID != "" {
		log.Infof("Run %v", sum.RunID)
	}
}

func exitOnError(log logs.Log, err error) {
	if err == nil {
		return
	}
	kind := "Error"
	var ce *dataset.ConfigError
	var dm *dataset.DataMismatchError
	var re *dataset.RecordError
	switch {
	case errors.As(err, &ce):
		kind = "Config error"
	case errors.As(err, &dm):
		kind = "Data mismatch"
	case errors.As(err, &re):
		kind = "Record error"
	}
	log.Errorf("%v: %v", kind, err)
	os.Exit(1)
}

func listRuns(runs *rundb.RunDB, limit int) {
	list, err := runs.Recent(limit)
	check(err)
	fmt.Printf("%-36v  %-19v  %-7v  %-20v  %7v  %7v  %9v\n", "id", "created", "kind", "formats", "images", "boxes", "max delta")
	for _, r := range list {
		created := time.UnixMilli(int64(r.CreatedAt)).Format("2006-01-02 15:04:05")
		fmt.Printf("%-36v  %-19v  %-7v  %-20v  %7v  %7v  %8.2f%%\n", r.ID, created, r.Kind, r.Formats, r.Images, r.Boxes, r.MaxDelta)
	}
}

func showBest(runs *rundb.RunDB, searchID string) {
	best, err := runs.BestAttempt(searchID)
	check(err)
	fmt.Printf("Best attempt of search %v: run %v, seed %v, max target delta %.2f%%, mean %.2f%%\n", searchID, best.ID, best.Seed, best.MaxDelta, best.MeanDelta)
	showRun(runs, best.ID)
}

func showRun(runs *rundb.RunDB, runID string) {
	splits, err := runs.Splits(runID)
	check(err)
	for _, s := range splits {
		fmt.Printf("%v: %v images, %v boxes\n", s.Split, s.Images, s.Boxes)
	}
	boxes, err := runs.Boxes(runID)
	check(err)
	last := -1
	line := []string{}
	for _, b := range boxes {
		if b.ClassID != last && len(line) != 0 {
			fmt.Println(strings.Join(line, "  "))
			line = line[:0]
		}
		if b.ClassID != last {
			line = append(line, fmt.Sprintf("%4v %-30v", b.ClassID, b.ClassName))
			last = b.ClassID
		}
		line = append(line, fmt.Sprintf("%v=%v", b.Split, b.Count))
	}
	if len(line) != 0 {
		fmt.Println(strings.Join(line, "  "))
	}
}
