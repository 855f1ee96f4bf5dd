// Package config holds the job description of a conversion run.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/cyclopcam/dsprep/pkg/category"
	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/partition"
	"github.com/cyclopcam/dsprep/pkg/serialize"
	"github.com/cyclopcam/dsprep/pkg/storage"
	"github.com/cyclopcam/logs"
)

type Config struct {
	ImagePath     string   `json:"imagePath"`     // Directory of source images
	LabelPath     string   `json:"labelPath"`     // Directory of XML label records. Defaults to ImagePath.
	LabelMap      string   `json:"labelMap"`      // JSON label map with 0-based ids
	ImageSrcType  string   `json:"imageSrcType"`  // Extension of source images, eg ".jpg"
	ImageDestType string   `json:"imageDestType"` // Extension of output images. Defaults to ImageSrcType.
	TargetFormats []string `json:"targetFormats"` // Any of coco, csv, tfrecord, darknet

	Sets    []partition.Split `json:"sets"`
	Shuffle bool              `json:"shuffle"`
	Seed    uint64            `json:"seed"` // Shuffle seed. Zero picks one at random.

	// Presplit file lists (<split>_file_list.txt). When set, Sets weights are
	// ignored and the lists define the splits.
	FileLists []string `json:"fileLists"`

	Exclude     []int `json:"exclude"`
	Include     []int `json:"include"`
	StartsAtOne bool  `json:"startsAtOne"` // Exclude/Include ids are 1-based

	RemapFile    string   `json:"remapFile"`    // JSON table of remap rule sets
	RemapKey     string   `json:"remapKey"`     // Rule set inside RemapFile
	RearrangeIDs bool     `json:"rearrangeIds"` // Renumber surviving ids to 1..N
	ExcludeArea  *float64 `json:"excludeArea"`  // Drop boxes with area <= this

	NoCopy                 bool    `json:"noCopy"`
	SkipImagesWithoutLabel bool    `json:"skipImagesWithoutLabel"`
	Workers                int     `json:"workers"`
	JPEGQuality            int     `json:"jpegQuality"`
	DuplicateIoU           float32 `json:"duplicateIoU"` // Report same-class boxes overlapping at least this much

	Year           int    `json:"year"`
	Description    string `json:"description"`
	DarknetRelPath string `json:"darknetRelPath"`
	DatasetName    string `json:"datasetName"`

	Output      OutputConfig `json:"output"`
	RunDB       string       `json:"runDB"`       // SQLite run history. Disabled if empty.
	MetricsFile string       `json:"metricsFile"` // Prometheus textfile. Disabled if empty.
}

// One of the output options must be configured (i.e. either 'filesystem', 'gcs' or 's3')
type OutputConfig struct {
	Filesystem *OutputConfigFS   `json:"filesystem"`
	GCS        *OutputConfigGCS  `json:"gcs"`
	S3         *storage.S3Config `json:"s3"`
}

type OutputConfigFS struct {
	Root string `json:"root"` // Path to the root of the output directory
}

type OutputConfigGCS struct {
	Bucket string `json:"bucket"` // Name of the GCS bucket
	Prefix string `json:"prefix"` // Object name prefix
}

// Load reads a JSON job file and applies defaults. It does not validate.
func Load(filename string) (*Config, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, dataset.ConfigErrorf("Failed to read config file %v: %w", filename, err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, dataset.ConfigErrorf("Error parsing config file %v: %w", filename, err)
	}
	cfg.SetDefaults()
	return cfg, nil
}

func (c *Config) SetDefaults() {
	if c.LabelPath == "" {
		c.LabelPath = c.ImagePath
	}
	if c.ImageSrcType == "" {
		c.ImageSrcType = ".jpg"
	}
	if c.ImageDestType == "" {
		c.ImageDestType = c.ImageSrcType
	}
	c.ImageSrcType = dotExt(c.ImageSrcType)
	c.ImageDestType = dotExt(c.ImageDestType)
	if len(c.Sets) == 0 && len(c.FileLists) == 0 {
		c.Sets = []partition.Split{{Name: "train", Weight: 0.9}, {Name: "val", Weight: 0.1}}
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Year == 0 {
		c.Year = 2020
	}
	if c.DatasetName == "" {
		c.DatasetName = "dataset"
	}
}

func dotExt(ext string) string {
	if ext != "" && ext[0] != '.' {
		return "." + ext
	}
	return ext
}

// Validate checks everything that can be checked without touching the dataset
func (c *Config) Validate() error {
	if c.ImagePath == "" {
		return dataset.ConfigErrorf("imagePath must be set")
	}
	if c.LabelMap == "" {
		return dataset.ConfigErrorf("labelMap must be set")
	}
	if len(c.TargetFormats) == 0 {
		return dataset.ConfigErrorf("At least one target format must be given")
	}
	if _, err := c.Formats(); err != nil {
		return err
	}
	sel := c.Selection()
	if err := sel.Validate(); err != nil {
		return err
	}
	if c.ExcludeArea != nil && *c.ExcludeArea <= 0 {
		return dataset.ConfigErrorf("Exclude area threshold must be positive, but is %v", *c.ExcludeArea)
	}
	if len(c.FileLists) == 0 {
		if err := partition.ValidateSplits(c.Sets); err != nil {
			return err
		}
	}
	if (c.RemapFile == "") != (c.RemapKey == "") {
		return dataset.ConfigErrorf("remapFile and remapKey must be given together")
	}
	if c.Seed > math.MaxInt64 {
		return dataset.ConfigErrorf("seed must be below 2^63")
	}
	if c.DuplicateIoU < 0 || c.DuplicateIoU > 1 {
		return dataset.ConfigErrorf("duplicateIoU must be between 0 and 1, but is %v", c.DuplicateIoU)
	}
	if c.JPEGQuality < 0 || c.JPEGQuality > 100 {
		return dataset.ConfigErrorf("jpegQuality must be between 0 and 100, but is %v", c.JPEGQuality)
	}
	n := 0
	if c.Output.Filesystem != nil {
		n++
	}
	if c.Output.GCS != nil {
		n++
	}
	if c.Output.S3 != nil {
		n++
	}
	if n != 1 {
		return dataset.ConfigErrorf("Exactly one of the output options must be configured (i.e. either 'filesystem', 'gcs' or 's3')")
	}
	return nil
}

func (c *Config) Formats() ([]serialize.Format, error) {
	formats := []serialize.Format{}
	seen := map[serialize.Format]bool{}
	for _, s := range c.TargetFormats {
		f, err := serialize.ParseFormat(s)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			formats = append(formats, f)
			seen[f] = true
		}
	}
	return formats, nil
}

func (c *Config) Selection() category.Selection {
	return category.Selection{
		Exclude:     c.Exclude,
		Include:     c.Include,
		StartsAtOne: c.StartsAtOne,
	}
}

// OpenOutput opens the configured output storage
func (c *Config) OpenOutput(ctx context.Context, log logs.Log) (storage.Storage, error) {
	if c.Output.GCS != nil {
		return storage.NewStorageGCS(ctx, log, c.Output.GCS.Bucket, c.Output.GCS.Prefix)
	} else if c.Output.S3 != nil {
		return storage.NewStorageS3(ctx, log, *c.Output.S3)
	} else if c.Output.Filesystem != nil {
		return storage.NewStorageFS(log, c.Output.Filesystem.Root)
	}
	return nil, fmt.Errorf("One of the output options must be configured (i.e. either 'filesystem', 'gcs' or 's3')")
}

// JSON returns the config as stored in the run history
func (c *Config) JSON() string {
	b, _ := json.Marshal(c)
	return string(b)
}
