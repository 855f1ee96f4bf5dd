// Package serialize writes normalized splits in the formats consumed by
// training tooling.
package serialize

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/dsprep/pkg/category"
	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/storage"
	"github.com/cyclopcam/logs"
)

type Format string

const (
	FormatCoco    Format = "coco"
	FormatCsv     Format = "csv"
	FormatRecord  Format = "tfrecord"
	FormatDarknet Format = "darknet"
)

var AllFormats = []Format{FormatCoco, FormatCsv, FormatRecord, FormatDarknet}

func ParseFormat(s string) (Format, error) {
	for _, f := range AllFormats {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", dataset.ConfigErrorf("Unknown target format '%v'", s)
}

// Skipped is a box that a serializer could not represent
type Skipped struct {
	File    string
	ClassID int
	Field   string
	Value   float64
}

func (s Skipped) String() string {
	return fmt.Sprintf("Skipped class with id %v, because %v was %.6f in %v", s.ClassID, s.Field, s.Value, s.File)
}

// Result describes what one Emit call wrote
type Result struct {
	Files   []string
	Images  int
	Objects int
	Skipped []Skipped
}

// Serializer writes one output format. Emit is called once per split, and
// Finish once after the last split.
type Serializer interface {
	Format() Format
	Emit(ctx context.Context, split string, cats *category.Set, images []dataset.ImageRecord) (Result, error)
	Finish(ctx context.Context, cats *category.Set, splits []string) ([]string, error)
}

// ImageSource returns the encoded bytes of an image of a split
type ImageSource func(split string, img dataset.ImageRecord) ([]byte, error)

// Env is shared by every serializer of a run
type Env struct {
	Log    logs.Log
	Out    storage.Storage
	Images ImageSource // Only needed by FormatRecord

	Year        int    // COCO info year
	Description string // COCO info description

	DarknetRelPath string // Prefix of the paths listed in darknet split files
	DatasetName    string // Base name of darknet .data and .names files
}

func New(f Format, env Env) (Serializer, error) {
	switch f {
	case FormatCoco:
		return &Coco{env: env}, nil
	case FormatCsv:
		return &Csv{env: env}, nil
	case FormatRecord:
		if env.Images == nil {
			return nil, fmt.Errorf("The %v format needs an image source", f)
		}
		return &Record{env: env}, nil
	case FormatDarknet:
		if env.DatasetName == "" {
			env.DatasetName = "dataset"
		}
		return &Darknet{env: env}, nil
	}
	return nil, dataset.ConfigErrorf("Unknown target format '%v'", f)
}

// Supercategory returns c.Supercategory, or else the content of the last
// parenthesized part of the name, or else the name itself.
func Supercategory(c dataset.Category) string {
	if c.Supercategory != "" {
		return c.Supercategory
	}
	open := strings.LastIndex(c.Name, "(")
	end := strings.LastIndex(c.Name, ")")
	if open >= 0 && end > open+1 {
		return strings.TrimSpace(c.Name[open+1 : end])
	}
	return c.Name
}

// imageFormat is the TFRecord image/format value for a filename
func imageFormat(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".png":
		return "png"
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

type writeList struct {
	out   storage.Storage
	files []string
}

func (w *writeList) write(name string, content []byte) error {
	if err := storage.WriteBytes(w.out, name, content); err != nil {
		return fmt.Errorf("Failed to write %v: %w", w.out.Describe(name), err)
	}
	w.files = append(w.files, name)
	return nil
}
