package dataset

import (
	"path/filepath"
	"strings"
)

// Category is a class label. Ids are 1-based once loaded.
type Category struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory,omitempty"`
}

// Box is an axis aligned bounding box in pixel coordinates
type Box struct {
	Xmin int `json:"xmin"`
	Ymin int `json:"ymin"`
	Xmax int `json:"xmax"`
	Ymax int `json:"ymax"`
}

func (b Box) Width() int  { return b.Xmax - b.Xmin }
func (b Box) Height() int { return b.Ymax - b.Ymin }
func (b Box) Area() int   { return b.Width() * b.Height() }

// Valid returns true if the box has positive width and height
func (b Box) Valid() bool {
	return b.Xmin < b.Xmax && b.Ymin < b.Ymax
}

func (b Box) Intersection(o Box) Box {
	r := Box{
		Xmin: max(b.Xmin, o.Xmin),
		Ymin: max(b.Ymin, o.Ymin),
		Xmax: min(b.Xmax, o.Xmax),
		Ymax: min(b.Ymax, o.Ymax),
	}
	if r.Xmax < r.Xmin {
		r.Xmax = r.Xmin
	}
	if r.Ymax < r.Ymin {
		r.Ymax = r.Ymin
	}
	return r
}

// Intersection over Union
func (b Box) IOU(o Box) float32 {
	inter := b.Intersection(o).Area()
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return float32(inter) / float32(union)
}

// Annotation is one retained object, with CategoryID in the final id space
type Annotation struct {
	CategoryID int `json:"categoryId"`
	Box
}

// ImageRecord is one image and its retained annotations
type ImageRecord struct {
	Filename    string       `json:"filename"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	Annotations []Annotation `json:"annotations"`
}

// RawObject is one object of a label record, before id resolution.
// RawClassID is 0-based, as it is stored on disk.
type RawObject struct {
	RawClassID int
	Box
}

// RawRecord is the parsed form of one label file
type RawRecord struct {
	Filename string // Image filename, as referenced by the record
	Width    int
	Height   int
	Objects  []RawObject
	Verified bool
}

// BaseName returns the filename without directory and extension
func BaseName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReplaceExt swaps the extension of filename. ext may be given with or without the dot.
func ReplaceExt(filename, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ext
}
