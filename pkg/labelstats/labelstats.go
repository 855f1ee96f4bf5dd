// Package labelstats summarizes the image sizes and box geometry of a split.
package labelstats

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/cyclopcam/dsprep/pkg/dataset"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Upper bounds (inclusive) of the box area buckets, in pixels
const (
	TinyArea   = 16 * 16
	SmallArea  = 32 * 32
	MediumArea = 96 * 96
)

// Summary of one quantity
type Summary struct {
	Mean float64
	Min  float64
	Max  float64
}

func summarize(v []float64) Summary {
	if len(v) == 0 {
		return Summary{}
	}
	return Summary{Mean: stat.Mean(v, nil), Min: floats.Min(v), Max: floats.Max(v)}
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return stat.Mean(v, nil)
}

// General describes the images of a split
type General struct {
	Images int
	Width  Summary
	Height Summary
}

// Class describes the boxes of one category in a split
type Class struct {
	Category dataset.Category
	Examples int

	Tiny   int // area <= TinyArea
	Small  int
	Medium int
	Large  int // area > MediumArea

	// Mean corners
	Xmin, Ymin, Xmax, Ymax float64

	XCenter Summary
	YCenter Summary
	Width   Summary
	Height  Summary
	Area    Summary

	// Mean center and size relative to the image, in percent
	RelXCenter, RelYCenter, RelWidth, RelHeight float64
}

// Fraction returns n as a percentage of the examples
func (c *Class) Fraction(n int) float64 {
	if c.Examples == 0 {
		return 0
	}
	return float64(n) / float64(c.Examples) * 100
}

// Stats of one split
type Stats struct {
	Split   string
	General General
	Classes []Class // One per category, in category order
}

// samples collects the per box values of one class
type samples struct {
	xmin, ymin, xmax, ymax []float64
	xc, yc, w, h, area     []float64
	relXC, relYC           []float64
	relW, relH             []float64
}

func (s *samples) add(img dataset.ImageRecord, b dataset.Box) {
	w := float64(b.Width())
	h := float64(b.Height())
	xc := float64(b.Xmax) - w/2
	yc := float64(b.Ymax) - h/2
	s.xmin = append(s.xmin, float64(b.Xmin))
	s.ymin = append(s.ymin, float64(b.Ymin))
	s.xmax = append(s.xmax, float64(b.Xmax))
	s.ymax = append(s.ymax, float64(b.Ymax))
	s.xc = append(s.xc, xc)
	s.yc = append(s.yc, yc)
	s.w = append(s.w, w)
	s.h = append(s.h, h)
	s.area = append(s.area, w*h)
	if img.Width > 0 && img.Height > 0 {
		iw := float64(img.Width)
		ih := float64(img.Height)
		s.relXC = append(s.relXC, xc/iw*100)
		s.relYC = append(s.relYC, yc/ih*100)
		s.relW = append(s.relW, w/iw*100)
		s.relH = append(s.relH, h/ih*100)
	}
}

// Compute gathers the statistics of the images of a split.
// Annotations must carry the current ids of cats.
func Compute(split string, cats []dataset.Category, images []dataset.ImageRecord) *Stats {
	widths := make([]float64, 0, len(images))
	heights := make([]float64, 0, len(images))
	perClass := map[int]*samples{}
	for _, c := range cats {
		perClass[c.ID] = &samples{}
	}
	for _, img := range images {
		widths = append(widths, float64(img.Width))
		heights = append(heights, float64(img.Height))
		for _, a := range img.Annotations {
			if s, ok := perClass[a.CategoryID]; ok {
				s.add(img, a.Box)
			}
		}
	}

	st := &Stats{
		Split: split,
		General: General{
			Images: len(images),
			Width:  summarize(widths),
			Height: summarize(heights),
		},
	}
	for _, c := range cats {
		s := perClass[c.ID]
		cl := Class{
			Category: c,
			Examples: len(s.area),
			Xmin:     mean(s.xmin),
			Ymin:     mean(s.ymin),
			Xmax:     mean(s.xmax),
			Ymax:     mean(s.ymax),
			XCenter:  summarize(s.xc),
			YCenter:  summarize(s.yc),
			Width:    summarize(s.w),
			Height:   summarize(s.h),
			Area:     summarize(s.area),

			RelXCenter: mean(s.relXC),
			RelYCenter: mean(s.relYC),
			RelWidth:   mean(s.relW),
			RelHeight:  mean(s.relH),
		}
		for _, a := range s.area {
			switch {
			case a <= TinyArea:
				cl.Tiny++
			case a <= SmallArea:
				cl.Small++
			case a <= MediumArea:
				cl.Medium++
			default:
				cl.Large++
			}
		}
		st.Classes = append(st.Classes, cl)
	}
	return st
}

// GeneralFile and ClassFile name the CSV files of a split
func GeneralFile(split string) string { return split + "_general_stats.csv" }
func ClassFile(split string) string   { return split + "_class_stats.csv" }

func ff(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func (s *Stats) WriteGeneralCSV(w io.Writer) error {
	g := s.General
	cw := csv.NewWriter(w)
	cw.Write([]string{"images", "avg. width", "min. width", "max. width", "avg. height", "min. height", "max. height"})
	cw.Write([]string{fmt.Sprint(g.Images), ff(g.Width.Mean), ff(g.Width.Min), ff(g.Width.Max), ff(g.Height.Mean), ff(g.Height.Min), ff(g.Height.Max)})
	cw.Flush()
	return cw.Error()
}

var classHeader = []string{
	"class_id", "class", "examples",
	"bbox_area_tiny", "fraction_tiny_bbox_%",
	"bbox_area_small", "fraction_small_bbox_%",
	"bbox_area_medium", "fraction_medium_bbox_%",
	"bbox_area_large", "fraction_large_bbox_%",
	"avg_xmin", "avg_ymin", "avg_xmax", "avg_ymax",
	"min_x_center", "min_y_center", "min_bbox_w", "min_bbox_h",
	"avg_x_center", "avg_y_center", "avg_bbox_w", "avg_bbox_h",
	"max_x_center", "max_y_center", "max_bbox_w", "max_bbox_h",
	"avg_bbox_area", "min_bbox_area", "max_bbox_area",
	"avg_rel_x_center", "avg_rel_y_center", "avg_rel_bbox_w", "avg_rel_bbox_h",
}

// WriteClassCSV writes one row per category. Categories without a box in
// the split have -1 in every statistics column.
func (s *Stats) WriteClassCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(classHeader); err != nil {
		return err
	}
	for i := range s.Classes {
		c := &s.Classes[i]
		rec := []string{fmt.Sprint(c.Category.ID), c.Category.Name, fmt.Sprint(c.Examples)}
		if c.Examples == 0 {
			for len(rec) < len(classHeader) {
				rec = append(rec, "-1")
			}
		} else {
			for _, n := range []int{c.Tiny, c.Small, c.Medium, c.Large} {
				rec = append(rec, fmt.Sprint(n), ff(c.Fraction(n)))
			}
			for _, v := range []float64{
				c.Xmin, c.Ymin, c.Xmax, c.Ymax,
				c.XCenter.Min, c.YCenter.Min, c.Width.Min, c.Height.Min,
				c.XCenter.Mean, c.YCenter.Mean, c.Width.Mean, c.Height.Mean,
				c.XCenter.Max, c.YCenter.Max, c.Width.Max, c.Height.Max,
				c.Area.Mean, c.Area.Min, c.Area.Max,
				c.RelXCenter, c.RelYCenter, c.RelWidth, c.RelHeight,
			} {
				rec = append(rec, ff(v))
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
