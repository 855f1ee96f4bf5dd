package annotation

import (
	flatbush "github.com/bmharper/flatbush-go"
	"github.com/cyclopcam/dsprep/pkg/dataset"
)

// Duplicate is a pair of same-class annotations that overlap heavily.
// A and B are indices into ImageRecord.Annotations, with A < B.
type Duplicate struct {
	A, B int
	IoU  float32
}

// FindDuplicates returns every pair of same-class annotations with IoU >= minIoU
func FindDuplicates(anns []dataset.Annotation, minIoU float32) []Duplicate {
	if len(anns) < 2 {
		return nil
	}
	// Create spatial index to avoid O(N^2) comparisons
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(anns))
	for _, a := range anns {
		fb.Add(int32(a.Xmin), int32(a.Ymin), int32(a.Xmax), int32(a.Ymax))
	}
	fb.Finish()

	var dups []Duplicate
	for i, a := range anns {
		for _, j := range fb.Search(int32(a.Xmin), int32(a.Ymin), int32(a.Xmax), int32(a.Ymax)) {
			if j <= i || anns[j].CategoryID != a.CategoryID {
				continue
			}
			if iou := a.IOU(anns[j].Box); iou >= minIoU {
				dups = append(dups, Duplicate{A: i, B: j, IoU: iou})
			}
		}
	}
	return dups
}
