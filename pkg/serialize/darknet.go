package serialize

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/cyclopcam/dsprep/pkg/category"
	"github.com/cyclopcam/dsprep/pkg/dataset"
)

// Darknet writes one label file per image, under <split>/, with center
// relative coordinates. Class indices are positions in the ordered category
// list, which equals id-1 when ids are contiguous.
type Darknet struct {
	env Env
}

func (d *Darknet) Format() Format { return FormatDarknet }

// DarknetLine converts a box to "<class> <x> <y> <w> <h>".
// If a value falls outside (0,1], the offending field is returned in skip.
func DarknetLine(classIndex int, a dataset.Annotation, width, height int) (line string, skip *Skipped) {
	w := float64(a.Width())
	h := float64(a.Height())
	x := (float64(a.Xmax) - w/2) / float64(width)
	y := (float64(a.Ymax) - h/2) / float64(height)
	w /= float64(width)
	h /= float64(height)
	for _, v := range []struct {
		field string
		value float64
	}{{"x", x}, {"y", y}, {"w", w}, {"h", h}} {
		if !(v.value > 0 && v.value <= 1) {
			return "", &Skipped{ClassID: a.CategoryID, Field: v.field, Value: v.value}
		}
	}
	return fmt.Sprintf("%v %.6f %.6f %.6f %.6f\n", classIndex, x, y, w, h), nil
}

func (d *Darknet) Emit(ctx context.Context, split string, cats *category.Set, images []dataset.ImageRecord) (Result, error) {
	res := Result{}
	index := map[int]int{}
	for i, c := range cats.Categories() {
		index[c.ID] = i
	}
	w := writeList{out: d.env.Out}
	list := bytes.Buffer{}
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		labelName := path.Join(split, dataset.ReplaceExt(img.Filename, ".txt"))
		label := bytes.Buffer{}
		for _, a := range img.Annotations {
			idx, ok := index[a.CategoryID]
			if !ok {
				return res, dataset.RecordErrorf(img.Filename, a.CategoryID, "Class id %v has no category", a.CategoryID)
			}
			line, skip := DarknetLine(idx, a, img.Width, img.Height)
			if skip != nil {
				skip.File = labelName
				res.Skipped = append(res.Skipped, *skip)
				continue
			}
			label.WriteString(line)
			res.Objects++
		}
		if err := w.write(labelName, label.Bytes()); err != nil {
			return res, err
		}
		fmt.Fprintf(&list, "%v\n", path.Join(d.env.DarknetRelPath, split, img.Filename))
	}
	if err := w.write(split+".txt", list.Bytes()); err != nil {
		return res, err
	}
	if len(res.Skipped) != 0 {
		d.env.Log.Infof("Skipped %v boxes of split %v", len(res.Skipped), split)
	}
	res.Files = w.files
	res.Images = len(images)
	return res, nil
}

func (d *Darknet) Finish(ctx context.Context, cats *category.Set, splits []string) ([]string, error) {
	rel := d.env.DarknetRelPath
	name := d.env.DatasetName
	data := bytes.Buffer{}
	fmt.Fprintf(&data, "classes = %v\n", cats.Len())
	for i, s := range splits {
		key := s
		switch i {
		case 0:
			key = "train"
		case 1:
			key = "valid"
		}
		fmt.Fprintf(&data, "%v = %v\n", key, path.Join(rel, s+".txt"))
	}
	fmt.Fprintf(&data, "names = %v\n", path.Join(rel, name+".names"))
	fmt.Fprintf(&data, "backup = %v\n", path.Join("backup", name))

	names := bytes.Buffer{}
	for _, c := range cats.Categories() {
		fmt.Fprintf(&names, "%v\n", c.Name)
	}

	w := writeList{out: d.env.Out}
	if err := w.write(name+".data", data.Bytes()); err != nil {
		return nil, err
	}
	if err := w.write(name+".names", names.Bytes()); err != nil {
		return nil, err
	}
	return w.files, nil
}
