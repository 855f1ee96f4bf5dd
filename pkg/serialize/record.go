package serialize

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cyclopcam/dsprep/pkg/category"
	"github.com/cyclopcam/dsprep/pkg/dataset"
)

// Record writes <split>.record files of tf.train.Example messages, in the
// layout of the TensorFlow object detection API, plus label_map.pbtxt.
type Record struct {
	env Env
}

func (r *Record) Format() Format { return FormatRecord }

func RecordFilename(split string) string {
	return split + ".record"
}

const LabelMapPbtxt = "label_map.pbtxt"

// BuildExample encodes one image. Coordinates are relative to the image size.
func BuildExample(img dataset.ImageRecord, encoded []byte, cats *category.Set) ([]byte, error) {
	if img.Width <= 0 || img.Height <= 0 {
		return nil, dataset.DataMismatchErrorf("%v: invalid image size %v x %v", img.Filename, img.Width, img.Height)
	}
	ex := NewExample()
	ex.Int64s("image/height", int64(img.Height))
	ex.Int64s("image/width", int64(img.Width))
	ex.String("image/filename", img.Filename)
	ex.String("image/source_id", img.Filename)
	ex.Bytes("image/encoded", encoded)
	ex.String("image/format", imageFormat(img.Filename))
	ex.Floats("image/object/bbox/xmin")
	ex.Floats("image/object/bbox/xmax")
	ex.Floats("image/object/bbox/ymin")
	ex.Floats("image/object/bbox/ymax")
	ex.String("image/object/class/text")
	ex.Int64s("image/object/class/label")
	w := float32(img.Width)
	h := float32(img.Height)
	for _, a := range img.Annotations {
		cat, ok := cats.Category(a.CategoryID)
		if !ok {
			return nil, dataset.RecordErrorf(img.Filename, a.CategoryID, "Class id %v has no category", a.CategoryID)
		}
		ex.Floats("image/object/bbox/xmin", float32(a.Xmin)/w)
		ex.Floats("image/object/bbox/xmax", float32(a.Xmax)/w)
		ex.Floats("image/object/bbox/ymin", float32(a.Ymin)/h)
		ex.Floats("image/object/bbox/ymax", float32(a.Ymax)/h)
		ex.String("image/object/class/text", cat.Name)
		ex.Int64s("image/object/class/label", int64(a.CategoryID))
	}
	return ex.Marshal(), nil
}

func (r *Record) Emit(ctx context.Context, split string, cats *category.Set, images []dataset.ImageRecord) (Result, error) {
	res := Result{}
	buf := bytes.Buffer{}
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		encoded, err := r.env.Images(split, img)
		if err != nil {
			return res, fmt.Errorf("Failed to read image %v: %w", img.Filename, err)
		}
		ex, err := BuildExample(img, encoded, cats)
		if err != nil {
			return res, err
		}
		if err := WriteTFRecord(&buf, ex); err != nil {
			return res, err
		}
		res.Objects += len(img.Annotations)
	}
	w := writeList{out: r.env.Out}
	if err := w.write(RecordFilename(split), buf.Bytes()); err != nil {
		return res, err
	}
	r.env.Log.Infof("Wrote %v images to %v", len(images), r.env.Out.Describe(RecordFilename(split)))
	res.Files = w.files
	res.Images = len(images)
	return res, nil
}

// LabelMapText renders the object detection API label map
func LabelMapText(cats *category.Set) []byte {
	buf := bytes.Buffer{}
	for _, c := range cats.Categories() {
		fmt.Fprintf(&buf, "item {\n    id: %v\n    name: '%v'\n}\n\n", c.ID, c.Name)
	}
	return buf.Bytes()
}

func (r *Record) Finish(ctx context.Context, cats *category.Set, splits []string) ([]string, error) {
	w := writeList{out: r.env.Out}
	if err := w.write(LabelMapPbtxt, LabelMapText(cats)); err != nil {
		return nil, err
	}
	return w.files, nil
}
