package serialize

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"

	"github.com/cyclopcam/dsprep/pkg/category"
	"github.com/cyclopcam/dsprep/pkg/dataset"
)

var csvHeader = []string{"filename", "width", "height", "class", "xmin", "ymin", "xmax", "ymax"}

// Csv writes <split>_labels.csv, with one row per object
type Csv struct {
	env Env
}

func (c *Csv) Format() Format { return FormatCsv }

func CsvFilename(split string) string {
	return split + "_labels.csv"
}

func (c *Csv) Emit(ctx context.Context, split string, cats *category.Set, images []dataset.ImageRecord) (Result, error) {
	res := Result{}
	buf := bytes.Buffer{}
	cw := csv.NewWriter(&buf)
	if err := cw.Write(csvHeader); err != nil {
		return res, err
	}
	for _, img := range images {
		for _, a := range img.Annotations {
			row := []string{
				img.Filename,
				strconv.Itoa(img.Width),
				strconv.Itoa(img.Height),
				strconv.Itoa(a.CategoryID),
				strconv.Itoa(a.Xmin),
				strconv.Itoa(a.Ymin),
				strconv.Itoa(a.Xmax),
				strconv.Itoa(a.Ymax),
			}
			if err := cw.Write(row); err != nil {
				return res, err
			}
			res.Objects++
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return res, err
	}
	w := writeList{out: c.env.Out}
	if err := w.write(CsvFilename(split), buf.Bytes()); err != nil {
		return res, err
	}
	res.Files = w.files
	res.Images = len(images)
	return res, nil
}

func (c *Csv) Finish(ctx context.Context, cats *category.Set, splits []string) ([]string, error) {
	return nil, nil
}
