package serialize

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/cyclopcam/dsprep/pkg/category"
	"github.com/cyclopcam/dsprep/pkg/dataset"
)

type cocoInfo struct {
	Description string `json:"description"`
	URL         string `json:"url"`
	Version     string `json:"version"`
	Year        int    `json:"year"`
	Contributor string `json:"contributor"`
	DateCreated string `json:"date_created"`
}

type cocoLicense struct {
	URL  string `json:"url"`
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type cocoImage struct {
	License      int    `json:"license"`
	FileName     string `json:"file_name"`
	CocoURL      string `json:"coco_url"`
	Height       int    `json:"height"`
	Width        int    `json:"width"`
	DateCaptured string `json:"date_captured"`
	FlickrURL    string `json:"flickr_url"`
	ID           int    `json:"id"`
}

type cocoAnnotation struct {
	Segmentation [][]float64 `json:"segmentation"`
	Area         int         `json:"area"`
	IsCrowd      int         `json:"iscrowd"`
	ImageID      int         `json:"image_id"`
	BBox         [4]int      `json:"bbox"`
	CategoryID   int         `json:"category_id"`
	ID           int         `json:"id"`
}

type cocoCategory struct {
	Supercategory string `json:"supercategory"`
	ID            int    `json:"id"`
	Name          string `json:"name"`
}

type cocoFile struct {
	Info        cocoInfo         `json:"info"`
	Licenses    []cocoLicense    `json:"licenses"`
	Images      []cocoImage      `json:"images"`
	Annotations []cocoAnnotation `json:"annotations"`
	Categories  []cocoCategory   `json:"categories"`
}

// Coco writes annotations/instances_<split>.json
type Coco struct {
	env Env
}

func (c *Coco) Format() Format { return FormatCoco }

func CocoFilename(split string) string {
	return path.Join("annotations", "instances_"+split+".json")
}

func (c *Coco) Emit(ctx context.Context, split string, cats *category.Set, images []dataset.ImageRecord) (Result, error) {
	now := time.Now()
	year := c.env.Year
	if year == 0 {
		year = now.Year()
	}
	doc := cocoFile{
		Info: cocoInfo{
			Description: c.env.Description,
			Version:     "1.0",
			Year:        year,
			DateCreated: now.Format("2006/01/02"),
		},
		Licenses:    []cocoLicense{{ID: 1, Name: "Unknown"}},
		Images:      []cocoImage{},
		Annotations: []cocoAnnotation{},
		Categories:  []cocoCategory{},
	}
	res := Result{}
	annID := 1
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		imageID := i + 1
		doc.Images = append(doc.Images, cocoImage{
			License:  1,
			FileName: img.Filename,
			Height:   img.Height,
			Width:    img.Width,
			ID:       imageID,
		})
		for _, a := range img.Annotations {
			doc.Annotations = append(doc.Annotations, cocoAnnotation{
				Segmentation: [][]float64{},
				Area:         a.Area(),
				ImageID:      imageID,
				BBox:         [4]int{a.Xmin, a.Ymin, a.Width(), a.Height()},
				CategoryID:   a.CategoryID,
				ID:           annID,
			})
			annID++
		}
	}
	for _, cat := range cats.Categories() {
		doc.Categories = append(doc.Categories, cocoCategory{
			Supercategory: Supercategory(cat),
			ID:            cat.ID,
			Name:          cat.Name,
		})
	}
	raw, err := json.Marshal(&doc)
	if err != nil {
		return res, err
	}
	w := writeList{out: c.env.Out}
	if err := w.write(CocoFilename(split), raw); err != nil {
		return res, err
	}
	res.Files = w.files
	res.Images = len(doc.Images)
	res.Objects = len(doc.Annotations)
	return res, nil
}

func (c *Coco) Finish(ctx context.Context, cats *category.Set, splits []string) ([]string, error) {
	return nil, nil
}
