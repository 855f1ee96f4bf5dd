// Package voc parses Pascal VOC style annotation records, where each object's
// <name> holds the 0-based numeric class id.
package voc

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cyclopcam/dsprep/pkg/dataset"
)

type coord string

func (c coord) int() (int, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(c)), 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

type annotationXML struct {
	XMLName  xml.Name `xml:"annotation"`
	Verified *string  `xml:"verified,attr"`
	Filename string   `xml:"filename"`
	Size     struct {
		Width  coord `xml:"width"`
		Height coord `xml:"height"`
	} `xml:"size"`
	Objects []struct {
		Name   string `xml:"name"`
		BndBox struct {
			XMin coord `xml:"xmin"`
			YMin coord `xml:"ymin"`
			XMax coord `xml:"xmax"`
			YMax coord `xml:"ymax"`
		} `xml:"bndbox"`
	} `xml:"object"`
}

// ParseFile reads one label record
func ParseFile(filename string) (dataset.RawRecord, error) {
	f, err := os.Open(filename)
	if err != nil {
		return dataset.RawRecord{}, fmt.Errorf("Failed to open label record %v: %w", filename, err)
	}
	defer f.Close()
	return Parse(filename, f)
}

// Parse decodes one label record. name is used in errors.
func Parse(name string, r io.Reader) (dataset.RawRecord, error) {
	data := annotationXML{}
	if err := xml.NewDecoder(r).Decode(&data); err != nil {
		return dataset.RawRecord{}, dataset.RecordErrorf(name, 0, "Invalid XML: %w", err)
	}
	rec := dataset.RawRecord{
		Filename: strings.TrimSpace(data.Filename),
		Verified: data.Verified != nil && !strings.EqualFold(*data.Verified, "no"),
	}
	var err error
	if rec.Width, err = data.Size.Width.int(); err != nil {
		return rec, dataset.RecordErrorf(name, 0, "Invalid image width '%v'", data.Size.Width)
	}
	if rec.Height, err = data.Size.Height.int(); err != nil {
		return rec, dataset.RecordErrorf(name, 0, "Invalid image height '%v'", data.Size.Height)
	}
	for i, o := range data.Objects {
		id, err := strconv.Atoi(strings.TrimSpace(o.Name))
		if err != nil {
			return rec, dataset.RecordErrorf(name, 0, "Object %v: class id '%v' is not an integer", i, o.Name)
		}
		obj := dataset.RawObject{RawClassID: id}
		b := o.BndBox
		for _, c := range []struct {
			dst *int
			src coord
		}{
			{&obj.Xmin, b.XMin},
			{&obj.Ymin, b.YMin},
			{&obj.Xmax, b.XMax},
			{&obj.Ymax, b.YMax},
		} {
			if *c.dst, err = c.src.int(); err != nil {
				return rec, dataset.RecordErrorf(name, 0, "Object %v: invalid bounding box coordinate '%v'", i, c.src)
			}
		}
		rec.Objects = append(rec.Objects, obj)
	}
	return rec, nil
}
