// Package imagecopy copies the images of a split into the output, converting
// between png and jpeg where needed.
package imagecopy

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/storage"
	"github.com/cyclopcam/logs"
	"golang.org/x/sync/errgroup"
)

// Job copies Src (a local file) to Dest (a name in the output storage)
type Job struct {
	Src  string
	Dest string
}

type Options struct {
	Workers int // Defaults to 1
	Quality int // JPEG quality. Defaults to 95.
}

// Copier writes images into an output storage
type Copier struct {
	log logs.Log
	out storage.Storage
	opt Options
}

func NewCopier(log logs.Log, out storage.Storage, opt Options) *Copier {
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	if opt.Quality <= 0 {
		opt.Quality = 95
	}
	return &Copier{
		log: log,
		out: out,
		opt: opt,
	}
}

// Run executes the jobs in parallel. The first failure cancels the rest.
func (c *Copier) Run(ctx context.Context, jobs []Job) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opt.Workers)
	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return c.copy(j)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.log.Infof("Copied %v images", len(jobs))
	return nil
}

func (c *Copier) copy(j Job) error {
	src, err := os.ReadFile(j.Src)
	if err != nil {
		return fmt.Errorf("Failed to read image %v: %w", j.Src, err)
	}
	dst, err := Convert(src, filepath.Ext(j.Src), filepath.Ext(j.Dest), c.opt.Quality)
	if err != nil {
		return fmt.Errorf("Failed to convert %v: %w", j.Src, err)
	}
	return storage.WriteBytes(c.out, j.Dest, dst)
}

// IsJPEG returns true for .jpg and .jpeg
func IsJPEG(ext string) bool {
	ext = strings.ToLower(ext)
	return ext == ".jpg" || ext == ".jpeg"
}

func IsPNG(ext string) bool {
	return strings.ToLower(ext) == ".png"
}

// SameType returns true if no conversion is needed between the two extensions
func SameType(a, b string) bool {
	return strings.EqualFold(a, b) || (IsJPEG(a) && IsJPEG(b))
}

// Convert re-encodes an image from srcExt to dstExt.
// If both are the same type, src is returned as is.
func Convert(src []byte, srcExt, dstExt string, quality int) ([]byte, error) {
	if SameType(srcExt, dstExt) {
		return src, nil
	}
	var img image.Image
	var err error
	switch {
	case IsPNG(srcExt):
		img, err = png.Decode(bytes.NewReader(src))
	case IsJPEG(srcExt):
		img, err = jpeg.Decode(bytes.NewReader(src))
	default:
		return nil, dataset.ConfigErrorf("Unsupported image type '%v'", srcExt)
	}
	if err != nil {
		return nil, err
	}
	switch {
	case IsJPEG(dstExt):
		return cimg.Compress(toRGB(img), cimg.MakeCompressParams(cimg.Sampling420, quality, 0))
	case IsPNG(dstExt):
		buf := bytes.Buffer{}
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, dataset.ConfigErrorf("Unsupported image type '%v'", dstExt)
}

// toRGB flattens img onto a packed RGB image. Alpha is dropped.
func toRGB(img image.Image) *cimg.Image {
	b := img.Bounds()
	dst := cimg.NewImage(b.Dx(), b.Dy(), cimg.PixelFormatRGB)
	for y := 0; y < b.Dy(); y++ {
		row := dst.Pixels[y*dst.Stride:]
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			row[x*3] = uint8(r >> 8)
			row[x*3+1] = uint8(g >> 8)
			row[x*3+2] = uint8(bl >> 8)
		}
	}
	return dst
}
