package imagecopy

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/dsprep/pkg/storage"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 16), G: uint8(y * 32), B: 200, A: 255})
		}
	}
	buf := bytes.Buffer{}
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSameType(t *testing.T) {
	require.True(t, SameType(".jpg", ".JPEG"))
	require.True(t, SameType(".png", ".PNG"))
	require.False(t, SameType(".png", ".jpg"))
}

func TestConvertRoundTrip(t *testing.T) {
	src := testPNG(t)
	same, err := Convert(src, ".png", ".PNG", 90)
	require.NoError(t, err)
	require.Equal(t, src, same)

	jpg, err := Convert(src, ".png", ".jpg", 90)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(jpg))
	require.NoError(t, err)
	require.Equal(t, 16, img.Bounds().Dx())
	require.Equal(t, 8, img.Bounds().Dy())

	back, err := Convert(jpg, ".jpg", ".png", 90)
	require.NoError(t, err)
	img, err = png.Decode(bytes.NewReader(back))
	require.NoError(t, err)
	require.Equal(t, 16, img.Bounds().Dx())

	_, err = Convert(src, ".bmp", ".jpg", 90)
	require.Error(t, err)
}

func TestCopier(t *testing.T) {
	log := logs.NewTestingLog(t)
	srcDir := t.TempDir()
	outDir := t.TempDir()
	out, err := storage.NewStorageFS(log, outDir)
	require.NoError(t, err)

	jobs := []Job{}
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		fn := filepath.Join(srcDir, name+".png")
		require.NoError(t, os.WriteFile(fn, testPNG(t), 0644))
		jobs = append(jobs, Job{Src: fn, Dest: "train/" + name + ".jpg"})
	}
	c := NewCopier(log, out, Options{Workers: 3})
	require.NoError(t, c.Run(context.Background(), jobs))
	for _, j := range jobs {
		b, err := storage.ReadFile(out, j.Dest)
		require.NoError(t, err)
		_, err = jpeg.Decode(bytes.NewReader(b))
		require.NoError(t, err)
	}

	jobs = append(jobs, Job{Src: filepath.Join(srcDir, "missing.png"), Dest: "train/missing.jpg"})
	require.Error(t, c.Run(context.Background(), jobs))
}
