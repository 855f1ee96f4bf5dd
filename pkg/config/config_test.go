package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/partition"
	"github.com/cyclopcam/dsprep/pkg/serialize"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	fn := filepath.Join(t.TempDir(), "job.json")
	require.NoError(t, os.WriteFile(fn, []byte(content), 0644))
	return fn
}

func valid() *Config {
	c := &Config{
		ImagePath:     "images",
		LabelMap:      "label_map.json",
		TargetFormats: []string{"coco"},
		Output:        OutputConfig{Filesystem: &OutputConfigFS{Root: "out"}},
	}
	c.SetDefaults()
	return c
}

func requireConfigError(t *testing.T, err error) {
	var ce *dataset.ConfigError
	require.Error(t, err)
	require.True(t, errors.As(err, &ce), "expected ConfigError, got %v", err)
}

func TestLoad(t *testing.T) {
	fn := writeConfig(t, `{
		"imagePath": "/data/images",
		"labelMap": "/data/label_map.json",
		"imageSrcType": "png",
		"targetFormats": ["coco", "Darknet", "coco"],
		"sets": [{"name": "train", "weight": 0.8}, {"name": "test", "weight": 0.2}],
		"excludeArea": 12,
		"output": {"s3": {"bucket": "ds", "region": "us-east-1"}}
	}`)
	c, err := Load(fn)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	require.Equal(t, "/data/images", c.LabelPath)
	require.Equal(t, ".png", c.ImageSrcType)
	require.Equal(t, ".png", c.ImageDestType)
	require.Equal(t, []partition.Split{{Name: "train", Weight: 0.8}, {Name: "test", Weight: 0.2}}, c.Sets)
	require.Equal(t, 12.0, *c.ExcludeArea)
	require.Equal(t, "ds", c.Output.S3.Bucket)
	formats, err := c.Formats()
	require.NoError(t, err)
	require.Equal(t, []serialize.Format{serialize.FormatCoco, serialize.FormatDarknet}, formats)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	requireConfigError(t, err)
	_, err = Load(writeConfig(t, `{"imagePath": `))
	requireConfigError(t, err)
}

func TestDefaults(t *testing.T) {
	c := valid()
	require.NoError(t, c.Validate())
	require.Equal(t, ".jpg", c.ImageDestType)
	require.Len(t, c.Sets, 2)
	require.Equal(t, "dataset", c.DatasetName)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"both lists":      func(c *Config) { c.Exclude = []int{1}; c.Include = []int{2} },
		"zero area":       func(c *Config) { area := 0.0; c.ExcludeArea = &area },
		"unknown format":  func(c *Config) { c.TargetFormats = []string{"voc"} },
		"no format":       func(c *Config) { c.TargetFormats = nil },
		"duplicate split": func(c *Config) { c.Sets = []partition.Split{{Name: "a", Weight: 1}, {Name: "a", Weight: 1}} },
		"no output":       func(c *Config) { c.Output = OutputConfig{} },
		"two outputs":     func(c *Config) { c.Output.GCS = &OutputConfigGCS{Bucket: "b"} },
		"remap key only":  func(c *Config) { c.RemapKey = "signs" },
		"no label map":    func(c *Config) { c.LabelMap = "" },
		"bad iou":         func(c *Config) { c.DuplicateIoU = 1.5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			requireConfigError(t, c.Validate())
		})
	}
}

func TestFileListsSkipSplitValidation(t *testing.T) {
	c := valid()
	c.Sets = nil
	c.FileLists = []string{"train_file_list.txt"}
	require.NoError(t, c.Validate())
}
