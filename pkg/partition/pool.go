package partition

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/gen"
)

// maximum number of mismatched names quoted in an error
const maxMismatchReport = 10

// Pairs lists imageDir and labelDir, and pairs every image with its label
// record by base name. Items are in directory listing order (sorted by name).
// Extensions are matched case insensitively, and must include the dot.
func Pairs(imageDir, imageExt, labelDir, labelExt string) ([]Item, error) {
	images, err := listByBase(imageDir, imageExt)
	if err != nil {
		return nil, err
	}
	labels, err := listByBase(labelDir, labelExt)
	if err != nil {
		return nil, err
	}
	missing := []string{}
	for base := range images {
		if _, ok := labels[base]; !ok {
			missing = append(missing, "label for "+base)
		}
	}
	for base := range labels {
		if _, ok := images[base]; !ok {
			missing = append(missing, "image for "+base)
		}
	}
	if len(missing) != 0 {
		n := len(missing)
		slices.Sort(missing)
		if len(missing) > maxMismatchReport {
			missing = missing[:maxMismatchReport]
		}
		return nil, dataset.DataMismatchErrorf("Images in %v and labels in %v do not match (%v differences): missing %v", imageDir, labelDir, n, strings.Join(missing, ", "))
	}
	pool := make([]Item, 0, len(images))
	for _, base := range gen.SortedKeys(images) {
		pool = append(pool, Item{
			Name:  base,
			Image: images[base],
			Label: labels[base],
		})
	}
	return pool, nil
}

func listByBase(dir, ext string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, dataset.ConfigErrorf("Failed to list %v: %w", dir, err)
	}
	r := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		r[dataset.BaseName(e.Name())] = filepath.Join(dir, e.Name())
	}
	return r, nil
}
