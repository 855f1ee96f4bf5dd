package category

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cyclopcam/dsprep/pkg/dataset"
)

// LabelMap is the on-disk form of a category list.
// Ids in a source label map are 0-based.
type LabelMap struct {
	Classes []dataset.Category `json:"classes"`
}

// Load reads a label map file, and returns its categories with 1-based ids
func Load(filename string) ([]dataset.Category, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, dataset.ConfigErrorf("Failed to read label map %v: %w", filename, err)
	}
	cats, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("Label map %v: %w", filename, err)
	}
	return cats, nil
}

// Parse decodes a label map, shifting every id by +1
func Parse(raw []byte) ([]dataset.Category, error) {
	lm := LabelMap{}
	if err := json.Unmarshal(raw, &lm); err != nil {
		return nil, dataset.ConfigErrorf("Invalid label map JSON: %w", err)
	}
	seen := map[int]string{}
	cats := make([]dataset.Category, 0, len(lm.Classes))
	for _, c := range lm.Classes {
		if c.ID < 0 {
			return nil, dataset.ConfigErrorf("Negative category id %v (%v)", c.ID, c.Name)
		}
		if other, ok := seen[c.ID]; ok {
			return nil, dataset.ConfigErrorf("Category id %v is used by both '%v' and '%v'", c.ID, other, c.Name)
		}
		seen[c.ID] = c.Name
		c.ID++
		cats = append(cats, c)
	}
	return cats, nil
}

// Marshal encodes categories in label map form. Ids are written as they are.
func Marshal(cats []dataset.Category) ([]byte, error) {
	return json.MarshalIndent(LabelMap{Classes: cats}, "", "    ")
}
