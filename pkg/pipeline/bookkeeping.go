package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cyclopcam/dsprep/pkg/category"
	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/labelstats"
	"github.com/cyclopcam/dsprep/pkg/ledger"
	"github.com/cyclopcam/dsprep/pkg/partition"
	"github.com/cyclopcam/dsprep/pkg/storage"
)

// Bookkeeping files written next to the serializer output
const (
	LabelMapFile        = "label_map.json"
	IDMappingFile       = "label_id_mapping.json"
	ExcludedClassesFile = "excluded_classes.txt"
	IncludedClassesFile = "included_classes.txt"
	DistributionFile    = "class_distribution.csv"
)

type idMapping struct {
	OldToNew map[int]int `json:"old_id_to_new_id"`
}

// classList renders "<id>\t: <name>" lines
func classList(cats []dataset.Category) []byte {
	buf := bytes.Buffer{}
	for _, c := range cats {
		fmt.Fprintf(&buf, "%v\t: %v\n", c.ID, c.Name)
	}
	return buf.Bytes()
}

func writeBookkeeping(out storage.Storage, dc *DatasetContext, report *ledger.Report) ([]string, error) {
	files := []string{}
	write := func(name string, content []byte) error {
		if err := storage.WriteBytes(out, name, content); err != nil {
			return fmt.Errorf("Failed to write %v: %w", out.Describe(name), err)
		}
		files = append(files, name)
		return nil
	}

	labelMap, err := category.Marshal(dc.Categories.Categories())
	if err != nil {
		return nil, err
	}
	if err := write(LabelMapFile, labelMap); err != nil {
		return nil, err
	}
	mapping, err := json.MarshalIndent(idMapping{OldToNew: dc.Categories.Table()}, "", "    ")
	if err != nil {
		return nil, err
	}
	if err := write(IDMappingFile, mapping); err != nil {
		return nil, err
	}
	if excluded := dc.Categories.ExcludedList(); len(excluded) != 0 {
		if err := write(ExcludedClassesFile, classList(excluded)); err != nil {
			return nil, err
		}
	}
	if err := write(IncludedClassesFile, classList(dc.Categories.IncludedList())); err != nil {
		return nil, err
	}
	for _, split := range dc.Assignment.Names() {
		buf := bytes.Buffer{}
		if err := partition.WriteFileList(&buf, split, dc.Assignment.Items(split)); err != nil {
			return nil, err
		}
		if err := write(partition.FileListName(split), buf.Bytes()); err != nil {
			return nil, err
		}
	}
	cats := dc.Categories.Categories()
	for _, split := range dc.Assignment.Names() {
		images := []dataset.ImageRecord{}
		for _, r := range dc.Records[split] {
			images = append(images, r.Image)
		}
		st := labelstats.Compute(split, cats, images)
		general := bytes.Buffer{}
		if err := st.WriteGeneralCSV(&general); err != nil {
			return nil, err
		}
		if err := write(labelstats.GeneralFile(split), general.Bytes()); err != nil {
			return nil, err
		}
		classes := bytes.Buffer{}
		if err := st.WriteClassCSV(&classes); err != nil {
			return nil, err
		}
		if err := write(labelstats.ClassFile(split), classes.Bytes()); err != nil {
			return nil, err
		}
	}
	dist := bytes.Buffer{}
	if err := report.WriteCSV(&dist); err != nil {
		return nil, err
	}
	if err := write(DistributionFile, dist.Bytes()); err != nil {
		return nil, err
	}
	return files, nil
}
