package partition

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/cyclopcam/dsprep/pkg/dataset"
)

const fileListHeader = "Set="

// List is the content of a split file list
type List struct {
	Split string
	Names []string // Base names, without extension
}

// FileListName is the conventional file name of a split's file list
func FileListName(split string) string {
	return split + "_file_list.txt"
}

// WriteFileList writes a "Set=<name>" header line, followed by one base name per line
func WriteFileList(w io.Writer, split string, items []Item) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%v%v\n", fileListHeader, split)
	for _, it := range items {
		fmt.Fprintf(bw, "%v\n", it.Name)
	}
	return bw.Flush()
}

// ReadFileList parses a file list written by WriteFileList
func ReadFileList(r io.Reader) (List, error) {
	l := List{}
	sc := bufio.NewScanner(r)
	first := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if first {
			first = false
			if !strings.HasPrefix(line, fileListHeader) || len(line) == len(fileListHeader) {
				return l, dataset.ConfigErrorf("File list must start with '%v<name>', but starts with '%v'", fileListHeader, line)
			}
			l.Split = line[len(fileListHeader):]
			continue
		}
		if line == "" {
			continue
		}
		l.Names = append(l.Names, dataset.BaseName(line))
	}
	if err := sc.Err(); err != nil {
		return l, err
	}
	if first {
		return l, dataset.ConfigErrorf("File list is empty")
	}
	return l, nil
}
