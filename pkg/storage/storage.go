// Package storage is the output sink of a conversion run: a local directory,
// a GCS bucket, or an S3 bucket.
package storage

import (
	"bytes"
	"io"
	"time"
)

// Storage holds the files of one output dataset.
// Names are slash separated, and relative to the dataset root.
type Storage interface {
	// When finished, you must close the WriteCloser
	WriteFile(name string) (io.WriteCloser, error)

	// When finished, you must close File.Reader
	ReadFile(name string) (*File, error)

	DeleteFile(name string) error

	// Describe returns a human readable location, for logs
	Describe(name string) string
}

// File is an open output file
type File struct {
	Reader     io.ReadCloser
	ModifiedAt time.Time
	Size       int64 // -1 if unknown
}

// WriteBytes creates or replaces name
func WriteBytes(s Storage, name string, content []byte) error {
	w, err := s.WriteFile(name)
	if err != nil {
		return err
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ReadFile returns the whole content of name
func ReadFile(s Storage, name string) ([]byte, error) {
	f, err := s.ReadFile(name)
	if err != nil {
		return nil, err
	}
	defer f.Reader.Close()
	buf := bytes.Buffer{}
	if f.Size > 0 {
		buf.Grow(int(f.Size))
	}
	if _, err := buf.ReadFrom(f.Reader); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
