package dataset

import (
	"errors"
	"fmt"
)

// ConfigError is raised before any dataset I/O when the job configuration,
// the label map or the remap rules are inconsistent.
type ConfigError struct {
	err error
}

func (e *ConfigError) Error() string { return e.err.Error() }
func (e *ConfigError) Unwrap() error { return errors.Unwrap(e.err) }

// ConfigErrorf formats like fmt.Errorf, and supports %w
func ConfigErrorf(format string, args ...any) error {
	return &ConfigError{err: fmt.Errorf(format, args...)}
}

// DataMismatchError is raised when the images and the label records do not
// agree, or when a record contains an impossible bounding box.
type DataMismatchError struct {
	err error
}

func (e *DataMismatchError) Error() string { return e.err.Error() }
func (e *DataMismatchError) Unwrap() error { return errors.Unwrap(e.err) }

func DataMismatchErrorf(format string, args ...any) error {
	return &DataMismatchError{err: fmt.Errorf(format, args...)}
}

// RecordError is raised while reading a label record that cannot be
// resolved against the final category set.
type RecordError struct {
	File    string
	ClassID int // Resolved id. Zero when the record itself is malformed.
	err     error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%v: %v", e.File, e.err.Error())
}

func (e *RecordError) Unwrap() error { return errors.Unwrap(e.err) }

func RecordErrorf(file string, classID int, format string, args ...any) error {
	return &RecordError{File: file, ClassID: classID, err: fmt.Errorf(format, args...)}
}

// IsFatal returns true if err belongs to the error taxonomy that must abort a run
func IsFatal(err error) bool {
	var ce *ConfigError
	var de *DataMismatchError
	var re *RecordError
	return errors.As(err, &ce) || errors.As(err, &de) || errors.As(err, &re)
}
