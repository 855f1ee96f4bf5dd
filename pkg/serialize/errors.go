package serialize

import "errors"

var (
	errCorruptRecord  = errors.New("TFRecord checksum mismatch")
	errRecordTooLarge = errors.New("TFRecord length exceeds limit")
)
