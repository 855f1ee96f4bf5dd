package serialize

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

var crc32c = crc32.MakeTable(crc32.Castagnoli)

func maskedCRC(b []byte) uint32 {
	crc := crc32.Checksum(b, crc32c)
	return ((crc >> 15) | (crc << 17)) + 0xa282ead8
}

// WriteTFRecord frames one record: length, masked CRC32C of the length,
// data, masked CRC32C of the data.
func WriteTFRecord(w io.Writer, data []byte) error {
	hdr := make([]byte, 12)
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(hdr[8:12], maskedCRC(hdr[0:8]))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	footer := make([]byte, 4)
	binary.LittleEndian.PutUint32(footer, maskedCRC(data))
	_, err := w.Write(footer)
	return err
}

// MaxTFRecordSize is the largest record length ReadTFRecord accepts
const MaxTFRecordSize = 1 << 30

// ReadTFRecord reads one framed record, and verifies both checksums.
// Returns io.EOF at the end of the stream.
func ReadTFRecord(r io.Reader) ([]byte, error) {
	hdr := make([]byte, 12)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(hdr[8:12]) != maskedCRC(hdr[0:8]) {
		return nil, errCorruptRecord
	}
	n := binary.LittleEndian.Uint64(hdr[0:8])
	if n > MaxTFRecordSize {
		return nil, errRecordTooLarge
	}
	// Grow with the stream rather than trusting n up front
	buf := bytes.Buffer{}
	if _, err := io.CopyN(&buf, r, int64(n)); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	data := buf.Bytes()
	footer := make([]byte, 4)
	if _, err := io.ReadFull(r, footer); err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(footer) != maskedCRC(data) {
		return nil, errCorruptRecord
	}
	return data, nil
}

// Field numbers of tensorflow/core/example/{example,feature}.proto
const (
	exampleFeatures  protowire.Number = 1
	featuresFeature  protowire.Number = 1
	mapKey           protowire.Number = 1
	mapValue         protowire.Number = 2
	featureBytesList protowire.Number = 1
	featureFloatList protowire.Number = 2
	featureInt64List protowire.Number = 3
	listValue        protowire.Number = 1
)

// Example is a tf.train.Example under construction
type Example struct {
	bytes  map[string][][]byte
	floats map[string][]float32
	ints   map[string][]int64
}

func NewExample() *Example {
	return &Example{
		bytes:  map[string][][]byte{},
		floats: map[string][]float32{},
		ints:   map[string][]int64{},
	}
}

func (e *Example) Bytes(key string, v ...[]byte) { e.bytes[key] = append(e.bytes[key], v...) }

func (e *Example) Floats(key string, v ...float32) { e.floats[key] = append(e.floats[key], v...) }

func (e *Example) Int64s(key string, v ...int64) { e.ints[key] = append(e.ints[key], v...) }

func (e *Example) String(key string, v ...string) {
	for _, s := range v {
		e.bytes[key] = append(e.bytes[key], []byte(s))
	}
}

// Marshal encodes the example. Features are written in key order.
func (e *Example) Marshal() []byte {
	type entry struct {
		key     string
		feature []byte
	}
	entries := []entry{}
	for k, v := range e.bytes {
		var list []byte
		for _, b := range v {
			list = protowire.AppendTag(list, listValue, protowire.BytesType)
			list = protowire.AppendBytes(list, b)
		}
		entries = append(entries, entry{k, wrap(featureBytesList, list)})
	}
	for k, v := range e.floats {
		var packed []byte
		for _, f := range v {
			packed = protowire.AppendFixed32(packed, math.Float32bits(f))
		}
		entries = append(entries, entry{k, wrap(featureFloatList, wrap(listValue, packed))})
	}
	for k, v := range e.ints {
		var packed []byte
		for _, i := range v {
			packed = protowire.AppendVarint(packed, uint64(i))
		}
		entries = append(entries, entry{k, wrap(featureInt64List, wrap(listValue, packed))})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	var features []byte
	for _, en := range entries {
		var kv []byte
		kv = protowire.AppendTag(kv, mapKey, protowire.BytesType)
		kv = protowire.AppendString(kv, en.key)
		kv = protowire.AppendTag(kv, mapValue, protowire.BytesType)
		kv = protowire.AppendBytes(kv, en.feature)
		features = protowire.AppendTag(features, featuresFeature, protowire.BytesType)
		features = protowire.AppendBytes(features, kv)
	}
	return wrap(exampleFeatures, features)
}

// wrap encodes msg as a length delimited field
func wrap(num protowire.Number, msg []byte) []byte {
	b := protowire.AppendTag(nil, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
