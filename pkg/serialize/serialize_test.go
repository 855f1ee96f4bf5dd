package serialize

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/dsprep/pkg/category"
	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/storage"
	"github.com/cyclopcam/logs"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func setup(t *testing.T) (Env, *category.Set, string) {
	log := logs.NewTestingLog(t)
	root := t.TempDir()
	out, err := storage.NewStorageFS(log, root)
	require.NoError(t, err)
	set, err := category.NewSet(log, []dataset.Category{
		{ID: 1, Name: "speed limit 30 (prohibitory)"},
		{ID: 2, Name: "stop"},
		{ID: 3, Name: "yield (danger)", Supercategory: "warning"},
	}, category.Selection{})
	require.NoError(t, err)
	require.NoError(t, set.Freeze())
	env := Env{
		Log:            log,
		Out:            out,
		Year:           2024,
		DarknetRelPath: "data/signs",
		DatasetName:    "signs",
		Images: func(split string, img dataset.ImageRecord) ([]byte, error) {
			return []byte("pixels of " + img.Filename), nil
		},
	}
	return env, set, root
}

func testImages() []dataset.ImageRecord {
	return []dataset.ImageRecord{
		{Filename: "a.jpg", Width: 100, Height: 50, Annotations: []dataset.Annotation{
			{CategoryID: 1, Box: dataset.Box{Xmin: 10, Ymin: 5, Xmax: 30, Ymax: 25}},
			{CategoryID: 3, Box: dataset.Box{Xmin: 0, Ymin: 0, Xmax: 100, Ymax: 50}},
		}},
		{Filename: "b.jpg", Width: 200, Height: 200, Annotations: []dataset.Annotation{}},
		{Filename: "c.png", Width: 100, Height: 100, Annotations: []dataset.Annotation{
			{CategoryID: 2, Box: dataset.Box{Xmin: 150, Ymin: 10, Xmax: 200, Ymax: 20}}, // outside the image
		}},
	}
}

func readFile(t *testing.T, root, name string) string {
	b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(b)
}

func TestSupercategory(t *testing.T) {
	require.Equal(t, "prohibitory", Supercategory(dataset.Category{Name: "speed limit 60 (digital) (prohibitory)"}))
	require.Equal(t, "stop", Supercategory(dataset.Category{Name: "stop"}))
	require.Equal(t, "x", Supercategory(dataset.Category{Name: "a (b)", Supercategory: "x"}))
	require.Equal(t, "a ()", Supercategory(dataset.Category{Name: "a ()"}))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("COCO")
	require.NoError(t, err)
	require.Equal(t, FormatCoco, f)
	_, err = ParseFormat("voc")
	var ce *dataset.ConfigError
	require.ErrorAs(t, err, &ce)
}

func TestCoco(t *testing.T) {
	env, set, root := setup(t)
	s, err := New(FormatCoco, env)
	require.NoError(t, err)
	res, err := s.Emit(context.Background(), "val", set, testImages())
	require.NoError(t, err)
	require.Equal(t, []string{"annotations/instances_val.json"}, res.Files)
	require.Equal(t, 3, res.Images)
	require.Equal(t, 3, res.Objects)

	doc := cocoFile{}
	require.NoError(t, json.Unmarshal([]byte(readFile(t, root, "annotations/instances_val.json")), &doc))
	require.Equal(t, 2024, doc.Info.Year)
	require.Equal(t, []int{1, 2, 3}, []int{doc.Images[0].ID, doc.Images[1].ID, doc.Images[2].ID})
	require.Equal(t, "c.png", doc.Images[2].FileName)
	require.Len(t, doc.Annotations, 3)
	require.Equal(t, [4]int{10, 5, 20, 20}, doc.Annotations[0].BBox)
	require.Equal(t, 400, doc.Annotations[0].Area)
	require.Equal(t, 1, doc.Annotations[0].ImageID)
	require.Equal(t, 3, doc.Annotations[2].ID)
	require.Equal(t, 3, doc.Annotations[2].ImageID)
	require.Equal(t, []cocoCategory{
		{Supercategory: "prohibitory", ID: 1, Name: "speed limit 30 (prohibitory)"},
		{Supercategory: "stop", ID: 2, Name: "stop"},
		{Supercategory: "warning", ID: 3, Name: "yield (danger)"},
	}, doc.Categories)
}

func TestCsv(t *testing.T) {
	env, set, root := setup(t)
	s, err := New(FormatCsv, env)
	require.NoError(t, err)
	res, err := s.Emit(context.Background(), "train", set, testImages())
	require.NoError(t, err)
	require.Equal(t, 3, res.Objects)
	expect := "filename,width,height,class,xmin,ymin,xmax,ymax\n" +
		"a.jpg,100,50,1,10,5,30,25\n" +
		"a.jpg,100,50,3,0,0,100,50\n" +
		"c.png,100,100,2,150,10,200,20\n"
	if diff := cmp.Diff(expect, readFile(t, root, "train_labels.csv")); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestDarknet(t *testing.T) {
	env, set, root := setup(t)
	s, err := New(FormatDarknet, env)
	require.NoError(t, err)
	res, err := s.Emit(context.Background(), "train", set, testImages())
	require.NoError(t, err)
	require.Equal(t, 2, res.Objects)
	require.Len(t, res.Skipped, 1)
	require.Equal(t, "x", res.Skipped[0].Field)
	require.Equal(t, 2, res.Skipped[0].ClassID)
	require.Equal(t, "train/c.txt", res.Skipped[0].File)

	require.Equal(t, "0 0.200000 0.300000 0.200000 0.400000\n2 0.500000 0.500000 1.000000 1.000000\n", readFile(t, root, "train/a.txt"))
	require.Equal(t, "", readFile(t, root, "train/b.txt"))
	require.Equal(t, "", readFile(t, root, "train/c.txt"))
	require.Equal(t, "data/signs/train/a.jpg\ndata/signs/train/b.jpg\ndata/signs/train/c.png\n", readFile(t, root, "train.txt"))

	files, err := s.Finish(context.Background(), set, []string{"train", "val"})
	require.NoError(t, err)
	require.Equal(t, []string{"signs.data", "signs.names"}, files)
	require.Equal(t, "classes = 3\ntrain = data/signs/train.txt\nvalid = data/signs/val.txt\nnames = data/signs/signs.names\nbackup = backup/signs\n", readFile(t, root, "signs.data"))
	require.Equal(t, "speed limit 30 (prohibitory)\nstop\nyield (danger)\n", readFile(t, root, "signs.names"))
}

func TestDarknetLineBounds(t *testing.T) {
	a := dataset.Annotation{CategoryID: 1, Box: dataset.Box{Xmin: 0, Ymin: 0, Xmax: 10, Ymax: 10}}
	line, skip := DarknetLine(0, a, 10, 10)
	require.Nil(t, skip)
	require.Equal(t, "0 0.500000 0.500000 1.000000 1.000000\n", line)

	// Wider than the image
	_, skip = DarknetLine(0, a, 5, 10)
	require.NotNil(t, skip)
	require.Equal(t, "w", skip.Field)

	// Centered on the top edge
	a.Box = dataset.Box{Xmin: 2, Ymin: -4, Xmax: 4, Ymax: 0}
	_, skip = DarknetLine(0, a, 10, 10)
	require.NotNil(t, skip)
	require.Equal(t, "y", skip.Field)
}

func TestTFRecordFraming(t *testing.T) {
	buf := bytes.Buffer{}
	require.NoError(t, WriteTFRecord(&buf, []byte("first")))
	require.NoError(t, WriteTFRecord(&buf, []byte{}))
	raw := clone(buf.Bytes())

	r := bytes.NewReader(raw)
	a, err := ReadTFRecord(r)
	require.NoError(t, err)
	require.Equal(t, "first", string(a))
	b, err := ReadTFRecord(r)
	require.NoError(t, err)
	require.Empty(t, b)
	_, err = ReadTFRecord(r)
	require.ErrorIs(t, err, io.EOF)

	// Flip a data byte
	raw[13] ^= 0xff
	_, err = ReadTFRecord(bytes.NewReader(raw))
	require.ErrorIs(t, err, errCorruptRecord)
}

func tfrecordHeader(n uint64) []byte {
	hdr := make([]byte, 12)
	binary.LittleEndian.PutUint64(hdr[0:8], n)
	binary.LittleEndian.PutUint32(hdr[8:12], maskedCRC(hdr[0:8]))
	return hdr
}

func TestTFRecordLengthLimit(t *testing.T) {
	// A valid header claiming a huge record
	_, err := ReadTFRecord(bytes.NewReader(tfrecordHeader(1 << 40)))
	require.ErrorIs(t, err, errRecordTooLarge)

	// A truncated record is reported without allocating the claimed length
	raw := append(tfrecordHeader(MaxTFRecordSize), []byte("short")...)
	_, err = ReadTFRecord(bytes.NewReader(raw))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func clone(b []byte) []byte {
	return append([]byte{}, b...)
}

// decodeFeatures returns the feature keys of an encoded Example, and the
// raw Feature message of each
func f32(bits uint32) float32 {
	return math.Float32frombits(bits)
}

func decodeFeatures(t *testing.T, ex []byte) map[string][]byte {
	num, typ, n := protowire.ConsumeTag(ex)
	require.Equal(t, exampleFeatures, num)
	require.Equal(t, protowire.BytesType, typ)
	features, m := protowire.ConsumeBytes(ex[n:])
	require.Greater(t, m, 0)
	r := map[string][]byte{}
	for len(features) > 0 {
		_, _, n := protowire.ConsumeTag(features)
		kv, m := protowire.ConsumeBytes(features[n:])
		features = features[n+m:]
		var key string
		var val []byte
		for len(kv) > 0 {
			num, _, n := protowire.ConsumeTag(kv)
			b, m := protowire.ConsumeBytes(kv[n:])
			kv = kv[n+m:]
			if num == mapKey {
				key = string(b)
			} else {
				val = b
			}
		}
		r[key] = val
	}
	return r
}

func TestRecord(t *testing.T) {
	env, set, root := setup(t)
	s, err := New(FormatRecord, env)
	require.NoError(t, err)
	images := testImages()
	res, err := s.Emit(context.Background(), "train", set, images)
	require.NoError(t, err)
	require.Equal(t, 3, res.Images)

	f, err := os.Open(filepath.Join(root, "train.record"))
	require.NoError(t, err)
	defer f.Close()
	n := 0
	for {
		ex, err := ReadTFRecord(f)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		features := decodeFeatures(t, ex)
		require.Contains(t, features, "image/encoded")
		require.Contains(t, features, "image/object/bbox/xmin")
		require.Contains(t, features, "image/object/class/label")
		require.Len(t, features, 12)
		n++
	}
	require.Equal(t, 3, n)

	files, err := s.Finish(context.Background(), set, []string{"train"})
	require.NoError(t, err)
	require.Equal(t, []string{LabelMapPbtxt}, files)
	require.Contains(t, readFile(t, root, LabelMapPbtxt), "item {\n    id: 2\n    name: 'stop'\n}\n")
}

func TestBuildExampleValues(t *testing.T) {
	_, set, _ := setup(t)
	img := testImages()[0]
	ex, err := BuildExample(img, []byte{1, 2, 3}, set)
	require.NoError(t, err)
	features := decodeFeatures(t, ex)

	// float_list { value: [0.1, 0.0] } packed
	num, _, n := protowire.ConsumeTag(features["image/object/bbox/xmin"])
	require.Equal(t, featureFloatList, num)
	list, _ := protowire.ConsumeBytes(features["image/object/bbox/xmin"][n:])
	_, _, n = protowire.ConsumeTag(list)
	packed, _ := protowire.ConsumeBytes(list[n:])
	require.Len(t, packed, 8)
	v, _ := protowire.ConsumeFixed32(packed)
	require.InDelta(t, 0.1, float64(f32(v)), 1e-6)

	_, err = BuildExample(dataset.ImageRecord{Filename: "x.jpg"}, nil, set)
	var de *dataset.DataMismatchError
	require.ErrorAs(t, err, &de)
}
