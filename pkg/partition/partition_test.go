package partition

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/stretchr/testify/require"
)

func makePool(n int) []Item {
	pool := make([]Item, n)
	for i := range pool {
		name := fmt.Sprintf("img%03d", i)
		pool[i] = Item{Name: name, Image: name + ".jpg", Label: name + ".xml"}
	}
	return pool
}

func TestCounts(t *testing.T) {
	trainVal := []Split{{"train", 0.9}, {"val", 0.1}}
	c, err := Counts(10, trainVal)
	require.NoError(t, err)
	require.Equal(t, []int{9, 1}, c)

	c, err = Counts(7, trainVal)
	require.NoError(t, err)
	require.Equal(t, []int{7, 0}, c)

	c, err = Counts(0, trainVal)
	require.NoError(t, err)
	require.Equal(t, []int{0, 0}, c)
}

func TestCountsSum(t *testing.T) {
	weightSets := [][]float64{
		{0.9, 0.1},
		{70, 20, 10},
		{1, 1, 1},
		{0.33, 0.33, 0.34},
		{5, 0, 3},
		{1},
	}
	for _, weights := range weightSets {
		splits := []Split{}
		total := 0.0
		for i, w := range weights {
			splits = append(splits, Split{Name: fmt.Sprintf("s%v", i), Weight: w})
			total += w
		}
		for n := 0; n < 200; n++ {
			counts, err := Counts(n, splits)
			require.NoError(t, err)
			sum := 0
			for i, c := range counts {
				sum += c
				if i != 0 {
					require.Equal(t, int(math.Floor(float64(n)*weights[i]/total)), c)
				}
			}
			require.Equal(t, n, sum)
		}
	}
}

func TestInvalidSplits(t *testing.T) {
	bad := [][]Split{
		{},
		{{"train", 0}, {"val", 0}},
		{{"train", 1}, {"train", 1}},
		{{"", 1}},
		{{"train", -1}, {"val", 2}},
		{{"train", math.NaN()}},
	}
	for _, splits := range bad {
		_, err := Counts(10, splits)
		var ce *dataset.ConfigError
		require.ErrorAs(t, err, &ce, "%v", splits)
	}
}

func TestPartitionTailOrder(t *testing.T) {
	pool := makePool(10)
	a, err := Partition(pool, []Split{{"train", 7}, {"val", 3}}, Options{})
	require.NoError(t, err)
	require.Equal(t, uint64(0), a.Seed)
	train := a.Items("train")
	val := a.Items("val")
	require.Len(t, train, 7)
	require.Len(t, val, 3)
	// The first split consumes from the tail of the pool
	require.Equal(t, "img009", train[0].Name)
	require.Equal(t, "img003", train[6].Name)
	require.Equal(t, []Item{pool[2], pool[1], pool[0]}, val)
	require.Equal(t, 10, a.Len())
	require.InDelta(t, 70.0, a.WeightPercent("train"), 1e-9)
	require.Equal(t, []string{"train", "val"}, a.Names())

	// Pool is untouched
	require.Equal(t, makePool(10), pool)
}

func TestPartitionShuffleKeepsPairs(t *testing.T) {
	pool := makePool(101)
	splits := []Split{{"train", 8}, {"val", 1}, {"test", 1}}
	a, err := Partition(pool, splits, Options{Shuffle: true, Seed: 42})
	require.NoError(t, err)
	require.Equal(t, uint64(42), a.Seed)

	seen := map[string]bool{}
	for _, s := range a.Names() {
		for _, it := range a.Items(s) {
			require.Equal(t, it.Name+".jpg", it.Image)
			require.Equal(t, it.Name+".xml", it.Label)
			require.False(t, seen[it.Name])
			seen[it.Name] = true
		}
	}
	require.Len(t, seen, 101)

	// Same seed, same assignment
	b, err := Partition(pool, splits, Options{Shuffle: true, Seed: 42})
	require.NoError(t, err)
	require.Equal(t, a.Items("val"), b.Items("val"))

	// Random seed is recorded, and reproduces the assignment
	c, err := Partition(pool, splits, Options{Shuffle: true})
	require.NoError(t, err)
	require.NotEqual(t, uint64(0), c.Seed)
	d, err := Partition(pool, splits, Options{Shuffle: true, Seed: c.Seed})
	require.NoError(t, err)
	require.Equal(t, c.Items("train"), d.Items("train"))
}

func TestFileListRoundTrip(t *testing.T) {
	pool := makePool(5)
	buf := bytes.Buffer{}
	require.NoError(t, WriteFileList(&buf, "val", pool[1:3]))
	require.Equal(t, "Set=val\nimg001\nimg002\n", buf.String())

	l, err := ReadFileList(&buf)
	require.NoError(t, err)
	require.Equal(t, List{Split: "val", Names: []string{"img001", "img002"}}, l)

	_, err = ReadFileList(bytes.NewBufferString("img001\n"))
	require.Error(t, err)
	_, err = ReadFileList(bytes.NewBufferString(""))
	require.Error(t, err)

	// Names with extensions are accepted
	l, err = ReadFileList(bytes.NewBufferString("Set=train\nimg000.jpg\n\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"img000"}, l.Names)
}

func TestFromLists(t *testing.T) {
	pool := makePool(5)
	a, err := FromLists(pool, []List{
		{Split: "train", Names: []string{"img000", "img001", "img002"}},
		{Split: "val", Names: []string{"img004"}},
	})
	require.NoError(t, err)
	require.Equal(t, []Item{pool[4]}, a.Items("val"))
	require.Equal(t, 4, a.Len())
	require.InDelta(t, 75.0, a.WeightPercent("train"), 1e-9)

	_, err = FromLists(pool, []List{{Split: "train", Names: []string{"nope"}}})
	var de *dataset.DataMismatchError
	require.ErrorAs(t, err, &de)

	_, err = FromLists(pool, []List{{Split: "train", Names: []string{"img000"}}, {Split: "val", Names: []string{"img000"}}})
	require.ErrorAs(t, err, &de)
}

func TestPairs(t *testing.T) {
	root := t.TempDir()
	images := filepath.Join(root, "images")
	labels := filepath.Join(root, "labels")
	require.NoError(t, os.MkdirAll(images, 0755))
	require.NoError(t, os.MkdirAll(labels, 0755))
	for _, n := range []string{"b", "a", "c"} {
		require.NoError(t, os.WriteFile(filepath.Join(images, n+".PNG"), nil, 0644))
		require.NoError(t, os.WriteFile(filepath.Join(labels, n+".xml"), nil, 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(images, "notes.txt"), nil, 0644))

	pool, err := Pairs(images, ".png", labels, ".xml")
	require.NoError(t, err)
	require.Len(t, pool, 3)
	require.Equal(t, "a", pool[0].Name)
	require.Equal(t, filepath.Join(images, "a.PNG"), pool[0].Image)
	require.Equal(t, filepath.Join(labels, "a.xml"), pool[0].Label)

	require.NoError(t, os.WriteFile(filepath.Join(labels, "d.xml"), nil, 0644))
	_, err = Pairs(images, ".png", labels, ".xml")
	var de *dataset.DataMismatchError
	require.ErrorAs(t, err, &de)
	require.Contains(t, err.Error(), "image for d")
}
