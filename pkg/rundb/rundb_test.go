package rundb

import (
	"path/filepath"
	"testing"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *RunDB {
	db, err := Open(logs.NewTestingLog(t), filepath.Join(t.TempDir(), "runs.sqlite"))
	require.NoError(t, err)
	return db
}

func TestSaveAndList(t *testing.T) {
	db := setup(t)
	run := &Run{Kind: KindConvert, Formats: "coco,csv", Images: 10, Boxes: 25, MaxDelta: 4.5, CreatedAt: dbh.IntTime(1000)}
	splits := []RunSplit{{Split: "train", Images: 9, Boxes: 22}, {Split: "val", Images: 1, Boxes: 3}}
	boxes := []RunBox{{ClassID: 1, ClassName: "car", Split: "train", Count: 22}, {ClassID: 1, ClassName: "car", Split: "val", Count: 3}}
	require.NoError(t, db.Save(run, splits, boxes))
	require.NotEmpty(t, run.ID)

	later := &Run{Kind: KindConvert, Images: 1, CreatedAt: dbh.IntTime(2000)}
	require.NoError(t, db.Save(later, nil, nil))

	runs, err := db.Recent(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, later.ID, runs[0].ID)
	require.Equal(t, "coco,csv", runs[1].Formats)

	s, err := db.Splits(run.ID)
	require.NoError(t, err)
	require.Len(t, s, 2)
	require.Equal(t, 9, s[0].Images)

	b, err := db.Boxes(run.ID)
	require.NoError(t, err)
	require.Len(t, b, 2)
	require.Equal(t, "train", b[0].Split)
	require.Equal(t, run.ID, b[1].RunID)
}

func TestBestAttempt(t *testing.T) {
	db := setup(t)
	searchID := NewRunID()
	for i, delta := range []float64{7.5, 2.25, 3} {
		require.NoError(t, db.Save(&Run{Kind: KindSearch, SearchID: searchID, Seed: int64(i + 1), MaxDelta: delta}, nil, nil))
	}
	require.NoError(t, db.Save(&Run{Kind: KindSearch, SearchID: NewRunID(), Seed: 99, MaxDelta: 0.1}, nil, nil))

	best, err := db.BestAttempt(searchID)
	require.NoError(t, err)
	require.Equal(t, int64(2), best.Seed)
	require.Equal(t, 2.25, best.MaxDelta)

	_, err = db.BestAttempt("nothing")
	require.Error(t, err)
}
