package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestStorageFS(t *testing.T) {
	log := logs.NewTestingLog(t)
	root := t.TempDir()
	fs, err := NewStorageFS(log, filepath.Join(root, "out"))
	require.NoError(t, err)

	require.NoError(t, WriteBytes(fs, "train/a.txt", []byte("hello")))
	raw, err := os.ReadFile(filepath.Join(root, "out", "train", "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(raw))

	b, err := ReadFile(fs, "train/a.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", string(b))

	// Overwrite truncates
	require.NoError(t, WriteBytes(fs, "train/a.txt", []byte("hi")))
	b, err = ReadFile(fs, "train/a.txt")
	require.NoError(t, err)
	require.Equal(t, "hi", string(b))

	require.NoError(t, fs.DeleteFile("train/a.txt"))
	_, err = fs.ReadFile("train/a.txt")
	require.Error(t, err)
}

func TestStorageFSRejectsEscape(t *testing.T) {
	log := logs.NewTestingLog(t)
	fs, err := NewStorageFS(log, t.TempDir())
	require.NoError(t, err)

	_, err = fs.WriteFile("../evil.txt")
	require.Error(t, err)
	_, err = fs.WriteFile("")
	require.Error(t, err)
	_, err = fs.ReadFile("a/../../b")
	require.Error(t, err)
	require.Error(t, fs.DeleteFile(".."))
}

func TestJoinKey(t *testing.T) {
	require.Equal(t, "a.txt", joinKey("", "a.txt"))
	require.Equal(t, "runs/x/a.txt", joinKey("runs/x", "a.txt"))
	require.Equal(t, "runs/x/a.txt", joinKey("runs/x/", "a.txt"))
}

func TestStorageFSDottedNames(t *testing.T) {
	log := logs.NewTestingLog(t)
	fs, err := NewStorageFS(log, t.TempDir())
	require.NoError(t, err)

	require.NoError(t, WriteBytes(fs, "train/img..1.jpg", []byte("x")))
	raw, err := ReadFile(fs, "train/img..1.jpg")
	require.NoError(t, err)
	require.Equal(t, "x", string(raw))
	require.NoError(t, WriteBytes(fs, "..hidden", []byte("y")))

	_, err = fs.WriteFile("train/../../escape.jpg")
	require.Error(t, err)
	_, err = fs.WriteFile("train/..")
	require.Error(t, err)
}
