package staging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/txtingest/internal/core"
)

func sampleArtifact(source string) *core.StagedArtifact {
	return &core.StagedArtifact{
		Source:     source,
		SourcePath: filepath.Join("raw", source),
		Layout:     "ventas",
		Checksum:   "deadbeef",
		DecodedAt:  time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
		Records: []core.Record{
			{Line: 2, Fields: core.Fields{
				{Name: "id", Value: int64(1)},
				{Name: "monto", Value: 12.5},
				{Name: "nombre", Value: "Ana"},
			}},
		},
	}
}

func TestWriteReadRemove(t *testing.T) {
	d, err := New(filepath.Join(t.TempDir(), "processed"))
	require.NoError(t, err)

	path, err := d.Write("ventas_1.txt", sampleArtifact("ventas_1.txt"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(d.Path(), "ventas_1.txt.json"), path)

	art, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "ventas_1.txt", art.Source)
	assert.Equal(t, "deadbeef", art.Checksum)
	assert.True(t, art.DecodedAt.Equal(time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)))
	require.Len(t, art.Records, 1)
	assert.Equal(t, []string{"id", "monto", "nombre"}, art.Records[0].Names())

	require.NoError(t, Remove(path))
	assert.NoFileExists(t, path)
	assert.NoError(t, Remove(path), "removing twice is fine")
}

func TestWrite_Overwrites(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)

	first := sampleArtifact("a.txt")
	_, err = d.Write("a.txt", first)
	require.NoError(t, err)

	second := sampleArtifact("a.txt")
	second.Checksum = "cafe"
	path, err := d.Write("a.txt", second)
	require.NoError(t, err)

	art, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "cafe", art.Checksum)
}

func TestWrite_SameBaseNameInDifferentFolders(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)

	a := sampleArtifact("ventas_01.txt")
	a.SourcePath = filepath.Join("raw", "lote_a", "ventas_01.txt")
	b := sampleArtifact("ventas_01.txt")
	b.SourcePath = filepath.Join("raw", "lote_b", "ventas_01.txt")

	pathA, err := d.Write("lote_a/ventas_01.txt", a)
	require.NoError(t, err)
	pathB, err := d.Write("lote_b/ventas_01.txt", b)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(d.Path(), "lote_a__ventas_01.txt.json"), pathA)
	assert.Equal(t, filepath.Join(d.Path(), "lote_b__ventas_01.txt.json"), pathB)

	paths, err := d.List()
	require.NoError(t, err)
	assert.Equal(t, []string{pathA, pathB}, paths)
}

func TestWrite_RefusesOtherSource(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)

	// "a__b.txt" and "a/b.txt" share an artifact name.
	first := sampleArtifact("a__b.txt")
	first.SourcePath = filepath.Join("raw", "a__b.txt")
	path, err := d.Write("a__b.txt", first)
	require.NoError(t, err)

	second := sampleArtifact("b.txt")
	second.SourcePath = filepath.Join("raw", "a", "b.txt")
	second.Checksum = "cafe"
	_, err = d.Write("a/b.txt", second)
	require.ErrorIs(t, err, ErrConflict)

	art, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, first.SourcePath, art.SourcePath, "first artifact untouched")

	n, err := d.CleanTemp()
	require.NoError(t, err)
	assert.Zero(t, n, "refused write leaves no temp file")
}

func TestQuarantine(t *testing.T) {
	dir := t.TempDir()
	d, err := New(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "x.txt.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"records": [`), 0o644))

	bad, err := Quarantine(path)
	require.NoError(t, err)
	assert.Equal(t, path+".bad", bad)
	assert.NoFileExists(t, path)
	assert.FileExists(t, bad)

	paths, err := d.List()
	require.NoError(t, err)
	assert.Empty(t, paths, "quarantined artifacts are not listed")
}

func TestList_SkipsTempAndForeignFiles(t *testing.T) {
	dir := t.TempDir()
	d, err := New(dir)
	require.NoError(t, err)

	_, err = d.Write("b.txt", sampleArtifact("b.txt"))
	require.NoError(t, err)
	_, err = d.Write("a.txt", sampleArtifact("a.txt"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".c.txt-123.tmp"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	paths, err := d.List()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.txt.json"),
		filepath.Join(dir, "b.txt.json"),
	}, paths)

	n, err := d.CleanTemp()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRead_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"records": [`), 0o644))

	_, err := Read(path)
	assert.Error(t, err)
}
