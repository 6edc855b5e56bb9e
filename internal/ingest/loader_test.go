package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDirectory_MissingDirectory(t *testing.T) {
	_, err := LoadDirectory(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrDirectoryNotFound)
}

func TestLoadDirectory_EmptyDirectory(t *testing.T) {
	docs, err := LoadDirectory(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLoadDirectory_PlainText(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "stableclimgen")
	require.NoError(t, os.Mkdir(dir, 0o755))
	path := writeFile(t, dir, "guide.txt", "how to generate climate data")

	docs, err := LoadDirectory(dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, path, doc.Source)
	assert.Equal(t, "stableclimgen", doc.Resource)
	assert.Equal(t, "how to generate climate data", doc.Content)
	assert.Equal(t, doc.Content, doc.EmbeddedContent)
	assert.Equal(t, 1, doc.ChunkID)
}

func TestLoadDirectory_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "report.pdf", "%PDF-1.4")

	_, err := LoadDirectory(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestLoadDirectory_ExampleTraceGrouping(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mylib")
	require.NoError(t, os.Mkdir(dir, 0o755))
	writeFile(t, dir, "traces.jsonl",
		`{"variant":"User","content":"how do I plot temperature?"}
{"variant":"Assistant","content":"use plot_temperature()"}
{"variant":"User","content":"and precipitation?"}
{"variant":"Assistant","content":"use plot_precipitation()"}
`)

	docs, err := LoadDirectory(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2, "one example per user turn")

	first, second := docs[0], docs[1]
	assert.Equal(t, 1, first.ChunkID)
	assert.Equal(t, 2, second.ChunkID)
	assert.Equal(t, "how do I plot temperature?", first.EmbeddedContent, "only the user prompt is embedded")
	assert.Contains(t, first.Content, "plot_temperature()", "the stored content keeps the full trace")
	assert.NotContains(t, first.Content, "precipitation")
	assert.Equal(t, "and precipitation?", second.EmbeddedContent)
}

func TestLoadDirectory_LeadingAssistantLinesIgnored(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "traces.jsonl",
		`{"variant":"Assistant","content":"orphan line"}
{"variant":"User","content":"real question"}
`)

	docs, err := LoadDirectory(dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "real question", docs[0].EmbeddedContent)
}

func TestLoadDirectory_MixedFilesSortedBySource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "second")
	writeFile(t, dir, "a.txt", "first")
	writeFile(t, dir, "sample.json", `{"demo": true}`)

	docs, err := LoadDirectory(dir)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "first", docs[0].Content)
	assert.Equal(t, "second", docs[1].Content)
	assert.Contains(t, docs[2].Source, "sample.json")
}
