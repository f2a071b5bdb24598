package ingestion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
}

func TestDocumentID(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"data/Alpha.pdf":        "Alpha",
		"Beta.PDF":              "Beta",
		"/abs/dir/gamma.v2.pdf": "gamma.v2",
		"noext":                 "noext",
	}
	for in, want := range cases {
		assert.Equal(t, want, DocumentID(in), in)
	}
}

func TestDiscoverDocuments(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Beta.pdf"))
	writeFile(t, filepath.Join(dir, "Alpha.PDF"))
	writeFile(t, filepath.Join(dir, "nested", "Gamma.pdf"))
	writeFile(t, filepath.Join(dir, "notes.txt"))
	writeFile(t, filepath.Join(dir, ".cache", "Hidden.pdf"))

	docs, err := DiscoverDocuments(dir)
	require.NoError(t, err)

	var ids []string
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, ids)
	assert.Equal(t, filepath.Join(dir, "nested", "Gamma.pdf"), docs[2].Path)
}

func TestDiscoverDocuments_DuplicateIDs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Alpha.pdf"))
	writeFile(t, filepath.Join(dir, "more", "Alpha.pdf"))

	_, err := DiscoverDocuments(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Alpha"`)
}

func TestDiscoverDocuments_BadSource(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, err := DiscoverDocuments(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	file := filepath.Join(dir, "Alpha.pdf")
	writeFile(t, file)
	_, err = DiscoverDocuments(file)
	assert.Error(t, err)
}

func TestFilterDocuments(t *testing.T) {
	t.Parallel()
	docs := []Document{{ID: "Alpha"}, {ID: "Beta"}, {ID: "Gamma"}}

	assert.Equal(t, docs, FilterDocuments(docs, nil))
	assert.Equal(t, []Document{{ID: "Alpha"}, {ID: "Gamma"}}, FilterDocuments(docs, []string{"Gamma", " Alpha "}))
	assert.Empty(t, FilterDocuments(docs, []string{"Delta"}))
}
