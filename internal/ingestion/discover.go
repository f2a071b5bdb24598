package ingestion

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DocumentID derives a document identifier from a file path: the base name
// without its extension ("data/Alpha.pdf" → "Alpha").
func DocumentID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DiscoverDocuments walks dir recursively and returns every PDF file as a
// Document, sorted by path. Matching on the ".pdf" extension is
// case-insensitive. Two files that map to the same document ID are an error
// since their points would be indistinguishable.
func DiscoverDocuments(dir string) ([]Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("ingestion: source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ingestion: source %s is not a directory", dir)
	}

	var docs []Document
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			docs = append(docs, Document{ID: DocumentID(path), Path: path})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingestion: walk %s: %w", dir, err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })

	seen := make(map[string]string, len(docs))
	for _, d := range docs {
		if prev, ok := seen[d.ID]; ok {
			return nil, fmt.Errorf("ingestion: document id %q is shared by %s and %s", d.ID, prev, d.Path)
		}
		seen[d.ID] = d.Path
	}
	return docs, nil
}

// FilterDocuments keeps only the documents whose IDs are listed. An empty
// list keeps everything.
func FilterDocuments(docs []Document, ids []string) []Document {
	if len(ids) == 0 {
		return docs
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[strings.TrimSpace(id)] = true
	}
	var out []Document
	for _, d := range docs {
		if want[d.ID] {
			out = append(out, d)
		}
	}
	return out
}
