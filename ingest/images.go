package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ImageStore persists page preview images captured during extraction.
type ImageStore interface {
	// SavePages writes the images of the given pages and returns how many
	// were stored. Pages without an image are skipped.
	SavePages(bookID string, pages []Page) (int, error)
	// PagePath returns the stored path for one page image, or false if the
	// page has no image.
	PagePath(bookID string, page int) (string, bool)
}

// DirImageStore stores page images on disk under <root>/<book_id>/page_N.png
// with a pages.json manifest listing the stored page numbers.
type DirImageStore struct {
	root string
}

var _ ImageStore = (*DirImageStore)(nil)

// NewDirImageStore creates a directory-backed image store rooted at root.
func NewDirImageStore(root string) *DirImageStore {
	return &DirImageStore{root: root}
}

type pageManifest struct {
	Pages []int `json:"pages"`
}

// SavePages writes one PNG per page that carries image bytes, plus a
// manifest of stored page numbers. The book directory is only created once
// the first image shows up: most documents carry no page images at all.
func (s *DirImageStore) SavePages(bookID string, pages []Page) (int, error) {
	dir := filepath.Join(s.root, bookID)

	var manifest pageManifest
	for _, p := range pages {
		if len(p.Image) == 0 {
			continue
		}
		if len(manifest.Pages) == 0 {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return 0, fmt.Errorf("create image dir: %w", err)
			}
		}
		path := filepath.Join(dir, fmt.Sprintf("page_%d.png", p.Number))
		if err := os.WriteFile(path, p.Image, 0o644); err != nil {
			return len(manifest.Pages), fmt.Errorf("write page image %d: %w", p.Number, err)
		}
		manifest.Pages = append(manifest.Pages, p.Number)
	}

	if len(manifest.Pages) == 0 {
		return 0, nil
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return len(manifest.Pages), fmt.Errorf("marshal page manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pages.json"), data, 0o644); err != nil {
		return len(manifest.Pages), fmt.Errorf("write page manifest: %w", err)
	}
	return len(manifest.Pages), nil
}

// PagePath reports the path of a stored page image.
func (s *DirImageStore) PagePath(bookID string, page int) (string, bool) {
	path := filepath.Join(s.root, bookID, fmt.Sprintf("page_%d.png", page))
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}
