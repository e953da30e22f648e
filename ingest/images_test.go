package ingest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirImageStoreSavesManifest(t *testing.T) {
	dir := t.TempDir()
	s := NewDirImageStore(dir)

	n, err := s.SavePages("b1", []Page{
		{Number: 1, Image: []byte{0x89, 'P', 'N', 'G'}},
		{Number: 2},
		{Number: 3, Image: []byte{0x89, 'P', 'N', 'G'}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("stored %d images, want 2", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "b1", "pages.json")); err != nil {
		t.Errorf("manifest not written: %v", err)
	}
}

func TestDirImageStoreNoDirWithoutImages(t *testing.T) {
	dir := t.TempDir()
	s := NewDirImageStore(dir)

	n, err := s.SavePages("b1", []Page{{Number: 1}, {Number: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("stored %d images, want 0", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "b1")); !os.IsNotExist(err) {
		t.Error("book directory created for a document without page images")
	}
}
