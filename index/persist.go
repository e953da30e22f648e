package index

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/nevindra/bookvision"
)

const (
	vectorsFile = "vectors.bin"
	metaFile    = "meta.json"
)

// vectorsMagic identifies the on-disk vector arena format.
var vectorsMagic = [4]byte{'B', 'V', 'X', '1'}

type vectorsHeader struct {
	Magic [4]byte
	Dim   uint32
	Count uint64
}

// Save writes the vector arena and metadata records to dir so that a process
// restart reloads an identical index. Both files are written to a temp path
// and renamed into place.
func (ix *Index) Save(dir string) error {
	start := time.Now()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index dir: %w", err)
	}

	ix.mu.RLock()
	header := vectorsHeader{
		Magic: vectorsMagic,
		Dim:   uint32(ix.dim),
		Count: uint64(ix.meta.len()),
	}
	var buf bytes.Buffer
	buf.Grow(16 + 4*len(ix.arena))
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		ix.mu.RUnlock()
		return fmt.Errorf("encode vectors: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, ix.arena); err != nil {
		ix.mu.RUnlock()
		return fmt.Errorf("encode vectors: %w", err)
	}
	metaJSON, err := json.Marshal(ix.meta.records)
	ix.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, vectorsFile), buf.Bytes()); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, metaFile), metaJSON); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	ix.logger.Debug("index: saved",
		"dir", dir, "entries", header.Count, "duration", time.Since(start))
	return nil
}

// Load replaces the index contents with the state persisted in dir. A missing
// vectors file leaves the index empty. When the persisted vector count and
// metadata count disagree, metadata is truncated or padded with empty records
// to match the vectors and the repair is logged; this is a consistency
// repair, not a fatal error.
func (ix *Index) Load(dir string) error {
	start := time.Now()

	data, err := os.ReadFile(filepath.Join(dir, vectorsFile))
	if errors.Is(err, fs.ErrNotExist) {
		ix.logger.Debug("index: no persisted vectors", "dir", dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read vectors: %w", err)
	}

	r := bytes.NewReader(data)
	var header vectorsHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("decode vectors header: %w", err)
	}
	if header.Magic != vectorsMagic {
		return fmt.Errorf("decode vectors header: bad magic")
	}
	if int(header.Dim) != ix.dim {
		return fmt.Errorf("persisted dimension %d, index expects %d", header.Dim, ix.dim)
	}
	arena := make([]float32, int(header.Count)*ix.dim)
	if err := binary.Read(r, binary.LittleEndian, arena); err != nil {
		return fmt.Errorf("decode vectors: %w", err)
	}

	var records []bookvision.Metadata
	metaJSON, err := os.ReadFile(filepath.Join(dir, metaFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Repaired below by padding.
	case err != nil:
		return fmt.Errorf("read metadata: %w", err)
	default:
		if err := json.Unmarshal(metaJSON, &records); err != nil {
			return fmt.Errorf("decode metadata: %w", err)
		}
	}

	ix.mu.Lock()
	ix.arena = arena
	ix.meta.records = records
	if ix.meta.len() != int(header.Count) {
		ix.logger.Warn("index: metadata count mismatch, repairing",
			"vectors", header.Count, "metadata", ix.meta.len())
		ix.meta.resize(int(header.Count))
	}
	ix.mu.Unlock()

	ix.logger.Info("index: loaded",
		"dir", dir, "entries", header.Count, "duration", time.Since(start))
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
