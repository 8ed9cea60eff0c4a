package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
)

// Compression level bounds accepted by Build.
const (
	MinLevel     = 0
	MaxLevel     = 9
	DefaultLevel = 6
)

// ErrInvalidLevel is returned for a compression level outside 0..9.
var ErrInvalidLevel = errors.New("archive: compression level must be between 0 and 9")

// FileEntry is a named blob to be written into an archive.
type FileEntry struct {
	Name string
	Data []byte
}

// ProgressFunc is told how many entries have been written so far.
type ProgressFunc func(done, total int)

// Build serializes entries into a ZIP archive. Level 0 stores entries
// uncompressed; 1..9 deflate them.
func Build(entries []FileEntry, level int, onProgress ProgressFunc) ([]byte, error) {
	if level < MinLevel || level > MaxLevel {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	method := zip.Store
	if level > 0 {
		method = zip.Deflate
		zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, level)
		})
	}

	modified := time.Now()
	for i, e := range entries {
		if e.Name == "" {
			_ = zw.Close()
			return nil, fmt.Errorf("archive: entry %d has an empty name", i)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.Name,
			Method:   method,
			Modified: modified,
		})
		if err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("archive: create entry %s: %w", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("archive: write entry %s: %w", e.Name, err)
		}
		if onProgress != nil {
			onProgress(i+1, len(entries))
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: finalize: %w", err)
	}
	return buf.Bytes(), nil
}
