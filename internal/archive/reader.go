// Package archive reads and writes ZIP containers held in memory.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// DefaultMaxEntrySize caps the decompressed size of a single entry.
const DefaultMaxEntrySize int64 = 256 * 1024 * 1024

var (
	// ErrCorruptArchive is returned when bytes cannot be opened as a ZIP.
	ErrCorruptArchive = errors.New("archive: corrupt or unreadable archive")

	// ErrEntryNotFound is returned by Read for a missing path.
	ErrEntryNotFound = errors.New("archive: entry not found")

	// ErrUnsafePath is returned for entries that escape the archive root.
	ErrUnsafePath = errors.New("archive: unsafe entry path")

	// ErrEntryTooLarge is returned when an entry exceeds the size limit.
	ErrEntryTooLarge = errors.New("archive: entry too large")
)

// Entry describes one member of an opened archive.
type Entry struct {
	Path  string
	IsDir bool
	Size  int64
}

// Reader gives indexed access to an in-memory ZIP archive.
// A Reader is not safe for concurrent use.
type Reader struct {
	zr    *zip.Reader
	exact map[string]*zip.File
	lower map[string]*zip.File
	limit int64
}

// Open parses data as a ZIP archive using the default entry size limit.
func Open(data []byte) (*Reader, error) {
	return OpenWithLimit(data, DefaultMaxEntrySize)
}

// OpenWithLimit parses data as a ZIP archive. Entries larger than limit
// bytes cannot be read.
func OpenWithLimit(data []byte, limit int64) (*Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	if limit <= 0 {
		limit = DefaultMaxEntrySize
	}

	r := &Reader{
		zr:    zr,
		exact: make(map[string]*zip.File, len(zr.File)),
		lower: make(map[string]*zip.File, len(zr.File)),
		limit: limit,
	}
	for _, f := range zr.File {
		// first match wins for both indexes
		if _, ok := r.exact[f.Name]; !ok {
			r.exact[f.Name] = f
		}
		lower := strings.ToLower(f.Name)
		if _, ok := r.lower[lower]; !ok {
			r.lower[lower] = f
		}
	}
	return r, nil
}

// Entries lists every member in archive order.
func (r *Reader) Entries() []Entry {
	entries := make([]Entry, 0, len(r.zr.File))
	for _, f := range r.zr.File {
		entries = append(entries, Entry{
			Path:  f.Name,
			IsDir: f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/"),
			Size:  int64(f.UncompressedSize64),
		})
	}
	return entries
}

// Has reports whether name resolves to an entry.
func (r *Reader) Has(name string) bool {
	return r.find(name) != nil
}

// Read returns the decompressed bytes of name. Lookup is exact first,
// then case-insensitive.
func (r *Reader) Read(name string) ([]byte, error) {
	f := r.find(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return readFile(f, r.limit)
}

// Resolve returns the stored name that name refers to.
func (r *Reader) Resolve(name string) (string, bool) {
	f := r.find(name)
	if f == nil {
		return "", false
	}
	return f.Name, true
}

func (r *Reader) find(name string) *zip.File {
	if f, ok := r.exact[name]; ok {
		return f
	}
	if f, ok := r.lower[strings.ToLower(name)]; ok {
		return f
	}
	return nil
}

func readFile(f *zip.File, limit int64) ([]byte, error) {
	if !IsSafePath(f.Name) {
		return nil, fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
	}
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrEntryTooLarge, f.Name, f.UncompressedSize64, limit)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("archive: open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	// the declared size can lie, so read one byte past the limit
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("archive: read entry %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrEntryTooLarge, f.Name, limit)
	}
	return data, nil
}

// IsSafePath rejects absolute paths and paths that climb above the root.
func IsSafePath(p string) bool {
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		return false
	}
	cleaned := path.Clean(strings.ReplaceAll(p, `\`, "/"))
	return cleaned != ".." && !strings.HasPrefix(cleaned, "../")
}
