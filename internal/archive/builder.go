package archive

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/lehigh-university-libraries/epub2zip/internal/models"
)

// DefaultBundleName is the name of the archive that wraps several results.
const DefaultBundleName = "epub_converted_files.zip"

// ErrNothingToAggregate is returned when no successful result exists.
var ErrNothingToAggregate = errors.New("archive: no successful archives to aggregate")

// Builder collects entries for one archive and keeps their names unique.
type Builder struct {
	level   int
	entries []FileEntry
	names   map[string]struct{}
}

// NewBuilder creates an empty builder that will compress at level.
func NewBuilder(level int) *Builder {
	return &Builder{
		level: level,
		names: make(map[string]struct{}),
	}
}

// Add appends an entry and returns the name it was stored under. A name
// already present gets "_1", "_2", ... inserted before its extension.
func (b *Builder) Add(name string, data []byte) string {
	final := name
	if _, taken := b.names[final]; taken {
		final = UniqueName(name, func(candidate string) bool {
			_, ok := b.names[candidate]
			return ok
		})
	}
	b.names[final] = struct{}{}
	b.entries = append(b.entries, FileEntry{Name: final, Data: data})
	return final
}

// Len is the number of entries added so far.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Names returns entry names in insertion order.
func (b *Builder) Names() []string {
	names := make([]string, len(b.entries))
	for i, e := range b.entries {
		names[i] = e.Name
	}
	return names
}

// Bytes serializes the collected entries.
func (b *Builder) Bytes(onProgress ProgressFunc) ([]byte, error) {
	return Build(b.entries, b.level, onProgress)
}

// UniqueName finds the first "<base>_<n><ext>" that taken rejects.
func UniqueName(name string, taken func(string) bool) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", base, n, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}

// Artifact is the downloadable product of Aggregate.
type Artifact struct {
	Name    string
	Data    []byte
	Count   int
	Wrapped bool
}

// Aggregate packages the successful results for a single download. One
// success is returned as is; several are wrapped in a bundle archive
// named bundleName with one entry per result, in sequence order.
func Aggregate(results []models.ConversionResult, bundleName string, level int) (Artifact, error) {
	var ok []models.ConversionResult
	for _, r := range results {
		if r.Success && len(r.Archive) > 0 {
			ok = append(ok, r)
		}
	}

	switch len(ok) {
	case 0:
		return Artifact{}, ErrNothingToAggregate
	case 1:
		return Artifact{Name: ok[0].FileName, Data: ok[0].Archive, Count: 1}, nil
	}

	slices.SortStableFunc(ok, func(a, b models.ConversionResult) int {
		return a.SequenceNumber - b.SequenceNumber
	})

	if bundleName == "" {
		bundleName = DefaultBundleName
	}
	b := NewBuilder(level)
	for _, r := range ok {
		b.Add(r.FileName, r.Archive)
	}
	data, err := b.Bytes(nil)
	if err != nil {
		return Artifact{}, fmt.Errorf("archive: build bundle: %w", err)
	}
	return Artifact{Name: bundleName, Data: data, Count: len(ok), Wrapped: true}, nil
}
