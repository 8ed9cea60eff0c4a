// Package sequencer assigns deterministic, zero-padded output names to a
// batch of input files based on the numbers embedded in their names.
package sequencer

import (
	"cmp"
	"fmt"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/lehigh-university-libraries/epub2zip/internal/models"
)

// MinWidth is the smallest zero-pad width for output names.
const MinWidth = 3

// OutputExtension is appended to every sequenced name.
const OutputExtension = ".zip"

// RankedFile is an input file with its ordering keys.
type RankedFile struct {
	File          models.InputFile
	StrippedName  string
	Numbers       []NumberToken
	PrimaryNumber int64
	OriginalIndex int
}

// Rank computes the ordering keys for every file, keeping input order.
func Rank(files []models.InputFile) []RankedFile {
	ranked := make([]RankedFile, len(files))
	for i, f := range files {
		stripped := StripExtension(f.Name)
		numbers := ExtractNumbers(stripped)
		ranked[i] = RankedFile{
			File:          f,
			StrippedName:  stripped,
			Numbers:       numbers,
			PrimaryNumber: PrimaryNumber(stripped, numbers),
			OriginalIndex: i,
		}
	}
	return ranked
}

// Sort orders ranked files by primary number, then by a natural
// locale-aware comparison of the stripped name, then by input position.
func Sort(ranked []RankedFile) {
	// Collators keep scratch buffers, so each call gets its own.
	col := collate.New(language.Und, collate.Numeric)
	slices.SortFunc(ranked, func(a, b RankedFile) int {
		if c := cmp.Compare(a.PrimaryNumber, b.PrimaryNumber); c != 0 {
			return c
		}
		if c := col.CompareString(a.StrippedName, b.StrippedName); c != 0 {
			return c
		}
		return cmp.Compare(a.OriginalIndex, b.OriginalIndex)
	})
}

// Width returns the zero-pad width for a batch of n files.
func Width(n int) int {
	digits := len(fmt.Sprint(n))
	return max(MinWidth, digits)
}

// OutputName formats the 1-based rank as a padded archive name.
func OutputName(rank, width int) string {
	return fmt.Sprintf("%0*d%s", width, rank, OutputExtension)
}

// Sequence returns one mapping per file, ordered by sequence number.
// The result depends only on the names and their positions in files.
func Sequence(files []models.InputFile) []models.OutputMapping {
	if len(files) == 0 {
		return nil
	}

	ranked := Rank(files)
	Sort(ranked)

	width := Width(len(ranked))
	mappings := make([]models.OutputMapping, len(ranked))
	for i, r := range ranked {
		mappings[i] = models.OutputMapping{
			FileID:         r.File.ID,
			OriginalName:   r.File.Name,
			OutputName:     OutputName(i+1, width),
			SequenceNumber: i + 1,
			PrimaryNumber:  r.PrimaryNumber,
		}
	}
	return mappings
}

// ByFileID indexes mappings by their file id.
func ByFileID(mappings []models.OutputMapping) map[string]models.OutputMapping {
	out := make(map[string]models.OutputMapping, len(mappings))
	for _, m := range mappings {
		out[m.FileID] = m
	}
	return out
}
