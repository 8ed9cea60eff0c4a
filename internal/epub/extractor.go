// Package epub pulls the images and descriptive metadata out of an EPUB
// container held in memory.
package epub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/lehigh-university-libraries/epub2zip/internal/archive"
	"github.com/lehigh-university-libraries/epub2zip/internal/classifier"
	"github.com/lehigh-university-libraries/epub2zip/internal/models"
)

const defaultCheckpointEvery = 10

// Options tune an Extractor. Zero values select defaults.
type Options struct {
	// MaxEntrySize caps the decompressed size of one entry.
	MaxEntrySize int64
	// CheckpointEvery is how many images are read between cancellation checks.
	CheckpointEvery int
}

// Extraction is everything an Extractor found in one book.
type Extraction struct {
	PackagePath string
	Images      []models.ExtractedImage
	Metadata    models.Metadata
	Warnings    []string
}

// Extractor reads EPUB containers. It holds no per-book state and is safe
// for concurrent use.
type Extractor struct {
	opts Options
}

func New(opts Options) *Extractor {
	if opts.MaxEntrySize <= 0 {
		opts.MaxEntrySize = archive.DefaultMaxEntrySize
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = defaultCheckpointEvery
	}
	return &Extractor{opts: opts}
}

// Extract validates the container and returns its images in reading order:
// images referenced from spine documents first, then the remaining image
// manifest items, then any other image entries in archive order.
//
// Structural problems that readers tolerate become warnings. A book with no
// locatable package document fails with ErrInvalidEPUB, an encrypted one
// with ErrDRMProtected, and bytes that are not a ZIP with
// archive.ErrCorruptArchive.
func (e *Extractor) Extract(ctx context.Context, data []byte) (*Extraction, error) {
	r, err := archive.OpenWithLimit(data, e.opts.MaxEntrySize)
	if err != nil {
		return nil, err
	}

	out := &Extraction{}
	if w := checkMimetype(r); w != "" {
		out.Warnings = append(out.Warnings, w)
	}

	opfPath, warning, err := locatePackage(r)
	if warning != "" {
		out.Warnings = append(out.Warnings, warning)
	}
	if err != nil {
		return nil, err
	}
	out.PackagePath = opfPath

	if err := checkDRM(r); err != nil {
		return nil, err
	}

	var ordered []string
	if pkg, warning := loadPackage(r, opfPath); pkg != nil {
		out.Metadata = pkg.metadata()
		spine, spineWarnings := spineImages(r, pkg, opfPath)
		out.Warnings = append(out.Warnings, spineWarnings...)
		ordered = append(ordered, spine...)
		ordered = append(ordered, pkg.manifestImages(opfPath)...)
	} else {
		out.Warnings = append(out.Warnings, warning)
	}
	for _, entry := range r.Entries() {
		ordered = append(ordered, entry.Path)
	}

	seen := make(map[string]bool)
	for _, candidate := range ordered {
		name, ok := r.Resolve(candidate)
		if !ok || seen[name] || !classifier.IsImageCandidate(name) {
			continue
		}
		seen[name] = true

		img, warning := readImage(r, name)
		if warning != "" {
			out.Warnings = append(out.Warnings, warning)
			continue
		}
		out.Images = append(out.Images, img)

		if len(out.Images)%e.opts.CheckpointEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}

	slog.Debug("Extracted images", "package", opfPath, "images", len(out.Images), "warnings", len(out.Warnings))
	return out, nil
}

func loadPackage(r *archive.Reader, opfPath string) (*opfPackage, string) {
	data, err := r.Read(opfPath)
	if err != nil {
		return nil, fmt.Sprintf("package document %s unreadable: %v", opfPath, err)
	}
	pkg, err := parseOPF(data)
	if err != nil {
		return nil, fmt.Sprintf("package document %s: %v", opfPath, err)
	}
	return pkg, ""
}

func spineImages(r *archive.Reader, pkg *opfPackage, opfPath string) ([]string, []string) {
	var images, warnings []string
	for _, doc := range pkg.spineDocuments(opfPath) {
		data, err := r.Read(doc)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("spine document %s unreadable: %v", doc, err))
			continue
		}
		refs, err := imageRefs(data, doc)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("spine document %s: %v", doc, err))
			continue
		}
		images = append(images, refs...)
	}
	return images, warnings
}

// readImage returns a non-empty warning for entries that must be skipped.
func readImage(r *archive.Reader, name string) (models.ExtractedImage, string) {
	data, err := r.Read(name)
	switch {
	case errors.Is(err, archive.ErrUnsafePath), errors.Is(err, archive.ErrEntryTooLarge):
		return models.ExtractedImage{}, fmt.Sprintf("skipped %s: %v", name, err)
	case err != nil:
		return models.ExtractedImage{}, fmt.Sprintf("skipped unreadable %s: %v", name, err)
	case len(data) == 0:
		return models.ExtractedImage{}, fmt.Sprintf("skipped empty %s", name)
	}

	img := models.ExtractedImage{
		OriginalPath: name,
		FileName:     path.Base(name),
		Data:         data,
		Size:         int64(len(data)),
		MimeType:     classifier.SniffType(data, name),
	}
	if w, h, ok := classifier.Dimensions(data); ok {
		img.Width, img.Height = w, h
	}
	return img, ""
}
