package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/lehigh-university-libraries/epub2zip/internal/archive"
)

const (
	mimetypePath  = "mimetype"
	epubMimeType  = "application/epub+zip"
	containerPath = "META-INF/container.xml"
	opfMediaType  = "application/oebps-package+xml"
)

type containerXML struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// checkMimetype returns a warning when the mimetype entry is missing or
// wrong. Readers accept such books anyway.
func checkMimetype(r *archive.Reader) string {
	data, err := r.Read(mimetypePath)
	if err != nil {
		return "mimetype entry missing"
	}
	if got := strings.TrimSpace(string(data)); got != epubMimeType {
		return fmt.Sprintf("unexpected mimetype %q", got)
	}
	return ""
}

// locatePackage finds the OPF path. container.xml wins; without a usable
// one the first .opf entry in archive order is taken.
func locatePackage(r *archive.Reader) (opfPath string, warning string, err error) {
	if data, readErr := r.Read(containerPath); readErr == nil {
		p, parseErr := parseContainer(data)
		if parseErr == nil {
			return p, "", nil
		}
		warning = parseErr.Error()
	} else {
		warning = "container.xml missing"
	}

	for _, e := range r.Entries() {
		if !e.IsDir && strings.HasSuffix(strings.ToLower(e.Path), ".opf") {
			return e.Path, warning, nil
		}
	}
	return "", warning, fmt.Errorf("%w: no package document found", ErrInvalidEPUB)
}

func parseContainer(data []byte) (string, error) {
	var c containerXML
	if err := decodeXML(data, &c); err != nil {
		return "", fmt.Errorf("parse container.xml: %w", err)
	}

	var fallback string
	for _, rf := range c.RootFiles {
		full := strings.TrimSpace(rf.FullPath)
		if full == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), opfMediaType) {
			return full, nil
		}
		if fallback == "" {
			fallback = full
		}
	}
	if fallback == "" {
		return "", fmt.Errorf("container.xml has no rootfile")
	}
	return fallback, nil
}

// decodeXML is lenient about HTML entities and declared charsets, both of
// which show up in real-world package documents.
func decodeXML(data []byte, v any) error {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	d.Entity = xml.HTMLEntity
	d.CharsetReader = charset.NewReaderLabel
	return d.Decode(v)
}
