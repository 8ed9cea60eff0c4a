// Package classifier decides which archive entries are images and sniffs
// their exact type from magic bytes.
package classifier

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image MIME types recognised by the classifier.
const (
	MimeJPEG    = "image/jpeg"
	MimePNG     = "image/png"
	MimeGIF     = "image/gif"
	MimeWebP    = "image/webp"
	MimeBMP     = "image/bmp"
	MimeTIFF    = "image/tiff"
	MimeSVG     = "image/svg+xml"
	MimeAVIF    = "image/avif"
	MimeUnknown = "application/octet-stream"
)

var extensionTypes = map[string]string{
	".jpg":  MimeJPEG,
	".jpeg": MimeJPEG,
	".jpe":  MimeJPEG,
	".png":  MimePNG,
	".gif":  MimeGIF,
	".webp": MimeWebP,
	".bmp":  MimeBMP,
	".tif":  MimeTIFF,
	".tiff": MimeTIFF,
	".svg":  MimeSVG,
	".avif": MimeAVIF,
}

// IsImageCandidate reports whether an archive path looks like an image
// worth extracting.
func IsImageCandidate(p string) bool {
	if p == "" || strings.HasSuffix(p, "/") {
		return false
	}
	upper := strings.ToUpper(p)
	if strings.HasPrefix(upper, "META-INF/") || strings.HasPrefix(p, "__MACOSX/") {
		return false
	}
	base := path.Base(p)
	if strings.HasPrefix(base, ".") {
		// dotfiles and AppleDouble "._name" forks
		return false
	}
	_, ok := extensionTypes[strings.ToLower(path.Ext(base))]
	return ok
}

// TypeFromExtension maps a path's extension to an image MIME type.
func TypeFromExtension(p string) (string, bool) {
	mt, ok := extensionTypes[strings.ToLower(path.Ext(p))]
	return mt, ok
}

// SniffType determines the MIME type from the leading bytes, falling
// back to the extension of p.
func SniffType(data []byte, p string) string {
	if mt := sniffMagic(data); mt != "" {
		return mt
	}
	if mt, ok := TypeFromExtension(p); ok {
		return mt
	}
	return MimeUnknown
}

func sniffMagic(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return MimeJPEG
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return MimePNG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return MimeGIF
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return MimeWebP
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return MimeTIFF
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")) &&
		(bytes.Equal(data[8:12], []byte("avif")) || bytes.Equal(data[8:12], []byte("avis"))):
		return MimeAVIF
	case bytes.HasPrefix(data, []byte("BM")) && len(data) >= 14:
		return MimeBMP
	case looksLikeSVG(data):
		return MimeSVG
	}
	return ""
}

// looksLikeSVG checks the first KiB of text for an <svg element.
func looksLikeSVG(data []byte) bool {
	head := data[:min(len(data), 1024)]
	head = bytes.TrimLeft(head, "\xef\xbb\xbf \t\r\n")
	if len(head) == 0 || head[0] != '<' {
		return false
	}
	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}

// Dimensions decodes only the image header. Formats without a
// registered decoder (SVG, AVIF) report ok == false.
func Dimensions(data []byte) (width, height int, ok bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}
