package classifier

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestIsImageCandidate(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"OEBPS/images/cover.jpg", true},
		{"OEBPS/images/COVER.JPEG", true},
		{"img/fig.webp", true},
		{"img/fig.svg", true},
		{"img/scan.tif", true},
		{"OEBPS/images/", false},
		{"OEBPS/text/ch1.xhtml", false},
		{"META-INF/thumb.png", false},
		{"meta-inf/thumb.png", false},
		{"__MACOSX/OEBPS/._cover.jpg", false},
		{"OEBPS/._cover.jpg", false},
		{"OEBPS/.hidden.png", false},
		{"", false},
		{"mimetype", false},
	}
	for _, tt := range tests {
		if got := IsImageCandidate(tt.path); got != tt.want {
			t.Errorf("IsImageCandidate(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestSniffType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		path string
		want string
	}{
		{"jpeg magic", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0}, "x.bin", MimeJPEG},
		{"png magic beats extension", []byte("\x89PNG\r\n\x1a\n...."), "wrong.jpg", MimePNG},
		{"gif89a", []byte("GIF89a......"), "a", MimeGIF},
		{"gif87a", []byte("GIF87a......"), "a", MimeGIF},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "a", MimeWebP},
		{"tiff little endian", []byte("II*\x00\x08\x00"), "a", MimeTIFF},
		{"tiff big endian", []byte("MM\x00*\x00\x08"), "a", MimeTIFF},
		{"avif", []byte("\x00\x00\x00\x1cftypavif\x00\x00"), "a", MimeAVIF},
		{"bmp", append([]byte("BM"), make([]byte, 20)...), "a", MimeBMP},
		{"svg with prolog", []byte("<?xml version=\"1.0\"?>\n<svg xmlns=\"http://www.w3.org/2000/svg\"/>"), "a", MimeSVG},
		{"extension fallback", []byte("garbage"), "pic.png", MimePNG},
		{"unknown", []byte("garbage"), "pic.dat", MimeUnknown},
		{"empty data", nil, "pic.gif", MimeGIF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SniffType(tt.data, tt.path); got != tt.want {
				t.Errorf("SniffType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDimensions(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 7, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	w, h, ok := Dimensions(buf.Bytes())
	if !ok || w != 7 || h != 3 {
		t.Errorf("Dimensions() = %d, %d, %v; want 7, 3, true", w, h, ok)
	}

	if _, _, ok := Dimensions([]byte("<svg/>")); ok {
		t.Error("Dimensions(svg) ok = true, want false")
	}
}

func TestSniffContainer(t *testing.T) {
	zipHeader := []byte{0x50, 0x4B, 0x03, 0x04, 0x14, 0x00}
	tests := []struct {
		name           string
		file           string
		data           []byte
		wantAccepted   bool
		wantSuspicious bool
	}{
		{"valid epub", "book.epub", zipHeader, true, false},
		{"uppercase extension", "BOOK.EPUB", zipHeader, true, false},
		{"epub with bad signature", "book.epub", []byte("not a zip"), true, true},
		{"zip named otherwise", "book.zip", zipHeader, false, false},
		{"text file", "notes.txt", []byte("hello"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := SniffContainer(tt.file, tt.data)
			if c.Accepted() != tt.wantAccepted {
				t.Errorf("Accepted() = %v, want %v", c.Accepted(), tt.wantAccepted)
			}
			if c.Suspicious() != tt.wantSuspicious {
				t.Errorf("Suspicious() = %v, want %v", c.Suspicious(), tt.wantSuspicious)
			}
		})
	}
}

func TestHasZipSignature(t *testing.T) {
	tests := []struct {
		data []byte
		want bool
	}{
		{[]byte{0x50, 0x4B, 0x03, 0x04}, true},
		{[]byte{0x50, 0x4B, 0x05, 0x06}, true},
		{[]byte{0x50, 0x4B, 0x07, 0x08}, true},
		{[]byte{0x50, 0x4B, 0x01, 0x02}, false},
		{[]byte{0x50, 0x4B}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := HasZipSignature(tt.data); got != tt.want {
			t.Errorf("HasZipSignature(% x) = %v, want %v", tt.data, got, tt.want)
		}
	}
}
