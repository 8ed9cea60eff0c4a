package classifier

import (
	"path/filepath"
	"strings"
)

// EPUBExtension is the only extension accepted for uploads.
const EPUBExtension = ".epub"

// Container describes what a quick look at an upload revealed.
type Container struct {
	IsEPUBName      bool
	HasZipSignature bool
}

// Accepted reports whether the upload may enter a session. A file named
// *.epub is accepted even when its signature does not match.
func (c Container) Accepted() bool {
	return c.IsEPUBName
}

// Suspicious reports an accepted file whose bytes do not look like ZIP.
func (c Container) Suspicious() bool {
	return c.IsEPUBName && !c.HasZipSignature
}

// SniffContainer inspects an upload's name and leading bytes.
func SniffContainer(name string, data []byte) Container {
	return Container{
		IsEPUBName:      strings.EqualFold(filepath.Ext(name), EPUBExtension),
		HasZipSignature: HasZipSignature(data),
	}
}

// HasZipSignature matches "PK" followed by a local file header, an empty
// archive's end record, or a spanning marker.
func HasZipSignature(data []byte) bool {
	if len(data) < 4 || data[0] != 0x50 || data[1] != 0x4B {
		return false
	}
	switch {
	case data[2] == 0x03 && data[3] == 0x04:
		return true
	case data[2] == 0x05 && data[3] == 0x06:
		return true
	case data[2] == 0x07 && data[3] == 0x08:
		return true
	}
	return false
}
