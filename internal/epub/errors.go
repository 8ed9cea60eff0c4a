package epub

import "errors"

var (
	// ErrInvalidEPUB means no package document could be located.
	ErrInvalidEPUB = errors.New("epub: invalid EPUB structure")

	// ErrDRMProtected means the book carries real encryption, not just
	// font obfuscation.
	ErrDRMProtected = errors.New("epub: file is DRM protected")
)
