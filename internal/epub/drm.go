package epub

import (
	"encoding/xml"
	"fmt"

	"github.com/lehigh-university-libraries/epub2zip/internal/archive"
)

const (
	encryptionPath = "META-INF/encryption.xml"
	sinfPath       = "META-INF/sinf.xml"
)

// Algorithms used only to obfuscate embedded fonts.
var fontObfuscation = map[string]bool{
	"http://www.idpf.org/2008/embedding": true,
	"http://ns.adobe.com/pdf/enc#RC":     true,
}

type encryptionXML struct {
	XMLName       xml.Name        `xml:"encryption"`
	EncryptedData []encryptedData `xml:"EncryptedData"`
}

type encryptedData struct {
	Method struct {
		Algorithm string `xml:"Algorithm,attr"`
	} `xml:"EncryptionMethod"`
}

// checkDRM fails for FairPlay books and for any encrypted resource that is
// not an obfuscated font. An unreadable encryption.xml counts as DRM.
func checkDRM(r *archive.Reader) error {
	if r.Has(sinfPath) {
		return fmt.Errorf("%w: FairPlay sinf.xml present", ErrDRMProtected)
	}
	if !r.Has(encryptionPath) {
		return nil
	}

	data, err := r.Read(encryptionPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDRMProtected, err)
	}
	var enc encryptionXML
	if err := decodeXML(data, &enc); err != nil {
		return fmt.Errorf("%w: unreadable encryption.xml", ErrDRMProtected)
	}
	for _, ed := range enc.EncryptedData {
		if !fontObfuscation[ed.Method.Algorithm] {
			return fmt.Errorf("%w: algorithm %q", ErrDRMProtected, ed.Method.Algorithm)
		}
	}
	return nil
}
