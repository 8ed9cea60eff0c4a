package epub

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/lehigh-university-libraries/epub2zip/internal/models"
)

type opfPackage struct {
	Version          string       `xml:"version,attr"`
	UniqueIdentifier string       `xml:"unique-identifier,attr"`
	Metadata         opfMetadata  `xml:"metadata"`
	Manifest         []opfItem    `xml:"manifest>item"`
	Spine            []opfItemRef `xml:"spine>itemref"`
}

type opfMetadata struct {
	Titles      []dcElement `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creators    []dcElement `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Languages   []dcElement `xml:"http://purl.org/dc/elements/1.1/ language"`
	Publishers  []dcElement `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Identifiers []dcElement `xml:"http://purl.org/dc/elements/1.1/ identifier"`
}

type dcElement struct {
	ID    string `xml:"id,attr"`
	Value string `xml:",chardata"`
}

type opfItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

type opfItemRef struct {
	IDRef string `xml:"idref,attr"`
}

func parseOPF(data []byte) (*opfPackage, error) {
	var pkg opfPackage
	if err := decodeXML(data, &pkg); err != nil {
		return nil, fmt.Errorf("parse package document: %w", err)
	}
	if pkg.Version == "" {
		pkg.Version = "2.0"
	}
	return &pkg, nil
}

// metadata never fails; missing fields stay empty.
func (p *opfPackage) metadata() models.Metadata {
	md := models.Metadata{
		Title:     firstValue(p.Metadata.Titles),
		Language:  firstValue(p.Metadata.Languages),
		Publisher: firstValue(p.Metadata.Publishers),
		Version:   p.Version,
	}
	for _, c := range p.Metadata.Creators {
		if v := strings.TrimSpace(c.Value); v != "" {
			md.Authors = append(md.Authors, v)
		}
	}

	for _, id := range p.Metadata.Identifiers {
		if p.UniqueIdentifier != "" && id.ID == p.UniqueIdentifier {
			md.Identifier = strings.TrimSpace(id.Value)
			break
		}
	}
	if md.Identifier == "" {
		md.Identifier = firstValue(p.Metadata.Identifiers)
	}
	return md
}

// spineDocuments resolves spine itemrefs to archive paths in reading order.
func (p *opfPackage) spineDocuments(opfPath string) []string {
	byID := make(map[string]opfItem, len(p.Manifest))
	for _, item := range p.Manifest {
		byID[item.ID] = item
	}

	var docs []string
	for _, ref := range p.Spine {
		item, ok := byID[ref.IDRef]
		if !ok {
			continue
		}
		if resolved := resolveHref(opfPath, item.Href); resolved != "" {
			docs = append(docs, resolved)
		}
	}
	return docs
}

// manifestImages lists image/* manifest items in manifest order.
func (p *opfPackage) manifestImages(opfPath string) []string {
	var images []string
	for _, item := range p.Manifest {
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(item.MediaType)), "image/") {
			continue
		}
		if resolved := resolveHref(opfPath, item.Href); resolved != "" {
			images = append(images, resolved)
		}
	}
	return images
}

func firstValue(elems []dcElement) string {
	for _, e := range elems {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

// resolveHref joins a relative href onto the directory of base. Absolute,
// remote and root-escaping references resolve to "".
func resolveHref(base, href string) string {
	href = strings.TrimSpace(href)
	if i := strings.IndexAny(href, "#?"); i >= 0 {
		href = href[:i]
	}
	if href == "" || strings.HasPrefix(href, "/") || hasScheme(href) {
		return ""
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	cleaned := path.Clean(path.Join(path.Dir(base), href))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return ""
	}
	return cleaned
}

// hasScheme reports whether s starts with an RFC 3986 scheme such as
// "http:" or "data:".
func hasScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ':':
			return i > 1
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return false
}
