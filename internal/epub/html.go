package epub

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// imageRefs returns the archive paths of images referenced by a content
// document, in document order. Relative references are resolved against
// docPath.
func imageRefs(doc []byte, docPath string) ([]string, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, err
	}

	var refs []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, raw := range imageAttrs(n) {
				if resolved := resolveHref(docPath, raw); resolved != "" {
					refs = append(refs, resolved)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return refs, nil
}

// imageAttrs picks the image source of <img> and SVG <image> elements. The
// HTML parser rewrites a bare <image> outside SVG to <img>.
func imageAttrs(n *html.Node) []string {
	var out []string
	switch {
	case n.DataAtom == atom.Img:
		for _, a := range n.Attr {
			if a.Namespace == "" && a.Key == "src" {
				out = append(out, a.Val)
			}
		}
	case n.DataAtom == atom.Image || strings.EqualFold(n.Data, "image"):
		for _, a := range n.Attr {
			if a.Key == "href" || a.Key == "xlink:href" {
				out = append(out, a.Val)
			}
		}
	}
	return out
}
