package artifact

import (
	"bytes"
	"encoding/base64"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
)

// Inliner renders the primary document of a bundle. Stylesheets, scripts and
// images that live in the bundle and are smaller than Threshold bytes are
// embedded; larger ones are linked under LinkPrefix.
type Inliner struct {
	Threshold  int64
	LinkPrefix string // e.g. "/builds/<id>/files/"
}

// Render returns the primary document with every local reference resolved.
func (in Inliner) Render(b Bundle) ([]byte, error) {
	primary, ok := b.Files.Primary()
	if !ok {
		return nil, ErrNotFound.WithContext("path", PrimaryPath)
	}
	doc, err := html.Parse(bytes.NewReader(primary.Content))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryValidation, "failed to parse primary document").Build()
	}

	var targets []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Link, atom.Script, atom.Img:
				targets = append(targets, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, n := range targets {
		in.resolve(n, b.Files)
	}

	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "failed to render primary document").Build()
	}
	return out.Bytes(), nil
}

func (in Inliner) resolve(n *html.Node, files Files) {
	attr := "src"
	if n.DataAtom == atom.Link {
		if !hasToken(getAttr(n, "rel"), "stylesheet") {
			return
		}
		attr = "href"
	}
	p := NormalizeRef(getAttr(n, attr))
	if p == "" {
		return
	}
	f, ok := files[p]
	if !ok {
		return
	}
	if f.Size() >= in.Threshold {
		setAttr(n, attr, in.LinkPrefix+p)
		return
	}

	switch n.DataAtom {
	case atom.Link:
		style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
		style.AppendChild(&html.Node{Type: html.TextNode, Data: string(f.Content)})
		n.Parent.InsertBefore(style, n)
		n.Parent.RemoveChild(n)
	case atom.Script:
		removeAttr(n, "src")
		for c := n.FirstChild; c != nil; c = n.FirstChild {
			n.RemoveChild(c)
		}
		body := strings.ReplaceAll(string(f.Content), "</script", `<\/script`)
		n.AppendChild(&html.Node{Type: html.TextNode, Data: body})
	case atom.Img:
		mt := f.MediaType
		if mt == "" {
			mt = MediaTypeFor(p)
		}
		setAttr(n, "src", "data:"+mt+";base64,"+base64.StdEncoding.EncodeToString(f.Content))
	}
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			attrs = append(attrs, a)
		}
	}
	n.Attr = attrs
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}
