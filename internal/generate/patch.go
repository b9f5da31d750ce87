package generate

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/quality"
)

// patch applies the fixes it understands to a copy of files' primary
// document. Unknown codes are ignored.
func (g *TemplateGenerator) patch(files artifact.Files, data map[string]any, fixes []quality.FixInstruction) (artifact.Files, error) {
	out := files.Clone()
	primary, ok := out.Primary()
	if !ok {
		return nil, errors.GenerationError("candidate has no primary document").Build()
	}
	root, err := html.Parse(bytes.NewReader(primary.Content))
	if err != nil {
		return nil, errors.GenerationError("failed to parse candidate").WithCause(err).Build()
	}
	name := str(data, "name")
	if name == "" {
		name = "Photo"
	}

	for _, f := range fixes {
		switch f.Code {
		case quality.CodeImgAltMissing:
			eachElement(root, func(n *html.Node) {
				if n.DataAtom == atom.Img && strings.TrimSpace(getAttr(n, "alt")) == "" {
					setAttr(n, "alt", name)
				}
			})
		case quality.CodeCDNMissing:
			if g.cdn == "" {
				continue
			}
			head := findElement(root, atom.Head)
			if head == nil || hasCDN(root, g.cdn) {
				continue
			}
			head.AppendChild(&html.Node{
				Type:     html.ElementNode,
				Data:     "link",
				DataAtom: atom.Link,
				Attr:     []html.Attribute{{Key: "rel", Val: "stylesheet"}, {Key: "href", Val: g.cdn}},
			})
		case quality.CodeInlineStyleDensity:
			if body := findElement(root, atom.Body); body != nil {
				eachElement(body, func(n *html.Node) { delAttr(n, "style") })
			}
		case quality.CodeAssetUnresolved:
			removeRefs(root, f.Detail)
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return nil, errors.GenerationError("failed to render candidate").WithCause(err).Build()
	}
	out[artifact.PrimaryPath] = artifact.NewFile(artifact.PrimaryPath, buf.Bytes())
	return out, nil
}

func hasCDN(root *html.Node, prefix string) bool {
	found := false
	eachElement(root, func(n *html.Node) {
		switch n.DataAtom {
		case atom.Link:
			found = found || strings.HasPrefix(getAttr(n, "href"), prefix)
		case atom.Script:
			found = found || strings.HasPrefix(getAttr(n, "src"), prefix)
		}
	})
	return found
}

// removeRefs drops elements whose local reference resolves to p.
func removeRefs(root *html.Node, p string) {
	if p == "" {
		return
	}
	var doomed []*html.Node
	eachElement(root, func(n *html.Node) {
		ref := ""
		switch n.DataAtom {
		case atom.Link:
			ref = getAttr(n, "href")
		case atom.Script, atom.Img:
			ref = getAttr(n, "src")
		}
		if ref != "" && artifact.NormalizeRef(ref) == p {
			doomed = append(doomed, n)
		}
	})
	for _, n := range doomed {
		n.Parent.RemoveChild(n)
	}
}

func eachElement(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		eachElement(c, fn)
	}
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findElement(c, a); f != nil {
			return f
		}
	}
	return nil
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

func delAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}
