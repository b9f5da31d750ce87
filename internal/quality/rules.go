package quality

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
)

// Options tunes the default HTML rules.
type Options struct {
	RequiredCDN         string  // prefix a <link> or <script> URL must start with; empty disables the check
	MaxInlineStyleRatio float64 // share of body elements allowed to carry a style attribute
}

// StructureRules is the rule set for the page generation stage: the document
// must exist, be titled, have content and reference only files it ships.
func StructureRules() *RuleSet {
	return NewRuleSet(PrimaryRule{}, TitleRule{}, BodyRule{}, AssetRule{})
}

// DefaultRules is the full rule set used by the final QA stage.
func DefaultRules(opts Options) *RuleSet {
	return NewRuleSet(
		PrimaryRule{}, TitleRule{}, BodyRule{}, AssetRule{},
		AltTextRule{},
		CDNRule{Prefix: opts.RequiredCDN},
		InlineStyleRule{MaxRatio: opts.MaxInlineStyleRatio},
	)
}

// PrimaryRule requires index.html.
type PrimaryRule struct{}

func (PrimaryRule) Name() string { return "primary" }

func (PrimaryRule) Check(doc *Document) []Violation {
	if doc.Root != nil {
		return nil
	}
	return []Violation{{Code: CodePrimaryMissing, Severity: SeverityError}}
}

// TitleRule requires a non-empty <title>.
type TitleRule struct{}

func (TitleRule) Name() string { return "title" }

func (TitleRule) Check(doc *Document) []Violation {
	if doc.Root == nil {
		return nil
	}
	if t := find(doc.Root, atom.Title); t != nil && strings.TrimSpace(text(t)) != "" {
		return nil
	}
	return []Violation{{Code: CodeTitleMissing, Severity: SeverityError}}
}

// BodyRule requires visible content in <body>.
type BodyRule struct{}

func (BodyRule) Name() string { return "body" }

func (BodyRule) Check(doc *Document) []Violation {
	if doc.Root == nil {
		return nil
	}
	body := find(doc.Root, atom.Body)
	if body != nil && (strings.TrimSpace(text(body)) != "" || find(body, atom.Img) != nil) {
		return nil
	}
	return []Violation{{Code: CodeEmptyBody, Severity: SeverityError}}
}

// AltTextRule requires alt text on every image.
type AltTextRule struct{}

func (AltTextRule) Name() string { return "alt_text" }

func (AltTextRule) Check(doc *Document) []Violation {
	if doc.Root == nil {
		return nil
	}
	var out []Violation
	walk(doc.Root, func(n *html.Node) {
		if n.DataAtom == atom.Img && strings.TrimSpace(attr(n, "alt")) == "" {
			out = append(out, Violation{Code: CodeImgAltMissing, Severity: SeverityError, Detail: attr(n, "src")})
		}
	})
	return out
}

// AssetRule requires every local reference to resolve inside the bundle.
type AssetRule struct{}

func (AssetRule) Name() string { return "assets" }

func (AssetRule) Check(doc *Document) []Violation {
	if doc.Root == nil {
		return nil
	}
	var out []Violation
	walk(doc.Root, func(n *html.Node) {
		ref := ""
		switch n.DataAtom {
		case atom.Link:
			ref = attr(n, "href")
		case atom.Script, atom.Img:
			ref = attr(n, "src")
		default:
			return
		}
		p := artifact.NormalizeRef(ref)
		if p == "" {
			return
		}
		if _, ok := doc.Files[p]; !ok {
			out = append(out, Violation{Code: CodeAssetUnresolved, Severity: SeverityError, Detail: p})
		}
	})
	return out
}

// CDNRule requires at least one <link> or <script> loaded from Prefix.
type CDNRule struct {
	Prefix string
}

func (CDNRule) Name() string { return "cdn" }

func (r CDNRule) Check(doc *Document) []Violation {
	if doc.Root == nil || r.Prefix == "" {
		return nil
	}
	found := false
	walk(doc.Root, func(n *html.Node) {
		switch n.DataAtom {
		case atom.Link:
			found = found || strings.HasPrefix(attr(n, "href"), r.Prefix)
		case atom.Script:
			found = found || strings.HasPrefix(attr(n, "src"), r.Prefix)
		}
	})
	if found {
		return nil
	}
	return []Violation{{Code: CodeCDNMissing, Severity: SeverityError, Detail: r.Prefix}}
}

// InlineStyleRule warns when too many body elements carry style attributes.
type InlineStyleRule struct {
	MaxRatio float64
}

func (InlineStyleRule) Name() string { return "inline_style" }

func (r InlineStyleRule) Check(doc *Document) []Violation {
	if doc.Root == nil || r.MaxRatio <= 0 {
		return nil
	}
	body := find(doc.Root, atom.Body)
	if body == nil {
		return nil
	}
	total, styled := 0, 0
	walk(body, func(n *html.Node) {
		if n == body {
			return
		}
		total++
		if attr(n, "style") != "" {
			styled++
		}
	})
	if total == 0 {
		return nil
	}
	ratio := float64(styled) / float64(total)
	if ratio <= r.MaxRatio {
		return nil
	}
	return []Violation{{
		Code:     CodeInlineStyleDensity,
		Severity: SeverityWarning,
		Detail:   fmt.Sprintf("%d of %d elements styled inline (%.2f > %.2f)", styled, total, ratio, r.MaxRatio),
	}}
}

// walk visits element nodes in document order.
func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := find(c, a); f != nil {
			return f
		}
	}
	return nil
}

func text(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
