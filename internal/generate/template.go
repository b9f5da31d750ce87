package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/quality"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/stage"
)

const stylesheet = `body{margin:0;font-family:system-ui,sans-serif;color:#222;line-height:1.5}
.hero{padding:4rem 1.5rem;background:#1f3a5f;color:#fff;text-align:center}
.hero .tagline{font-size:1.25rem;opacity:.85}
main{max-width:60rem;margin:0 auto;padding:1.5rem}
section{margin:2.5rem 0}
.gallery{display:grid;grid-template-columns:repeat(auto-fill,minmax(12rem,1fr));gap:.75rem}
.gallery img{width:100%;border-radius:.5rem}
blockquote{margin:1rem 0;padding-left:1rem;border-left:3px solid #1f3a5f}
footer{padding:2rem;text-align:center;color:#666}
`

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="styles.css">
</head>
<body>
<header class="hero"><h1>{{.Title}}</h1>{{with .Tagline}}<p class="tagline">{{.}}</p>{{end}}</header>
<main>
{{range .Sections}}<section id="{{.ID}}"><h2>{{.Heading}}</h2>
{{with .HTML}}{{.}}{{end}}{{with .Items}}<ul>{{range .}}<li>{{.}}</li>{{end}}</ul>{{end}}{{with .Images}}<div class="gallery">{{range .}}<img src="{{.URL}}" alt="{{.Alt}}">{{end}}</div>{{end}}{{range .Reviews}}<blockquote><p>{{.Text}}</p><cite>{{.Author}}</cite></blockquote>{{end}}
</section>
{{end}}</main>
<footer><p>{{.Title}}</p></footer>
</body>
</html>
`))

type pageView struct {
	Title    string
	Tagline  string
	Sections []sectionView
}

type sectionView struct {
	ID      string
	Heading string
	HTML    template.HTML
	Items   []string
	Images  []imageView
	Reviews []reviewView
}

type imageView struct{ URL, Alt string }

type reviewView struct{ Author, Text string }

// TemplateGenerator builds pages locally from the fetched record. Its output
// is deterministic; repairs patch the prior candidate for the violations it
// knows how to fix and regenerate otherwise.
type TemplateGenerator struct {
	cdn string
	md  goldmark.Markdown
}

func NewTemplateGenerator(cdn string) *TemplateGenerator {
	return &TemplateGenerator{cdn: cdn, md: goldmark.New()}
}

func (g *TemplateGenerator) Generate(ctx context.Context, in stage.Input) (artifact.Files, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch in.Stage {
	case stage.Plan:
		return g.plan(in)
	case stage.Page:
		return g.page(in)
	case stage.Polish:
		page, ok := in.Prior[stage.Page]
		if !ok {
			return nil, errors.GenerationError("polish needs the page stage output").Build()
		}
		return g.patch(page, in.Data, []quality.FixInstruction{
			{Code: quality.CodeCDNMissing},
			{Code: quality.CodeImgAltMissing},
			{Code: quality.CodeInlineStyleDensity},
		})
	default:
		return nil, errors.GenerationError(fmt.Sprintf("template generator has no stage %q", in.Stage)).
			WithRetry(errors.RetryNever).
			Build()
	}
}

func (g *TemplateGenerator) Repair(ctx context.Context, in stage.Input, prior artifact.Files, fixes []quality.FixInstruction) (artifact.Files, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Stage == stage.Plan {
		return g.plan(in)
	}
	if _, ok := prior.Primary(); !ok {
		return g.Generate(ctx, in)
	}
	for _, f := range fixes {
		switch f.Code {
		case quality.CodePrimaryMissing, quality.CodeEmptyBody, quality.CodeTitleMissing:
			return g.Generate(ctx, in)
		}
	}
	return g.patch(prior, in.Data, fixes)
}

func (g *TemplateGenerator) plan(in stage.Input) (artifact.Files, error) {
	name := strings.TrimSpace(str(in.Data, "name"))
	if name == "" {
		name = in.Key
	}
	p := quality.Plan{Title: name, Tagline: str(in.Data, "tagline")}
	add := func(id, heading, body string) {
		p.Sections = append(p.Sections, quality.PlanSection{ID: id, Heading: heading, Body: body})
	}
	add("about", "About", str(in.Data, "summary"))
	if len(list(in.Data, "photos")) > 0 {
		add("gallery", "Gallery", "")
	}
	if len(list(in.Data, "reviews")) > 0 {
		add("reviews", "What guests say", "")
	}
	if len(list(in.Data, "hours")) > 0 {
		add("hours", "Opening hours", "")
	}
	if str(in.Data, "address") != "" || str(in.Data, "phone") != "" {
		add("contact", "Visit us", "")
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, errors.GenerationError("failed to encode plan").WithCause(err).Build()
	}
	return artifact.Files{quality.PlanPath: artifact.NewFile(quality.PlanPath, data)}, nil
}

func (g *TemplateGenerator) page(in stage.Input) (artifact.Files, error) {
	planFiles, ok := in.Prior[stage.Plan]
	if !ok {
		return nil, errors.GenerationError("page needs the plan stage output").Build()
	}
	var p quality.Plan
	if err := json.Unmarshal(planFiles[quality.PlanPath].Content, &p); err != nil {
		return nil, errors.GenerationError("plan is not decodable").WithCause(err).Build()
	}

	view := pageView{Title: p.Title, Tagline: p.Tagline}
	for _, s := range p.Sections {
		sv := sectionView{ID: s.ID, Heading: s.Heading}
		switch s.ID {
		case "about":
			var buf bytes.Buffer
			if err := g.md.Convert([]byte(s.Body), &buf); err != nil {
				return nil, errors.GenerationError("failed to render summary").WithCause(err).Build()
			}
			if strings.TrimSpace(buf.String()) == "" {
				buf.WriteString("<p>Welcome to " + template.HTMLEscapeString(p.Title) + ".</p>")
			}
			sv.HTML = template.HTML(buf.String())
		case "gallery":
			sv.Images = images(in.Data, p.Title)
		case "reviews":
			sv.Reviews = reviews(in.Data)
		case "hours":
			sv.Items = stringItems(list(in.Data, "hours"))
		case "contact":
			for _, k := range []string{"address", "phone", "website"} {
				if v := str(in.Data, k); v != "" {
					sv.Items = append(sv.Items, v)
				}
			}
		}
		view.Sections = append(view.Sections, sv)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, view); err != nil {
		return nil, errors.GenerationError("failed to render page").WithCause(err).Build()
	}
	return artifact.Files{
		artifact.PrimaryPath: artifact.NewFile(artifact.PrimaryPath, buf.Bytes()),
		"styles.css":         artifact.NewFile("styles.css", []byte(stylesheet)),
	}, nil
}

func images(data map[string]any, name string) []imageView {
	var out []imageView
	for _, item := range list(data, "photos") {
		switch v := item.(type) {
		case string:
			out = append(out, imageView{URL: v, Alt: name})
		case map[string]any:
			alt := str(v, "caption")
			if alt == "" {
				alt = name
			}
			out = append(out, imageView{URL: str(v, "url"), Alt: alt})
		}
	}
	return out
}

func reviews(data map[string]any) []reviewView {
	var out []reviewView
	for _, item := range list(data, "reviews") {
		if m, ok := item.(map[string]any); ok && str(m, "text") != "" {
			out = append(out, reviewView{Author: str(m, "author"), Text: str(m, "text")})
		}
	}
	return out
}

func stringItems(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
