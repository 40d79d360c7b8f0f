package htmlparse

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/nao1215/seocrawl/internal/model"
)

// Document is everything Parse extracts from one page.
type Document struct {
	// Title is the text of the first <title>.
	Title string

	// Lang is the <html lang> attribute.
	Lang string

	// Canonical is the absolute canonical URL, if declared.
	Canonical string

	// Meta maps lower-cased meta names and properties to their content.
	// http-equiv entries are keyed "http-equiv:<name>".
	Meta map[string]string

	// Headings maps "h1".."h6" to the trimmed text of each heading.
	Headings map[string][]string

	// Links are the anchors with an http(s) target, in document order.
	Links []Link

	// Images are the <img> elements.
	Images []Image

	// Hreflang lists <link rel="alternate" hreflang> entries.
	Hreflang []Alternate

	// StructuredData holds each JSON-LD block that parsed as JSON.
	StructuredData []json.RawMessage

	// WordCount counts words of visible text outside script, style, nav,
	// header and footer elements.
	WordCount int
}

// Link is one anchor.
type Link struct {
	URL      string
	Text     string
	Rel      string
	Internal bool
	NoFollow bool
}

// Image is one <img>.
type Image struct {
	Src     string
	Alt     string
	HasAlt  bool
	Loading string
}

// Alternate is one hreflang alternate.
type Alternate struct {
	Lang string
	URL  string
}

// skipped elements do not contribute to the word count.
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"nav":      true,
	"header":   true,
	"footer":   true,
}

// Parse parses body fetched from baseURL. contentType may be empty.
func Parse(body []byte, contentType, baseURL string) (*Document, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}

	r, err := decode(body, contentType)
	if err != nil {
		return nil, err
	}
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	p := &parser{base: base}
	doc := goquery.NewDocumentFromNode(root)
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			p.base = b
		}
	}

	out := &Document{
		Meta:     make(map[string]string),
		Headings: make(map[string][]string),
	}
	p.head(doc, out)

	var words int
	var walk func(n *html.Node, visible bool)
	walk = func(n *html.Node, visible bool) {
		switch n.Type {
		case html.ElementNode:
			p.element(n, out)
			if skipped[n.Data] {
				visible = false
			}
		case html.TextNode:
			if visible {
				words += len(strings.Fields(n.Data))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, visible)
		}
	}
	walk(root, true)
	out.WordCount = words

	return out, nil
}

type parser struct {
	base *url.URL
}

// head collects the selector-friendly parts of the document.
func (p *parser) head(doc *goquery.Document, out *Document) {
	out.Title = strings.TrimSpace(doc.Find("title").First().Text())
	out.Lang = strings.TrimSpace(doc.Find("html").First().AttrOr("lang", ""))

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if name := strings.ToLower(s.AttrOr("name", "")); name != "" {
			out.Meta[name] = content
		}
		if prop := strings.ToLower(s.AttrOr("property", "")); prop != "" {
			out.Meta[prop] = content
		}
		if equiv := strings.ToLower(s.AttrOr("http-equiv", "")); equiv != "" {
			out.Meta["http-equiv:"+equiv] = content
		}
	})

	doc.Find("link[rel]").Each(func(_ int, s *goquery.Selection) {
		rels := strings.Fields(strings.ToLower(s.AttrOr("rel", "")))
		href := s.AttrOr("href", "")
		for _, rel := range rels {
			switch rel {
			case "canonical":
				if out.Canonical == "" {
					out.Canonical = p.resolve(href)
				}
			case "alternate":
				if lang, ok := s.Attr("hreflang"); ok {
					if u := p.resolve(href); u != "" {
						out.Hreflang = append(out.Hreflang, Alternate{Lang: lang, URL: u})
					}
				}
			}
		}
	})

	for level := 1; level <= 6; level++ {
		tag := fmt.Sprintf("h%d", level)
		doc.Find(tag).Each(func(_ int, s *goquery.Selection) {
			if text := collapse(s.Text()); text != "" {
				out.Headings[tag] = append(out.Headings[tag], text)
			}
		})
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if json.Valid([]byte(raw)) {
			out.StructuredData = append(out.StructuredData, json.RawMessage(raw))
		}
	})
}

// element handles anchors and images during the DOM walk.
func (p *parser) element(n *html.Node, out *Document) {
	switch n.Data {
	case "a":
		href := getAttr(n, "href")
		u := p.resolve(href)
		if u == "" {
			return
		}
		rel := strings.ToLower(getAttr(n, "rel"))
		out.Links = append(out.Links, Link{
			URL:      u,
			Text:     collapse(textOf(n)),
			Rel:      rel,
			Internal: p.internal(u),
			NoFollow: containsToken(rel, "nofollow"),
		})
	case "img":
		alt, hasAlt := lookupAttr(n, "alt")
		out.Images = append(out.Images, Image{
			Src:     p.resolve(getAttr(n, "src")),
			Alt:     alt,
			HasAlt:  hasAlt && strings.TrimSpace(alt) != "",
			Loading: getAttr(n, "loading"),
		})
	}
}

// resolve turns href into an absolute http(s) URL without fragment.
// Non-navigable references return "".
func (p *parser) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	u, err := p.base.Parse(href)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func (p *parser) internal(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, p.base.Host)
}

// Info summarizes the document for a crawl result.
func (d *Document) Info() *model.PageInfo {
	info := &model.PageInfo{
		Title:           d.Title,
		MetaDescription: d.Meta["description"],
		MetaRobots:      d.Meta["robots"],
		Canonical:       d.Canonical,
		Lang:            d.Lang,
		H1:              d.Headings["h1"],
		Images:          len(d.Images),
		SchemaTypes:     d.SchemaTypes(),
		WordCount:       d.WordCount,
	}
	for _, l := range d.Links {
		info.Links = append(info.Links, l.URL)
		if l.Internal {
			info.InternalLinks++
		} else {
			info.ExternalLinks++
		}
	}
	for _, img := range d.Images {
		if !img.HasAlt {
			info.ImagesMissingAlt++
		}
	}
	return info
}

// InternalLinks returns the links on the page's own host.
func (d *Document) InternalLinks() []Link {
	var out []Link
	for _, l := range d.Links {
		if l.Internal {
			out = append(out, l)
		}
	}
	return out
}

// ExternalLinks returns the links to other hosts.
func (d *Document) ExternalLinks() []Link {
	var out []Link
	for _, l := range d.Links {
		if !l.Internal {
			out = append(out, l)
		}
	}
	return out
}

// SchemaTypes returns the @type values of the JSON-LD blocks, including
// those nested in @graph.
func (d *Document) SchemaTypes() []string {
	var types []string
	var visit func(v any)
	visit = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				visit(item)
			}
		case map[string]any:
			switch typ := t["@type"].(type) {
			case string:
				types = append(types, typ)
			case []any:
				for _, s := range typ {
					if str, ok := s.(string); ok {
						types = append(types, str)
					}
				}
			}
			if graph, ok := t["@graph"]; ok {
				visit(graph)
			}
		}
	}
	for _, raw := range d.StructuredData {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			visit(v)
		}
	}
	return types
}

// OpenGraph returns the og:* meta properties without the prefix.
func (d *Document) OpenGraph() map[string]string {
	return d.prefixed("og:")
}

// TwitterCard returns the twitter:* meta names without the prefix.
func (d *Document) TwitterCard() map[string]string {
	return d.prefixed("twitter:")
}

func (d *Document) prefixed(prefix string) map[string]string {
	out := make(map[string]string)
	for k, v := range d.Meta {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			out[rest] = v
		}
	}
	return out
}

func getAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func containsToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if f == token {
			return true
		}
	}
	return false
}

// Extractor parses pages for the crawler.
type Extractor struct{}

// Extract parses body and returns the page summary. Links are absolute,
// fragment-free http(s) URLs on any host.
func (Extractor) Extract(body []byte, contentType, baseURL string) (*model.PageInfo, error) {
	doc, err := Parse(body, contentType, baseURL)
	if err != nil {
		return nil, err
	}
	return doc.Info(), nil
}
