package htmlparse

import (
	"errors"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

const page = `<!DOCTYPE html>
<html lang="en">
<head>
  <title>  Example   Home </title>
  <meta name="description" content="An example page">
  <meta name="Robots" content="index, follow">
  <meta property="og:title" content="OG Title">
  <meta name="twitter:card" content="summary">
  <meta http-equiv="refresh" content="30">
  <link rel="canonical" href="/home">
  <link rel="alternate" hreflang="de" href="https://example.com/de/">
  <script type="application/ld+json">{"@context":"https://schema.org","@type":"Organization","name":"Ex"}</script>
  <script type="application/ld+json">{"@graph":[{"@type":"WebSite"},{"@type":["Article","NewsArticle"]}]}</script>
  <script type="application/ld+json">{not json}</script>
</head>
<body>
  <nav><a href="/nav-link">Navigation words here</a></nav>
  <h1>Main <em>heading</em></h1>
  <h2>Sub</h2>
  <p>Three visible words <a href="about#team">About us</a></p>
  <a href="https://other.example.org/x" rel="nofollow noopener">Out</a>
  <a href="mailto:a@example.com">Mail</a>
  <a href="javascript:void(0)">JS</a>
  <a href="#top">Top</a>
  <a href="ftp://example.com/file">FTP</a>
  <img src="/logo.png" alt="Logo">
  <img src="/spacer.gif" alt="">
  <img src="/photo.jpg">
  <script>var ignored = "words in script";</script>
</body>
</html>`

func TestParse(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(page), "text/html; charset=utf-8", "https://example.com/dir/index.html")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	t.Run("head", func(t *testing.T) {
		t.Parallel()

		if doc.Title != "Example   Home" {
			t.Errorf("Title = %q", doc.Title)
		}
		if doc.Lang != "en" {
			t.Errorf("Lang = %q", doc.Lang)
		}
		if doc.Canonical != "https://example.com/home" {
			t.Errorf("Canonical = %q", doc.Canonical)
		}
		if doc.Meta["description"] != "An example page" || doc.Meta["robots"] != "index, follow" {
			t.Errorf("Meta = %v", doc.Meta)
		}
		if doc.Meta["http-equiv:refresh"] != "30" {
			t.Errorf("http-equiv meta = %q", doc.Meta["http-equiv:refresh"])
		}
		if og := doc.OpenGraph(); og["title"] != "OG Title" {
			t.Errorf("OpenGraph() = %v", og)
		}
		if tw := doc.TwitterCard(); tw["card"] != "summary" {
			t.Errorf("TwitterCard() = %v", tw)
		}
		if len(doc.Hreflang) != 1 || doc.Hreflang[0].Lang != "de" {
			t.Errorf("Hreflang = %v", doc.Hreflang)
		}
	})

	t.Run("structured data", func(t *testing.T) {
		t.Parallel()

		if len(doc.StructuredData) != 2 {
			t.Fatalf("len(StructuredData) = %d, want 2 valid blocks", len(doc.StructuredData))
		}
		want := []string{"Organization", "WebSite", "Article", "NewsArticle"}
		got := doc.SchemaTypes()
		if len(got) != len(want) {
			t.Fatalf("SchemaTypes() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("SchemaTypes()[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("links", func(t *testing.T) {
		t.Parallel()

		want := []Link{
			{URL: "https://example.com/nav-link", Text: "Navigation words here", Internal: true},
			{URL: "https://example.com/dir/about", Text: "About us", Internal: true},
			{URL: "https://other.example.org/x", Text: "Out", Rel: "nofollow noopener", NoFollow: true},
		}
		if len(doc.Links) != len(want) {
			t.Fatalf("Links = %+v, want %d links", doc.Links, len(want))
		}
		for i, w := range want {
			if doc.Links[i] != w {
				t.Errorf("Links[%d] = %+v, want %+v", i, doc.Links[i], w)
			}
		}
		if len(doc.InternalLinks()) != 2 || len(doc.ExternalLinks()) != 1 {
			t.Errorf("internal = %d, external = %d", len(doc.InternalLinks()), len(doc.ExternalLinks()))
		}
	})

	t.Run("headings and images", func(t *testing.T) {
		t.Parallel()

		if h1 := doc.Headings["h1"]; len(h1) != 1 || h1[0] != "Main heading" {
			t.Errorf("h1 = %v", h1)
		}
		if h2 := doc.Headings["h2"]; len(h2) != 1 || h2[0] != "Sub" {
			t.Errorf("h2 = %v", h2)
		}
		if len(doc.Images) != 3 {
			t.Fatalf("len(Images) = %d, want 3", len(doc.Images))
		}
		if !doc.Images[0].HasAlt || doc.Images[1].HasAlt || doc.Images[2].HasAlt {
			t.Errorf("Images = %+v", doc.Images)
		}
		if doc.Images[0].Src != "https://example.com/logo.png" {
			t.Errorf("Images[0].Src = %q", doc.Images[0].Src)
		}
	})

	t.Run("info", func(t *testing.T) {
		t.Parallel()

		info := doc.Info()
		if info.Title != doc.Title || info.MetaDescription != "An example page" {
			t.Errorf("Info() = %+v", info)
		}
		if info.InternalLinks != 2 || info.ExternalLinks != 1 || len(info.Links) != 3 {
			t.Errorf("link counts = %d/%d/%d", info.InternalLinks, info.ExternalLinks, len(info.Links))
		}
		if info.Images != 3 || info.ImagesMissingAlt != 2 {
			t.Errorf("images = %d, missing alt = %d", info.Images, info.ImagesMissingAlt)
		}
		if info.WordCount == 0 {
			t.Error("WordCount = 0")
		}
	})
}

func TestParseWordCount(t *testing.T) {
	t.Parallel()

	body := `<html><head><title>t</title><style>.a{}</style></head>
<body><header>skip me</header><p>one two three</p><footer>skip</footer><script>x y z</script><p>four</p></body></html>`

	doc, err := Parse([]byte(body), "", "https://example.com/")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	// "t" from the title counts as visible text as well.
	if doc.WordCount != 5 {
		t.Errorf("WordCount = %d, want 5", doc.WordCount)
	}
}

func TestParseBaseHref(t *testing.T) {
	t.Parallel()

	body := `<html><head><base href="https://cdn.example.com/sub/"></head><body><a href="page">x</a></body></html>`
	doc, err := Parse([]byte(body), "", "https://example.com/")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(doc.Links) != 1 || doc.Links[0].URL != "https://cdn.example.com/sub/page" {
		t.Errorf("Links = %+v", doc.Links)
	}
	if doc.Links[0].Internal {
		t.Error("link on base host counted as internal to the page host")
	}
}

func TestParseCharset(t *testing.T) {
	t.Parallel()

	latin1, err := charmap.ISO8859_1.NewEncoder().String(`<html><head><title>Café Crème</title></head><body></body></html>`)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("from content type", func(t *testing.T) {
		t.Parallel()

		doc, err := Parse([]byte(latin1), "text/html; charset=ISO-8859-1", "https://example.com/")
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if doc.Title != "Café Crème" {
			t.Errorf("Title = %q", doc.Title)
		}
	})

	t.Run("from meta", func(t *testing.T) {
		t.Parallel()

		body := `<html><head><meta charset="iso-8859-1">` + latin1[len("<html><head>"):]
		doc, err := Parse([]byte(body), "text/html", "https://example.com/")
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if doc.Title != "Café Crème" {
			t.Errorf("Title = %q", doc.Title)
		}
	})

	t.Run("unknown charset", func(t *testing.T) {
		t.Parallel()

		_, err := Parse([]byte("<html></html>"), "text/html; charset=klingon", "https://example.com/")
		if !errors.Is(err, ErrUnsupportedCharset) {
			t.Errorf("Parse() error = %v, want ErrUnsupportedCharset", err)
		}
	})
}

func TestParseInvalidBase(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte("<html></html>"), "", "://bad"); !errors.Is(err, ErrInvalidBaseURL) {
		t.Errorf("Parse() error = %v, want ErrInvalidBaseURL", err)
	}
}

func TestExtractor(t *testing.T) {
	t.Parallel()

	info, err := Extractor{}.Extract([]byte(page), "text/html", "https://example.com/dir/index.html")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if info.Title != "Example   Home" || len(info.Links) != 3 {
		t.Errorf("Extract() = %+v", info)
	}
}
