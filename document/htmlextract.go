package document

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

var (
	headingRe        = regexp.MustCompile(`^#{1,3}\s+(.+)$`)
	excessiveLinesRe = regexp.MustCompile(`\n{4,}`)
)

// HTMLExtractor converts HTML documents into structured sections without UI
// boilerplate. Readability isolates the article body, markdown conversion
// flattens the remaining markup, and headings delimit sections.
type HTMLExtractor struct {
	converter *md.Converter
}

// NewHTMLExtractor creates an HTML extractor.
func NewHTMLExtractor() *HTMLExtractor {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &HTMLExtractor{converter: converter}
}

// Extract implements Extractor for HTML input.
func (e *HTMLExtractor) Extract(raw []byte) ([]NormalizedSection, error) {
	title, body := e.articleBody(raw)

	markdown, err := e.converter.ConvertString(body)
	if err != nil {
		return nil, err
	}
	markdown = excessiveLinesRe.ReplaceAllString(markdown, "\n\n\n")

	sections := splitMarkdownSections(markdown)
	if len(sections) > 0 && sections[0].Title == "" && title != "" {
		sections[0].Title = title
	}
	return sections, nil
}

// articleBody runs readability extraction, falling back to the raw document
// when the page has no recognizable article.
func (e *HTMLExtractor) articleBody(raw []byte) (title, body string) {
	article, err := readability.FromReader(bytes.NewReader(raw), &url.URL{})
	if err == nil && strings.TrimSpace(article.Content) != "" {
		return article.Title, article.Content
	}
	return extractHTMLTitle(raw), string(raw)
}

// splitMarkdownSections groups markdown content under h1-h3 headings.
func splitMarkdownSections(markdown string) []NormalizedSection {
	var sections []NormalizedSection
	current := NormalizedSection{}
	var paragraph []string

	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		text := strings.Join(strings.Fields(strings.Join(paragraph, " ")), " ")
		if text != "" {
			current.Paragraphs = append(current.Paragraphs, text)
		}
		paragraph = nil
	}
	flushSection := func() {
		flushParagraph()
		if current.Title != "" || len(current.Paragraphs) > 0 {
			sections = append(sections, current)
		}
		current = NormalizedSection{}
	}

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			flushSection()
			current.Title = strings.TrimSpace(m[1])
			continue
		}
		if trimmed == "" {
			flushParagraph()
			continue
		}
		paragraph = append(paragraph, trimmed)
	}
	flushSection()

	return sections
}

// extractHTMLTitle pulls the <title> text out of a raw HTML document.
func extractHTMLTitle(content []byte) string {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return ""
	}

	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil && title == ""; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return title
}
