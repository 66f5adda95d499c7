package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Annual Report</title></head>
<body>
<nav>Home | About | Contact</nav>
<article>
<h1>Management Discussion</h1>
<p>Revenue increased by twelve percent year over year driven by strong subscription growth in all regions.</p>
<p>Operating expenses were flat compared to the prior quarter despite continued investment in infrastructure.</p>
<h2>Risk Factors</h2>
<p>Supply chain constraints may impact delivery schedules during the next two fiscal quarters.</p>
</article>
<footer>Copyright 2026</footer>
</body>
</html>`

func TestHTMLExtractorSections(t *testing.T) {
	e := NewHTMLExtractor()

	sections, err := e.Extract([]byte(samplePage))
	require.NoError(t, err)
	require.NotEmpty(t, sections)

	var titles []string
	var allText string
	for _, s := range sections {
		titles = append(titles, s.Title)
		allText += s.Text() + "\n"
	}

	assert.Contains(t, titles, "Management Discussion")
	assert.Contains(t, allText, "Revenue increased by twelve percent")
	assert.NotContains(t, allText, "Copyright 2026")
}

func TestSplitMarkdownSections(t *testing.T) {
	markdown := "intro paragraph before any heading\n\n# First\n\npara one\nwrapped line\n\npara two\n\n## Second\n\npara three"

	sections := splitMarkdownSections(markdown)
	require.Len(t, sections, 3)

	assert.Equal(t, "", sections[0].Title)
	assert.Equal(t, []string{"intro paragraph before any heading"}, sections[0].Paragraphs)

	assert.Equal(t, "First", sections[1].Title)
	assert.Equal(t, []string{"para one wrapped line", "para two"}, sections[1].Paragraphs)

	assert.Equal(t, "Second", sections[2].Title)
	assert.Equal(t, []string{"para three"}, sections[2].Paragraphs)
}

func TestExtractHTMLTitle(t *testing.T) {
	assert.Equal(t, "Annual Report", extractHTMLTitle([]byte(samplePage)))
	assert.Equal(t, "", extractHTMLTitle([]byte("<p>no title</p>")))
}
