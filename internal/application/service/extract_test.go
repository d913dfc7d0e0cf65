package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Fallback Title</title>
  <meta property="og:title" content="A Proper Article"/>
  <meta property="og:description" content="What the article is about."/>
  <meta property="og:image" content="https://cdn.example.com/lead.jpg"/>
</head>
<body>
  <nav>Home | About | Contact</nav>
  <article>
    <h1>A Proper Article</h1>
    <p>The first paragraph carries the lead and is comfortably long enough to count as body text.</p>
    <p>The second paragraph continues the argument with additional supporting detail and context.</p>
    <p>The second paragraph continues the argument with additional supporting detail and context.</p>
  </article>
  <footer>Copyright</footer>
  <script>alert("nope")</script>
</body>
</html>`

func TestExtractMetadataFromOpenGraph(t *testing.T) {
	svc := NewExtractService()
	result := svc.Extract(articleHTML, "https://example.com/posts/a-proper-article", DefaultExtractOptions())

	assert.Equal(t, "A Proper Article", result.Title)
	assert.Equal(t, "What the article is about.", result.Description)
	assert.Equal(t, "https://cdn.example.com/lead.jpg", result.ImageURL)
}

func TestExtractBodyStripsBoilerplate(t *testing.T) {
	svc := NewExtractService()
	result := svc.Extract(articleHTML, "https://example.com/a", DefaultExtractOptions())

	assert.Contains(t, result.Text, "first paragraph carries the lead")
	assert.NotContains(t, result.Text, "Home | About")
	assert.NotContains(t, result.Text, "alert")
}

func TestExtractDeduplicates(t *testing.T) {
	svc := NewExtractService()
	result := svc.Extract(articleHTML, "https://example.com/a", DefaultExtractOptions())

	first := "second paragraph continues the argument"
	count := 0
	for i := 0; i+len(first) <= len(result.Text); i++ {
		if result.Text[i:i+len(first)] == first {
			count++
		}
	}
	assert.Equal(t, 1, count, "duplicated paragraphs collapse when deduplicate is on")
}

func TestExtractTitleFallbacks(t *testing.T) {
	svc := NewExtractService()

	t.Run("title tag", func(t *testing.T) {
		html := `<html><head><title>Only Title Tag</title></head><body><p>Some body text that is long enough.</p></body></html>`
		result := svc.Extract(html, "https://example.com/x", DefaultExtractOptions())
		assert.Equal(t, "Only Title Tag", result.Title)
	})

	t.Run("h1 fallback", func(t *testing.T) {
		html := `<html><body><h1>Heading Title</h1><p>Some body text that is long enough to matter.</p></body></html>`
		result := svc.Extract(html, "https://example.com/x", DefaultExtractOptions())
		assert.Equal(t, "Heading Title", result.Title)
	})

	t.Run("url path fallback", func(t *testing.T) {
		html := `<html><body><p>Some body text that is long enough to matter here.</p></body></html>`
		result := svc.Extract(html, "https://example.com/posts/my-great-article.html", DefaultExtractOptions())
		assert.Equal(t, "my great article", result.Title)
	})
}

func TestExtractDescriptionFromFirstParagraph(t *testing.T) {
	svc := NewExtractService()
	html := `<html><body><article><p>` +
		`An opening paragraph that should become the description when no meta description exists anywhere in the page.` +
		`</p></article></body></html>`
	result := svc.Extract(html, "https://example.com/x", DefaultExtractOptions())
	require.NotEmpty(t, result.Description)
	assert.LessOrEqual(t, len([]rune(result.Description)), 240)
}

func TestExtractNeverErrorsOnGarbage(t *testing.T) {
	svc := NewExtractService()

	for _, input := range []string{"", "   ", "<<<<>>>", "<html>"} {
		result := svc.Extract(input, "https://example.com", DefaultExtractOptions())
		require.NotNil(t, result)
	}
}

func TestExtractMarkdownHeadings(t *testing.T) {
	svc := NewExtractService()
	result := svc.Extract(articleHTML, "https://example.com/a", DefaultExtractOptions())
	assert.Contains(t, result.Markdown, "# A Proper Article")
}
