package service

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/dyatlov/go-opengraph/opengraph"
	"github.com/marginalia-labs/marginalia/internal/utils"
)

// ExtractOptions are the per-domain extraction flags.
type ExtractOptions struct {
	FavorPrecision  bool
	FavorRecall     bool
	IncludeTables   bool
	IncludeComments bool
	Deduplicate     bool
}

// DefaultExtractOptions favors recall with deduplication, the profile used
// when no per-domain override is configured.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{FavorRecall: true, Deduplicate: true}
}

// ExtractResult is the clean article text plus basic metadata.
type ExtractResult struct {
	Title       string
	Description string
	ImageURL    string
	Text        string
	Markdown    string
}

// landmarkSelectors are tried in order when picking the article container;
// the densest matching block wins.
var landmarkSelectors = []cascadia.Selector{
	cascadia.MustCompile("article"),
	cascadia.MustCompile("main"),
	cascadia.MustCompile("[role=main]"),
	cascadia.MustCompile("#content, .content, .post-content, .article-content, .entry-content"),
	cascadia.MustCompile("body"),
}

var boilerplateSelector = cascadia.MustCompile(
	"script, style, noscript, nav, aside, footer, header, form, iframe, svg, button, " +
		"[role=navigation], [role=banner], [role=contentinfo], .sidebar, .advertisement, .ad",
)

var commentSelector = cascadia.MustCompile(
	"#comments, .comments, .comment-list, [id*=comment-], .disqus_thread",
)

var whitespaceRE = regexp.MustCompile(`[ \t]+`)

// ExtractService strips boilerplate from fetched HTML and recovers title,
// description, lead image and the article body. It never returns an
// error: on catastrophic failure every field is empty and the orchestrator
// carries on with user-supplied fields.
type ExtractService struct{}

func NewExtractService() *ExtractService { return &ExtractService{} }

// Extract applies the layered strategy: OpenGraph metadata first,
// then a DOM density heuristic for the body.
func (s *ExtractService) Extract(html, pageURL string, opts ExtractOptions) *ExtractResult {
	result := &ExtractResult{}
	if strings.TrimSpace(html) == "" {
		return result
	}

	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(strings.NewReader(html)); err == nil {
		result.Title = strings.TrimSpace(og.Title)
		result.Description = strings.TrimSpace(og.Description)
		if len(og.Images) > 0 && og.Images[0] != nil {
			if img := resolveURL(pageURL, og.Images[0].URL); utils.IsValidImageURL(img) {
				result.ImageURL = img
			}
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return result
	}

	if result.Title == "" {
		result.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if result.Title == "" {
		result.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if result.Title == "" {
		result.Title = titleFromURLPath(pageURL)
	}
	if result.Description == "" {
		result.Description, _ = doc.Find(`meta[name=description]`).Attr("content")
		result.Description = strings.TrimSpace(result.Description)
	}

	doc.FindMatcher(boilerplateSelector).Remove()
	if !opts.IncludeComments {
		doc.FindMatcher(commentSelector).Remove()
	}
	if !opts.IncludeTables {
		doc.Find("table").Remove()
	}

	container := s.pickContainer(doc, opts)
	if container == nil {
		return result
	}

	paragraphs, markdown := s.collectBlocks(container, opts)
	if opts.Deduplicate {
		paragraphs = dedupeParagraphs(paragraphs)
	}
	result.Text = strings.Join(paragraphs, "\n\n")
	result.Markdown = markdown

	if result.Description == "" && len(paragraphs) > 0 {
		result.Description = truncateRunes(paragraphs[0], 240)
	}
	return result
}

// pickContainer walks the landmark list and returns the densest text block.
// favor_precision stops at the first landmark that holds a plausible body;
// favor_recall keeps scanning for the densest one.
func (s *ExtractService) pickContainer(doc *goquery.Document, opts ExtractOptions) *goquery.Selection {
	var best *goquery.Selection
	var bestLen int
	for _, matcher := range landmarkSelectors {
		sel := doc.FindMatcher(matcher)
		if sel.Length() == 0 {
			continue
		}
		sel.Each(func(_ int, node *goquery.Selection) {
			textLen := len(strings.TrimSpace(node.Text()))
			if textLen > bestLen {
				best = node
				bestLen = textLen
			}
		})
		if best != nil && opts.FavorPrecision && bestLen > renderThresholdChars {
			return best
		}
	}
	return best
}

// collectBlocks flattens the container into paragraph strings and a light
// markdown rendition (headings and paragraphs only).
func (s *ExtractService) collectBlocks(container *goquery.Selection, opts ExtractOptions) ([]string, string) {
	var paragraphs []string
	var md strings.Builder
	container.Find("h1, h2, h3, h4, p, li, blockquote, pre, td").Each(func(_ int, node *goquery.Selection) {
		text := normalizeWhitespace(node.Text())
		if text == "" {
			return
		}
		switch goquery.NodeName(node) {
		case "h1":
			md.WriteString("# " + text + "\n\n")
		case "h2":
			md.WriteString("## " + text + "\n\n")
		case "h3", "h4":
			md.WriteString("### " + text + "\n\n")
		case "li":
			if len(text) >= 20 || opts.FavorRecall {
				paragraphs = append(paragraphs, text)
			}
			md.WriteString("- " + text + "\n")
		default:
			// Very short fragments are navigation crumbs, not body text.
			if len(text) < 20 && !opts.FavorRecall {
				return
			}
			paragraphs = append(paragraphs, text)
			md.WriteString(text + "\n\n")
		}
	})
	if len(paragraphs) == 0 {
		// No block elements at all; fall back to the raw container text.
		if text := normalizeWhitespace(container.Text()); text != "" {
			paragraphs = append(paragraphs, text)
			md.WriteString(text + "\n")
		}
	}
	return paragraphs, md.String()
}

func dedupeParagraphs(paragraphs []string) []string {
	seen := make(map[string]struct{}, len(paragraphs))
	out := paragraphs[:0]
	for _, p := range paragraphs {
		key := strings.ToLower(p)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = whitespaceRE.ReplaceAllString(strings.TrimSpace(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, " "))
}

// titleFromURLPath derives a readable title from the last URL path segment.
func titleFromURLPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		return u.Hostname()
	}
	last = strings.TrimSuffix(last, ".html")
	last = strings.TrimSuffix(last, ".htm")
	last = strings.NewReplacer("-", " ", "_", " ").Replace(last)
	return strings.TrimSpace(last)
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	bu, err := url.Parse(base)
	if err != nil {
		return ref
	}
	ru, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return bu.ResolveReference(ru).String()
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
