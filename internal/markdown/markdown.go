package markdown

import (
	"html/template"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	md "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

type Options struct {
	// RootURL marks absolute links that point back at this site.
	RootURL string
	// FragmentLinks rewrites site-relative links ("/info.html") into
	// fragment routes ("#/info.html") so navigation stays in the shell.
	FragmentLinks bool
}

const lastGoodBreakRatio = 0.8

var (
	markdownCodeBlockPattern  = regexp.MustCompile("(?s)```.*?```")
	markdownImagePattern      = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	markdownHeadingPattern    = regexp.MustCompile(`(?m)^#{1,6}\s+.*$`)
	markdownEmphasisPattern   = regexp.MustCompile(`(\*{1,3}|_{1,2}|~~)(.*?)(\*{1,3}|_{1,2}|~~)`)
	markdownInlineCodePattern = regexp.MustCompile("`(.*?)`")
	markdownLinkPattern       = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
	markdownBlockquotePattern = regexp.MustCompile(`(?m)^\s*>\s*(.*?)$`)
	markdownListPattern       = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	htmlTagPattern            = regexp.MustCompile(`<[^>]*>`)
)

func newParser() *parser.Parser {
	return parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
}

func ToHTML(input string, opts Options) template.HTML {
	if strings.TrimSpace(input) == "" {
		return template.HTML("")
	}

	doc := newParser().Parse([]byte(input))
	normalizeLinks(doc, opts)

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags:          mdhtml.CommonFlags | mdhtml.SkipHTML,
		RenderNodeHook: renderNodeHook,
	})

	return template.HTML(md.Render(doc, renderer))
}

// Title returns the plain text of the first heading, or "" when the
// document has none.
func Title(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	doc := newParser().Parse([]byte(input))
	var title string
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		heading, ok := node.(*ast.Heading)
		if !entering || !ok {
			return ast.GoToNext
		}

		var text strings.Builder
		ast.WalkFunc(heading, func(child ast.Node, entering bool) ast.WalkStatus {
			if !entering {
				return ast.GoToNext
			}
			if leaf := child.AsLeaf(); leaf != nil {
				text.Write(leaf.Literal)
			}
			return ast.GoToNext
		})
		title = strings.Join(strings.Fields(text.String()), " ")
		return ast.Terminate
	})

	return title
}

// Excerpt returns body text without headings or markup, cut on a word
// boundary when longer than maxChars.
func Excerpt(input string, maxChars int) string {
	if maxChars < 1 {
		return ""
	}

	text := input
	text = markdownCodeBlockPattern.ReplaceAllString(text, " ")
	text = markdownImagePattern.ReplaceAllString(text, " ")
	text = markdownHeadingPattern.ReplaceAllString(text, " ")
	text = markdownEmphasisPattern.ReplaceAllString(text, "$2")
	text = markdownInlineCodePattern.ReplaceAllString(text, "$1")
	text = markdownLinkPattern.ReplaceAllString(text, "$1")
	text = markdownBlockquotePattern.ReplaceAllString(text, "$1")
	text = markdownListPattern.ReplaceAllString(text, "")
	text = htmlTagPattern.ReplaceAllString(text, "")

	clean := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(clean) <= maxChars {
		return clean
	}

	return truncateRunes(clean, maxChars)
}

func truncateRunes(text string, maxChars int) string {
	runes := []rune(text)
	truncateAt := maxChars
	minBreak := int(float64(maxChars) * lastGoodBreakRatio)
	for idx := maxChars - 1; idx >= minBreak; idx-- {
		if unicode.IsSpace(runes[idx]) {
			truncateAt = idx
			break
		}
	}

	truncated := strings.TrimSpace(string(runes[:truncateAt]))
	if truncated == "" {
		truncated = strings.TrimSpace(string(runes[:maxChars]))
	}

	return truncated + "..."
}

func normalizeLinks(doc ast.Node, opts Options) {
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}

		link, ok := node.(*ast.Link)
		if !ok {
			return ast.GoToNext
		}

		href, isCurrentWebsite := normalizeCurrentWebsiteLink(string(link.Destination), opts.RootURL)
		if isCurrentWebsite && opts.FragmentLinks {
			href = toFragmentRoute(href)
		}
		link.Destination = []byte(href)
		link.AdditionalAttributes = applyLinkAttributes(link.AdditionalAttributes, isCurrentWebsite)

		return ast.GoToNext
	})
}

func normalizeCurrentWebsiteLink(href string, rootURL string) (string, bool) {
	if strings.HasPrefix(href, "#") {
		return href, true
	}
	if strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "//") {
		return href, true
	}
	if rootURL == "" || !strings.HasPrefix(href, rootURL) {
		return href, false
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return href, true
	}

	normalized := parsed.Path
	if normalized == "" {
		normalized = "/"
	}
	if parsed.RawQuery != "" {
		normalized += "?" + parsed.RawQuery
	}
	if parsed.Fragment != "" {
		normalized += "#" + parsed.Fragment
	}

	return normalized, true
}

func toFragmentRoute(href string) string {
	if strings.HasPrefix(href, "#") || !strings.HasPrefix(href, "/") {
		return href
	}
	if strings.Contains(href, "#") {
		return href
	}
	return "#" + href
}

func applyLinkAttributes(existing []string, isCurrentWebsite bool) []string {
	attrs := make([]string, 0, len(existing)+2)
	for _, attr := range existing {
		normalized := strings.ToLower(strings.TrimSpace(attr))
		if strings.HasPrefix(normalized, "target=") || strings.HasPrefix(normalized, "rel=") {
			continue
		}
		attrs = append(attrs, attr)
	}

	if !isCurrentWebsite {
		attrs = append(attrs, `target="_blank"`, `rel="noopener noreferrer"`)
	}

	return attrs
}
