package index

import (
	"bytes"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

// mainContentSelectors are tried in order; the first non-empty match is rendered
var mainContentSelectors = []string{"article", "main", "[role='main']", "#content", ".post-content", ".article-body"}

// noiseSelectors never carry article text
var noiseSelectors = "script, style, noscript, iframe, svg, form, nav, footer, aside, [role='navigation'], [aria-hidden='true']"

// RenderMarkdown converts the main content of an HTML page to markdown
func RenderMarkdown(converter *md.Converter, raw []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: HTML: %w", utils.ErrParsing, err)
	}

	content := mainContent(doc)
	cleanupHTML(content)

	html, err := goquery.OuterHtml(content)
	if err != nil {
		return "", fmt.Errorf("%w: %w", utils.ErrMarkdownConversion, err)
	}
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("%w: %w", utils.ErrMarkdownConversion, err)
	}
	return strings.TrimSpace(markdown), nil
}

func mainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range mainContentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 && strings.TrimSpace(s.Text()) != "" {
			return s
		}
	}
	return doc.Find("body").First()
}

// cleanupHTML strips page chrome and permalink decorations before conversion
func cleanupHTML(content *goquery.Selection) {
	content.Find(noiseSelectors).Remove()
	content.Find("a.headerlink, a.permalink, a.anchor").Remove()

	content.Find("a").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		href, _ := s.Attr("href")
		if text == "¶" || text == "#" || (text == "" && strings.HasPrefix(href, "#")) {
			s.Remove()
		}
	})
}

// ExtractHeadings returns the heading texts of a markdown document in order
func ExtractHeadings(markdown []byte) []string {
	doc := goldmark.DefaultParser().Parse(text.NewReader(markdown))

	var headings []string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		var buf bytes.Buffer
		for child := heading.FirstChild(); child != nil; child = child.NextSibling() {
			if textNode, ok := child.(*ast.Text); ok {
				buf.Write(textNode.Segment.Value(markdown))
			}
		}
		if buf.Len() > 0 {
			headings = append(headings, buf.String())
		}
		return ast.WalkSkipChildren, nil
	})
	return headings
}
