package parse

import (
	"bytes"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

const maxAnchorTextLen = 255

// publishedLayouts are tried in order when reading article timestamps
var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// HTMLParser extracts page metadata and outbound links from raw HTML using goquery
type HTMLParser struct {
	respectNofollow bool
	log             *logrus.Logger
}

// NewHTMLParser creates an HTMLParser
func NewHTMLParser(respectNofollow bool, log *logrus.Logger) *HTMLParser {
	return &HTMLParser{respectNofollow: respectNofollow, log: log}
}

func loadDocument(html []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrParsing, "HTML: %v", err)
	}
	return doc, nil
}

// Parse extracts title, description, canonical URL, publish time and a body content hash.
// Returns utils.ErrNoTitle when no title can be found.
func (p *HTMLParser) Parse(html []byte, pageURL string) (models.ParsedPage, error) {
	doc, err := loadDocument(html)
	if err != nil {
		return models.ParsedPage{}, err
	}

	page := models.ParsedPage{
		Title:       extractTitle(doc),
		Description: firstNonEmpty(metaContent(doc, `meta[name="description"]`), metaContent(doc, `meta[property="og:description"]`)),
		ContentHash: utils.CalculateStringSHA256(collapseSpace(doc.Find("body").Text())),
	}

	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		if abs, ok := MakeAbsolute(href, pageURL); ok {
			page.CanonicalURL = abs
		}
	}

	published := firstNonEmpty(metaContent(doc, `meta[property="article:published_time"]`), attrValue(doc, "time[datetime]", "datetime"))
	if published != "" {
		if ts, ok := parsePublished(published); ok {
			page.PublishedAt = ts
		} else if p.log != nil {
			p.log.WithFields(logrus.Fields{"url": pageURL, "value": published}).Debug("Unrecognised published time")
		}
	}

	if page.Title == "" {
		return page, utils.WrapErrorf(utils.ErrNoTitle, "%s", pageURL)
	}
	return page, nil
}

// ExtractAnchors returns the unique absolute http(s) anchors on the page in document order.
// Nofollow anchors are dropped when the parser respects nofollow, otherwise flagged.
func (p *HTMLParser) ExtractAnchors(html []byte, baseURL string) ([]models.Anchor, error) {
	doc, err := loadDocument(html)
	if err != nil {
		return nil, err
	}

	// <base href> overrides the document URL for relative links
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if abs, ok := MakeAbsolute(href, baseURL); ok {
			baseURL = abs
		}
	}

	seen := make(map[string]struct{})
	var anchors []models.Anchor
	doc.Find("a[href]").Each(func(_ int, el *goquery.Selection) {
		href, _ := el.Attr("href")
		abs, ok := MakeAbsolute(href, baseURL)
		if !ok {
			return
		}
		rel, _ := el.Attr("rel")
		nofollow := strings.Contains(strings.ToLower(rel), "nofollow")
		if nofollow && p.respectNofollow {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}

		text := collapseSpace(el.Text())
		if len(text) > maxAnchorTextLen {
			text = text[:maxAnchorTextLen]
		}
		anchors = append(anchors, models.Anchor{URL: abs, Text: text, Nofollow: nofollow})
	})
	return anchors, nil
}

// ExtractLinks returns the unique absolute http(s) links on the page
func (p *HTMLParser) ExtractLinks(html []byte, baseURL string) ([]string, error) {
	anchors, err := p.ExtractAnchors(html, baseURL)
	if err != nil {
		return nil, err
	}
	links := make([]string, 0, len(anchors))
	for _, a := range anchors {
		links = append(links, a.URL)
	}
	return links, nil
}

func extractTitle(doc *goquery.Document) string {
	if t := collapseSpace(doc.Find("head title").First().Text()); t != "" {
		return t
	}
	if t := collapseSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if t := metaContent(doc, `meta[property="og:title"]`); t != "" {
		return t
	}
	return collapseSpace(doc.Find("h1").First().Text())
}

func metaContent(doc *goquery.Document, selector string) string {
	return attrValue(doc, selector, "content")
}

func attrValue(doc *goquery.Document, selector, attr string) string {
	v, _ := doc.Find(selector).First().Attr(attr)
	return strings.TrimSpace(v)
}

func parsePublished(v string) (time.Time, bool) {
	for _, layout := range publishedLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
