package index

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunk is one retrieval-sized slice of a page body
type Chunk struct {
	Content          string   `json:"content"`
	HeadingHierarchy []string `json:"heading_hierarchy,omitempty"`
	TokenCount       int      `json:"token_count"`
}

// ChunkerConfig holds chunk sizing in tokens
type ChunkerConfig struct {
	MaxChunkSize int
	ChunkOverlap int
}

var headingRegex = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// ChunkMarkdown splits markdown by headers, falling back to recursive character
// splitting for sections that are still larger than MaxChunkSize. Each chunk
// carries its parent headings. Without a counter, length is measured in runes.
func ChunkMarkdown(markdown string, cfg ChunkerConfig, counter *TokenCounter) ([]Chunk, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, nil
	}

	lenFunc := utf8.RuneCountInString
	if counter != nil {
		lenFunc = counter.Count
	}

	recursive := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.MaxChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithLenFunc(lenFunc),
	)
	splitter := textsplitter.NewMarkdownTextSplitter(
		textsplitter.WithHeadingHierarchy(true),
		textsplitter.WithChunkSize(cfg.MaxChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithSecondSplitter(recursive),
		textsplitter.WithLenFunc(lenFunc),
	)

	parts, err := splitter.SplitText(markdown)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Content:          part,
			HeadingHierarchy: headingHierarchy(part),
			TokenCount:       counter.Count(part),
		})
	}
	return chunks, nil
}

// headingHierarchy lists the markdown headings inside a chunk, in order
func headingHierarchy(content string) []string {
	matches := headingRegex.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	hierarchy := make([]string, 0, len(matches))
	for _, m := range matches {
		if h := strings.TrimSpace(m[2]); h != "" {
			hierarchy = append(hierarchy, h)
		}
	}
	return hierarchy
}
