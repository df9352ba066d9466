package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

// Indexer maintains the search index. It is called at most once per successfully parsed page.
// raw may be nil when only metadata is available.
type Indexer interface {
	Index(ctx context.Context, rec models.URLRecord, page models.ParsedPage, raw []byte) error
}

// Document is the on-disk form of one indexed page
type Document struct {
	URL          string    `json:"url"`
	URLHash      string    `json:"url_hash"`
	Category     string    `json:"category"`
	Depth        int       `json:"depth"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	CanonicalURL string    `json:"canonical_url,omitempty"`
	PublishedAt  time.Time `json:"published_at,omitempty"`
	ContentHash  string    `json:"content_hash"`
	Headings     []string  `json:"headings,omitempty"`
	Body         string    `json:"body,omitempty"` // Markdown rendering of the main content
	TokenCount   int       `json:"token_count,omitempty"`
	Chunks       []Chunk   `json:"chunks,omitempty"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// FileIndexer writes one JSON document per URL under {baseDir}/{category}/{url_hash}.json.
// Re-indexing a URL replaces its document.
type FileIndexer struct {
	baseDir   string
	converter *md.Converter
	chunking  bool
	chunkCfg  ChunkerConfig
	counter   *TokenCounter
	now       func() time.Time
	log       *logrus.Entry
}

// NewFileIndexer creates the index directory and, when chunking is enabled, loads the tokenizer
func NewFileIndexer(cfg config.IndexConfig, baseDir string, log *logrus.Entry) (*FileIndexer, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving index dir %s: %w", utils.ErrFilesystem, baseDir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating index dir %s: %w", utils.ErrFilesystem, abs, err)
	}

	ix := &FileIndexer{
		baseDir:   abs,
		converter: md.NewConverter("", true, nil),
		chunking:  cfg.EnableChunking,
		chunkCfg:  ChunkerConfig{MaxChunkSize: cfg.MaxChunkSize, ChunkOverlap: cfg.ChunkOverlap},
		now:       time.Now,
		log:       log.WithField("component", "indexer"),
	}
	if cfg.EnableChunking {
		counter, err := NewTokenCounter(cfg.TokenizerEncoding)
		if err != nil {
			ix.log.Warnf("Failed to load tokenizer %q, chunk sizes will be measured in characters: %v", cfg.TokenizerEncoding, err)
		} else {
			ix.counter = counter
		}
	}
	return ix, nil
}

// Path returns the document location for a URL hash
func (ix *FileIndexer) Path(category, urlHash string) string {
	return filepath.Join(ix.baseDir, utils.SanitizePathSegment(category), urlHash+".json")
}

func (ix *FileIndexer) Index(ctx context.Context, rec models.URLRecord, page models.ParsedPage, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := Document{
		URL:          rec.NormalizedURL,
		URLHash:      rec.Hash,
		Category:     rec.Category,
		Depth:        rec.Depth,
		Title:        page.Title,
		Description:  page.Description,
		CanonicalURL: page.CanonicalURL,
		PublishedAt:  page.PublishedAt,
		ContentHash:  page.ContentHash,
		IndexedAt:    ix.now(),
	}

	if raw != nil {
		body, err := RenderMarkdown(ix.converter, raw)
		if err != nil {
			// Metadata is still worth indexing
			ix.log.WithFields(logrus.Fields{"url": rec.NormalizedURL, "error_category": utils.CategorizeError(err)}).Warnf("Body not rendered: %v", err)
		} else {
			doc.Body = body
			doc.Headings = ExtractHeadings([]byte(body))
			if ix.counter != nil {
				doc.TokenCount = ix.counter.Count(body)
			}
			if ix.chunking {
				chunks, err := ChunkMarkdown(body, ix.chunkCfg, ix.counter)
				if err != nil {
					ix.log.WithField("url", rec.NormalizedURL).Warnf("Chunking failed: %v", err)
				}
				doc.Chunks = chunks
			}
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding index document for %s: %w", rec.NormalizedURL, err)
	}
	if err := writeFileAtomic(ix.Path(rec.Category, rec.Hash), data); err != nil {
		return err
	}

	ix.log.WithFields(logrus.Fields{"url": rec.NormalizedURL, "category": rec.Category, "chunks": len(doc.Chunks)}).Debug("Indexed document")
	return nil
}

// Load reads back an indexed document; a missing document returns utils.ErrNotFound
func (ix *FileIndexer) Load(category, urlHash string) (Document, error) {
	var doc Document
	data, err := os.ReadFile(ix.Path(category, urlHash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, utils.WrapErrorf(utils.ErrNotFound, "index document %s/%s", category, urlHash)
		}
		return doc, fmt.Errorf("%w: reading index document: %w", utils.ErrFilesystem, err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("%w: JSON index document %s: %w", utils.ErrParsing, urlHash, err)
	}
	return doc, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", utils.ErrFilesystem, dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".doc-*")
	if err != nil {
		return fmt.Errorf("%w: temp file in %s: %w", utils.ErrFilesystem, dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing %s: %w", utils.ErrFilesystem, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing %s: %w", utils.ErrFilesystem, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: renaming %s: %w", utils.ErrFilesystem, path, err)
	}
	return nil
}
