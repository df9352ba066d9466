package parse

import (
	"time"

	"github.com/Sriram-PR/topic-crawler/pkg/frontier"
	"github.com/Sriram-PR/topic-crawler/pkg/models"
)

// Record builds a pending frontier record for n, first sighted as original
func (n NormalizedURL) Record(original, category string, depth int, now time.Time) models.URLRecord {
	rec := models.URLRecord{
		Hash:          n.Hash,
		NormalizedURL: n.URL,
		OriginalURL:   original,
		Host:          n.Host,
		Path:          n.Path,
		QueryHash:     n.QueryHash,
		Category:      category,
		Depth:         depth,
		Status:        models.URLStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	rec.Priority = frontier.CalculatePriority(rec, 0, now)
	return rec
}
