package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/monitor"
	"github.com/Sriram-PR/topic-crawler/pkg/orchestrate"
)

const allCategoriesScope = "all"

// handleListCategories handles the list_categories tool
func (s *Server) handleListCategories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	appCfg := s.cfg.AppConfig
	keys := orchestrate.AllCategories(appCfg)
	categories := make([]map[string]interface{}, 0, len(keys))

	for _, key := range keys {
		catCfg := appCfg.Categories[key]
		info := map[string]interface{}{
			"key":               key,
			"name":              catCfg.Name,
			"seed_urls":         catCfg.SeedURLs,
			"keywords":          catCfg.Keywords,
			"max_per_day":       config.GetEffectiveMaxPerDay(catCfg, *appCfg),
			"max_depth":         config.GetEffectiveMaxDepth(catCfg, *appCfg),
			"authority_domains": s.cfg.Crawler.Scorer().AuthorityDomains(key),
		}
		if catCfg.Description != "" {
			info["description"] = catCfg.Description
		}
		if s.jobManager.IsRunning(key) {
			info["status"] = "running"
		}
		categories = append(categories, info)
	}

	result := map[string]interface{}{
		"categories":       categories,
		"config_path":      s.cfg.ConfigPath,
		"total_categories": len(categories),
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleTriggerCycle handles the trigger_cycle tool
func (s *Server) handleTriggerCycle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := request.GetString("category", "")
	fresh := request.GetBool("fresh", false)

	scope := allCategoriesScope
	var categories []string
	if category != "" {
		if err := orchestrate.ValidateCategories(s.cfg.AppConfig, []string{category}); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		scope = category
		categories = []string{category}
	}

	// One cycle drains the shared frontier at a time
	job, created := s.jobManager.CreateExclusiveJob(scope, categories, fresh)
	if !created {
		result := map[string]interface{}{
			"status":  "already_running",
			"message": "A crawl cycle is already in progress",
			"job_id":  job.ID,
			"scope":   job.Scope,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	s.cycles.Add(1)
	go s.runCycleJob(job.ID, orchestrate.CycleOptions{Categories: categories, Fresh: fresh})

	result := map[string]interface{}{
		"status":  "started",
		"message": "Crawl cycle started successfully",
		"job_id":  job.ID,
		"scope":   scope,
		"fresh":   fresh,
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job := s.jobManager.GetJob(jobID)
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	result := map[string]interface{}{
		"job_id":         job.ID,
		"scope":          job.Scope,
		"status":         job.Status,
		"fresh":          job.Fresh,
		"started_at":     job.StartedAt.Format(time.RFC3339),
		"seeds_admitted": job.SeedsAdmitted,
		"processed":      job.Processed,
		"completed":      job.Completed,
		"failed":         job.Failed,
	}

	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}

	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleCrawlStats handles the crawl_stats tool
func (s *Server) handleCrawlStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := monitor.Collect(ctx, s.cfg.Store, s.cfg.AppConfig)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to collect stats: %v", err)), nil
	}
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode stats: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// handleScoreURL handles the score_url tool
func (s *Server) handleScoreURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL := request.GetString("url", "")
	if rawURL == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	category := request.GetString("category", "")
	if err := orchestrate.ValidateCategories(s.cfg.AppConfig, []string{category}); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unknown category '%s'. Available categories: %v", category, orchestrate.AllCategories(s.cfg.AppConfig))), nil
	}
	depth := request.GetInt("depth", 1)
	if depth < 0 {
		depth = 0
	}

	u, err := s.cfg.Crawler.Normalizer().Normalize(rawURL)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid URL: %v", err)), nil
	}

	scorer := s.cfg.Crawler.Scorer()
	score := scorer.ScoreRelevance(u.URL, category)
	threshold := scorer.Threshold(depth)
	maxDepth := config.GetEffectiveMaxDepth(s.cfg.AppConfig.Categories[category], *s.cfg.AppConfig)
	withinDepth := maxDepth == 0 || depth <= maxDepth

	result := map[string]interface{}{
		"url":          u.URL,
		"category":     category,
		"depth":        depth,
		"score":        score,
		"threshold":    threshold,
		"within_depth": withinDepth,
		"follow":       withinDepth && score >= threshold,
	}
	if inferred, ok := scorer.InferCategory(u.URL); ok {
		result["inferred_category"] = inferred
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleNormalizeURL handles the normalize_url tool
func (s *Server) handleNormalizeURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL := request.GetString("url", "")
	if rawURL == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}

	u, err := s.cfg.Crawler.Normalizer().Normalize(rawURL)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid URL: %v", err)), nil
	}

	result := map[string]interface{}{
		"original":   rawURL,
		"url":        u.URL,
		"hash":       u.Hash,
		"host":       u.Host,
		"path":       u.Path,
		"query":      u.Query,
		"query_hash": u.QueryHash,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// runCycleJob seeds and drains a cycle in the background
func (s *Server) runCycleJob(jobID string, opts orchestrate.CycleOptions) {
	defer s.cycles.Done()
	s.jobManager.UpdateStatus(jobID, JobStatusRunning, "")
	jobCtx := s.jobManager.GetContext(jobID)

	result, err := s.cfg.Orchestrator.RunCycle(jobCtx, opts)

	admitted := 0
	for _, r := range result.Reports {
		admitted += r.Admitted
	}
	s.jobManager.UpdateProgress(jobID, admitted, result.Stats.Processed, result.Stats.Completed, result.Stats.Failed)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.jobManager.UpdateStatus(jobID, JobStatusCancelled, "")
		} else {
			s.jobManager.UpdateStatus(jobID, JobStatusFailed, err.Error())
		}
		return
	}

	s.jobManager.UpdateStatus(jobID, JobStatusCompleted, "")
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
