package fetch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/parse"
	"github.com/Sriram-PR/topic-crawler/pkg/storage"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

const maxRobotsBodySize = 512 << 10

// RobotsDecision is the outcome of a robots.txt check for one URL
type RobotsDecision struct {
	Allowed    bool
	CrawlDelay time.Duration // Zero when the host sets none
	Host       models.HostRecord
}

// RobotsGuard answers robots.txt questions from the Host cache, refetching
// entries older than the cache TTL. Fetch failures cache the host as having
// no robots.txt, which allows everything.
type RobotsGuard struct {
	client    *http.Client
	hosts     storage.HostRepository
	agent     string // Token matched against User-agent groups
	userAgent string // Header sent when fetching robots.txt
	timeout   time.Duration
	ttl       time.Duration
	now       func() time.Time
	log       *logrus.Entry

	fetches singleflight.Group

	parsedMu sync.Mutex
	parsed   map[string]parsedRobots // host -> rules parsed from the cached body
}

type parsedRobots struct {
	fetchedAt time.Time
	data      *robotstxt.RobotsData
}

// NewRobotsGuard creates a RobotsGuard
func NewRobotsGuard(client *http.Client, hosts storage.HostRepository, agent, userAgent string, timeout, ttl time.Duration, log *logrus.Entry) *RobotsGuard {
	return &RobotsGuard{
		client:    client,
		hosts:     hosts,
		agent:     agent,
		userAgent: userAgent,
		timeout:   timeout,
		ttl:       ttl,
		now:       time.Now,
		log:       log.WithField("component", "robots"),
		parsed:    make(map[string]parsedRobots),
	}
}

// Check reports whether u may be fetched and the host's crawl delay
func (g *RobotsGuard) Check(ctx context.Context, u parse.NormalizedURL) (RobotsDecision, error) {
	rec, err := g.hostRecord(ctx, u)
	if err != nil {
		return RobotsDecision{}, err
	}
	decision := RobotsDecision{Allowed: true, Host: rec, CrawlDelay: g.CrawlDelay(rec)}
	if !rec.RobotsTxtExists {
		return decision, nil
	}

	data := g.parsedFor(rec)
	if data == nil {
		return decision, nil
	}
	target := u.Path
	if u.Query != "" {
		target += "?" + u.Query
	}
	decision.Allowed = data.TestAgent(target, g.agent)
	return decision, nil
}

// CrawlDelay resolves the cached delay for the configured agent, then for "*"
func (g *RobotsGuard) CrawlDelay(rec models.HostRecord) time.Duration {
	if secs, ok := rec.CrawlDelay[strings.ToLower(g.agent)]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if secs, ok := rec.CrawlDelay["*"]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// hostRecord returns a fresh Host cache entry, fetching robots.txt when the cached one expired
func (g *RobotsGuard) hostRecord(ctx context.Context, u parse.NormalizedURL) (models.HostRecord, error) {
	cached, err := g.hosts.Get(ctx, u.Host)
	switch {
	case err == nil && cached.IsFresh(g.now(), g.ttl):
		return *cached, nil
	case err != nil && !errors.Is(err, utils.ErrNotFound):
		return models.HostRecord{}, err
	}

	// Concurrent workers hitting the same cold host share one fetch. It runs
	// detached from the caller that started it and is bounded by the robots timeout.
	fetchCtx := context.WithoutCancel(ctx)
	ch := g.fetches.DoChan(u.Host, func() (interface{}, error) {
		rec := g.fetch(fetchCtx, u)
		if err := g.hosts.Put(fetchCtx, rec); err != nil {
			return models.HostRecord{}, err
		}
		return rec, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.HostRecord{}, res.Err
		}
		return res.Val.(models.HostRecord), nil
	case <-ctx.Done():
		return models.HostRecord{}, ctx.Err()
	}
}

// fetch downloads and summarises robots.txt. It never fails: problems yield an absent record.
func (g *RobotsGuard) fetch(ctx context.Context, u parse.NormalizedURL) models.HostRecord {
	rec := models.HostRecord{Host: u.Host, RobotsFetchedAt: g.now()}
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme(), u.Host)
	robotsLog := g.log.WithFields(logrus.Fields{"host": u.Host, "robots_url": robotsURL})
	robotsLog.Debug("Fetching robots.txt...")

	fetchCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, robotsURL, nil)
	if err != nil {
		robotsLog.Warnf("Error creating robots.txt request, treating as absent: %v", err)
		return rec
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		robotsLog.Infof("robots.txt fetch failed, treating as absent: %v", err)
		return rec
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		robotsLog.WithField("status_code", resp.StatusCode).Debug("No usable robots.txt, allowing all")
		return rec
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodySize))
	if err != nil {
		robotsLog.Warnf("Error reading robots.txt body, treating as absent: %v", err)
		return rec
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		robotsLog.Warnf("Error parsing robots.txt, treating as absent: %v", err)
		return rec
	}

	rec.RobotsTxtExists = true
	rec.RobotsBody = body
	rec.CrawlDelay = make(map[string]int)
	if grp := data.FindGroup(g.agent); grp != nil && grp.CrawlDelay > 0 {
		rec.CrawlDelay[strings.ToLower(g.agent)] = ceilSeconds(grp.CrawlDelay)
	}
	if grp := data.FindGroup("*"); grp != nil && grp.CrawlDelay > 0 {
		rec.CrawlDelay["*"] = ceilSeconds(grp.CrawlDelay)
	}
	rec.AllowRules, rec.DisallowRules = groupRules(body, g.agent)

	g.parsedMu.Lock()
	g.parsed[rec.Host] = parsedRobots{fetchedAt: rec.RobotsFetchedAt, data: data}
	g.parsedMu.Unlock()

	robotsLog.WithFields(logrus.Fields{
		"disallow_rules": len(rec.DisallowRules),
		"allow_rules":    len(rec.AllowRules),
		"crawl_delay":    rec.CrawlDelay,
	}).Info("Fetched and parsed robots.txt")
	return rec
}

// parsedFor returns the rules for a cached record, reparsing the stored body when
// this process has not seen the current fetch yet
func (g *RobotsGuard) parsedFor(rec models.HostRecord) *robotstxt.RobotsData {
	g.parsedMu.Lock()
	defer g.parsedMu.Unlock()
	if p, ok := g.parsed[rec.Host]; ok && p.fetchedAt.Equal(rec.RobotsFetchedAt) {
		return p.data
	}
	data, err := robotstxt.FromBytes(rec.RobotsBody)
	if err != nil {
		g.log.WithField("host", rec.Host).Warnf("Cached robots.txt no longer parses, allowing all: %v", err)
		return nil
	}
	g.parsed[rec.Host] = parsedRobots{fetchedAt: rec.RobotsFetchedAt, data: data}
	return data
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// groupRules lists the Allow and Disallow patterns of the group that applies to agent,
// in file order. A group naming the agent wins over the "*" group.
func groupRules(body []byte, agent string) (allow, disallow []string) {
	type group struct {
		agents          []string
		allow, disallow []string
	}
	var groups []*group
	var cur *group
	inAgents := false

	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			if !inAgents {
				cur = &group{}
				groups = append(groups, cur)
				inAgents = true
			}
			cur.agents = append(cur.agents, strings.ToLower(value))
		case "allow", "disallow":
			inAgents = false
			if cur == nil || value == "" {
				continue
			}
			if key == "allow" {
				cur.allow = append(cur.allow, value)
			} else {
				cur.disallow = append(cur.disallow, value)
			}
		default:
			inAgents = false
		}
	}

	agent = strings.ToLower(agent)
	var wildcard *group
	for _, g := range groups {
		for _, a := range g.agents {
			if a == "*" {
				if wildcard == nil {
					wildcard = g
				}
				continue
			}
			if agent != "" && strings.Contains(agent, a) {
				return g.allow, g.disallow
			}
		}
	}
	if wildcard != nil {
		return wildcard.allow, wildcard.disallow
	}
	return nil, nil
}
