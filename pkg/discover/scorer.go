package discover

import (
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/parse"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

// Score component caps and weights
const (
	keywordSegmentPoints = 20
	keywordSubstrPoints  = 10
	maxKeywordScore      = 40
	authorityPoints      = 30
	articlePoints        = 10
	categoryPatternScore = 15
	maxPatternScore      = 30
	maxScore             = 100

	// minInferenceHits is the keyword hit count required before a page is attributed to a category
	minInferenceHits = 2
)

var articlePattern = regexp.MustCompile(`/article/|/news/|/story/|/post/|/blog/|/\d{4}/\d{2}/`)

type categoryRules struct {
	keywords  []string
	patterns  []*regexp.Regexp
	authority map[string]struct{} // Registrable domains of the seeds
}

// Scorer rates how well a URL fits a category
type Scorer struct {
	categories map[string]categoryRules
	order      []string // Sorted category keys, the tie-break order for InferCategory
	thresholds []int
	beyond     int
	log        *logrus.Entry
}

// NewScorer compiles the category rules of a validated config
func NewScorer(cfg *config.AppConfig, log *logrus.Entry) (*Scorer, error) {
	s := &Scorer{
		categories: make(map[string]categoryRules, len(cfg.Categories)),
		order:      cfg.CategoryKeys(),
		thresholds: append([]int(nil), cfg.Discovery.DepthThresholds...),
		beyond:     cfg.Discovery.BeyondThreshold,
		log:        log.WithField("component", "scorer"),
	}
	if len(s.thresholds) == 0 {
		s.thresholds = append(s.thresholds, config.DefaultDepthThresholds...)
	}
	if s.beyond == 0 {
		s.beyond = config.DefaultBeyondThreshold
	}

	for name, catCfg := range cfg.Categories {
		patterns, err := utils.CompileRegexPatterns(catCfg.Patterns, false)
		if err != nil {
			return nil, utils.WrapErrorf(utils.ErrConfigValidation, "category %s: %v", name, err)
		}
		rules := categoryRules{
			patterns:  patterns,
			authority: make(map[string]struct{}),
		}
		for _, kw := range catCfg.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				rules.keywords = append(rules.keywords, kw)
			}
		}
		for _, seed := range catCfg.SeedURLs {
			n, err := parse.Normalize(seed)
			if err != nil {
				s.log.WithFields(logrus.Fields{"category": name, "seed": seed}).Warnf("Seed not usable as authority domain: %v", err)
				continue
			}
			rules.authority[RegistrableDomain(n.Hostname())] = struct{}{}
		}
		s.categories[name] = rules
	}
	return s, nil
}

// ScoreRelevance returns 0..100 for how well rawURL fits category.
// Unknown categories and unparsable URLs score 0.
func (s *Scorer) ScoreRelevance(rawURL, category string) int {
	rules, ok := s.categories[category]
	if !ok {
		return 0
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	lower := strings.ToLower(rawURL)
	path := strings.ToLower(u.EscapedPath())

	score := min(maxKeywordScore, keywordScore(rules.keywords, lower, path))

	if _, ok := rules.authority[RegistrableDomain(strings.ToLower(u.Hostname()))]; ok && u.Hostname() != "" {
		score += authorityPoints
	}

	score += patternScore(rules.patterns, lower)

	return min(maxScore, score)
}

// keywordScore stops at the first keyword found as its own path segment;
// earlier substring hits still count.
func keywordScore(keywords []string, lowerURL, path string) int {
	score := 0
	for _, kw := range keywords {
		if strings.Contains(lowerURL, "/"+kw+"/") || strings.Contains(lowerURL, "/"+kw+"-") {
			score += keywordSegmentPoints
			break
		}
		if strings.Contains(path, kw) {
			score += keywordSubstrPoints
		}
	}
	return score
}

func patternScore(patterns []*regexp.Regexp, lowerURL string) int {
	score := 0
	if articlePattern.MatchString(lowerURL) {
		score += articlePoints
	}
	score += categoryPatternScore * utils.CountMatches(patterns, lowerURL)
	return min(maxPatternScore, score)
}

// Threshold is the minimum score a link needs at depth. Non-decreasing in depth.
func (s *Scorer) Threshold(depth int) int {
	if depth < 0 {
		depth = 0
	}
	if depth < len(s.thresholds) {
		return s.thresholds[depth]
	}
	return s.beyond
}

// ShouldFollow reports whether target, found on source, is relevant enough for category at depth
func (s *Scorer) ShouldFollow(source, category, target string, depth int) bool {
	score := s.ScoreRelevance(target, category)
	threshold := s.Threshold(depth)
	if score < threshold {
		return false
	}
	s.log.WithFields(logrus.Fields{
		"source":    source,
		"target":    target,
		"category":  category,
		"depth":     depth,
		"score":     score,
		"threshold": threshold,
	}).Debug("Link approved for crawling")
	return true
}

// InferCategory attributes free text (title, description, URL) to the category
// whose keywords occur most often. At least two hits are required.
func (s *Scorer) InferCategory(text string) (string, bool) {
	text = strings.ToLower(text)
	best, bestHits := "", 0
	for _, name := range s.order {
		hits := 0
		for _, kw := range s.categories[name].keywords {
			hits += strings.Count(text, kw)
		}
		if hits > bestHits {
			best, bestHits = name, hits
		}
	}
	if bestHits < minInferenceHits {
		return "", false
	}
	return best, true
}

// Categories returns the known category keys in sorted order
func (s *Scorer) Categories() []string {
	return append([]string(nil), s.order...)
}

// AuthorityDomains returns the sorted registrable domains derived from a category's seeds
func (s *Scorer) AuthorityDomains(category string) []string {
	rules := s.categories[category]
	out := make([]string, 0, len(rules.authority))
	for d := range rules.authority {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// RegistrableDomain reduces host to its eTLD+1 ("www.bbc.co.uk" -> "bbc.co.uk").
// IP literals, single-label hosts and public suffixes are returned unchanged.
func RegistrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || net.ParseIP(strings.Trim(host, "[]")) != nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}
