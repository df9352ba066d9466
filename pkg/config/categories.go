package config

// DefaultVocabulary is the cross-domain fallback keyword list used when no
// allowed_external_domains are configured.
var DefaultVocabulary = []string{"tech", "ai", "sport", "business", "news", "politics", "science"}

// DefaultDepthThresholds are the relevance thresholds indexed by crawl depth.
var DefaultDepthThresholds = []int{15, 15, 25, 40, 50}

// DefaultBeyondThreshold applies past the end of DefaultDepthThresholds.
const DefaultBeyondThreshold = 80

// DefaultCategories returns the built-in category catalogue.
func DefaultCategories() map[string]CategoryConfig {
	return map[string]CategoryConfig{
		"technology": {
			Name:        "Technology",
			Description: "Software, hardware, programming, tech industry news",
			SeedURLs: []string{
				"https://cnet.com/news",
				"https://techspot.com",
				"https://theverge.com",
				"https://wired.com/category/science",
				"https://zdnet.com",
			},
			Keywords: []string{"tech", "software", "hardware", "gadget", "review", "programming", "computing"},
			Patterns: []string{`tech|software|hardware|app|device|gadget|review`},
		},
		"business": {
			Name:        "Business",
			Description: "Finance, markets, entrepreneurship, corporate news",
			SeedURLs: []string{
				"https://businessinsider.com",
				"https://cnbc.com/id/10001147",
				"https://economist.com",
				"https://forbes.com/business",
				"https://entrepreneur.com",
			},
			Keywords: []string{"business", "market", "finance", "economy", "startup", "invest"},
			Patterns: []string{`market|stock|finance|invest|economy|company|startup`},
		},
		"ai": {
			Name:        "AI",
			Description: "Artificial intelligence, machine learning, AI research and applications",
			SeedURLs: []string{
				"https://venturebeat.com/ai",
				"https://technologyreview.com/topic/artificial-intelligence",
				"https://aitrends.com",
				"https://syncedreview.com",
				"https://towardsdatascience.com",
			},
			Keywords: []string{"ai", "artificial-intelligence", "machine-learning", "deep-learning", "llm", "neural"},
			Patterns: []string{`ai|ml|machine-learning|neural|deep-learning|chatbot|llm`},
		},
		"sports": {
			Name:        "Sports",
			Description: "All sports news, events, and analysis",
			SeedURLs: []string{
				"https://espn.com",
				"https://bbc.com/sport",
				"https://theguardian.com/sport",
				"https://si.com",
				"https://nbcsports.com",
			},
			Keywords: []string{"sport", "football", "soccer", "basketball", "baseball", "tennis"},
			Patterns: []string{`sport|game|match|player|team|league|nfl|nba|mlb|nhl|soccer`},
		},
		"politics": {
			Name:        "Politics",
			Description: "Political news, policy, elections, government",
			SeedURLs: []string{
				"https://politico.com",
				"https://thehill.com",
				"https://bbc.com/news/politics",
				"https://apnews.com/politics",
				"https://vox.com/politics",
			},
			Keywords: []string{"politics", "election", "government", "policy", "congress", "senate"},
			Patterns: []string{`politic|election|congress|senate|government|policy|vote|campaign`},
		},
	}
}
