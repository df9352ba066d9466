package parse

import (
	"net"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"

	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

// NormalizedURL is the canonical identity of a fetchable resource
type NormalizedURL struct {
	URL       string `json:"url"`        // Canonical string form
	Hash      string `json:"hash"`       // SHA-256 of URL, the dedup key
	Host      string `json:"host"`       // ASCII host, port included when non-default
	Path      string `json:"path"`       // Escaped, dot-collapsed path
	Query     string `json:"query"`      // Sorted query without tracking params
	QueryHash string `json:"query_hash"` // SHA-256 of Query, empty when there is no query
}

// Hostname returns the host without any port
func (n NormalizedURL) Hostname() string {
	if h, _, err := net.SplitHostPort(n.Host); err == nil {
		return h
	}
	return n.Host
}

// Scheme returns the URL scheme
func (n NormalizedURL) Scheme() string {
	if i := strings.Index(n.URL, "://"); i > 0 {
		return n.URL[:i]
	}
	return ""
}

var bareDomainRe = regexp.MustCompile(`^[a-z0-9-]+(\.[a-z0-9-]+)+(:\d+)?(/|$)`)

// defaultTrackingParams are dropped from every query; any utm_* key is dropped as well
var defaultTrackingParams = []string{
	"fbclid", "gclid", "msclkid", "mc_cid", "mc_eid", "_ga", "_gl", "ref", "referrer", "source",
}

var hostProfile = idna.New(idna.MapForLookup(), idna.Transitional(false), idna.StrictDomainName(false))

// Normalizer canonicalizes raw URL strings
type Normalizer struct {
	tracking map[string]struct{}
}

// NewNormalizer creates a Normalizer that strips the default tracking params plus any extras
func NewNormalizer(extraTrackingParams []string) *Normalizer {
	n := &Normalizer{tracking: make(map[string]struct{}, len(defaultTrackingParams)+len(extraTrackingParams))}
	for _, p := range defaultTrackingParams {
		n.tracking[p] = struct{}{}
	}
	for _, p := range extraTrackingParams {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			n.tracking[p] = struct{}{}
		}
	}
	return n
}

var defaultNormalizer = NewNormalizer(nil)

// Normalize canonicalizes raw with the default tracking param set
func Normalize(raw string) (NormalizedURL, error) {
	return defaultNormalizer.Normalize(raw)
}

// Normalize canonicalizes raw into a NormalizedURL.
// Errors wrap utils.ErrInvalidURL or utils.ErrUnsupportedScheme.
func (n *Normalizer) Normalize(raw string) (NormalizedURL, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return NormalizedURL{}, utils.WrapErrorf(utils.ErrInvalidURL, "empty input")
	}
	if !strings.Contains(s, "://") && bareDomainRe.MatchString(strings.ToLower(s)) {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return NormalizedURL{}, utils.WrapErrorf(utils.ErrInvalidURL, "parse %q: %v", raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "http", "https":
	case "":
		return NormalizedURL{}, utils.WrapErrorf(utils.ErrInvalidURL, "missing scheme in %q", raw)
	default:
		return NormalizedURL{}, utils.WrapErrorf(utils.ErrUnsupportedScheme, "%q in %q", scheme, raw)
	}

	host, err := canonicalHost(u.Hostname())
	if err != nil {
		return NormalizedURL{}, utils.WrapErrorf(utils.ErrInvalidURL, "host of %q: %v", raw, err)
	}
	if port := u.Port(); port != "" {
		if _, perr := strconv.ParseUint(port, 10, 16); perr != nil {
			return NormalizedURL{}, utils.WrapErrorf(utils.ErrInvalidURL, "bad port %q in %q", port, raw)
		}
		if !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
			host = net.JoinHostPort(host, port)
		} else if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]" // IPv6 literal
	}

	p := removeDotSegments(normalizePathEscapes(u.EscapedPath()))
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}

	query := n.cleanQuery(u.RawQuery)

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(p)
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	normalized := b.String()

	out := NormalizedURL{
		URL:   normalized,
		Hash:  utils.CalculateStringSHA256(normalized),
		Host:  host,
		Path:  p,
		Query: query,
	}
	if query != "" {
		out.QueryHash = utils.CalculateStringSHA256(query)
	}
	return out, nil
}

// Equivalent reports whether a and b normalize to the same identity
func (n *Normalizer) Equivalent(a, b string) bool {
	na, err := n.Normalize(a)
	if err != nil {
		return false
	}
	nb, err := n.Normalize(b)
	if err != nil {
		return false
	}
	return na.Hash == nb.Hash
}

// IsTrackingParam reports whether a query key is stripped during normalization
func (n *Normalizer) IsTrackingParam(key string) bool {
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	_, ok := n.tracking[key]
	return ok
}

func (n *Normalizer) cleanQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	type pair struct {
		key, text string
	}
	pairs := make([]pair, 0, strings.Count(rawQuery, "&")+1)
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(part, "=")
		key, kerr := url.QueryUnescape(rawKey)
		if kerr == nil && n.IsTrackingParam(key) {
			continue
		}
		value, verr := url.QueryUnescape(rawValue)
		if kerr != nil || verr != nil {
			// Undecodable pairs are kept verbatim so they still count toward identity
			pairs = append(pairs, pair{key: rawKey, text: part})
			continue
		}
		pairs = append(pairs, pair{key: key, text: url.QueryEscape(key) + "=" + url.QueryEscape(value)})
	}
	// Stable so repeated keys keep their order
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.text)
	}
	return b.String()
}

// normalizePathEscapes decodes percent-escapes of unreserved characters and
// uppercases the hex digits of the rest. Malformed escapes are left alone.
func normalizePathEscapes(p string) string {
	if !strings.Contains(p, "%") {
		return p
	}
	var b strings.Builder
	b.Grow(len(p))
	for i := 0; i < len(p); i++ {
		if p[i] != '%' || i+2 >= len(p) || !isHex(p[i+1]) || !isHex(p[i+2]) {
			b.WriteByte(p[i])
			continue
		}
		c := unhex(p[i+1])<<4 | unhex(p[i+2])
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('%')
			b.WriteString(strings.ToUpper(p[i+1 : i+3]))
		}
		i += 2
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '.' || c == '_' || c == '~'
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	}
	return c - 'A' + 10
}

func canonicalHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return "", utils.ErrInvalidURL
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	if isASCII(host) {
		return host, nil
	}
	ascii, err := hostProfile.ToASCII(host)
	if err != nil {
		return "", err
	}
	return ascii, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// removeDotSegments collapses "." and ".." segments of an absolute path
func removeDotSegments(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	segments := strings.Split(p[1:], "/")
	out := make([]string, 0, len(segments))
	for i, seg := range segments {
		last := i == len(segments)-1
		switch seg {
		case ".":
			if last {
				out = append(out, "")
			}
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			if last {
				out = append(out, "")
			}
		default:
			out = append(out, seg)
		}
	}
	return "/" + strings.Join(out, "/")
}

var rejectedRefPrefixes = []string{"javascript:", "mailto:", "tel:", "data:"}

// MakeAbsolute resolves a link found on base into an absolute http(s) URL.
// Handles protocol-relative, absolute-path and relative-path forms.
// Returns false for pseudo-scheme links, fragment-only refs and anything unresolvable.
func MakeAbsolute(relative, base string) (string, bool) {
	ref := strings.TrimSpace(relative)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	lower := strings.ToLower(ref)
	for _, prefix := range rejectedRefPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return "", false
		}
	}

	baseURL, err := url.Parse(strings.TrimSpace(base))
	if err != nil || baseURL.Host == "" {
		return "", false
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", false
	}

	abs := baseURL.ResolveReference(refURL)
	abs.Scheme = strings.ToLower(abs.Scheme)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if abs.Host == "" {
		return "", false
	}
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs.String(), true
}
