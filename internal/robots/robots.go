// Package robots fetches, caches and evaluates robots.txt files so page and
// image fetches stay polite.
package robots

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/hyperifyio/poemscout/internal/cache"
)

// Source reports where a ruleset came from.
type Source int

const (
	SourceNetwork Source = iota
	SourceMemory
	SourceCache304
)

// ErrPrivateHost is returned for loopback and private addresses unless
// AllowPrivateHosts is set.
var ErrPrivateHost = errors.New("private host not allowed")

// ErrUnavailable means robots.txt could not be read for a reason that may be
// temporary (5xx or timeout). Callers decide whether to proceed.
var ErrUnavailable = errors.New("robots.txt unavailable")

// maxRobotsBytes caps robots.txt bodies; Google reads the first 500 KiB.
const maxRobotsBytes = 512 * 1024

type Rules struct {
	Groups []Group
}

type Group struct {
	Agents     []string
	Allow      []string
	Disallow   []string
	CrawlDelay *time.Duration
}

// Manager fetches robots.txt once per host and keeps parsed rules in memory
// for EntryExpiry. Bodies are also kept in the on-disk HTTP cache so an
// expired entry can be revalidated with a conditional GET.
type Manager struct {
	HTTPClient        *http.Client
	Cache             *cache.HTTPCache
	UserAgent         string
	EntryExpiry       time.Duration
	AllowPrivateHosts bool
	// Timeout bounds one robots.txt request. Zero means 10s.
	Timeout time.Duration

	once sync.Once
	mem  *gocache.Cache
	now  func() time.Time
}

type memEntry struct {
	rules       Rules
	unavailable error
	expiry      time.Time
}

func (m *Manager) init() {
	m.once.Do(func() {
		if m.now == nil {
			m.now = time.Now
		}
		// Expiry is tracked on the entry against m.now, so go-cache only
		// needs to sweep eventually.
		m.mem = gocache.New(gocache.NoExpiration, 10*time.Minute)
	})
}

func (m *Manager) expiry() time.Duration {
	if m.EntryExpiry <= 0 {
		return 30 * time.Minute
	}
	return m.EntryExpiry
}

// Get returns the parsed rules for robotsURL.
//
// Any 4xx answer, 401 and 403 included, means there are no rules. A 5xx or a
// timeout returns ErrUnavailable, and that outcome is remembered until the
// entry expires. Other transport failures are returned as errors.
func (m *Manager) Get(ctx context.Context, robotsURL string) (Rules, Source, error) {
	m.init()
	u, err := url.Parse(robotsURL)
	if err != nil {
		return Rules{}, SourceNetwork, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) {
		return Rules{}, SourceNetwork, fmt.Errorf("unsupported url scheme: %q", robotsURL)
	}
	host := u.Hostname()
	if !m.AllowPrivateHosts && isLocalOrPrivateHost(host) {
		return Rules{}, SourceNetwork, fmt.Errorf("%w: %s", ErrPrivateHost, host)
	}

	if v, ok := m.mem.Get(robotsURL); ok {
		if ent := v.(memEntry); m.now().Before(ent.expiry) {
			return ent.rules, SourceMemory, ent.unavailable
		}
	}

	var etag, lastMod string
	if m.Cache != nil {
		if meta, err := m.Cache.LoadMeta(ctx, robotsURL); err == nil && meta != nil {
			etag = meta.ETag
			lastMod = meta.LastModified
		}
	}

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return Rules{}, SourceNetwork, fmt.Errorf("new request: %w", err)
	}
	if m.UserAgent != "" {
		req.Header.Set("User-Agent", m.UserAgent)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}
	client := m.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Rules{}, SourceNetwork, m.storeUnavailable(robotsURL, err)
		}
		return Rules{}, SourceNetwork, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && m.Cache != nil:
		body, err := m.Cache.LoadBody(ctx, robotsURL)
		if err != nil {
			return Rules{}, SourceCache304, fmt.Errorf("load cached robots: %w", err)
		}
		rules := parseRobots(string(body))
		m.store(robotsURL, rules)
		return rules, SourceCache304, nil
	case resp.StatusCode >= 500:
		return Rules{}, SourceNetwork, m.storeUnavailable(robotsURL, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		m.store(robotsURL, Rules{})
		return Rules{}, SourceNetwork, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Rules{}, SourceNetwork, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		if isTimeout(err) {
			return Rules{}, SourceNetwork, m.storeUnavailable(robotsURL, err)
		}
		return Rules{}, SourceNetwork, fmt.Errorf("read robots: %w", err)
	}
	if m.Cache != nil {
		_ = m.Cache.Save(ctx, robotsURL, "text/plain", resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), data)
	}
	rules := parseRobots(string(data))
	m.store(robotsURL, rules)
	return rules, SourceNetwork, nil
}

func (m *Manager) store(key string, rules Rules) {
	m.mem.Set(key, memEntry{rules: rules, expiry: m.now().Add(m.expiry())}, gocache.NoExpiration)
}

func (m *Manager) storeUnavailable(key string, cause error) error {
	err := fmt.Errorf("%w: %s: %w", ErrUnavailable, key, cause)
	m.mem.Set(key, memEntry{unavailable: err, expiry: m.now().Add(m.expiry())}, gocache.NoExpiration)
	return err
}

// Allowed reports whether pageURL may be fetched by the manager's user agent
// and returns the crawl delay of the matching group (zero when unset).
func (m *Manager) Allowed(ctx context.Context, pageURL string) (bool, time.Duration, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false, 0, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) || u.Host == "" {
		return false, 0, fmt.Errorf("unsupported url: %q", pageURL)
	}
	robotsURL := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}).String()
	rules, _, err := m.Get(ctx, robotsURL)
	if err != nil {
		return false, 0, err
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	agent := productToken(m.UserAgent)
	var delay time.Duration
	if d := rules.CrawlDelayFor(agent); d != nil {
		delay = *d
	}
	return rules.IsAllowed(agent, path), delay, nil
}

// productToken reduces a User-Agent header to the token robots.txt groups
// are matched against, e.g. "poemscout/1.0 (+url)" -> "poemscout".
func productToken(ua string) string {
	ua = strings.TrimSpace(ua)
	if i := strings.IndexAny(ua, " /"); i > 0 {
		ua = ua[:i]
	}
	return strings.ToLower(ua)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func parseRobots(text string) Rules {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var groups []Group
	current := Group{}
	flush := func() {
		if len(current.Agents) == 0 && len(current.Allow) == 0 && len(current.Disallow) == 0 && current.CrawlDelay == nil {
			return
		}
		groups = append(groups, current)
		current = Group{}
	}
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		val := strings.TrimSpace(line[colon+1:])
		switch key {
		case "user-agent", "useragent":
			if len(current.Agents) > 0 && (len(current.Allow) > 0 || len(current.Disallow) > 0 || current.CrawlDelay != nil) {
				flush()
			}
			current.Agents = append(current.Agents, strings.ToLower(val))
		case "allow":
			current.Allow = append(current.Allow, val)
		case "disallow":
			current.Disallow = append(current.Disallow, val)
		case "crawl-delay", "crawldelay":
			if val != "" {
				if d, err := time.ParseDuration(val + "s"); err == nil && d >= 0 {
					current.CrawlDelay = &d
				}
			}
		}
	}
	flush()
	return Rules{Groups: groups}
}

// IsAllowed evaluates whether the path (which may include a query string) may
// be fetched by userAgent.
//
// The most specific matching User-agent group is used, exact tokens beating
// "*". Within it the matching directive with the longest pattern wins, Allow
// winning ties. No matching directive means allowed.
func (r Rules) IsAllowed(userAgent string, pathWithOptionalQuery string) bool {
	grpIdx := r.selectGroupIndex(userAgent)
	if grpIdx < 0 {
		return true
	}
	grp := r.Groups[grpIdx]

	bestScore := -1
	bestAllow := true
	evaluate := func(patterns []string, isAllow bool) {
		for _, p := range patterns {
			// An empty Disallow means nothing is disallowed.
			if p == "" {
				continue
			}
			if !patternMatches(p, pathWithOptionalQuery) {
				continue
			}
			score := patternSpecificity(p)
			if score > bestScore || (score == bestScore && isAllow && !bestAllow) {
				bestScore = score
				bestAllow = isAllow
			}
		}
	}
	evaluate(grp.Disallow, false)
	evaluate(grp.Allow, true)
	return bestScore == -1 || bestAllow
}

// CrawlDelayFor returns the crawl delay of the group matching userAgent, or nil.
func (r Rules) CrawlDelayFor(userAgent string) *time.Duration {
	grpIdx := r.selectGroupIndex(userAgent)
	if grpIdx < 0 {
		return nil
	}
	return r.Groups[grpIdx].CrawlDelay
}

func (r Rules) selectGroupIndex(userAgent string) int {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	bestIdx := -1
	bestScore := -1
	for i, g := range r.Groups {
		for _, a := range g.Agents {
			token := strings.TrimSpace(a)
			var score int
			switch {
			case token == "":
				continue
			case token == "*":
				score = 0
			case ua != "" && strings.Contains(ua, token):
				score = len(token)
			default:
				continue
			}
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
	}
	return bestIdx
}

var patternCache sync.Map // pattern -> *regexp.Regexp

// patternMatches supports '*' (any sequence) and a trailing '$' anchor.
// Matching is anchored at the start of the path.
func patternMatches(pattern, path string) bool {
	if re, ok := patternCache.Load(pattern); ok {
		return re.(*regexp.Regexp).MatchString(path)
	}
	p, anchorEnd := strings.CutSuffix(pattern, "$")
	var b strings.Builder
	b.WriteString("^")
	for _, part := range strings.Split(p, "*") {
		b.WriteString(regexp.QuoteMeta(part))
		b.WriteString(".*")
	}
	expr := strings.TrimSuffix(b.String(), ".*")
	if anchorEnd {
		expr += "$"
	}
	re := regexp.MustCompile(expr)
	patternCache.Store(pattern, re)
	return re.MatchString(path)
}

func patternSpecificity(pattern string) int {
	p := strings.TrimSuffix(pattern, "$")
	return len(strings.ReplaceAll(p, "*", ""))
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isLocalOrPrivateHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" || h == "localhost.localdomain" || strings.HasSuffix(h, ".localhost") {
		return true
	}
	if ip := net.ParseIP(strings.Trim(h, "[]")); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
	}
	return false
}
