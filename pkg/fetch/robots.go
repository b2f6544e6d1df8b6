package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

const maxRobotsBytes = 512 * 1024

// RobotsChecker fetches, caches and evaluates robots.txt per host.
// A host whose robots.txt cannot be obtained is treated as allowing everything.
type RobotsChecker struct {
	fetcher   *Fetcher
	userAgent string
	cache     map[string]*robotstxt.RobotsData // host -> parsed data (nil = allow all)
	cacheMu   sync.Mutex
	inflight  singleflight.Group // One robots.txt fetch per host at a time
	log       *logrus.Entry
}

// NewRobotsChecker creates a RobotsChecker
func NewRobotsChecker(fetcher *Fetcher, userAgent string, log *logrus.Entry) *RobotsChecker {
	return &RobotsChecker{
		fetcher:   fetcher,
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
		log:       log,
	}
}

// Allowed reports whether the configured user agent may fetch rawURL
func (rc *RobotsChecker) Allowed(ctx context.Context, rawURL string) bool {
	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		return true
	}
	data := rc.robotsData(ctx, target)
	if data == nil {
		return true
	}
	return data.TestAgent(target.RequestURI(), rc.userAgent)
}

func (rc *RobotsChecker) robotsData(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := target.Host

	rc.cacheMu.Lock()
	data, found := rc.cache[host]
	rc.cacheMu.Unlock()
	if found {
		return data
	}

	v, _, _ := rc.inflight.Do(host, func() (interface{}, error) {
		rc.cacheMu.Lock()
		data, found := rc.cache[host]
		rc.cacheMu.Unlock()
		if found {
			return data, nil
		}

		scheme := target.Scheme
		if scheme != "http" && scheme != "https" {
			scheme = "https"
		}
		robotsURL := (&url.URL{Scheme: scheme, Host: host, Path: "/robots.txt"}).String()
		robotsLog := rc.log.WithField("robots_url", robotsURL)
		robotsLog.Info("Fetching robots.txt...")

		data = rc.fetch(ctx, robotsURL, robotsLog)

		// Cancelled lookups are not cached so a later run can retry them
		if ctx.Err() != nil {
			return data, nil
		}
		rc.cacheMu.Lock()
		rc.cache[host] = data
		rc.cacheMu.Unlock()
		return data, nil
	})
	data, _ = v.(*robotstxt.RobotsData)
	return data
}

func (rc *RobotsChecker) fetch(ctx context.Context, robotsURL string, log *logrus.Entry) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		log.Errorf("Error creating request: %v", err)
		return nil
	}
	if rc.userAgent != "" {
		req.Header.Set("User-Agent", rc.userAgent)
	}

	resp, fetchErr := rc.fetcher.FetchWithRetry(ctx, req)
	if resp == nil {
		log.Warnf("Fetching robots.txt failed: %v", fetchErr)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		log.Errorf("Error reading body: %v", err)
		return nil
	}

	// FromStatusAndBytes treats 4xx as allow-all
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		log.Errorf("Error parsing content: %v", err)
		return nil
	}
	log.WithField("status_code", resp.StatusCode).Debug("Parsed robots.txt")
	return data
}
