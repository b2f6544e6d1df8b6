package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/animal-scraper/pkg/config"
	"github.com/Sriram-PR/animal-scraper/pkg/fetch"
	"github.com/Sriram-PR/animal-scraper/pkg/models"
	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

const maxPageBytes = 32 << 20

// RobotsPolicy decides whether a URL may be fetched
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Result is the outcome of one scrape of the source page
type Result struct {
	SourceURL string
	Records   []models.AnimalRecord
	Stats     Stats
}

// Scraper fetches the source page, extracts animal records and resolves their images
type Scraper struct {
	fetcher   *fetch.Fetcher
	resolver  *ImageResolver
	robots    RobotsPolicy // nil = robots.txt not consulted
	userAgent string
	cfg       config.ScrapeConfig
	log       *logrus.Entry
}

// NewScraper creates a Scraper. resolver and robots may be nil.
func NewScraper(fetcher *fetch.Fetcher, resolver *ImageResolver, robots RobotsPolicy, userAgent string, cfg config.ScrapeConfig, log *logrus.Entry) *Scraper {
	return &Scraper{
		fetcher:   fetcher,
		resolver:  resolver,
		robots:    robots,
		userAgent: userAgent,
		cfg:       cfg,
		log:       log,
	}
}

// Scrape runs the full extraction pipeline against sourceURL
func (s *Scraper) Scrape(ctx context.Context, sourceURL string) (*Result, error) {
	pageLog := s.log.WithField("source_url", sourceURL)

	base, err := url.Parse(sourceURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("%w: '%s'", utils.ErrMalformedURL, sourceURL)
	}
	if s.robots != nil && !s.robots.Allowed(ctx, sourceURL) {
		return nil, fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, sourceURL)
	}

	doc, err := s.fetchDocument(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	raw, err := ParseAnimalTables(doc, base, pageLog)
	if err != nil {
		return nil, err
	}
	records, stats := ProcessRecords(raw, s.cfg.MaxRecords, pageLog)

	if s.resolver != nil {
		if _, err := s.resolver.ResolveAll(ctx, records); err != nil {
			return nil, err
		}
	}
	computed := ComputeStats(records)
	stats.WithImages = computed.WithImages

	pageLog.WithFields(logrus.Fields{
		"animals":     stats.Animals,
		"pairs":       stats.Pairs,
		"with_images": stats.WithImages,
	}).Info("Scrape complete")
	return &Result{SourceURL: sourceURL, Records: records, Stats: stats}, nil
}

func (s *Scraper) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := s.fetcher.FetchWithRetry(ctx, req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML: %w", utils.ErrParsing, err)
	}
	return doc, nil
}
