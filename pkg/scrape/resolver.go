package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Sriram-PR/animal-scraper/pkg/fetch"
	"github.com/Sriram-PR/animal-scraper/pkg/models"
	"github.com/Sriram-PR/animal-scraper/pkg/parse"
	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

const maxSummaryBytes = 1 << 20

// summaryResponse is the subset of the page summary payload we read
type summaryResponse struct {
	Thumbnail *struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
	OriginalImage *struct {
		Source string `json:"source"`
	} `json:"originalimage"`
}

// ImageResolver looks up a representative image for an article through the page summary API.
// Lookups are paced by a token bucket, bounded in parallelism and cached per title.
type ImageResolver struct {
	fetcher     *fetch.Fetcher
	apiBase     string
	userAgent   string
	limiter     *rate.Limiter
	concurrency int

	cache   map[string]string // title -> image URL ("" = none)
	cacheMu sync.Mutex

	log *logrus.Entry
}

// NewImageResolver creates an ImageResolver. interval <= 0 disables pacing.
func NewImageResolver(fetcher *fetch.Fetcher, apiBase, userAgent string, interval time.Duration, concurrency int, log *logrus.Entry) *ImageResolver {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if !strings.HasSuffix(apiBase, "/") {
		apiBase += "/"
	}
	return &ImageResolver{
		fetcher:     fetcher,
		apiBase:     apiBase,
		userAgent:   userAgent,
		limiter:     rate.NewLimiter(limit, 1),
		concurrency: concurrency,
		cache:       make(map[string]string),
		log:         log,
	}
}

// Resolve returns the image URL for an article title. Lookup failures are logged and yield "".
// Only a cancelled ctx produces an error.
func (r *ImageResolver) Resolve(ctx context.Context, title string) (string, error) {
	if title == "" {
		return "", nil
	}

	r.cacheMu.Lock()
	cached, found := r.cache[title]
	r.cacheMu.Unlock()
	if found {
		r.log.WithField("title", title).Trace("Using cached summary lookup")
		return cached, nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", utils.ErrCancelled, err)
	}

	image, err := r.lookup(ctx, title)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", utils.ErrCancelled, ctx.Err())
		}
		r.log.WithFields(logrus.Fields{"title": title, "error_type": utils.CategorizeError(err)}).Warnf("Summary lookup failed: %v", err)
	}

	r.cacheMu.Lock()
	r.cache[title] = image
	r.cacheMu.Unlock()
	return image, nil
}

func (r *ImageResolver) lookup(ctx context.Context, title string) (string, error) {
	apiURL := r.apiBase + url.PathEscape(title)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.fetcher.FetchWithRetry(ctx, req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return "", err
	}
	defer resp.Body.Close()

	var summary summaryResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSummaryBytes)).Decode(&summary); err != nil {
		return "", fmt.Errorf("%w: decoding summary JSON: %w", utils.ErrParsing, err)
	}
	var source string
	switch {
	case summary.Thumbnail != nil && summary.Thumbnail.Source != "":
		source = summary.Thumbnail.Source
	case summary.OriginalImage != nil && summary.OriginalImage.Source != "":
		source = summary.OriginalImage.Source
	default:
		r.log.WithField("title", title).Debug("No thumbnail in summary")
		return "", nil
	}
	return parse.NormalizeImageURL(source, resp.Request.URL)
}

// ResolveAll fills ImageURL for every record that links an article and has no image yet.
// It returns the number of records that gained an image.
func (r *ImageResolver) ResolveAll(ctx context.Context, records []models.AnimalRecord) (int, error) {
	found := make([]bool, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i := range records {
		if records[i].ImageURL != "" {
			continue
		}
		title := WikiTitle(records[i].PageURL)
		if title == "" {
			continue
		}
		g.Go(func() error {
			image, err := r.Resolve(gctx, title)
			if err != nil {
				return err
			}
			if image != "" {
				records[i].ImageURL = image
				found[i] = true
			}
			return nil
		})
	}
	err := g.Wait()

	resolved := 0
	for _, ok := range found {
		if ok {
			resolved++
		}
	}
	r.log.Infof("Resolved images for %d of %d records", resolved, len(records))
	return resolved, err
}
