package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/animal-scraper/pkg/config"
	"github.com/Sriram-PR/animal-scraper/pkg/models"
	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

// ErrPublish marks a failed object upload
var ErrPublish = errors.New("publish error")

// Result counts what one Publish call uploaded
type Result struct {
	Images  int
	Reports int
	Failed  int
	Bytes   int64
}

// Publisher copies downloaded images and run reports into a blob bucket.
// Objects are laid out as <prefix>/<run_id>/images/<file> and <prefix>/<run_id>/<report>.
type Publisher struct {
	bucket      *blob.Bucket
	prefix      string
	concurrency int
	log         *logrus.Entry
}

// Open opens the bucket named by cfg.BucketURL (file://, mem://, s3://, gs://)
func Open(ctx context.Context, cfg config.PublishConfig, log *logrus.Entry) (*Publisher, error) {
	bucket, err := blob.OpenBucket(ctx, cfg.BucketURL)
	if err != nil {
		return nil, fmt.Errorf("%w: opening bucket '%s': %w", ErrPublish, cfg.BucketURL, err)
	}
	return New(bucket, cfg.Prefix, cfg.Concurrency, log), nil
}

// New wraps an already opened bucket. The Publisher takes ownership of it.
func New(bucket *blob.Bucket, prefix string, concurrency int, log *logrus.Entry) *Publisher {
	if concurrency <= 0 {
		concurrency = config.DefaultPublishConcurrency
	}
	return &Publisher{bucket: bucket, prefix: prefix, concurrency: concurrency, log: log}
}

// Close closes the underlying bucket
func (p *Publisher) Close() error {
	return p.bucket.Close()
}

// ImageKey returns the object key for a downloaded file of a run
func (p *Publisher) ImageKey(runID, localPath string) string {
	return path.Join(p.prefix, runID, "images", filepath.Base(localPath))
}

// ReportKey returns the object key for a report file of a run
func (p *Publisher) ReportKey(runID, reportPath string) string {
	return path.Join(p.prefix, runID, filepath.Base(reportPath))
}

// Publish uploads every downloaded image of batch plus reportFiles.
// Individual upload failures are counted and joined into the returned error; the rest still upload.
func (p *Publisher) Publish(ctx context.Context, batch *models.BatchReport, reportFiles []string) (Result, error) {
	var (
		images, reports, failed atomic.Int32
		total                   atomic.Int64
		errs                    []error
		errsMu                  sync.Mutex
	)
	record := func(err error) {
		failed.Add(1)
		errsMu.Lock()
		errs = append(errs, err)
		errsMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, id := range batch.SortedIDs() {
		r := batch.Results[id]
		if r.State != models.ItemStateDownloaded || r.LocalPath == "" {
			continue
		}
		metadata := map[string]string{"item_id": r.ID, "source_url": r.SourceURL, "sha256": r.SHA256}
		key := p.ImageKey(batch.RunID, r.LocalPath)
		g.Go(func() error {
			n, err := p.upload(gctx, r.LocalPath, key, metadata)
			if err != nil {
				if gctx.Err() != nil {
					return fmt.Errorf("%w: %w", utils.ErrCancelled, gctx.Err())
				}
				record(err)
				return nil
			}
			images.Add(1)
			total.Add(n)
			return nil
		})
	}
	for _, reportPath := range reportFiles {
		key := p.ReportKey(batch.RunID, reportPath)
		g.Go(func() error {
			n, err := p.upload(gctx, reportPath, key, map[string]string{"run_id": batch.RunID})
			if err != nil {
				if gctx.Err() != nil {
					return fmt.Errorf("%w: %w", utils.ErrCancelled, gctx.Err())
				}
				record(err)
				return nil
			}
			reports.Add(1)
			total.Add(n)
			return nil
		})
	}

	waitErr := g.Wait()
	res := Result{
		Images:  int(images.Load()),
		Reports: int(reports.Load()),
		Failed:  int(failed.Load()),
		Bytes:   total.Load(),
	}
	p.log.WithFields(logrus.Fields{
		"run_id":  batch.RunID,
		"images":  res.Images,
		"reports": res.Reports,
		"failed":  res.Failed,
		"bytes":   res.Bytes,
	}).Info("Publish finished")

	if waitErr != nil {
		return res, waitErr
	}
	return res, errors.Join(errs...)
}

func (p *Publisher) upload(ctx context.Context, localPath, key string, metadata map[string]string) (int64, error) {
	uploadLog := p.log.WithFields(logrus.Fields{"file": localPath, "key": key})

	f, err := os.Open(localPath)
	if err != nil {
		uploadLog.Warnf("Cannot open file for upload: %v", err)
		return 0, fmt.Errorf("%w: %w: %w", ErrPublish, utils.ErrFilesystem, err)
	}
	defer f.Close()

	opts := &blob.WriterOptions{
		ContentType: mime.TypeByExtension(filepath.Ext(localPath)),
		Metadata:    metadata,
	}
	if opts.ContentType == "" {
		opts.ContentType = "application/octet-stream"
	}

	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := p.bucket.NewWriter(writeCtx, key, opts)
	if err != nil {
		return 0, fmt.Errorf("%w: creating writer for '%s': %w", ErrPublish, key, err)
	}
	n, copyErr := io.Copy(w, f)
	if copyErr != nil {
		// Cancelling before Close discards the partial object
		cancel()
		w.Close()
		uploadLog.Warnf("Upload failed: %v", copyErr)
		return 0, fmt.Errorf("%w: writing '%s': %w", ErrPublish, key, copyErr)
	}
	if err := w.Close(); err != nil {
		uploadLog.Warnf("Upload failed on close: %v", err)
		return 0, fmt.Errorf("%w: closing '%s': %w", ErrPublish, key, err)
	}
	uploadLog.Debugf("Uploaded %d bytes", n)
	return n, nil
}
