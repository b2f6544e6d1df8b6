package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/animal-scraper/pkg/config"
	"github.com/Sriram-PR/animal-scraper/pkg/models"
	"github.com/Sriram-PR/animal-scraper/pkg/scrape"
	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

// Output file names, relative to the output directory
const (
	ReportJSONFilename  = "report.json"
	SummaryYAMLFilename = "summary.yaml"
	ImageMapFilename    = "image_map.tsv"
	AdjectivesFilename  = "adjectives.tsv"
)

// Summarize condenses a batch report into the persisted run summary
func Summarize(batch *models.BatchReport, sourceURL string) models.RunSummary {
	return models.RunSummary{
		RunID:      batch.RunID,
		SourceURL:  sourceURL,
		StartedAt:  batch.StartedAt,
		FinishedAt: batch.FinishedAt,
		Total:      batch.Total,
		Succeeded:  batch.Succeeded,
		Failed:     batch.Failed,
		Skipped:    batch.Skipped,
		Cancelled:  batch.Cancelled(utils.ErrCancelled),
		Failures:   batch.FailureCategories(),
	}
}

// Summary is the layout of summary.yaml
type Summary struct {
	Run           models.RunSummary      `yaml:"run"`
	Duration      string                 `yaml:"duration"`
	Scrape        *scrape.Stats          `yaml:"scrape,omitempty"`
	Unresolved    []string               `yaml:"animals_without_image,omitempty"`
	Configuration map[string]interface{} `yaml:"configuration,omitempty"`
}

// Writer produces the run reports under one output directory
type Writer struct {
	outputDir string
	cfg       *config.AppConfig
	log       *logrus.Entry
}

// NewWriter creates a Writer. cfg may be nil, in which case no configuration snapshot is written.
func NewWriter(outputDir string, cfg *config.AppConfig, log *logrus.Entry) *Writer {
	return &Writer{outputDir: outputDir, cfg: cfg, log: log}
}

// Input bundles what the reports are built from. Scrape and Unresolved are optional.
type Input struct {
	Batch      *models.BatchReport
	SourceURL  string
	Scrape     *scrape.Result
	Unresolved []string // Animals that got no work item
}

// WriteAll writes every report and returns the paths written.
// A failing report does not stop the others; the first error is returned.
func (w *Writer) WriteAll(in Input) ([]string, error) {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating output directory '%s': %w", utils.ErrFilesystem, w.outputDir, err)
	}

	writers := []struct {
		name  string
		write func(path string, in Input) error
	}{
		{ReportJSONFilename, w.writeReportJSON},
		{SummaryYAMLFilename, w.writeSummaryYAML},
		{ImageMapFilename, w.writeImageMap},
		{AdjectivesFilename, w.writeAdjectives},
	}

	var written []string
	var firstErr error
	for _, rw := range writers {
		if rw.name == AdjectivesFilename && in.Scrape == nil {
			continue
		}
		path := filepath.Join(w.outputDir, rw.name)
		if err := rw.write(path, in); err != nil {
			w.log.WithField("file", path).Errorf("Failed to write report: %v", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		written = append(written, path)
	}
	w.log.Infof("Wrote %d report files to %s", len(written), w.outputDir)
	return written, firstErr
}

func (w *Writer) writeReportJSON(path string, in Input) error {
	data, err := json.MarshalIndent(in.Batch, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling batch report to JSON: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

func (w *Writer) writeSummaryYAML(path string, in Input) error {
	summary := Summary{
		Run:        Summarize(in.Batch, in.SourceURL),
		Duration:   in.Batch.FinishedAt.Sub(in.Batch.StartedAt).Round(time.Millisecond).String(),
		Unresolved: in.Unresolved,
	}
	if in.Scrape != nil {
		stats := in.Scrape.Stats
		summary.Scrape = &stats
	}

	if w.cfg != nil {
		var cfgMap map[string]interface{}
		cfgBytes, err := yaml.Marshal(w.cfg)
		if err != nil {
			w.log.Warnf("Could not marshal configuration for summary: %v", err)
		} else if err := yaml.Unmarshal(cfgBytes, &cfgMap); err != nil {
			w.log.Warnf("Could not unmarshal configuration into map for summary: %v", err)
		} else {
			summary.Configuration = cfgMap
		}
	}

	data, err := yaml.Marshal(&summary)
	if err != nil {
		return fmt.Errorf("marshalling run summary to YAML: %w", err)
	}
	return writeFile(path, data)
}

// writeImageMap writes one "id, source URL, local path, state" line per result
func (w *Writer) writeImageMap(path string, in Input) error {
	var b strings.Builder
	b.WriteString("id\tsource_url\tlocal_path\tstate\n")
	for _, id := range in.Batch.SortedIDs() {
		r := in.Batch.Results[id]
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\n", tsvField(id), tsvField(r.SourceURL), tsvField(r.LocalPath), r.State)
	}
	return writeFile(path, []byte(b.String()))
}

// writeAdjectives writes one "adjective, animal, local image path" line per pair, grouped by adjective
func (w *Writer) writeAdjectives(path string, in Input) error {
	adjectives, animals := scrape.GroupByAdjective(in.Scrape.Records)

	var b strings.Builder
	b.WriteString("adjective\tanimal\tlocal_path\n")
	for _, adj := range adjectives {
		for _, name := range animals[adj] {
			localPath := ""
			if r, ok := in.Batch.Results[name]; ok && r.State == models.ItemStateDownloaded {
				localPath = r.LocalPath
			}
			fmt.Fprintf(&b, "%s\t%s\t%s\n", tsvField(adj), tsvField(name), tsvField(localPath))
		}
	}
	return writeFile(path, []byte(b.String()))
}

// writeFile writes data through a temp file in the same directory and renames it into place
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Chmod(0644)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: writing '%s': %w", utils.ErrFilesystem, path, err)
	}
	return nil
}

var tsvReplacer = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

func tsvField(s string) string {
	return tsvReplacer.Replace(s)
}
