package scrape

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/animal-scraper/pkg/models"
	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

// Header fragments that mark the column holding collateral adjectives
var adjectiveHeaderIndicators = []string{
	"collateral adjective",
	"adjective",
	"collateral",
	"adjectival",
	"relating adjective",
}

// Separators between several adjectives in one cell, applied in order
var adjectiveSeparators = []string{",", ";", " or ", " and ", "/", " & "}

// Cell values that mean "no adjective"
var emptyAdjectiveValues = map[string]struct{}{
	"":     {},
	"—":    {},
	"-":    {},
	"n/a":  {},
	"none": {},
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	footnoteRe   = regexp.MustCompile(`\[\d+\]`)
	editLinkRe   = regexp.MustCompile(`(?i)\([^)]*edit[^)]*\)`)
)

// NormalizeText collapses whitespace and strips footnote markers and edit links
func NormalizeText(text string) string {
	normalized := whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
	normalized = footnoteRe.ReplaceAllString(normalized, "")
	normalized = editLinkRe.ReplaceAllString(normalized, "")
	return strings.TrimSpace(normalized)
}

// ParseAnimalTables extracts one record per data row from every wikitable that has an adjective column.
// Relative /wiki/ links are resolved against base. The result is unvalidated and may hold duplicates.
func ParseAnimalTables(doc *goquery.Document, base *url.URL, log *logrus.Entry) ([]models.AnimalRecord, error) {
	tables := doc.Find("table.wikitable")
	log.Infof("Found %d total tables, filtering for collateral adjective tables", tables.Length())

	var records []models.AnimalRecord
	matched := 0
	tables.Each(func(tableIdx int, table *goquery.Selection) {
		tableLog := log.WithField("table", tableIdx+1)

		rows := table.Find("tr")
		if rows.Length() == 0 {
			return
		}
		adjIdx := adjectiveColumnIndex(rows.First())
		if adjIdx < 0 {
			tableLog.Debug("Table skipped, no collateral adjective column")
			return
		}
		matched++
		tableLog.Debugf("Adjective column at index %d, %d data rows", adjIdx, rows.Length()-1)

		rows.Slice(1, goquery.ToEnd).Each(func(rowIdx int, row *goquery.Selection) {
			rec, ok := parseRow(row, adjIdx, base)
			if !ok {
				tableLog.WithField("row", rowIdx+1).Trace("Row skipped")
				return
			}
			records = append(records, rec)
		})
	})

	if matched == 0 {
		return nil, fmt.Errorf("%w: no adjective table found in HTML (%d wikitables)", utils.ErrParsing, tables.Length())
	}
	log.Infof("Extracted %d rows from %d adjective tables", len(records), matched)
	return records, nil
}

// adjectiveColumnIndex returns the index of the first header cell naming an adjective column, or -1
func adjectiveColumnIndex(header *goquery.Selection) int {
	idx := -1
	header.Children().Filter("th, td").EachWithBreak(func(i int, cell *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(cell.Text()))
		for _, indicator := range adjectiveHeaderIndicators {
			if strings.Contains(text, indicator) {
				idx = i
				return false
			}
		}
		return true
	})
	return idx
}

func parseRow(row *goquery.Selection, adjIdx int, base *url.URL) (models.AnimalRecord, bool) {
	cells := row.Children().Filter("td, th")
	if cells.Length() <= adjIdx {
		return models.AnimalRecord{}, false
	}

	animalCell := cells.Eq(0)
	name := animalName(animalCell)
	if len([]rune(name)) < 2 {
		return models.AnimalRecord{}, false
	}

	adjCell := cells.Eq(adjIdx)
	plain := NormalizeText(adjCell.Text())
	if _, empty := emptyAdjectiveValues[strings.ToLower(plain)]; empty {
		return models.AnimalRecord{}, false
	}

	return models.AnimalRecord{
		Name:       name,
		Adjectives: SplitAdjectives(cellTextWithBreaks(adjCell), plain),
		PageURL:    wikiLink(animalCell, base),
	}, true
}

// animalName is the normalized cell text, cut before any parenthetical qualifier
func animalName(cell *goquery.Selection) string {
	name := NormalizeText(cell.Text())
	if i := strings.Index(name, "("); i > 0 {
		if trimmed := strings.TrimSpace(name[:i]); len([]rune(trimmed)) >= 2 {
			name = trimmed
		}
	}
	return name
}

// wikiLink returns the absolute URL of the first article link in cell, or ""
func wikiLink(cell *goquery.Selection, base *url.URL) string {
	var link string
	cell.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		title, ok := strings.CutPrefix(href, "/wiki/")
		if !ok || title == "" || strings.Contains(title, ":") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		ref.Fragment = ""
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		link = ref.String()
		return false
	})
	return link
}

// cellTextWithBreaks returns the cell text with every <br> turned into a comma
func cellTextWithBreaks(cell *goquery.Selection) string {
	clone := cell.Clone()
	clone.Find("br").ReplaceWithHtml(",")
	return NormalizeText(clone.Text())
}

// SplitAdjectives breaks a cell into individual adjectives. text is the cell text with line
// breaks already turned into commas, fallback the plain cell text used when nothing usable remains.
func SplitAdjectives(text, fallback string) []string {
	if text == "" {
		text = fallback
	}
	parts := []string{text}
	for _, sep := range adjectiveSeparators {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, sep)...)
		}
		parts = next
	}

	var adjectives []string
	for _, p := range parts {
		cleaned := NormalizeText(p)
		if len([]rune(cleaned)) <= 1 {
			continue
		}
		if _, empty := emptyAdjectiveValues[strings.ToLower(cleaned)]; empty {
			continue
		}
		adjectives = append(adjectives, cleaned)
	}
	if len(adjectives) == 0 {
		return []string{text}
	}
	return adjectives
}

// WikiTitle returns the article title of a /wiki/ page URL, unescaped, or ""
func WikiTitle(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	title, ok := strings.CutPrefix(u.Path, "/wiki/")
	if !ok {
		return ""
	}
	return title
}
