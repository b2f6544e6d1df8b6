package scrape

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/animal-scraper/pkg/models"
)

// Terms that show up in list tables but never name an animal
var invalidNameTerms = []string{
	"see also", "references", "external links", "notes",
	"male", "female", "young", "group", "adjective",
}

// Stats summarizes a processed record set
type Stats struct {
	RawRows            int `json:"raw_rows" yaml:"raw_rows"`
	InvalidRows        int `json:"invalid_rows" yaml:"invalid_rows"`
	DuplicatePairs     int `json:"duplicate_pairs" yaml:"duplicate_pairs"`
	Animals            int `json:"animals" yaml:"animals"`
	Pairs              int `json:"pairs" yaml:"pairs"` // animal-adjective pairs
	UniqueAdjectives   int `json:"unique_adjectives" yaml:"unique_adjectives"`
	MultipleAdjectives int `json:"multiple_adjectives" yaml:"multiple_adjectives"` // animals with more than one adjective
	WithImages         int `json:"with_images" yaml:"with_images"`
}

// IsValidAnimalName reports whether name plausibly names an animal
func IsValidAnimalName(name string) bool {
	if len([]rune(name)) < 2 {
		return false
	}
	lower := strings.ToLower(name)
	for _, term := range invalidNameTerms {
		if strings.Contains(lower, term) {
			return false
		}
	}
	return true
}

func isValidAdjective(adjective, name string) bool {
	if len([]rune(adjective)) < 2 {
		return false
	}
	lower := strings.ToLower(adjective)
	if _, empty := emptyAdjectiveValues[lower]; empty {
		return false
	}
	return lower != strings.ToLower(name)
}

// ProcessRecords validates raw rows, drops duplicate (animal, adjective) pairs and merges rows for
// the same animal into one record, keeping first-seen order. maxRecords > 0 caps the number of animals.
func ProcessRecords(raw []models.AnimalRecord, maxRecords int, log *logrus.Entry) ([]models.AnimalRecord, Stats) {
	stats := Stats{RawRows: len(raw)}

	byName := make(map[string]int) // lowercase name -> index into records
	seenPairs := make(map[[2]string]struct{})
	var records []models.AnimalRecord

	for _, row := range raw {
		name := NormalizeText(row.Name)
		if !IsValidAnimalName(name) {
			log.Debugf("Invalid animal name: %q", row.Name)
			stats.InvalidRows++
			continue
		}
		nameKey := strings.ToLower(name)

		var adjectives []string
		for _, adj := range row.Adjectives {
			adj = NormalizeText(adj)
			if !isValidAdjective(adj, name) {
				log.Debugf("Invalid adjective for %s: %q", name, adj)
				continue
			}
			pair := [2]string{nameKey, strings.ToLower(adj)}
			if _, dup := seenPairs[pair]; dup {
				stats.DuplicatePairs++
				log.Debugf("Duplicate entry removed: %s -> %s", name, adj)
				continue
			}
			seenPairs[pair] = struct{}{}
			adjectives = append(adjectives, adj)
		}

		idx, known := byName[nameKey]
		if !known {
			if len(adjectives) == 0 {
				stats.InvalidRows++
				continue
			}
			if maxRecords > 0 && len(records) >= maxRecords {
				continue
			}
			byName[nameKey] = len(records)
			records = append(records, models.AnimalRecord{
				Name:       name,
				Adjectives: adjectives,
				PageURL:    row.PageURL,
				ImageURL:   row.ImageURL,
			})
			continue
		}

		rec := &records[idx]
		rec.Adjectives = append(rec.Adjectives, adjectives...)
		if rec.PageURL == "" {
			rec.PageURL = row.PageURL
		}
		if rec.ImageURL == "" {
			rec.ImageURL = row.ImageURL
		}
	}

	stats.fill(records)
	log.WithFields(logrus.Fields{
		"raw_rows":   stats.RawRows,
		"animals":    stats.Animals,
		"pairs":      stats.Pairs,
		"duplicates": stats.DuplicatePairs,
	}).Info("Processed animal records")
	return records, stats
}

// ComputeStats recomputes the record-derived counters, e.g. after image URLs were resolved
func ComputeStats(records []models.AnimalRecord) Stats {
	var s Stats
	s.fill(records)
	return s
}

func (s *Stats) fill(records []models.AnimalRecord) {
	adjectives := make(map[string]struct{})
	s.Animals = len(records)
	s.Pairs, s.MultipleAdjectives, s.WithImages = 0, 0, 0
	for _, rec := range records {
		s.Pairs += len(rec.Adjectives)
		if len(rec.Adjectives) > 1 {
			s.MultipleAdjectives++
		}
		if rec.ImageURL != "" {
			s.WithImages++
		}
		for _, adj := range rec.Adjectives {
			adjectives[strings.ToLower(adj)] = struct{}{}
		}
	}
	s.UniqueAdjectives = len(adjectives)
}

// GroupByAdjective maps each adjective to the names of the animals it describes, both sorted
func GroupByAdjective(records []models.AnimalRecord) (adjectives []string, animals map[string][]string) {
	animals = make(map[string][]string)
	for _, rec := range records {
		for _, adj := range rec.Adjectives {
			animals[adj] = append(animals[adj], rec.Name)
		}
	}
	for adj, names := range animals {
		sort.Strings(names)
		adjectives = append(adjectives, adj)
	}
	sort.Strings(adjectives)
	return adjectives, animals
}
