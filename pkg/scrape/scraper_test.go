package scrape

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/animal-scraper/pkg/config"
	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

type stubRobots struct{ allow bool }

func (s stubRobots) Allowed(context.Context, string) bool { return s.allow }

func TestScraper_Scrape(t *testing.T) {
	server, _ := summaryServer(t, map[string]string{
		"Aardvark": `{"thumbnail":{"source":"https://upload.example/aardvark.jpg"}}`,
		"Fox":      `{"thumbnail":{"source":"https://upload.example/fox.png"}}`,
	})
	s := NewScraper(testFetcher(), newTestResolver(server), stubRobots{allow: true}, "test-agent", config.ScrapeConfig{}, testLogger())

	res, err := s.Scrape(context.Background(), server.URL+"/wiki/List_of_animal_names")
	require.NoError(t, err)
	require.Len(t, res.Records, 4)

	names := make([]string, len(res.Records))
	for i, rec := range res.Records {
		names[i] = rec.Name
	}
	assert.Equal(t, []string{"Aardvark", "Bear", "Cattle", "Fox"}, names)
	assert.Equal(t, server.URL+"/wiki/Aardvark", res.Records[0].PageURL, "links resolve against the source host")
	assert.Equal(t, "https://upload.example/aardvark.jpg", res.Records[0].ImageURL)
	assert.Equal(t, "https://upload.example/fox.png", res.Records[3].ImageURL)
	assert.Empty(t, res.Records[1].ImageURL)

	assert.Equal(t, 4, res.Stats.Animals)
	assert.Equal(t, 7, res.Stats.Pairs)
	assert.Equal(t, 2, res.Stats.WithImages)
}

func TestScraper_MaxRecords(t *testing.T) {
	server, calls := summaryServer(t, map[string]string{})
	s := NewScraper(testFetcher(), newTestResolver(server), nil, "test-agent", config.ScrapeConfig{MaxRecords: 2}, testLogger())

	res, err := s.Scrape(context.Background(), server.URL+"/wiki/List_of_animal_names")
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.Equal(t, int32(2), calls.Load(), "images are only resolved for kept records")
}

func TestScraper_RobotsDisallowed(t *testing.T) {
	server, _ := summaryServer(t, map[string]string{})
	s := NewScraper(testFetcher(), nil, stubRobots{allow: false}, "test-agent", config.ScrapeConfig{}, testLogger())

	_, err := s.Scrape(context.Background(), server.URL+"/wiki/List_of_animal_names")
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrRobotsDisallowed)
}

func TestScraper_PageErrors(t *testing.T) {
	server, _ := summaryServer(t, map[string]string{})
	s := NewScraper(testFetcher(), nil, nil, "test-agent", config.ScrapeConfig{}, testLogger())

	_, err := s.Scrape(context.Background(), server.URL+"/wiki/Missing_page")
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrClientHTTPError)

	_, err = s.Scrape(context.Background(), "::not a url")
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrMalformedURL)
}
