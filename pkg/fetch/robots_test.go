package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func robotsServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	robotsHits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits.Add(1)
			w.WriteHeader(status)
			w.Write([]byte(body))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, robotsHits
}

func newTestRobotsChecker() *RobotsChecker {
	fetcher, _ := newTestFetcher(2)
	return NewRobotsChecker(fetcher, "AnimalScraper", testLogger())
}

func TestRobotsChecker_Allowed(t *testing.T) {
	server, _ := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /private/\n")
	rc := newTestRobotsChecker()
	ctx := context.Background()

	assert.True(t, rc.Allowed(ctx, server.URL+"/images/lion.jpg"))
	assert.False(t, rc.Allowed(ctx, server.URL+"/private/tiger.jpg"))
}

func TestRobotsChecker_AgentSpecificRules(t *testing.T) {
	server, _ := robotsServer(t, http.StatusOK, "User-agent: AnimalScraper\nDisallow: /\n\nUser-agent: *\nAllow: /\n")
	rc := newTestRobotsChecker()

	assert.False(t, rc.Allowed(context.Background(), server.URL+"/images/lion.jpg"))
}

func TestRobotsChecker_CachesPerHost(t *testing.T) {
	server, hits := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /private/\n")
	rc := newTestRobotsChecker()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rc.Allowed(ctx, server.URL+"/a.png")
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestRobotsChecker_ConcurrentLookupsFetchOnce(t *testing.T) {
	server, hits := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /private/\n")
	rc := newTestRobotsChecker()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.False(t, rc.Allowed(context.Background(), server.URL+"/private/lynx.jpg"))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), hits.Load())
}

func TestRobotsChecker_MissingFileAllowsAll(t *testing.T) {
	server, _ := robotsServer(t, http.StatusNotFound, "")
	rc := newTestRobotsChecker()

	assert.True(t, rc.Allowed(context.Background(), server.URL+"/private/anything.png"))
}

func TestRobotsChecker_UnreachableHostAllows(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	base := server.URL
	server.Close()

	rc := newTestRobotsChecker()
	assert.True(t, rc.Allowed(context.Background(), base+"/a.png"))
}

func TestRobotsChecker_UnparseableURLAllows(t *testing.T) {
	rc := newTestRobotsChecker()
	assert.True(t, rc.Allowed(context.Background(), "::not a url"))
}
