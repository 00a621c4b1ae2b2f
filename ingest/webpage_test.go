package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"threatharvest/config"
	"threatharvest/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const samplePage = `<!DOCTYPE html>
<html><body>
  <div class="advisory">
    <h2 class="headline">APT group targets energy sector</h2>
    <p class="summary">Spear phishing campaign attributed to a state actor</p>
    <span class="date">2024-03-10</span>
    <a class="more" href="/advisories/apt-energy">Read more</a>
  </div>
  <div class="advisory">
    <h2 class="headline">Office renovation complete</h2>
    <p class="summary">Our new headquarters is now open</p>
    <span class="date">2024-03-11</span>
    <a class="more" href="https://corp.example.org/news/office">Read more</a>
  </div>
</body></html>`

func pageSelectors() *config.SelectorSet {
	return &config.SelectorSet{
		Item:        "div.advisory",
		Title:       "h2.headline",
		Description: "p.summary",
		Link:        "a.more",
		Date:        "span.date",
	}
}

func TestWebpageSource_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer server.Close()

	cfg := config.SourceConfig{Type: "webpage", URL: server.URL, Selectors: pageSelectors()}
	src, err := NewWebpageSource("advisories", cfg, fastOpts(), zap.NewNop().Sugar())
	require.NoError(t, err)

	records := src.Fetch(context.Background())
	require.Len(t, records, 2)

	rec := records[0]
	assert.Equal(t, core.SourceTypeWebpage, rec.SourceType)
	assert.Equal(t, "APT group targets energy sector", rec.Title)
	assert.Equal(t, "Spear phishing campaign attributed to a state actor", rec.Description)
	assert.Equal(t, server.URL+"/advisories/apt-energy", rec.Link, "relative links resolve against the page URL")
	assert.Equal(t, "2024-03-10T00:00:00Z", rec.Published)
	assert.Contains(t, rec.RawData, "APT group targets energy sector")

	assert.Equal(t, "https://corp.example.org/news/office", records[1].Link, "absolute links pass through")
}

func TestWebpageSource_KeywordFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer server.Close()

	cfg := config.SourceConfig{
		Type:           "webpage",
		URL:            server.URL,
		Selectors:      pageSelectors(),
		FilterKeywords: []string{"phishing", "apt"},
	}
	src, err := NewWebpageSource("advisories", cfg, fastOpts(), zap.NewNop().Sugar())
	require.NoError(t, err)

	records := src.Fetch(context.Background())
	require.Len(t, records, 1)
	assert.Equal(t, "APT group targets energy sector", records[0].Title)
}

func TestWebpageSource_RequiresItemSelector(t *testing.T) {
	cfg := config.SourceConfig{Type: "webpage", URL: "https://example.org"}
	_, err := NewWebpageSource("advisories", cfg, fastOpts(), zap.NewNop().Sugar())
	require.Error(t, err)
	assert.ErrorIs(t, err, errMissingSelectors)

	cfg.Selectors = &config.SelectorSet{}
	_, err = NewWebpageSource("advisories", cfg, fastOpts(), zap.NewNop().Sugar())
	require.Error(t, err)
}

func TestWebpageSource_NoMatchesYieldsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>nothing here</p></body></html>"))
	}))
	defer server.Close()

	cfg := config.SourceConfig{Type: "webpage", URL: server.URL, Selectors: pageSelectors()}
	src, err := NewWebpageSource("advisories", cfg, fastOpts(), zap.NewNop().Sugar())
	require.NoError(t, err)

	assert.Empty(t, src.Fetch(context.Background()))
}
