package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"threatharvest/config"
	"threatharvest/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastOpts() FetchOptions {
	return FetchOptions{
		Timeout:    2 * time.Second,
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
	}
}

func TestAPISource_JSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"data": {"items": [
				{"title": "Ransomware wave", "description": "LockBit variant", "published_at": "2024-02-01T10:00:00Z", "url": "https://intel.example.org/1"},
				{"title": "Phishing kit", "description": "Credentials harvester", "published_at": "2024-02-02T10:00:00Z", "url": "https://intel.example.org/2"}
			]}
		}`))
	}))
	defer server.Close()

	cfg := config.SourceConfig{
		Type:           "api",
		URL:            server.URL,
		ResponseFormat: "json",
		DataPath:       "data.items",
	}
	src, err := NewAPISource("vendor_api", cfg, fastOpts(), zap.NewNop().Sugar())
	require.NoError(t, err)

	records := src.Fetch(context.Background())
	require.Len(t, records, 2)

	rec := records[0]
	assert.Equal(t, "vendor_api", rec.Source)
	assert.Equal(t, core.SourceTypeAPI, rec.SourceType)
	assert.Equal(t, "Ransomware wave", rec.Title)
	assert.Equal(t, "LockBit variant", rec.Description)
	assert.Equal(t, "2024-02-01T10:00:00Z", rec.Published)
	assert.Equal(t, "https://intel.example.org/1", rec.Link)
	assert.Equal(t, core.ContentID(rec.Title, rec.Description), rec.ID)
	assert.NotEmpty(t, rec.RawData)
}

func TestAPISource_JSONNestedFieldPaths(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"vulnerabilities": [
			{"cve": {
				"id": "CVE-2024-0001",
				"descriptions": [{"lang": "en", "value": "Heap overflow in parser"}],
				"published": "2024-02-01T10:00:00Z",
				"references": [{"url": "https://nvd.example.org/CVE-2024-0001"}]
			}}
		]}`))
	}))
	defer server.Close()

	cfg := config.SourceConfig{
		Type:           "api",
		URL:            server.URL,
		ResponseFormat: "json",
		DataPath:       "vulnerabilities",
		TitleField:     "cve.id",
		DescField:      "cve.descriptions[0].value",
		DateField:      "cve.published",
		LinkField:      "cve.references[0].url",
	}
	src, err := NewAPISource("nvd", cfg, fastOpts(), zap.NewNop().Sugar())
	require.NoError(t, err)

	records := src.Fetch(context.Background())
	require.Len(t, records, 1)
	assert.Equal(t, "CVE-2024-0001", records[0].Title)
	assert.Equal(t, "Heap overflow in parser", records[0].Description)
	assert.Equal(t, "https://nvd.example.org/CVE-2024-0001", records[0].Link)
}

func TestAPISource_BadDataPathReturnsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"items": []}}`))
	}))
	defer server.Close()

	cfg := config.SourceConfig{Type: "api", URL: server.URL, DataPath: "data.records"}
	src, err := NewAPISource("vendor_api", cfg, fastOpts(), zap.NewNop().Sugar())
	require.NoError(t, err)

	assert.Empty(t, src.Fetch(context.Background()))
}

func TestAPISource_RetriesThenGivesUp(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := config.SourceConfig{Type: "api", URL: server.URL}
	src, err := NewAPISource("flaky", cfg, fastOpts(), zap.NewNop().Sugar())
	require.NoError(t, err)

	records := src.Fetch(context.Background())
	assert.Empty(t, records, "an exhausted source yields an empty batch, not an error")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "three attempts per network call")
}

func TestAPISource_RecoversWithinRetryBudget(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"title": "Recovered", "description": "after retries"}]`))
	}))
	defer server.Close()

	cfg := config.SourceConfig{Type: "api", URL: server.URL}
	src, err := NewAPISource("flaky", cfg, fastOpts(), zap.NewNop().Sugar())
	require.NoError(t, err)

	records := src.Fetch(context.Background())
	require.Len(t, records, 1)
	assert.Equal(t, "Recovered", records[0].Title)
}

func TestAPISource_APIKeyPlacement(t *testing.T) {
	var gotHeader, gotParam string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-API-Key")
		gotParam = r.URL.Query().Get("api_key")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	headerCfg := config.SourceConfig{Type: "api", URL: server.URL, APIKey: "s3cret"}
	src, err := NewAPISource("keyed", headerCfg, fastOpts(), zap.NewNop().Sugar())
	require.NoError(t, err)
	src.Fetch(context.Background())
	assert.Equal(t, "s3cret", gotHeader)

	paramCfg := config.SourceConfig{Type: "api", URL: server.URL, APIKey: "s3cret", APIKeyIn: "param"}
	src, err = NewAPISource("keyed", paramCfg, fastOpts(), zap.NewNop().Sugar())
	require.NoError(t, err)
	src.Fetch(context.Background())
	assert.Equal(t, "s3cret", gotParam)
}

func TestAPISource_XML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?>
			<feed>
				<channel>
					<item>
						<title>Botnet takedown</title>
						<description>C2 infrastructure seized</description>
						<pubDate>Sun, 15 Jan 2023 14:30:45 +0000</pubDate>
						<link>https://news.example.org/botnet</link>
					</item>
					<item>
						<title>New stealer</title>
						<description>Targets browser credentials</description>
						<pubDate>2023-01-16</pubDate>
						<link>https://news.example.org/stealer</link>
					</item>
				</channel>
			</feed>`))
	}))
	defer server.Close()

	cfg := config.SourceConfig{Type: "api", URL: server.URL, ResponseFormat: "xml"}
	src, err := NewAPISource("xml_api", cfg, fastOpts(), zap.NewNop().Sugar())
	require.NoError(t, err)

	records := src.Fetch(context.Background())
	require.Len(t, records, 2)
	assert.Equal(t, "Botnet takedown", records[0].Title)
	assert.Equal(t, "C2 infrastructure seized", records[0].Description)
	assert.Equal(t, "https://news.example.org/botnet", records[0].Link)
	assert.Equal(t, "2023-01-15T14:30:45Z", records[0].Published)
}

func TestMatchesKeywords(t *testing.T) {
	assert.True(t, matchesKeywords("anything at all", nil), "no filter list means no filtering")
	assert.True(t, matchesKeywords("Major MALWARE outbreak", []string{"malware"}))
	assert.True(t, matchesKeywords("обнаружена новая уязвимость", []string{"vulnerability", "уязвимость"}))
	assert.False(t, matchesKeywords("quarterly earnings report", []string{"malware", "phishing"}))
}
