package enrich

import (
	"context"
	"path/filepath"
	"testing"

	"threatharvest/classify"
	"threatharvest/core"
	"threatharvest/ingest"
	"threatharvest/kb"
	"threatharvest/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAdapter serves a canned batch, standing in for a network source.
type fakeAdapter struct {
	name    string
	records []core.RawRecord
}

func (f *fakeAdapter) Name() string                             { return f.name }
func (f *fakeAdapter) Type() core.SourceType                    { return core.SourceTypeAPI }
func (f *fakeAdapter) Fetch(_ context.Context) []core.RawRecord { return f.records }

type testEnv struct {
	service *Service
	threats *storage.ThreatStore
	runs    *storage.RunStore
	kb      *kb.JSONAccessor
}

func newTestService(t *testing.T, adapters ...ingest.Adapter) *testEnv {
	t.Helper()
	logger := zap.NewNop().Sugar()

	dir := t.TempDir()
	sqlite, err := storage.NewSQLite(filepath.Join(dir, "threats.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	accessor, err := kb.NewJSONAccessor(filepath.Join(dir, "knowledge_base.json"), logger)
	require.NoError(t, err)

	classifier, err := classify.NewClassifier(classify.Options{}, logger)
	require.NoError(t, err)

	threats := storage.NewThreatStore(sqlite, logger)
	runs := storage.NewRunStore(sqlite, logger)
	service := NewService(adapters, classify.NewProcessor(classifier, logger), threats, runs, accessor, logger)
	return &testEnv{service: service, threats: threats, runs: runs, kb: accessor}
}

func rawRecord(title, description string) core.RawRecord {
	return core.RawRecord{
		ID:          core.ContentID(title, description),
		Source:      "feed_a",
		SourceType:  core.SourceTypeAPI,
		Title:       title,
		Description: description,
		Published:   "2024-02-01T10:00:00Z",
		Link:        "https://intel.example.org/x",
	}
}

func TestService_Run(t *testing.T) {
	env := newTestService(t, &fakeAdapter{
		name: "feed_a",
		records: []core.RawRecord{
			rawRecord("Critical ransomware campaign", "LockBit hits hospitals via email, contact c2 at 10.1.2.3 and 10.1.2.4"),
			rawRecord("Routine corporate announcement", "Nothing security relevant here at all"),
		},
	})

	summary, err := env.service.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.SourcesCount)
	assert.Equal(t, 2, summary.EntriesFetched)
	assert.Equal(t, 2, summary.EntriesProcessed)
	assert.Equal(t, 2, summary.EntriesInserted)
	assert.Equal(t, 1, summary.EntriesAddedToKB, "only the categorized record is integrated")

	// The audit row matches the summary.
	run, err := env.runs.GetRun(summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.EntriesFetched)
	assert.Equal(t, 2, run.EntriesProcessed)
	assert.Equal(t, 1, run.EntriesAddedToKB)
	assert.NotNil(t, run.EndTime)

	// The categorized record was routed into its primary category's
	// subsection and flagged in the store.
	ransomwareID := core.ContentID("Critical ransomware campaign", "LockBit hits hospitals via email, contact c2 at 10.1.2.3 and 10.1.2.4")
	sub, err := env.kb.GetSubsection("cyber_threats", "threat_ransomware")
	require.NoError(t, err)
	require.Contains(t, sub.Content, ransomwareID)
	term := sub.Content[ransomwareID]
	assert.Equal(t, "Critical ransomware campaign", term.Term)
	assert.Contains(t, term.RelatedTerms, "ransomware")
	assert.Contains(t, term.RelatedTerms, "email")
	assert.GreaterOrEqual(t, term.Severity, 7)

	stored, err := env.threats.Get(ransomwareID)
	require.NoError(t, err)
	assert.True(t, stored.AddedToKB)

	// The uncategorized record stays in the store, unflagged.
	plainID := core.ContentID("Routine corporate announcement", "Nothing security relevant here at all")
	stored, err = env.threats.Get(plainID)
	require.NoError(t, err)
	assert.False(t, stored.AddedToKB)
	assert.Empty(t, stored.ThreatCategories)
}

func TestService_RunNoData(t *testing.T) {
	env := newTestService(t, &fakeAdapter{name: "empty_feed"})

	summary, err := env.service.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, summary.Status)
	assert.Equal(t, "no new data", summary.Message)
	assert.Zero(t, summary.EntriesFetched)

	run, err := env.runs.GetRun(summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, run.Status)
}

func TestService_RunIsIdempotent(t *testing.T) {
	adapter := &fakeAdapter{
		name: "feed_a",
		records: []core.RawRecord{
			rawRecord("Phishing kit resurfaces", "Credential phishing seen in the wild"),
		},
	}
	env := newTestService(t, adapter)

	first, err := env.service.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.EntriesInserted)

	// Same feed content on the next pass: update, not duplicate.
	second, err := env.service.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.EntriesInserted)
	assert.Equal(t, 1, second.EntriesProcessed)

	stats, err := env.threats.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)

	// KB term is overwritten, not duplicated.
	sub, err := env.kb.GetSubsection("cyber_threats", "threat_phishing")
	require.NoError(t, err)
	assert.Len(t, sub.Content, 1)
}

func TestService_SubsectionNamesAreTitleCased(t *testing.T) {
	env := newTestService(t, &fakeAdapter{
		name: "feed_a",
		records: []core.RawRecord{
			rawRecord("Massive data breach at retailer", "Millions of stolen records leaked online"),
		},
	})

	_, err := env.service.Run(context.Background())
	require.NoError(t, err)

	sub, err := env.kb.GetSubsection("cyber_threats", "threat_data_breach")
	require.NoError(t, err)
	assert.Equal(t, "Data Breach", sub.Name)
}

func TestService_MergesBatchesAcrossSources(t *testing.T) {
	env := newTestService(t,
		&fakeAdapter{name: "feed_a", records: []core.RawRecord{
			rawRecord("Ransomware alert", "Encrypting malware observed"),
		}},
		&fakeAdapter{name: "feed_b", records: []core.RawRecord{
			rawRecord("Phishing alert", "Spoofing campaign observed"),
		}},
	)

	summary, err := env.service.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SourcesCount)
	assert.Equal(t, 2, summary.EntriesFetched)
	assert.Equal(t, 2, summary.EntriesAddedToKB)
}

func TestService_IsolatesFailedSources(t *testing.T) {
	// A source whose retries were exhausted surfaces as an empty batch;
	// the pass must complete using the surviving source alone.
	env := newTestService(t,
		&fakeAdapter{name: "dead_feed"},
		&fakeAdapter{name: "feed_a", records: []core.RawRecord{
			rawRecord("Ransomware alert", "Encrypting malware observed"),
		}},
	)

	summary, err := env.service.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, summary.Status)
	assert.Equal(t, 2, summary.SourcesCount)
	assert.Equal(t, 1, summary.EntriesFetched)
}
