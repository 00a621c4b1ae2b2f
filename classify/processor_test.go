package classify

import (
	"context"
	"fmt"
	"testing"

	"threatharvest/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	return NewProcessor(newTestClassifier(t), zap.NewNop().Sugar())
}

func TestProcessBatch_Completeness(t *testing.T) {
	p := newTestProcessor(t)

	records := make([]core.RawRecord, 100)
	for i := range records {
		title := fmt.Sprintf("Threat advisory %d", i)
		records[i] = core.RawRecord{
			ID:          core.ContentID(title, "description"),
			Source:      "test",
			SourceType:  core.SourceTypeAPI,
			Title:       title,
			Description: "description",
		}
	}

	classified := p.ProcessBatch(context.Background(), records)
	require.Len(t, classified, 100)

	seen := make(map[string]bool, len(classified))
	for _, rec := range classified {
		assert.False(t, seen[rec.ID], "record %s appeared twice", rec.ID)
		seen[rec.ID] = true
		assert.False(t, rec.ProcessedAt.IsZero())
	}
}

func TestProcessBatch_ClassificationScenario(t *testing.T) {
	p := newTestProcessor(t)

	title := "Critical SQL injection CVE-2021-1234"
	description := "found at https://evil.example/login.php?id=1"
	records := []core.RawRecord{{
		ID:          core.ContentID(title, description),
		Source:      "nvd",
		SourceType:  core.SourceTypeAPI,
		Title:       title,
		Description: description,
	}}

	classified := p.ProcessBatch(context.Background(), records)
	require.Len(t, classified, 1)

	rec := classified[0]
	assert.Contains(t, rec.ThreatCategories, "vulnerability")
	assert.Equal(t, []string{"CVE-2021-1234"}, rec.Indicators[core.IOCTypeCVE])
	assert.Contains(t, rec.Indicators[core.IOCTypeURL], "https://evil.example/login.php?id=1")
	assert.GreaterOrEqual(t, rec.Severity, 6)
}

func TestProcessBatch_FailSoft(t *testing.T) {
	p := newTestProcessor(t)

	records := []core.RawRecord{
		{ID: "", Title: "broken record without id"},
		{
			ID:          core.ContentID("Valid", "record"),
			Title:       "Valid",
			Description: "record",
		},
	}

	classified := p.ProcessBatch(context.Background(), records)
	require.Len(t, classified, 1, "the broken record is excluded, the valid one survives")
	assert.Equal(t, "Valid", classified[0].Title)
}

func TestProcessBatch_Empty(t *testing.T) {
	p := newTestProcessor(t)
	assert.Empty(t, p.ProcessBatch(context.Background(), nil))
}

func TestProcessBatch_SingleRecord(t *testing.T) {
	p := newTestProcessor(t)

	records := []core.RawRecord{{
		ID:    core.ContentID("Ransomware hits logistics firm", ""),
		Title: "Ransomware hits logistics firm",
	}}

	classified := p.ProcessBatch(context.Background(), records)
	require.Len(t, classified, 1)
	assert.Contains(t, classified[0].ThreatCategories, "ransomware")
	assert.Equal(t, 6, classified[0].Severity)
}
