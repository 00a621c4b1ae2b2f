// Package enrich orchestrates the enrichment pipeline: fetching from
// all configured sources, classifying and scoring, persisting, and
// merging classified records into the knowledge base.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"threatharvest/classify"
	"threatharvest/core"
	"threatharvest/ingest"
	"threatharvest/kb"
	"threatharvest/metrics"
	"threatharvest/storage"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Knowledge-base section that all threat records are merged under.
const (
	threatsSectionID   = "cyber_threats"
	threatsSectionName = "Категории киберугроз"
	threatsSectionDesc = "Классификация и описание основных типов киберугроз"
)

var titleCaser = cases.Title(language.Und)

// Summary reports the outcome of one enrichment pass. A summary is
// returned for every pass, including failed ones; the error return of
// Run carries the cause when the pass aborted.
type Summary struct {
	RunID            int64          `json:"run_id"`
	Status           core.RunStatus `json:"status"`
	Message          string         `json:"message"`
	SourcesCount     int            `json:"sources_count"`
	EntriesFetched   int            `json:"entries_fetched"`
	EntriesProcessed int            `json:"entries_processed"`
	EntriesInserted  int            `json:"entries_inserted"`
	EntriesAddedToKB int            `json:"entries_added_to_kb"`
	Duration         time.Duration  `json:"duration"`
}

// Service runs enrichment passes over a fixed set of source adapters.
type Service struct {
	adapters  []ingest.Adapter
	processor *classify.Processor
	threats   *storage.ThreatStore
	runs      *storage.RunStore
	kb        kb.Accessor
	logger    *zap.SugaredLogger
}

// NewService wires the pipeline stages together.
func NewService(adapters []ingest.Adapter, processor *classify.Processor,
	threats *storage.ThreatStore, runs *storage.RunStore, accessor kb.Accessor,
	logger *zap.SugaredLogger) *Service {
	return &Service{
		adapters:  adapters,
		processor: processor,
		threats:   threats,
		runs:      runs,
		kb:        accessor,
		logger:    logger,
	}
}

// Run executes one enrichment pass: fetch from every source, classify
// and score the combined batch, persist it, and merge categorized
// records into the knowledge base. Source failures are isolated per
// adapter and never abort the pass; a persistence failure aborts the
// remainder and marks the run as errored. A Summary is returned in both
// cases.
func (s *Service) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	s.logger.Infow("Starting enrichment pass", "sources", len(s.adapters))

	runID, err := s.runs.CreateRun(start, len(s.adapters))
	if err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}

	summary := &Summary{RunID: runID, SourcesCount: len(s.adapters)}

	// Fetch stage: sequential, one adapter at a time. A broken source
	// contributes an empty batch and the pass continues.
	var batch []core.RawRecord
	for _, adapter := range s.adapters {
		records := adapter.Fetch(ctx)
		s.logger.Infow("Source fetched",
			"source", adapter.Name(), "type", adapter.Type(), "records", len(records))
		batch = append(batch, records...)
	}
	summary.EntriesFetched = len(batch)

	if len(batch) == 0 {
		s.logger.Warnw("No records fetched from any source")
		summary.Status = core.RunStatusCompleted
		summary.Message = "no new data"
		return summary, s.finishRun(summary, start, "")
	}

	// Classification stage.
	s.logger.Infow("Processing batch", "records", len(batch))
	classified := s.processor.ProcessBatch(ctx, batch)
	summary.EntriesProcessed = len(classified)

	// Persistence stage.
	inserted, err := s.threats.UpsertMany(classified)
	summary.EntriesInserted = inserted
	if err != nil {
		summary.Status = core.RunStatusError
		summary.Message = err.Error()
		if finishErr := s.finishRun(summary, start, err.Error()); finishErr != nil {
			s.logger.Errorw("Failed to finalize errored run", "run_id", runID, "error", finishErr)
		}
		return summary, fmt.Errorf("persistence failed: %w", err)
	}

	// Knowledge-base integration stage.
	addedToKB, err := s.integrate(classified)
	summary.EntriesAddedToKB = addedToKB
	if err != nil {
		summary.Status = core.RunStatusError
		summary.Message = err.Error()
		if finishErr := s.finishRun(summary, start, err.Error()); finishErr != nil {
			s.logger.Errorw("Failed to finalize errored run", "run_id", runID, "error", finishErr)
		}
		return summary, fmt.Errorf("knowledge base integration failed: %w", err)
	}

	summary.Status = core.RunStatusCompleted
	summary.Message = "enrichment completed"
	if err := s.finishRun(summary, start, ""); err != nil {
		return summary, err
	}

	s.logger.Infow("Enrichment pass completed",
		"run_id", runID,
		"fetched", summary.EntriesFetched,
		"processed", summary.EntriesProcessed,
		"inserted", summary.EntriesInserted,
		"added_to_kb", summary.EntriesAddedToKB,
		"duration", summary.Duration)
	return summary, nil
}

// finishRun finalizes the audit row and records pass metrics.
func (s *Service) finishRun(summary *Summary, start time.Time, errorMessage string) error {
	end := time.Now()
	summary.Duration = end.Sub(start)

	metrics.RunsTotal.WithLabelValues(string(summary.Status)).Inc()
	metrics.PassDuration.Observe(summary.Duration.Seconds())

	err := s.runs.FinishRun(&core.RunRecord{
		ID:               summary.RunID,
		StartTime:        start,
		EndTime:          &end,
		Status:           summary.Status,
		SourcesCount:     summary.SourcesCount,
		EntriesFetched:   summary.EntriesFetched,
		EntriesProcessed: summary.EntriesProcessed,
		EntriesAddedToKB: summary.EntriesAddedToKB,
		ErrorMessage:     errorMessage,
	})
	if err != nil {
		return fmt.Errorf("failed to finalize run record: %w", err)
	}
	return nil
}

// integrate merges categorized records into the knowledge base. Each
// record is routed into the subsection of its primary category; records
// without categories stay in the store but are skipped here. A term
// insertion failure is logged and skips that record; a store failure
// aborts integration.
func (s *Service) integrate(records []core.ClassifiedRecord) (int, error) {
	section, err := s.ensureThreatsSection()
	if err != nil {
		return 0, err
	}

	added := 0
	for i := range records {
		record := &records[i]
		category := record.PrimaryCategory()
		if category == "" {
			continue
		}

		subsectionID := "threat_" + category
		if err := s.ensureSubsection(section.ID, subsectionID, category); err != nil {
			s.logger.Errorw("Failed to ensure knowledge base subsection",
				"subsection", subsectionID, "error", err)
			continue
		}

		term := kb.Term{
			Term:         record.Title,
			Definition:   record.Description,
			RelatedTerms: append(append([]string{}, record.ThreatCategories...), record.AttackVectors...),
			Severity:     record.Severity,
			Date:         record.Published,
			Source:       record.Source,
			Link:         record.Link,
			Indicators:   record.Indicators,
		}
		if err := s.kb.PutTerm(section.ID, subsectionID, record.ID, term); err != nil {
			s.logger.Errorw("Failed to add record to knowledge base",
				"record_id", record.ID, "error", err)
			continue
		}

		if err := s.threats.MarkIntegrated(record.ID); err != nil {
			return added, err
		}
		record.AddedToKB = true
		added++
		metrics.RecordsIntegrated.Inc()
	}
	return added, nil
}

// ensureThreatsSection fetches or creates the threats section.
func (s *Service) ensureThreatsSection() (*kb.Section, error) {
	section, err := s.kb.GetSection(threatsSectionID)
	if err == nil {
		return section, nil
	}

	s.logger.Infow("Creating knowledge base threats section", "section", threatsSectionID)
	section = &kb.Section{
		ID:          threatsSectionID,
		Name:        threatsSectionName,
		Description: threatsSectionDesc,
	}
	if err := s.kb.AddSection(section); err != nil {
		return nil, fmt.Errorf("failed to create threats section: %w", err)
	}
	return s.kb.GetSection(threatsSectionID)
}

// ensureSubsection creates the category subsection when missing.
// Creation is idempotent, so racing passes cannot duplicate it.
func (s *Service) ensureSubsection(sectionID, subsectionID, category string) error {
	if _, err := s.kb.GetSubsection(sectionID, subsectionID); err == nil {
		return nil
	}

	name := titleCaser.String(strings.ReplaceAll(category, "_", " "))
	s.logger.Infow("Creating knowledge base subsection", "subsection", subsectionID, "name", name)
	return s.kb.AddSubsection(sectionID, &kb.Subsection{ID: subsectionID, Name: name})
}
