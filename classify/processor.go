package classify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"threatharvest/core"
	"threatharvest/metrics"

	"go.uber.org/zap"
)

// =============================================================================
// Batch Processor
// =============================================================================

// maxProcessorWorkers bounds the classification worker pool; small
// batches get one worker per record.
const maxProcessorWorkers = 10

// ClassificationError reports a per-record classification failure. The
// record is excluded from the batch output; the pass continues.
type ClassificationError struct {
	RecordID string
	Err      error
}

// Error implements the error interface
func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification of record %q failed: %v", e.RecordID, e.Err)
}

// Unwrap returns the underlying cause
func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// Processor applies the classifier and severity scorer to record batches
// concurrently. Records are independent, so workers share no mutable
// state; the only synchronization point is the join after all tasks
// complete.
type Processor struct {
	classifier *Classifier
	logger     *zap.SugaredLogger
}

// NewProcessor creates a batch processor over the given classifier.
func NewProcessor(classifier *Classifier, logger *zap.SugaredLogger) *Processor {
	return &Processor{classifier: classifier, logger: logger}
}

// ProcessBatch classifies and scores every record in the batch using a
// worker pool sized to min(10, len(records)). Output order is not
// guaranteed to match input order, but every record appears exactly once
// unless its classification failed, in which case the failure is logged
// and the record excluded.
func (p *Processor) ProcessBatch(ctx context.Context, records []core.RawRecord) []core.ClassifiedRecord {
	if len(records) == 0 {
		return nil
	}

	workers := len(records)
	if workers > maxProcessorWorkers {
		workers = maxProcessorWorkers
	}

	pool := core.NewWorkerPool(ctx, workers, len(records), "classify", p.logger)
	pool.Start()

	var mu sync.Mutex
	classified := make([]core.ClassifiedRecord, 0, len(records))

	for _, record := range records {
		record := record
		err := pool.Submit(func() {
			result, err := p.processRecord(record)
			if err != nil {
				p.logger.Warnw("Record classification failed",
					"record_id", record.ID, "source", record.Source, "error", err)
				metrics.ClassificationFailures.Inc()
				return
			}
			mu.Lock()
			classified = append(classified, result)
			mu.Unlock()
		})
		if err != nil {
			p.logger.Errorw("Failed to submit classification task",
				"record_id", record.ID, "error", err)
		}
	}

	pool.Wait()
	metrics.RecordsProcessed.Add(float64(len(classified)))
	return classified
}

// processRecord classifies one record. Classification is a pure function
// of the record's title and description.
func (p *Processor) processRecord(record core.RawRecord) (core.ClassifiedRecord, error) {
	if record.ID == "" {
		return core.ClassifiedRecord{}, &ClassificationError{
			RecordID: record.ID,
			Err:      fmt.Errorf("record has no id"),
		}
	}

	text := record.Title + " " + record.Description
	categories, vectors := p.classifier.Classify(text)
	iocs := p.classifier.ExtractIOCs(text)

	return core.ClassifiedRecord{
		RawRecord:        record,
		ThreatCategories: categories,
		AttackVectors:    vectors,
		Indicators:       iocs,
		Severity:         Score(categories, text, iocs),
		ProcessedAt:      time.Now().UTC(),
	}, nil
}
