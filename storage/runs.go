package storage

import (
	"database/sql"
	"fmt"
	"time"

	"threatharvest/core"

	"go.uber.org/zap"
)

// =============================================================================
// Enrichment Run Audit Store
// =============================================================================

// RunStore records the audit trail of enrichment passes.
type RunStore struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewRunStore creates a run store over an initialized database.
func NewRunStore(sqlite *SQLite, logger *zap.SugaredLogger) *RunStore {
	return &RunStore{sqlite: sqlite, logger: logger}
}

// CreateRun inserts a new run row in status running and returns its id.
func (rs *RunStore) CreateRun(startTime time.Time, sourcesCount int) (int64, error) {
	result, err := rs.sqlite.DB.Exec(`
		INSERT INTO enrichment_runs (start_time, status, sources_count)
		VALUES (?, ?, ?)`,
		startTime.UTC().Format(time.RFC3339), string(core.RunStatusRunning), sourcesCount)
	if err != nil {
		return 0, fmt.Errorf("failed to create enrichment run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}
	return id, nil
}

// FinishRun finalizes a run row with its terminal status and counters.
func (rs *RunStore) FinishRun(run *core.RunRecord) error {
	if !run.Status.IsValid() {
		return fmt.Errorf("invalid run status %q", run.Status)
	}

	endTime := ""
	if run.EndTime != nil {
		endTime = run.EndTime.UTC().Format(time.RFC3339)
	}

	result, err := rs.sqlite.DB.Exec(`
		UPDATE enrichment_runs
		SET end_time = ?, status = ?, sources_count = ?, entries_fetched = ?, entries_processed = ?, entries_added_to_kb = ?, error_message = ?
		WHERE id = ?`,
		endTime, string(run.Status), run.SourcesCount, run.EntriesFetched,
		run.EntriesProcessed, run.EntriesAddedToKB, run.ErrorMessage, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish enrichment run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, run.ID)
	}
	return nil
}

// GetRun loads one run row.
func (rs *RunStore) GetRun(id int64) (*core.RunRecord, error) {
	row := rs.sqlite.DB.QueryRow(`
		SELECT id, start_time, end_time, status, sources_count, entries_fetched, entries_processed, entries_added_to_kb, error_message
		FROM enrichment_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load enrichment run: %w", err)
	}
	return run, nil
}

// LastRun returns the most recently started run, or nil when no pass has
// ever executed.
func (rs *RunStore) LastRun() (*core.RunRecord, error) {
	row := rs.sqlite.DB.QueryRow(`
		SELECT id, start_time, end_time, status, sources_count, entries_fetched, entries_processed, entries_added_to_kb, error_message
		FROM enrichment_runs ORDER BY id DESC LIMIT 1`)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last enrichment run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (rs *RunStore) ListRuns(limit int) ([]core.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := rs.sqlite.DB.Query(`
		SELECT id, start_time, end_time, status, sources_count, entries_fetched, entries_processed, entries_added_to_kb, error_message
		FROM enrichment_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrichment runs: %w", err)
	}
	defer rows.Close()

	var runs []core.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrichment run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate enrichment runs: %w", err)
	}
	return runs, nil
}

func scanRun(row rowScanner) (*core.RunRecord, error) {
	var run core.RunRecord
	var startTime, status string
	var endTime, errorMessage sql.NullString

	err := row.Scan(&run.ID, &startTime, &endTime, &status, &run.SourcesCount,
		&run.EntriesFetched, &run.EntriesProcessed, &run.EntriesAddedToKB, &errorMessage)
	if err != nil {
		return nil, err
	}

	if ts, err := time.Parse(time.RFC3339, startTime); err == nil {
		run.StartTime = ts
	}
	if endTime.Valid && endTime.String != "" {
		if ts, err := time.Parse(time.RFC3339, endTime.String); err == nil {
			run.EndTime = &ts
		}
	}
	run.Status = core.RunStatus(status)
	run.ErrorMessage = errorMessage.String
	return &run, nil
}
