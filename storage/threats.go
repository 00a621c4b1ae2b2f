package storage

import (
	"database/sql"
	"fmt"
	"time"

	"threatharvest/core"
	"threatharvest/metrics"

	"go.uber.org/zap"
)

// =============================================================================
// Threat Store
// =============================================================================

// ThreatStore persists classified records and their category, vector and
// IOC child collections.
type ThreatStore struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewThreatStore creates a threat store over an initialized database.
func NewThreatStore(sqlite *SQLite, logger *zap.SugaredLogger) *ThreatStore {
	return &ThreatStore{sqlite: sqlite, logger: logger}
}

// Upsert inserts or updates one classified record. Scalar fields are
// replaced and the child collections are rewritten (delete then
// reinsert) inside one transaction, so a crash mid-upsert cannot leave a
// record with stale children. The added_to_kb flag of an existing row is
// preserved. Returns true when the record was newly inserted.
func (ts *ThreatStore) Upsert(record *core.ClassifiedRecord) (bool, error) {
	if record.ID == "" {
		return false, fmt.Errorf("%w: empty record id", ErrInvalidRecord)
	}

	var inserted bool
	err := ts.sqlite.WithTransaction(func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRow("SELECT COUNT(*) FROM threats WHERE id = ?", record.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check threat existence: %w", err)
		}

		if exists == 0 {
			_, err = tx.Exec(`
				INSERT INTO threats (id, title, description, link, source, source_type, published, severity, processed_at, added_to_kb, raw_data)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				record.ID, record.Title, record.Description, record.Link,
				record.Source, string(record.SourceType), record.Published,
				record.Severity, record.ProcessedAt.UTC().Format(time.RFC3339),
				boolToInt(record.AddedToKB), record.RawData)
			if err != nil {
				return fmt.Errorf("failed to insert threat: %w", err)
			}
			inserted = true
		} else {
			// added_to_kb is deliberately left untouched
			_, err = tx.Exec(`
				UPDATE threats
				SET title = ?, description = ?, link = ?, source = ?, source_type = ?, published = ?, severity = ?, processed_at = ?, raw_data = ?
				WHERE id = ?`,
				record.Title, record.Description, record.Link,
				record.Source, string(record.SourceType), record.Published,
				record.Severity, record.ProcessedAt.UTC().Format(time.RFC3339),
				record.RawData, record.ID)
			if err != nil {
				return fmt.Errorf("failed to update threat: %w", err)
			}
		}

		return ts.rewriteChildren(tx, record)
	})
	if err != nil {
		return false, err
	}

	if inserted {
		metrics.RecordsUpserted.WithLabelValues("inserted").Inc()
	} else {
		metrics.RecordsUpserted.WithLabelValues("updated").Inc()
	}
	return inserted, nil
}

// rewriteChildren fully replaces the record's child collections. The
// second write wins: children left over from a previous classification
// are removed, never merged.
func (ts *ThreatStore) rewriteChildren(tx *sql.Tx, record *core.ClassifiedRecord) error {
	if _, err := tx.Exec("DELETE FROM threat_categories WHERE threat_id = ?", record.ID); err != nil {
		return fmt.Errorf("failed to clear categories: %w", err)
	}
	for i, category := range record.ThreatCategories {
		if _, err := tx.Exec(
			"INSERT INTO threat_categories (threat_id, category, position) VALUES (?, ?, ?)",
			record.ID, category, i); err != nil {
			return fmt.Errorf("failed to insert category: %w", err)
		}
	}

	if _, err := tx.Exec("DELETE FROM attack_vectors WHERE threat_id = ?", record.ID); err != nil {
		return fmt.Errorf("failed to clear vectors: %w", err)
	}
	for i, vector := range record.AttackVectors {
		if _, err := tx.Exec(
			"INSERT INTO attack_vectors (threat_id, vector, position) VALUES (?, ?, ?)",
			record.ID, vector, i); err != nil {
			return fmt.Errorf("failed to insert vector: %w", err)
		}
	}

	for _, iocType := range core.AllIOCTypes {
		table := iocTable(iocType)
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE threat_id = ?", record.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
		for _, value := range record.Indicators[iocType] {
			if _, err := tx.Exec(
				"INSERT INTO "+table+" (threat_id, value) VALUES (?, ?)",
				record.ID, value); err != nil {
				return fmt.Errorf("failed to insert into %s: %w", table, err)
			}
		}
	}
	return nil
}

// UpsertMany upserts a batch sequentially, returning the number of newly
// inserted records. The first persistence failure aborts the batch.
func (ts *ThreatStore) UpsertMany(records []core.ClassifiedRecord) (int, error) {
	inserted := 0
	for i := range records {
		isNew, err := ts.Upsert(&records[i])
		if err != nil {
			return inserted, fmt.Errorf("failed to upsert record %s: %w", records[i].ID, err)
		}
		if isNew {
			inserted++
		}
	}
	return inserted, nil
}

// MarkIntegrated flags a stored record as merged into the knowledge base.
func (ts *ThreatStore) MarkIntegrated(id string) error {
	result, err := ts.sqlite.DB.Exec("UPDATE threats SET added_to_kb = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark threat integrated: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrThreatNotFound, id)
	}
	return nil
}

// Get loads one record with all its child collections.
func (ts *ThreatStore) Get(id string) (*core.ClassifiedRecord, error) {
	row := ts.sqlite.DB.QueryRow(`
		SELECT id, title, description, link, source, source_type, published, severity, processed_at, added_to_kb, raw_data
		FROM threats WHERE id = ?`, id)

	record, err := scanThreat(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrThreatNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load threat: %w", err)
	}

	if err := ts.loadChildren(record); err != nil {
		return nil, err
	}
	return record, nil
}

// Latest returns up to limit records ordered by processing time, newest
// first, each with its full child collections.
func (ts *ThreatStore) Latest(limit int) ([]core.ClassifiedRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := ts.sqlite.DB.Query(`
		SELECT id, title, description, link, source, source_type, published, severity, processed_at, added_to_kb, raw_data
		FROM threats ORDER BY processed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest threats: %w", err)
	}
	defer rows.Close()

	var records []core.ClassifiedRecord
	for rows.Next() {
		record, err := scanThreat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan threat: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threats: %w", err)
	}

	for i := range records {
		if err := ts.loadChildren(&records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Statistics aggregates stored record counts by category, vector,
// severity and source.
func (ts *ThreatStore) Statistics() (*Statistics, error) {
	stats := &Statistics{
		ByCategory: map[string]int{},
		ByVector:   map[string]int{},
		BySeverity: map[int]int{},
		BySource:   map[string]int{},
	}

	err := ts.sqlite.DB.QueryRow("SELECT COUNT(*) FROM threats").Scan(&stats.Total)
	if err != nil {
		return nil, fmt.Errorf("failed to count threats: %w", err)
	}
	err = ts.sqlite.DB.QueryRow("SELECT COUNT(*) FROM threats WHERE added_to_kb = 1").Scan(&stats.AddedToKB)
	if err != nil {
		return nil, fmt.Errorf("failed to count integrated threats: %w", err)
	}

	if err := ts.countInto(stats.ByCategory, "SELECT category, COUNT(*) FROM threat_categories GROUP BY category"); err != nil {
		return nil, err
	}
	if err := ts.countInto(stats.ByVector, "SELECT vector, COUNT(*) FROM attack_vectors GROUP BY vector"); err != nil {
		return nil, err
	}
	if err := ts.countInto(stats.BySource, "SELECT source, COUNT(*) FROM threats GROUP BY source"); err != nil {
		return nil, err
	}

	rows, err := ts.sqlite.DB.Query("SELECT severity, COUNT(*) FROM threats GROUP BY severity")
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by severity: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var severity, count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan severity count: %w", err)
		}
		stats.BySeverity[severity] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate severity counts: %w", err)
	}

	return stats, nil
}

// Statistics summarizes the stored threat corpus.
type Statistics struct {
	Total      int            `json:"total"`
	AddedToKB  int            `json:"added_to_kb"`
	ByCategory map[string]int `json:"by_category"`
	ByVector   map[string]int `json:"by_vector"`
	BySeverity map[int]int    `json:"by_severity"`
	BySource   map[string]int `json:"by_source"`
}

func (ts *ThreatStore) countInto(dest map[string]int, query string) error {
	rows, err := ts.sqlite.DB.Query(query)
	if err != nil {
		return fmt.Errorf("failed to aggregate: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		dest[label] = count
	}
	return rows.Err()
}

// loadChildren populates a record's categories, vectors and indicators
// in their stored position order.
func (ts *ThreatStore) loadChildren(record *core.ClassifiedRecord) error {
	categories, err := ts.stringColumn(
		"SELECT category FROM threat_categories WHERE threat_id = ? ORDER BY position", record.ID)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}
	record.ThreatCategories = categories

	vectors, err := ts.stringColumn(
		"SELECT vector FROM attack_vectors WHERE threat_id = ? ORDER BY position", record.ID)
	if err != nil {
		return fmt.Errorf("failed to load vectors: %w", err)
	}
	record.AttackVectors = vectors

	record.Indicators = core.IOCSet{}
	for _, iocType := range core.AllIOCTypes {
		values, err := ts.stringColumn(
			"SELECT value FROM "+iocTable(iocType)+" WHERE threat_id = ? ORDER BY value", record.ID)
		if err != nil {
			return fmt.Errorf("failed to load %s indicators: %w", iocType, err)
		}
		if len(values) > 0 {
			record.Indicators[iocType] = values
		}
	}
	return nil
}

func (ts *ThreatStore) stringColumn(query string, args ...interface{}) ([]string, error) {
	rows, err := ts.sqlite.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanThreat(row rowScanner) (*core.ClassifiedRecord, error) {
	var record core.ClassifiedRecord
	var sourceType, processedAt string
	var addedToKB int
	var description, link, published, rawData sql.NullString

	err := row.Scan(&record.ID, &record.Title, &description, &link,
		&record.Source, &sourceType, &published, &record.Severity,
		&processedAt, &addedToKB, &rawData)
	if err != nil {
		return nil, err
	}

	record.Description = description.String
	record.Link = link.String
	record.Published = published.String
	record.RawData = rawData.String
	record.SourceType = core.SourceType(sourceType)
	record.AddedToKB = addedToKB == 1
	if ts, err := time.Parse(time.RFC3339, processedAt); err == nil {
		record.ProcessedAt = ts
	}
	return &record, nil
}

// iocTable returns the child table name for an IOC kind. Kinds are a
// closed vocabulary, so the concatenation cannot inject.
func iocTable(iocType core.IOCType) string {
	return "ioc_" + string(iocType)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
