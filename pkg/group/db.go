package group

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Schema for the group QC database.
const Schema = `
CREATE TABLE IF NOT EXISTS subjects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	subjid TEXT NOT NULL,
	grp TEXT,
	record TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS metrics (
	subject_id INTEGER NOT NULL REFERENCES subjects(id),
	key TEXT NOT NULL,
	idx INTEGER NOT NULL,
	value REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_key ON metrics(key, idx);
`

// Open opens (creating if needed) the group database with the production
// pragmas applied and the schema in place.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open group database %s: %w", path, err)
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("open group database %s: %w", path, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init group database %s: %w", path, err)
	}
	return db, nil
}

// Store inserts the subjects and their numeric QC metrics in one
// transaction. Scalar metrics land at idx 0; vectors land element-wise.
func Store(db *sql.DB, subjects []Subject) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("store subjects: %w", err)
	}
	defer tx.Rollback()

	insSubject, err := tx.Prepare("INSERT INTO subjects(subjid, grp, record) VALUES(?, ?, ?)")
	if err != nil {
		return fmt.Errorf("store subjects: %w", err)
	}
	defer insSubject.Close()
	insMetric, err := tx.Prepare("INSERT INTO metrics(subject_id, key, idx, value) VALUES(?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("store subjects: %w", err)
	}
	defer insMetric.Close()

	for _, s := range subjects {
		subjid, _ := s.Fields["data_subjid"].(string)
		if subjid == "" {
			subjid = s.Dir
		}
		record, err := recordJSON(s.Fields)
		if err != nil {
			return fmt.Errorf("store subject %s: %w", subjid, err)
		}
		res, err := insSubject.Exec(subjid, s.Group, record)
		if err != nil {
			return fmt.Errorf("store subject %s: %w", subjid, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("store subject %s: %w", subjid, err)
		}
		if err := storeMetrics(insMetric, id, s.Fields); err != nil {
			return fmt.Errorf("store subject %s: %w", subjid, err)
		}
	}
	return tx.Commit()
}

func storeMetrics(ins *sql.Stmt, subjectID int64, fields map[string]interface{}) error {
	for k, v := range fields {
		if !strings.HasPrefix(k, "qc_") {
			continue
		}
		switch val := v.(type) {
		case float64:
			if _, err := ins.Exec(subjectID, k, 0, val); err != nil {
				return err
			}
		case []interface{}:
			for i, elem := range val {
				f, ok := elem.(float64)
				if !ok {
					break // nested arrays stay in the raw record only
				}
				if _, err := ins.Exec(subjectID, k, i, f); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// MetricValues reads back every stored value of one metric key, ordered by
// subject then element index.
func MetricValues(db *sql.DB, key string) ([]float64, error) {
	rows, err := db.Query("SELECT value FROM metrics WHERE key = ? ORDER BY subject_id, idx", key)
	if err != nil {
		return nil, fmt.Errorf("query metric %s: %w", key, err)
	}
	defer rows.Close()

	var vals []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("query metric %s: %w", key, err)
		}
		vals = append(vals, v)
	}
	return vals, rows.Err()
}

func recordJSON(fields map[string]interface{}) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
