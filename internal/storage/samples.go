package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// InsertSamples inserts a batch of samples inside a single transaction.
// Samples whose id already exists are silently skipped, including later
// duplicates within the batch itself; the count of rows actually inserted
// is returned.
func (s *Store) InsertSamples(samples []Sample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC().Format(time.RFC3339)
	inserted := 0
	for _, sm := range samples {
		meta, err := marshalMetadata(sm.Metadata)
		if err != nil {
			return 0, fmt.Errorf("encoding metadata for sample %s: %w", sm.ID, err)
		}
		res, err := tx.Exec(`
			INSERT INTO samples (id, prompt, response, metadata, imported_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			sm.ID, sm.Prompt, sm.Response, meta, now,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting sample %s: %w", sm.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("checking inserted rows for sample %s: %w", sm.ID, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing inserts: %w", err)
	}
	return inserted, nil
}

// GetSample returns the sample with the given id, or (nil, nil) when no
// such sample exists.
func (s *Store) GetSample(id string) (*Sample, error) {
	var sm Sample
	var meta, importedAt string
	err := s.db.QueryRow(`
		SELECT id, prompt, response, metadata, imported_at
		FROM samples WHERE id = ?`, id,
	).Scan(&sm.ID, &sm.Prompt, &sm.Response, &meta, &importedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sm.Metadata = unmarshalMetadata(sm.ID, meta)
	t, err := time.Parse(time.RFC3339, importedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing imported_at: %w", err)
	}
	sm.ImportedAt = t
	return &sm, nil
}

// ListSamples returns every sample ordered by import time, oldest first.
func (s *Store) ListSamples() ([]Sample, error) {
	return s.querySamples(`
		SELECT id, prompt, response, metadata, imported_at
		FROM samples
		ORDER BY imported_at ASC, rowid ASC`)
}

// UnannotatedSamples returns samples with no annotation yet, in the same
// order as ListSamples.
func (s *Store) UnannotatedSamples() ([]Sample, error) {
	return s.querySamples(`
		SELECT s.id, s.prompt, s.response, s.metadata, s.imported_at
		FROM samples s
		LEFT JOIN annotations a ON a.sample_id = s.id
		WHERE a.id IS NULL
		ORDER BY s.imported_at ASC, s.rowid ASC`)
}

// CountSamples returns the number of imported samples.
func (s *Store) CountSamples() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&n)
	return n, err
}

// ClearAll deletes every annotation and sample in one transaction and
// reports the counts as they were before deletion.
func (s *Store) ClearAll() (ClearResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return ClearResult{}, fmt.Errorf("beginning clear transaction: %w", err)
	}
	defer tx.Rollback()

	var res ClearResult
	if err := tx.QueryRow("SELECT COUNT(*) FROM samples").Scan(&res.Samples); err != nil {
		return ClearResult{}, fmt.Errorf("counting samples: %w", err)
	}
	if err := tx.QueryRow("SELECT COUNT(*) FROM annotations").Scan(&res.Annotations); err != nil {
		return ClearResult{}, fmt.Errorf("counting annotations: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM annotations"); err != nil {
		return ClearResult{}, fmt.Errorf("deleting annotations: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM samples"); err != nil {
		return ClearResult{}, fmt.Errorf("deleting samples: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ClearResult{}, fmt.Errorf("committing clear: %w", err)
	}
	return res, nil
}

func (s *Store) querySamples(query string, args ...any) ([]Sample, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Sample
	for rows.Next() {
		var sm Sample
		var meta, importedAt string
		if err := rows.Scan(&sm.ID, &sm.Prompt, &sm.Response, &meta, &importedAt); err != nil {
			return nil, err
		}
		sm.Metadata = unmarshalMetadata(sm.ID, meta)
		t, err := time.Parse(time.RFC3339, importedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing imported_at: %w", err)
		}
		sm.ImportedAt = t
		results = append(results, sm)
	}
	return results, rows.Err()
}

func marshalMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// unmarshalMetadata decodes stored metadata JSON. Malformed rows degrade to
// an empty map with a warning; readers never see the parse failure.
func unmarshalMetadata(sampleID, raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		slog.Warn("ignoring malformed sample metadata", "sample_id", sampleID, "error", err)
		return map[string]any{}
	}
	if m == nil {
		m = map[string]any{}
	}
	return m
}
