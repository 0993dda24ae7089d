package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertAnnotation writes the judgment for a sample, keyed by sample id.
// The first write inserts a fresh draft with a new id; later writes update
// the row in place and keep its id. The stored status is always draft, and
// annotated_at is refreshed on every successful write; FinalizeAll is the
// only path that promotes drafts.
//
// Returns ErrNotFound when the sample does not exist and ErrFinalized when
// the existing annotation is final. In both cases nothing is written.
func (s *Store) UpsertAnnotation(a Annotation) (*Annotation, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRow("SELECT 1 FROM samples WHERE id = ?", a.SampleID).Scan(&one)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking sample %s: %w", a.SampleID, err)
	}

	now := s.now().UTC()
	a.Status = StatusDraft
	a.AnnotatedAt = now
	if a.AnnotatorID == "" {
		a.AnnotatorID = "default"
	}

	var existingID, existingStatus string
	err = tx.QueryRow("SELECT id, status FROM annotations WHERE sample_id = ?", a.SampleID).Scan(&existingID, &existingStatus)
	switch {
	case err == sql.ErrNoRows:
		a.ID = uuid.New().String()
		if _, err := tx.Exec(`
			INSERT INTO annotations (id, sample_id, annotator_id, is_acceptable, primary_issue, notes, status, annotated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.SampleID, a.AnnotatorID, a.IsAcceptable, a.PrimaryIssue, a.Notes, a.Status, now.Format(time.RFC3339),
		); err != nil {
			return nil, fmt.Errorf("inserting annotation for sample %s: %w", a.SampleID, err)
		}
	case err != nil:
		return nil, fmt.Errorf("checking annotation for sample %s: %w", a.SampleID, err)
	case existingStatus == StatusFinal:
		return nil, ErrFinalized
	default:
		a.ID = existingID
		if _, err := tx.Exec(`
			UPDATE annotations
			SET annotator_id = ?, is_acceptable = ?, primary_issue = ?, notes = ?, status = ?, annotated_at = ?
			WHERE sample_id = ?`,
			a.AnnotatorID, a.IsAcceptable, a.PrimaryIssue, a.Notes, a.Status, now.Format(time.RFC3339), a.SampleID,
		); err != nil {
			return nil, fmt.Errorf("updating annotation for sample %s: %w", a.SampleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing upsert: %w", err)
	}
	return &a, nil
}

// GetAnnotation returns the annotation for a sample, or (nil, nil) when the
// sample has not been annotated.
func (s *Store) GetAnnotation(sampleID string) (*Annotation, error) {
	var a Annotation
	var annotatedAt string
	err := s.db.QueryRow(`
		SELECT id, sample_id, annotator_id, is_acceptable, primary_issue, notes, status, annotated_at
		FROM annotations WHERE sample_id = ?`, sampleID,
	).Scan(&a.ID, &a.SampleID, &a.AnnotatorID, &a.IsAcceptable, &a.PrimaryIssue, &a.Notes, &a.Status, &annotatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, annotatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing annotated_at: %w", err)
	}
	a.AnnotatedAt = t
	return &a, nil
}

// FinalizeAll promotes every draft annotation to final. The completeness
// check and the promotion share one transaction: when any sample is still
// missing an annotation, an IncompleteError reports how many and nothing
// changes. Returns the number of drafts promoted.
func (s *Store) FinalizeAll() (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning finalize transaction: %w", err)
	}
	defer tx.Rollback()

	var missing int
	if err := tx.QueryRow(`
		SELECT COUNT(*)
		FROM samples s
		LEFT JOIN annotations a ON a.sample_id = s.id
		WHERE a.id IS NULL`).Scan(&missing); err != nil {
		return 0, fmt.Errorf("counting unannotated samples: %w", err)
	}
	if missing > 0 {
		return 0, &IncompleteError{Missing: missing}
	}

	res, err := tx.Exec("UPDATE annotations SET status = ? WHERE status = ?", StatusFinal, StatusDraft)
	if err != nil {
		return 0, fmt.Errorf("promoting drafts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing finalize: %w", err)
	}
	return int(n), nil
}
