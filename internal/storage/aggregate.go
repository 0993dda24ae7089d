package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Stats aggregates acceptance counts over every annotation, draft or final.
// The acceptance rate is a percentage, 0 when nothing has been annotated.
func (s *Store) Stats() (*Stats, error) {
	var st Stats
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_acceptable = 1 THEN 1 ELSE 0 END), 0)
		FROM annotations`).Scan(&st.TotalAnnotated, &st.Accepted)
	if err != nil {
		return nil, err
	}
	st.Rejected = st.TotalAnnotated - st.Accepted
	if st.TotalAnnotated > 0 {
		st.AcceptanceRate = float64(st.Accepted) / float64(st.TotalAnnotated) * 100
	}
	return &st, nil
}

// ErrorDistribution counts rejected annotations per primary issue, most
// frequent first. Issues that never occur are absent from the result.
func (s *Store) ErrorDistribution() ([]IssueCount, error) {
	rows, err := s.db.Query(`
		SELECT primary_issue, COUNT(*) AS n
		FROM annotations
		WHERE is_acceptable = 0 AND primary_issue != ''
		GROUP BY primary_issue
		ORDER BY n DESC, primary_issue ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IssueCount
	for rows.Next() {
		var ic IssueCount
		if err := rows.Scan(&ic.Issue, &ic.Count); err != nil {
			return nil, err
		}
		results = append(results, ic)
	}
	return results, rows.Err()
}

// SamplesByIssue returns sample/annotation pairs rejected with the given
// issue, most recently annotated first.
func (s *Store) SamplesByIssue(issue string) ([]AnnotatedSample, error) {
	return s.queryAnnotatedSamples(`
		SELECT s.id, s.prompt, s.response, s.metadata, s.imported_at,
		       a.id, a.sample_id, a.annotator_id, a.is_acceptable, a.primary_issue, a.notes, a.status, a.annotated_at
		FROM annotations a
		JOIN samples s ON s.id = a.sample_id
		WHERE a.is_acceptable = 0 AND a.primary_issue = ?
		ORDER BY a.annotated_at DESC, a.rowid DESC`, issue)
}

// AnnotatedSamples returns every sample that carries an annotation, paired
// with it, in import order.
func (s *Store) AnnotatedSamples() ([]AnnotatedSample, error) {
	return s.queryAnnotatedSamples(`
		SELECT s.id, s.prompt, s.response, s.metadata, s.imported_at,
		       a.id, a.sample_id, a.annotator_id, a.is_acceptable, a.primary_issue, a.notes, a.status, a.annotated_at
		FROM annotations a
		JOIN samples s ON s.id = a.sample_id
		ORDER BY s.imported_at ASC, s.rowid ASC`)
}

// Summary reports annotation progress from one consistent snapshot, so the
// counts always reconcile: Unannotated = TotalSamples - drafts - finals.
func (s *Store) Summary() (*Summary, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning summary transaction: %w", err)
	}
	defer tx.Rollback()

	var sum Summary
	if err := tx.QueryRow("SELECT COUNT(*) FROM samples").Scan(&sum.TotalSamples); err != nil {
		return nil, fmt.Errorf("counting samples: %w", err)
	}
	if err := tx.QueryRow("SELECT COUNT(*) FROM annotations WHERE status = ?", StatusDraft).Scan(&sum.DraftAnnotations); err != nil {
		return nil, fmt.Errorf("counting drafts: %w", err)
	}
	if err := tx.QueryRow("SELECT COUNT(*) FROM annotations WHERE status = ?", StatusFinal).Scan(&sum.FinalAnnotations); err != nil {
		return nil, fmt.Errorf("counting finals: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing summary: %w", err)
	}
	sum.Unannotated = sum.TotalSamples - sum.DraftAnnotations - sum.FinalAnnotations
	return &sum, nil
}

// AreAllFinal reports whether every sample carries a final annotation.
// An empty dataset counts as final.
func (s *Store) AreAllFinal() (bool, error) {
	var pending int
	err := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM samples s
		LEFT JOIN annotations a ON a.sample_id = s.id
		WHERE a.id IS NULL OR a.status != ?`, StatusFinal).Scan(&pending)
	if err != nil {
		return false, err
	}
	return pending == 0, nil
}

// MetadataBreakdown groups annotated samples by each metadata key and value
// and reports per-group acceptance. Samples without a given key contribute
// nothing to that key's groups; samples whose metadata cannot be parsed
// contribute to none. Groups are ordered by size, largest first.
func (s *Store) MetadataBreakdown() (map[string][]GroupStat, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.metadata, a.is_acceptable
		FROM samples s
		JOIN annotations a ON a.sample_id = s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type bucket struct {
		total    int
		accepted int
	}
	groups := make(map[string]map[string]*bucket)
	for rows.Next() {
		var id, meta string
		var acceptable bool
		if err := rows.Scan(&id, &meta, &acceptable); err != nil {
			return nil, err
		}
		for key, value := range unmarshalMetadata(id, meta) {
			rendered := renderMetadataValue(value)
			byValue := groups[key]
			if byValue == nil {
				byValue = make(map[string]*bucket)
				groups[key] = byValue
			}
			b := byValue[rendered]
			if b == nil {
				b = &bucket{}
				byValue[rendered] = b
			}
			b.total++
			if acceptable {
				b.accepted++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make(map[string][]GroupStat, len(groups))
	for key, byValue := range groups {
		stats := make([]GroupStat, 0, len(byValue))
		for value, b := range byValue {
			gs := GroupStat{Value: value, Total: b.total, Accepted: b.accepted}
			gs.AcceptanceRate = float64(b.accepted) / float64(b.total) * 100
			stats = append(stats, gs)
		}
		sort.Slice(stats, func(i, j int) bool {
			if stats[i].Total != stats[j].Total {
				return stats[i].Total > stats[j].Total
			}
			return stats[i].Value < stats[j].Value
		})
		result[key] = stats
	}
	return result, nil
}

// renderMetadataValue flattens a metadata value to the string used for
// grouping and display. Strings pass through; everything else keeps its
// JSON form.
func renderMetadataValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func (s *Store) queryAnnotatedSamples(query string, args ...any) ([]AnnotatedSample, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AnnotatedSample
	for rows.Next() {
		var as AnnotatedSample
		var meta, importedAt, annotatedAt string
		if err := rows.Scan(
			&as.Sample.ID, &as.Sample.Prompt, &as.Sample.Response, &meta, &importedAt,
			&as.Annotation.ID, &as.Annotation.SampleID, &as.Annotation.AnnotatorID,
			&as.Annotation.IsAcceptable, &as.Annotation.PrimaryIssue, &as.Annotation.Notes,
			&as.Annotation.Status, &annotatedAt,
		); err != nil {
			return nil, err
		}
		as.Sample.Metadata = unmarshalMetadata(as.Sample.ID, meta)
		if as.Sample.ImportedAt, err = time.Parse(time.RFC3339, importedAt); err != nil {
			return nil, fmt.Errorf("parsing imported_at: %w", err)
		}
		if as.Annotation.AnnotatedAt, err = time.Parse(time.RFC3339, annotatedAt); err != nil {
			return nil, fmt.Errorf("parsing annotated_at: %w", err)
		}
		results = append(results, as)
	}
	return results, rows.Err()
}
