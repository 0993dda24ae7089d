package storage

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedClock pins the store clock to a sequence of instants, one per call,
// so tests can assert timestamp ordering deterministically.
func fixedClock(s *Store, base time.Time, step time.Duration) {
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * step)
	}
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies the migration creates the expected indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_samples_imported_at", "idx_annotations_sample_id", "idx_annotations_status", "idx_annotations_issue"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

// TestTablesRoundTrip verifies both tables are created by migration and
// accept a raw row.
func TestTablesRoundTrip(t *testing.T) {
	s := openTestStore(t)

	_, err := s.db.Exec(`INSERT INTO samples (id, prompt, response, metadata, imported_at)
		VALUES ('s1', 'a prompt', 'a response', '{}', '2025-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("INSERT into samples: %v", err)
	}
	_, err = s.db.Exec(`INSERT INTO annotations (id, sample_id, annotator_id, is_acceptable, primary_issue, notes, status, annotated_at)
		VALUES ('a1', 's1', 'default', 1, '', '', 'draft', '2025-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("INSERT into annotations: %v", err)
	}

	var prompt, status string
	err = s.db.QueryRow(`SELECT s.prompt, a.status FROM samples s JOIN annotations a ON a.sample_id = s.id WHERE s.id = 's1'`).
		Scan(&prompt, &status)
	if err != nil {
		t.Fatalf("SELECT joined row: %v", err)
	}
	if prompt != "a prompt" || status != "draft" {
		t.Errorf("round-trip mismatch: got prompt=%q status=%q", prompt, status)
	}
}

// TestAnnotationUniquePerSample verifies the UNIQUE constraint on sample_id
// rejects a second annotation row for the same sample.
func TestAnnotationUniquePerSample(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.db.Exec(`INSERT INTO samples (id, prompt, response, metadata, imported_at)
		VALUES ('s1', 'p', 'r', '{}', '2025-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("INSERT sample: %v", err)
	}
	if _, err := s.db.Exec(`INSERT INTO annotations (id, sample_id, is_acceptable, annotated_at)
		VALUES ('a1', 's1', 1, '2025-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("first INSERT annotation: %v", err)
	}

	_, err := s.db.Exec(`INSERT INTO annotations (id, sample_id, is_acceptable, annotated_at)
		VALUES ('a2', 's1', 0, '2025-01-01T00:00:00Z')`)
	if err == nil {
		t.Error("second annotation for the same sample should violate UNIQUE(sample_id)")
	}
}

// TestDeleteSampleCascades verifies ON DELETE CASCADE removes the annotation
// together with its sample.
func TestDeleteSampleCascades(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.InsertSamples([]Sample{{ID: "s1", Prompt: "p", Response: "r"}}); err != nil {
		t.Fatalf("InsertSamples: %v", err)
	}
	if _, err := s.UpsertAnnotation(Annotation{SampleID: "s1", IsAcceptable: true}); err != nil {
		t.Fatalf("UpsertAnnotation: %v", err)
	}

	if _, err := s.db.Exec(`DELETE FROM samples WHERE id = 's1'`); err != nil {
		t.Fatalf("DELETE sample: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM annotations`).Scan(&count); err != nil {
		t.Fatalf("counting annotations: %v", err)
	}
	if count != 0 {
		t.Errorf("annotation count after cascade = %d, want 0", count)
	}
}
