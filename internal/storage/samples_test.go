package storage

import (
	"fmt"
	"testing"
	"time"
)

// TestInsertSamplesRoundTrip inserts a sample and reads every field back.
func TestInsertSamplesRoundTrip(t *testing.T) {
	s := openTestStore(t)

	want := Sample{
		ID:       "sample-001",
		Prompt:   "What is Go?",
		Response: "Go is a programming language.",
		Metadata: map[string]any{"category": "general", "difficulty": "easy"},
	}

	n, err := s.InsertSamples([]Sample{want})
	if err != nil {
		t.Fatalf("InsertSamples: %v", err)
	}
	if n != 1 {
		t.Fatalf("inserted = %d, want 1", n)
	}

	got, err := s.GetSample("sample-001")
	if err != nil {
		t.Fatalf("GetSample: %v", err)
	}
	if got == nil {
		t.Fatal("GetSample returned nil for existing sample")
	}
	if got.Prompt != want.Prompt {
		t.Errorf("Prompt = %q, want %q", got.Prompt, want.Prompt)
	}
	if got.Response != want.Response {
		t.Errorf("Response = %q, want %q", got.Response, want.Response)
	}
	if got.Metadata["category"] != "general" {
		t.Errorf("Metadata[category] = %v, want %q", got.Metadata["category"], "general")
	}
	if got.ImportedAt.IsZero() {
		t.Error("ImportedAt not set by store")
	}
}

// TestInsertSamples_SkipsExisting re-imports an overlapping batch and
// verifies duplicates are skipped without touching the stored rows.
func TestInsertSamples_SkipsExisting(t *testing.T) {
	s := openTestStore(t)

	first := []Sample{
		{ID: "s1", Prompt: "p1", Response: "r1"},
		{ID: "s2", Prompt: "p2", Response: "r2"},
		{ID: "s3", Prompt: "p3", Response: "r3"},
	}
	if _, err := s.InsertSamples(first); err != nil {
		t.Fatalf("first InsertSamples: %v", err)
	}

	second := []Sample{
		{ID: "s2", Prompt: "changed", Response: "changed"},
		{ID: "s3", Prompt: "changed", Response: "changed"},
		{ID: "s4", Prompt: "p4", Response: "r4"},
		{ID: "s5", Prompt: "p5", Response: "r5"},
	}
	n, err := s.InsertSamples(second)
	if err != nil {
		t.Fatalf("second InsertSamples: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	got, err := s.GetSample("s2")
	if err != nil {
		t.Fatalf("GetSample: %v", err)
	}
	if got.Prompt != "p2" {
		t.Errorf("existing sample overwritten: Prompt = %q, want %q", got.Prompt, "p2")
	}

	count, err := s.CountSamples()
	if err != nil {
		t.Fatalf("CountSamples: %v", err)
	}
	if count != 5 {
		t.Errorf("CountSamples = %d, want 5", count)
	}
}

// TestInsertSamples_DuplicateWithinBatch verifies the first occurrence of an
// id wins within a single call.
func TestInsertSamples_DuplicateWithinBatch(t *testing.T) {
	s := openTestStore(t)

	n, err := s.InsertSamples([]Sample{
		{ID: "dup", Prompt: "first", Response: "first"},
		{ID: "dup", Prompt: "second", Response: "second"},
	})
	if err != nil {
		t.Fatalf("InsertSamples: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}

	got, err := s.GetSample("dup")
	if err != nil {
		t.Fatalf("GetSample: %v", err)
	}
	if got.Prompt != "first" {
		t.Errorf("Prompt = %q, want %q", got.Prompt, "first")
	}
}

func TestInsertSamples_Empty(t *testing.T) {
	s := openTestStore(t)

	n, err := s.InsertSamples(nil)
	if err != nil {
		t.Fatalf("InsertSamples(nil): %v", err)
	}
	if n != 0 {
		t.Errorf("inserted = %d, want 0", n)
	}
}

// TestGetSample_Absent verifies a missing id is a normal (nil, nil) result.
func TestGetSample_Absent(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetSample("nope")
	if err != nil {
		t.Fatalf("GetSample: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for absent sample, got %+v", got)
	}
}

// TestListSamples_ImportOrder inserts batches at increasing times and
// verifies ListSamples returns them oldest import first, batch order kept.
func TestListSamples_ImportOrder(t *testing.T) {
	s := openTestStore(t)
	fixedClock(s, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), time.Minute)

	if _, err := s.InsertSamples([]Sample{
		{ID: "z-first", Prompt: "p", Response: "r"},
		{ID: "a-second", Prompt: "p", Response: "r"},
	}); err != nil {
		t.Fatalf("InsertSamples batch 1: %v", err)
	}
	if _, err := s.InsertSamples([]Sample{{ID: "m-third", Prompt: "p", Response: "r"}}); err != nil {
		t.Fatalf("InsertSamples batch 2: %v", err)
	}

	got, err := s.ListSamples()
	if err != nil {
		t.Fatalf("ListSamples: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d samples, want 3", len(got))
	}

	wantOrder := []string{"z-first", "a-second", "m-third"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("got[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}
}

// TestUnannotatedSamples verifies annotated samples drop out of the list
// while the remaining order is preserved.
func TestUnannotatedSamples(t *testing.T) {
	s := openTestStore(t)
	fixedClock(s, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), time.Minute)

	var batch []Sample
	for i := 0; i < 4; i++ {
		batch = append(batch, Sample{ID: fmt.Sprintf("s-%02d", i), Prompt: "p", Response: "r"})
	}
	if _, err := s.InsertSamples(batch); err != nil {
		t.Fatalf("InsertSamples: %v", err)
	}

	if _, err := s.UpsertAnnotation(Annotation{SampleID: "s-01", IsAcceptable: true}); err != nil {
		t.Fatalf("UpsertAnnotation: %v", err)
	}

	got, err := s.UnannotatedSamples()
	if err != nil {
		t.Fatalf("UnannotatedSamples: %v", err)
	}

	wantOrder := []string{"s-00", "s-02", "s-03"}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d samples, want %d", len(got), len(wantOrder))
	}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("got[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}
}

// TestClearAll wipes both tables and reports the pre-deletion counts.
func TestClearAll(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.InsertSamples([]Sample{
		{ID: "s1", Prompt: "p", Response: "r"},
		{ID: "s2", Prompt: "p", Response: "r"},
		{ID: "s3", Prompt: "p", Response: "r"},
	}); err != nil {
		t.Fatalf("InsertSamples: %v", err)
	}
	if _, err := s.UpsertAnnotation(Annotation{SampleID: "s1", IsAcceptable: true}); err != nil {
		t.Fatalf("UpsertAnnotation: %v", err)
	}

	res, err := s.ClearAll()
	if err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if res.Samples != 3 {
		t.Errorf("Samples = %d, want 3", res.Samples)
	}
	if res.Annotations != 1 {
		t.Errorf("Annotations = %d, want 1", res.Annotations)
	}

	count, err := s.CountSamples()
	if err != nil {
		t.Fatalf("CountSamples: %v", err)
	}
	if count != 0 {
		t.Errorf("CountSamples after clear = %d, want 0", count)
	}
}

func TestClearAll_Empty(t *testing.T) {
	s := openTestStore(t)

	res, err := s.ClearAll()
	if err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if res.Samples != 0 || res.Annotations != 0 {
		t.Errorf("ClearAll on empty store = %+v, want zeros", res)
	}
}

// TestMalformedMetadataDegrades corrupts a stored metadata column and
// verifies reads still succeed with an empty map.
func TestMalformedMetadataDegrades(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.InsertSamples([]Sample{{ID: "s1", Prompt: "p", Response: "r", Metadata: map[string]any{"k": "v"}}}); err != nil {
		t.Fatalf("InsertSamples: %v", err)
	}
	if _, err := s.db.Exec(`UPDATE samples SET metadata = '{not json' WHERE id = 's1'`); err != nil {
		t.Fatalf("corrupting metadata: %v", err)
	}

	got, err := s.GetSample("s1")
	if err != nil {
		t.Fatalf("GetSample: %v", err)
	}
	if got == nil {
		t.Fatal("GetSample returned nil")
	}
	if len(got.Metadata) != 0 {
		t.Errorf("Metadata = %v, want empty map", got.Metadata)
	}
}
