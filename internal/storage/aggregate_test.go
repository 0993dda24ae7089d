package storage

import (
	"fmt"
	"math"
	"testing"
	"time"
)

// annotate is a test shorthand for a validated upsert.
func annotate(t *testing.T, s *Store, sampleID string, acceptable bool, issue string) {
	t.Helper()
	a := Annotation{SampleID: sampleID, IsAcceptable: acceptable, PrimaryIssue: issue}
	if !acceptable {
		a.Notes = "noted"
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("invalid test annotation for %s: %v", sampleID, err)
	}
	if _, err := s.UpsertAnnotation(a); err != nil {
		t.Fatalf("UpsertAnnotation(%s): %v", sampleID, err)
	}
}

// TestStats verifies the acceptance counters and rate over a mixed set.
func TestStats(t *testing.T) {
	s := openTestStore(t)
	seedSamples(t, s, 10)

	for i := 0; i < 7; i++ {
		annotate(t, s, fmt.Sprintf("s-%02d", i), true, "")
	}
	for i := 7; i < 10; i++ {
		annotate(t, s, fmt.Sprintf("s-%02d", i), false, IssueHallucination)
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalAnnotated != 10 {
		t.Errorf("TotalAnnotated = %d, want 10", st.TotalAnnotated)
	}
	if st.Accepted != 7 {
		t.Errorf("Accepted = %d, want 7", st.Accepted)
	}
	if st.Rejected != 3 {
		t.Errorf("Rejected = %d, want 3", st.Rejected)
	}
	if math.Abs(st.AcceptanceRate-70.0) > 1e-9 {
		t.Errorf("AcceptanceRate = %v, want 70.0", st.AcceptanceRate)
	}
}

// TestStats_Empty verifies the zero-annotation rate is 0, not NaN.
func TestStats_Empty(t *testing.T) {
	s := openTestStore(t)

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalAnnotated != 0 || st.Accepted != 0 || st.Rejected != 0 {
		t.Errorf("counts = %+v, want zeros", st)
	}
	if st.AcceptanceRate != 0 {
		t.Errorf("AcceptanceRate = %v, want 0", st.AcceptanceRate)
	}
}

// TestErrorDistribution verifies counts, descending order, and that unused
// issues are omitted.
func TestErrorDistribution(t *testing.T) {
	s := openTestStore(t)
	seedSamples(t, s, 7)

	annotate(t, s, "s-00", false, IssueHallucination)
	annotate(t, s, "s-01", false, IssueHallucination)
	annotate(t, s, "s-02", false, IssueHallucination)
	annotate(t, s, "s-03", false, IssueWrongFormat)
	annotate(t, s, "s-04", false, IssueIncomplete)
	annotate(t, s, "s-05", true, "")
	annotate(t, s, "s-06", true, "")

	got, err := s.ErrorDistribution()
	if err != nil {
		t.Fatalf("ErrorDistribution: %v", err)
	}

	want := []IssueCount{
		{Issue: IssueHallucination, Count: 3},
		{Issue: IssueIncomplete, Count: 1},
		{Issue: IssueWrongFormat, Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d issues, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

// TestSamplesByIssue verifies filtering and recency ordering.
func TestSamplesByIssue(t *testing.T) {
	s := openTestStore(t)
	fixedClock(s, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), time.Minute)
	seedSamples(t, s, 4)

	annotate(t, s, "s-00", false, IssueRefusal)
	annotate(t, s, "s-01", false, IssueRefusal)
	annotate(t, s, "s-02", false, IssueOffTopic)
	annotate(t, s, "s-03", true, "")

	got, err := s.SamplesByIssue(IssueRefusal)
	if err != nil {
		t.Fatalf("SamplesByIssue: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d pairs, want 2", len(got))
	}

	// Most recently annotated first.
	if got[0].Sample.ID != "s-01" || got[1].Sample.ID != "s-00" {
		t.Errorf("order = [%s, %s], want [s-01, s-00]", got[0].Sample.ID, got[1].Sample.ID)
	}
	for _, pair := range got {
		if pair.Annotation.PrimaryIssue != IssueRefusal {
			t.Errorf("pair %s has issue %q, want %q", pair.Sample.ID, pair.Annotation.PrimaryIssue, IssueRefusal)
		}
	}
}

func TestSamplesByIssue_Unknown(t *testing.T) {
	s := openTestStore(t)
	seedSamples(t, s, 1)
	annotate(t, s, "s-00", false, IssueOther)

	got, err := s.SamplesByIssue("no_such_issue")
	if err != nil {
		t.Fatalf("SamplesByIssue: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d pairs, want 0", len(got))
	}
}

// TestAnnotatedSamples verifies only annotated samples appear, in import order.
func TestAnnotatedSamples(t *testing.T) {
	s := openTestStore(t)
	fixedClock(s, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), time.Minute)
	seedSamples(t, s, 3)

	annotate(t, s, "s-02", true, "")
	annotate(t, s, "s-00", false, IssueOther)

	got, err := s.AnnotatedSamples()
	if err != nil {
		t.Fatalf("AnnotatedSamples: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d pairs, want 2", len(got))
	}
	if got[0].Sample.ID != "s-00" || got[1].Sample.ID != "s-02" {
		t.Errorf("order = [%s, %s], want [s-00, s-02]", got[0].Sample.ID, got[1].Sample.ID)
	}
}

// TestSummary verifies the four counters reconcile.
func TestSummary(t *testing.T) {
	s := openTestStore(t)
	seedSamples(t, s, 5)

	annotate(t, s, "s-00", true, "")
	annotate(t, s, "s-01", true, "")

	sum, err := s.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalSamples != 5 {
		t.Errorf("TotalSamples = %d, want 5", sum.TotalSamples)
	}
	if sum.DraftAnnotations != 2 {
		t.Errorf("DraftAnnotations = %d, want 2", sum.DraftAnnotations)
	}
	if sum.FinalAnnotations != 0 {
		t.Errorf("FinalAnnotations = %d, want 0", sum.FinalAnnotations)
	}
	if sum.Unannotated != 3 {
		t.Errorf("Unannotated = %d, want 3", sum.Unannotated)
	}
}

// TestAreAllFinal walks the lifecycle: empty, drafts, finalized, new import.
func TestAreAllFinal(t *testing.T) {
	s := openTestStore(t)

	allFinal, err := s.AreAllFinal()
	if err != nil {
		t.Fatalf("AreAllFinal empty: %v", err)
	}
	if !allFinal {
		t.Error("empty dataset should count as final")
	}

	seedSamples(t, s, 2)
	annotate(t, s, "s-00", true, "")
	annotate(t, s, "s-01", true, "")

	allFinal, err = s.AreAllFinal()
	if err != nil {
		t.Fatalf("AreAllFinal drafts: %v", err)
	}
	if allFinal {
		t.Error("drafts should not count as final")
	}

	if _, err := s.FinalizeAll(); err != nil {
		t.Fatalf("FinalizeAll: %v", err)
	}
	allFinal, err = s.AreAllFinal()
	if err != nil {
		t.Fatalf("AreAllFinal finalized: %v", err)
	}
	if !allFinal {
		t.Error("AreAllFinal = false after FinalizeAll")
	}

	if _, err := s.InsertSamples([]Sample{{ID: "late", Prompt: "p", Response: "r"}}); err != nil {
		t.Fatalf("InsertSamples: %v", err)
	}
	allFinal, err = s.AreAllFinal()
	if err != nil {
		t.Fatalf("AreAllFinal after late import: %v", err)
	}
	if allFinal {
		t.Error("a new unannotated sample should break AreAllFinal")
	}
}

// TestMetadataBreakdown groups annotated samples per key and value and
// excludes samples lacking a key.
func TestMetadataBreakdown(t *testing.T) {
	s := openTestStore(t)

	samples := []Sample{
		{ID: "m1", Prompt: "p", Response: "r", Metadata: map[string]any{"category": "math", "difficulty": "easy"}},
		{ID: "m2", Prompt: "p", Response: "r", Metadata: map[string]any{"category": "math"}},
		{ID: "m3", Prompt: "p", Response: "r", Metadata: map[string]any{"category": "code"}},
		{ID: "m4", Prompt: "p", Response: "r"},
	}
	if _, err := s.InsertSamples(samples); err != nil {
		t.Fatalf("InsertSamples: %v", err)
	}

	annotate(t, s, "m1", true, "")
	annotate(t, s, "m2", false, IssueIncomplete)
	annotate(t, s, "m3", true, "")
	annotate(t, s, "m4", true, "")

	got, err := s.MetadataBreakdown()
	if err != nil {
		t.Fatalf("MetadataBreakdown: %v", err)
	}

	cats, ok := got["category"]
	if !ok {
		t.Fatalf("no category key in breakdown: %v", got)
	}
	if len(cats) != 2 {
		t.Fatalf("got %d category groups, want 2: %+v", len(cats), cats)
	}
	// math has 2 samples, code 1; largest group first.
	if cats[0].Value != "math" || cats[0].Total != 2 || cats[0].Accepted != 1 {
		t.Errorf("cats[0] = %+v, want math with 2 total, 1 accepted", cats[0])
	}
	if math.Abs(cats[0].AcceptanceRate-50.0) > 1e-9 {
		t.Errorf("math AcceptanceRate = %v, want 50.0", cats[0].AcceptanceRate)
	}
	if cats[1].Value != "code" || cats[1].Total != 1 || cats[1].Accepted != 1 {
		t.Errorf("cats[1] = %+v, want code with 1 total, 1 accepted", cats[1])
	}

	// m4 has no metadata keys at all and must not appear anywhere.
	diff, ok := got["difficulty"]
	if !ok {
		t.Fatalf("no difficulty key in breakdown: %v", got)
	}
	if len(diff) != 1 || diff[0].Total != 1 {
		t.Errorf("difficulty groups = %+v, want a single easy group of 1", diff)
	}
}

// TestMetadataBreakdown_ValueKinds verifies non-string values keep their
// JSON rendering when grouped.
func TestMetadataBreakdown_ValueKinds(t *testing.T) {
	s := openTestStore(t)

	samples := []Sample{
		{ID: "v1", Prompt: "p", Response: "r", Metadata: map[string]any{"round": 1}},
		{ID: "v2", Prompt: "p", Response: "r", Metadata: map[string]any{"round": 1}},
		{ID: "v3", Prompt: "p", Response: "r", Metadata: map[string]any{"round": true}},
	}
	if _, err := s.InsertSamples(samples); err != nil {
		t.Fatalf("InsertSamples: %v", err)
	}
	annotate(t, s, "v1", true, "")
	annotate(t, s, "v2", false, IssueOther)
	annotate(t, s, "v3", true, "")

	got, err := s.MetadataBreakdown()
	if err != nil {
		t.Fatalf("MetadataBreakdown: %v", err)
	}
	rounds := got["round"]
	if len(rounds) != 2 {
		t.Fatalf("got %d round groups, want 2: %+v", len(rounds), rounds)
	}
	if rounds[0].Value != "1" || rounds[0].Total != 2 {
		t.Errorf("rounds[0] = %+v, want value 1 with total 2", rounds[0])
	}
	if rounds[1].Value != "true" || rounds[1].Total != 1 {
		t.Errorf("rounds[1] = %+v, want value true with total 1", rounds[1])
	}
}

// TestMetadataBreakdown_MalformedRow verifies an unparseable metadata column
// contributes to no group instead of failing the whole breakdown.
func TestMetadataBreakdown_MalformedRow(t *testing.T) {
	s := openTestStore(t)

	samples := []Sample{
		{ID: "ok", Prompt: "p", Response: "r", Metadata: map[string]any{"category": "math"}},
		{ID: "broken", Prompt: "p", Response: "r", Metadata: map[string]any{"category": "math"}},
	}
	if _, err := s.InsertSamples(samples); err != nil {
		t.Fatalf("InsertSamples: %v", err)
	}
	annotate(t, s, "ok", true, "")
	annotate(t, s, "broken", true, "")

	if _, err := s.db.Exec(`UPDATE samples SET metadata = 'garbage' WHERE id = 'broken'`); err != nil {
		t.Fatalf("corrupting metadata: %v", err)
	}

	got, err := s.MetadataBreakdown()
	if err != nil {
		t.Fatalf("MetadataBreakdown: %v", err)
	}
	cats := got["category"]
	if len(cats) != 1 || cats[0].Total != 1 {
		t.Errorf("category groups = %+v, want a single math group of 1", cats)
	}
}

// TestMetadataBreakdown_Empty verifies an empty dataset yields an empty map.
func TestMetadataBreakdown_Empty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.MetadataBreakdown()
	if err != nil {
		t.Fatalf("MetadataBreakdown: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("breakdown = %v, want empty", got)
	}
}
