package session

import (
	"fmt"
	"testing"

	"github.com/kalambet/labelbench/internal/storage"
)

func newTestStore(t *testing.T, n int) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	var batch []storage.Sample
	for i := 0; i < n; i++ {
		batch = append(batch, storage.Sample{
			ID:       fmt.Sprintf("s-%02d", i),
			Prompt:   fmt.Sprintf("prompt %d", i),
			Response: fmt.Sprintf("response %d", i),
		})
	}
	if _, err := s.InsertSamples(batch); err != nil {
		t.Fatalf("seeding samples: %v", err)
	}
	return s
}

func accept(t *testing.T, s *storage.Store, sampleID string) {
	t.Helper()
	if _, err := s.UpsertAnnotation(storage.Annotation{SampleID: sampleID, IsAcceptable: true}); err != nil {
		t.Fatalf("UpsertAnnotation(%s): %v", sampleID, err)
	}
}

// TestCurrent_Empty verifies an empty working set yields an empty view.
func TestCurrent_Empty(t *testing.T) {
	s := newTestStore(t, 0)
	c := NewController(s, ModeAll)

	v, err := c.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if !v.Empty {
		t.Error("Empty = false, want true")
	}
	if v.Total != 0 {
		t.Errorf("Total = %d, want 0", v.Total)
	}
}

// TestCurrent_StartsAtFirst verifies a fresh session looks at sample 0.
func TestCurrent_StartsAtFirst(t *testing.T) {
	s := newTestStore(t, 3)
	c := NewController(s, ModeAll)

	v, err := c.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if v.Sample.ID != "s-00" {
		t.Errorf("Sample.ID = %q, want s-00", v.Sample.ID)
	}
	if v.Index != 0 || v.Total != 3 {
		t.Errorf("position = %d/%d, want 0/3", v.Index, v.Total)
	}
	if v.Annotation != nil {
		t.Errorf("Annotation = %+v, want nil", v.Annotation)
	}
}

// TestCurrent_IncludesAnnotation verifies the view carries an existing judgment.
func TestCurrent_IncludesAnnotation(t *testing.T) {
	s := newTestStore(t, 1)
	accept(t, s, "s-00")
	c := NewController(s, ModeAll)

	v, err := c.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if v.Annotation == nil {
		t.Fatal("Annotation = nil, want the stored judgment")
	}
	if !v.Annotation.IsAcceptable {
		t.Error("Annotation.IsAcceptable = false, want true")
	}
}

// TestNext_ClampsAtEnd steps past the last sample and verifies the cursor
// stays there instead of wrapping.
func TestNext_ClampsAtEnd(t *testing.T) {
	s := newTestStore(t, 2)
	c := NewController(s, ModeAll)

	if _, err := c.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	v, err := c.Next()
	if err != nil {
		t.Fatalf("Next at end: %v", err)
	}
	if v.Index != 1 || v.Sample.ID != "s-01" {
		t.Errorf("view = %s at %d, want s-01 at 1", v.Sample.ID, v.Index)
	}
}

// TestPrev_ClampsAtStart steps back from the first sample and verifies the
// cursor stays at 0.
func TestPrev_ClampsAtStart(t *testing.T) {
	s := newTestStore(t, 2)
	c := NewController(s, ModeAll)

	v, err := c.Prev()
	if err != nil {
		t.Fatalf("Prev: %v", err)
	}
	if v.Index != 0 || v.Sample.ID != "s-00" {
		t.Errorf("view = %s at %d, want s-00 at 0", v.Sample.ID, v.Index)
	}
}

// TestJumpTo_Clamps verifies out-of-range jumps land on the nearest end.
func TestJumpTo_Clamps(t *testing.T) {
	s := newTestStore(t, 3)
	c := NewController(s, ModeAll)

	v, err := c.JumpTo(-5)
	if err != nil {
		t.Fatalf("JumpTo(-5): %v", err)
	}
	if v.Index != 0 {
		t.Errorf("JumpTo(-5) landed at %d, want 0", v.Index)
	}

	v, err = c.JumpTo(10000)
	if err != nil {
		t.Fatalf("JumpTo(10000): %v", err)
	}
	if v.Index != 2 || v.Sample.ID != "s-02" {
		t.Errorf("JumpTo(10000) landed on %s at %d, want s-02 at 2", v.Sample.ID, v.Index)
	}
}

// TestUnannotatedMode_SlidesForward annotates the current sample and
// verifies the next read lands on the sample that slid into its place.
func TestUnannotatedMode_SlidesForward(t *testing.T) {
	s := newTestStore(t, 3)
	c := NewController(s, ModeUnannotated)

	v, err := c.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if v.Sample.ID != "s-00" {
		t.Fatalf("starting sample = %q, want s-00", v.Sample.ID)
	}

	accept(t, s, "s-00")

	v, err = c.Current()
	if err != nil {
		t.Fatalf("Current after annotating: %v", err)
	}
	if v.Sample.ID != "s-01" {
		t.Errorf("Sample.ID = %q, want s-01", v.Sample.ID)
	}
	if v.Index != 0 || v.Total != 2 {
		t.Errorf("position = %d/%d, want 0/2", v.Index, v.Total)
	}
}

// TestUnannotatedMode_ClampsFromEnd annotates the last remaining sample at
// the cursor and verifies the cursor clamps back onto the new end.
func TestUnannotatedMode_ClampsFromEnd(t *testing.T) {
	s := newTestStore(t, 3)
	c := NewController(s, ModeUnannotated)

	if _, err := c.JumpTo(2); err != nil {
		t.Fatalf("JumpTo(2): %v", err)
	}
	accept(t, s, "s-02")

	v, err := c.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if v.Sample.ID != "s-01" {
		t.Errorf("Sample.ID = %q, want s-01", v.Sample.ID)
	}
	if v.Index != 1 || v.Total != 2 {
		t.Errorf("position = %d/%d, want 1/2", v.Index, v.Total)
	}
}

// TestSetMode_ReclampsCursor switches working sets with a high cursor and
// verifies the next read clamps into the smaller set.
func TestSetMode_ReclampsCursor(t *testing.T) {
	s := newTestStore(t, 4)
	accept(t, s, "s-00")
	accept(t, s, "s-01")
	accept(t, s, "s-02")

	c := NewController(s, ModeAll)
	if _, err := c.JumpTo(3); err != nil {
		t.Fatalf("JumpTo(3): %v", err)
	}

	c.SetMode(ModeUnannotated)
	v, err := c.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if v.Sample.ID != "s-03" {
		t.Errorf("Sample.ID = %q, want s-03", v.Sample.ID)
	}
	if v.Index != 0 || v.Total != 1 {
		t.Errorf("position = %d/%d, want 0/1", v.Index, v.Total)
	}
}

// TestClearBetweenReads wipes the store mid-session and verifies the next
// read reports an empty set instead of a stale view.
func TestClearBetweenReads(t *testing.T) {
	s := newTestStore(t, 3)
	c := NewController(s, ModeAll)

	if _, err := c.JumpTo(2); err != nil {
		t.Fatalf("JumpTo(2): %v", err)
	}
	if _, err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	v, err := c.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if !v.Empty {
		t.Errorf("view = %+v, want empty", v)
	}
}

// TestIndependentControllers verifies two sessions over one store keep
// separate cursors.
func TestIndependentControllers(t *testing.T) {
	s := newTestStore(t, 3)
	a := NewController(s, ModeAll)
	b := NewController(s, ModeAll)

	if _, err := a.JumpTo(2); err != nil {
		t.Fatalf("JumpTo: %v", err)
	}

	v, err := b.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if v.Index != 0 {
		t.Errorf("second controller index = %d, want 0", v.Index)
	}
}

func TestModeString(t *testing.T) {
	if ModeAll.String() != "all" {
		t.Errorf("ModeAll = %q, want all", ModeAll.String())
	}
	if ModeUnannotated.String() != "unannotated" {
		t.Errorf("ModeUnannotated = %q, want unannotated", ModeUnannotated.String())
	}
}
