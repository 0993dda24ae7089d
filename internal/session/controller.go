package session

import (
	"fmt"
	"sync"

	"github.com/kalambet/labelbench/internal/storage"
)

// SampleSource defines the storage operations the Controller needs.
// Implemented by storage.Store.
type SampleSource interface {
	ListSamples() ([]storage.Sample, error)
	UnannotatedSamples() ([]storage.Sample, error)
	GetAnnotation(sampleID string) (*storage.Annotation, error)
}

// Mode selects the working set a session walks.
type Mode int

const (
	// ModeAll walks every imported sample.
	ModeAll Mode = iota
	// ModeUnannotated walks only samples without an annotation.
	ModeUnannotated
)

func (m Mode) String() string {
	if m == ModeUnannotated {
		return "unannotated"
	}
	return "all"
}

// View is the controller's answer to "what is the reviewer looking at":
// the sample under the cursor, its annotation if one exists, and the
// position within the current working set. Empty means the working set
// has no samples at all.
type View struct {
	Sample     storage.Sample
	Annotation *storage.Annotation // nil when the sample has no judgment yet
	Index      int
	Total      int
	Empty      bool
}

// Controller tracks one reviewer's cursor over the sample list. The working
// set is re-derived from storage and the cursor re-clamped on every read, so
// a view is never computed against stale data: imports, judgments, and clears
// between reads simply shift what the cursor lands on.
//
// Each Controller is an independent session; callers needing separate cursors
// construct separate controllers over the same store.
type Controller struct {
	store SampleSource

	mu     sync.Mutex
	mode   Mode
	cursor int
}

// NewController starts a session at the first sample of the given mode.
func NewController(store SampleSource, mode Mode) *Controller {
	return &Controller{store: store, mode: mode}
}

// Current returns the view at the cursor.
func (c *Controller) Current() (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read()
}

// Next advances the cursor one step. At the end of the working set the
// cursor stays put; there is no wraparound.
func (c *Controller) Next() (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor++
	return c.read()
}

// Prev moves the cursor one step back, stopping at the first sample.
func (c *Controller) Prev() (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor--
	return c.read()
}

// JumpTo moves the cursor to position i. Out-of-range positions are clamped
// to the nearest end, never rejected.
func (c *Controller) JumpTo(i int) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor = i
	return c.read()
}

// SetMode switches the working set. The cursor value carries over and is
// clamped against the new set on the next read.
func (c *Controller) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

// Mode returns the current working set mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// read re-derives the working set, clamps the cursor into it, and builds the
// view at the clamped position. Callers hold c.mu.
func (c *Controller) read() (View, error) {
	samples, err := c.workingSet()
	if err != nil {
		return View{}, fmt.Errorf("loading working set: %w", err)
	}
	if len(samples) == 0 {
		c.cursor = 0
		return View{Empty: true}, nil
	}

	if c.cursor < 0 {
		c.cursor = 0
	}
	if c.cursor > len(samples)-1 {
		c.cursor = len(samples) - 1
	}

	sm := samples[c.cursor]
	ann, err := c.store.GetAnnotation(sm.ID)
	if err != nil {
		return View{}, fmt.Errorf("loading annotation for sample %s: %w", sm.ID, err)
	}
	return View{Sample: sm, Annotation: ann, Index: c.cursor, Total: len(samples)}, nil
}

func (c *Controller) workingSet() ([]storage.Sample, error) {
	if c.mode == ModeUnannotated {
		return c.store.UnannotatedSamples()
	}
	return c.store.ListSamples()
}
