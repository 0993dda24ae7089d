package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// ErrFinalized is returned when an operation tries to modify an annotation
// that has already been finalized.
var ErrFinalized = errors.New("annotation is final")

// IncompleteError is returned by FinalizeAll when samples still lack an
// annotation. Missing counts the unannotated samples.
type IncompleteError struct {
	Missing int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%d samples have no annotation", e.Missing)
}

// Annotation lifecycle states. Drafts are editable, finals are not.
const (
	StatusDraft = "draft"
	StatusFinal = "final"
)

// Primary issue categories for rejected responses.
const (
	IssueHallucination      = "hallucination"
	IssueFactuallyIncorrect = "factually_incorrect"
	IssueIncomplete         = "incomplete"
	IssueWrongFormat        = "wrong_format"
	IssueOffTopic           = "off_topic"
	IssueInappropriateTone  = "inappropriate_tone"
	IssueRefusal            = "refusal"
	IssueOther              = "other"
)

// Issues lists every valid primary issue category, in display order.
var Issues = []string{
	IssueHallucination,
	IssueFactuallyIncorrect,
	IssueIncomplete,
	IssueWrongFormat,
	IssueOffTopic,
	IssueInappropriateTone,
	IssueRefusal,
	IssueOther,
}

// IssueLabels maps issue categories to human-readable names.
var IssueLabels = map[string]string{
	IssueHallucination:      "Hallucination",
	IssueFactuallyIncorrect: "Factually incorrect",
	IssueIncomplete:         "Incomplete",
	IssueWrongFormat:        "Wrong format",
	IssueOffTopic:           "Off topic",
	IssueInappropriateTone:  "Inappropriate tone",
	IssueRefusal:            "Refusal",
	IssueOther:              "Other",
}

// ValidIssue reports whether issue is one of the known categories.
func ValidIssue(issue string) bool {
	_, ok := IssueLabels[issue]
	return ok
}

// Sample is one prompt/response pair under review.
type Sample struct {
	ID         string
	Prompt     string
	Response   string
	Metadata   map[string]any
	ImportedAt time.Time
}

// Annotation is the single judgment attached to a sample.
type Annotation struct {
	ID           string
	SampleID     string
	AnnotatorID  string
	IsAcceptable bool
	PrimaryIssue string // empty when the response is acceptable
	Notes        string
	Status       string // "draft" or "final"
	AnnotatedAt  time.Time
}

// Validate checks the judgment rules before an annotation reaches the store:
// a rejection needs a primary issue from the known set and non-empty notes,
// an acceptance must not carry an issue.
func (a Annotation) Validate() error {
	if a.IsAcceptable {
		if a.PrimaryIssue != "" {
			return errors.New("accepted annotation must not have a primary issue")
		}
		return nil
	}
	if a.PrimaryIssue == "" {
		return errors.New("rejected annotation requires a primary issue")
	}
	if !ValidIssue(a.PrimaryIssue) {
		return fmt.Errorf("unknown primary issue %q", a.PrimaryIssue)
	}
	if strings.TrimSpace(a.Notes) == "" {
		return errors.New("rejected annotation requires notes")
	}
	return nil
}

// AnnotatedSample pairs a sample with its annotation.
type AnnotatedSample struct {
	Sample     Sample
	Annotation Annotation
}

// Stats aggregates acceptance over every annotation, draft or final.
type Stats struct {
	TotalAnnotated int
	Accepted       int
	Rejected       int
	AcceptanceRate float64 // percentage: Accepted / TotalAnnotated * 100, 0 when nothing is annotated
}

// IssueCount is one row of the error distribution.
type IssueCount struct {
	Issue string
	Count int
}

// Summary reports annotation progress over the whole dataset.
type Summary struct {
	TotalSamples     int
	DraftAnnotations int
	FinalAnnotations int
	Unannotated      int
}

// ClearResult reports what ClearAll removed.
type ClearResult struct {
	Samples     int
	Annotations int
}

// GroupStat is per-value acceptance within one metadata key.
type GroupStat struct {
	Value          string
	Total          int
	Accepted       int
	AcceptanceRate float64
}
