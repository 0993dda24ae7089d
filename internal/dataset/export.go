package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/kalambet/labelbench/internal/storage"
)

type exportAnnotation struct {
	IsAcceptable bool    `json:"is_acceptable"`
	PrimaryIssue *string `json:"primary_issue"`
	Notes        string  `json:"notes"`
	AnnotatedAt  string  `json:"annotated_at"`
}

type exportSample struct {
	ID         string           `json:"id"`
	Prompt     string           `json:"prompt"`
	Response   string           `json:"response"`
	Metadata   map[string]any   `json:"metadata"`
	Annotation exportAnnotation `json:"annotation"`
}

// ExportAnnotationsJSON writes annotated samples with their judgments
// attached. Accepted annotations carry a null primary_issue.
func ExportAnnotationsJSON(w io.Writer, pairs []storage.AnnotatedSample) error {
	doc := struct {
		Samples []exportSample `json:"samples"`
	}{Samples: make([]exportSample, 0, len(pairs))}

	for _, p := range pairs {
		es := exportSample{
			ID:       p.Sample.ID,
			Prompt:   p.Sample.Prompt,
			Response: p.Sample.Response,
			Metadata: p.Sample.Metadata,
			Annotation: exportAnnotation{
				IsAcceptable: p.Annotation.IsAcceptable,
				Notes:        p.Annotation.Notes,
				AnnotatedAt:  p.Annotation.AnnotatedAt.UTC().Format(time.RFC3339),
			},
		}
		if p.Annotation.PrimaryIssue != "" {
			issue := p.Annotation.PrimaryIssue
			es.Annotation.PrimaryIssue = &issue
		}
		doc.Samples = append(doc.Samples, es)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// ExportRejectedCSV writes the rejected subset of pairs as CSV: the fixed
// columns first, then the union of their metadata keys in sorted order.
func ExportRejectedCSV(w io.Writer, pairs []storage.AnnotatedSample) error {
	var rejected []storage.AnnotatedSample
	for _, p := range pairs {
		if !p.Annotation.IsAcceptable {
			rejected = append(rejected, p)
		}
	}

	keySet := make(map[string]bool)
	for _, p := range rejected {
		for k := range p.Sample.Metadata {
			keySet[k] = true
		}
	}
	extra := make([]string, 0, len(keySet))
	for k := range keySet {
		extra = append(extra, k)
	}
	sort.Strings(extra)

	cw := csv.NewWriter(w)
	header := append([]string{"id", "prompt", "response", "primary_issue", "notes", "annotated_at"}, extra...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	for _, p := range rejected {
		row := []string{
			p.Sample.ID,
			p.Sample.Prompt,
			p.Sample.Response,
			p.Annotation.PrimaryIssue,
			p.Annotation.Notes,
			p.Annotation.AnnotatedAt.UTC().Format(time.RFC3339),
		}
		for _, k := range extra {
			v, ok := p.Sample.Metadata[k]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, flattenValue(v))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV record for sample %s: %w", p.Sample.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// flattenValue renders a metadata value for a CSV cell. Strings pass
// through; everything else keeps its JSON form.
func flattenValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
