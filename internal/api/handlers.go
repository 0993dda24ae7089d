package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/labelbench/internal/dataset"
	"github.com/kalambet/labelbench/internal/storage"
)

const maxImportBodySize = 10 << 20 // 10MB

// AppDeps holds dependencies for the annotation API handlers.
type AppDeps struct {
	Store       *storage.Store
	Token       string
	AnnotatorID string
}

// NewAppHandler returns an http.Handler exposing the annotation REST API.
// Everything except /health requires bearer auth when a token is configured.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/samples/import", handleImportSamples(deps))
		r.Get("/samples", handleListSamples(deps))
		r.Get("/samples/{id}", handleGetSample(deps))
		r.Get("/samples/{id}/annotation", handleGetAnnotation(deps))
		r.Put("/samples/{id}/annotation", handlePutAnnotation(deps))
		r.Post("/annotations/finalize", handleFinalize(deps))
		r.Get("/stats", handleStats(deps))
		r.Get("/stats/errors", handleErrorDistribution(deps))
		r.Get("/stats/issues/{issue}", handleSamplesByIssue(deps))
		r.Get("/stats/metadata", handleMetadataBreakdown(deps))
		r.Get("/summary", handleSummary(deps))
		r.Get("/export/annotations", handleExportAnnotations(deps))
		r.Get("/export/rejected", handleExportRejected(deps))
		r.Delete("/data", handleClearAll(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// --- Wire types ---

type sampleJSON struct {
	ID         string         `json:"id"`
	Prompt     string         `json:"prompt"`
	Response   string         `json:"response"`
	Metadata   map[string]any `json:"metadata"`
	ImportedAt string         `json:"imported_at"`
}

func toSampleJSON(s storage.Sample) sampleJSON {
	return sampleJSON{
		ID:         s.ID,
		Prompt:     s.Prompt,
		Response:   s.Response,
		Metadata:   s.Metadata,
		ImportedAt: s.ImportedAt.UTC().Format(time.RFC3339),
	}
}

type annotationJSON struct {
	ID           string  `json:"id"`
	SampleID     string  `json:"sample_id"`
	AnnotatorID  string  `json:"annotator_id"`
	IsAcceptable bool    `json:"is_acceptable"`
	PrimaryIssue *string `json:"primary_issue"`
	Notes        string  `json:"notes"`
	Status       string  `json:"status"`
	AnnotatedAt  string  `json:"annotated_at"`
}

func toAnnotationJSON(a storage.Annotation) annotationJSON {
	out := annotationJSON{
		ID:           a.ID,
		SampleID:     a.SampleID,
		AnnotatorID:  a.AnnotatorID,
		IsAcceptable: a.IsAcceptable,
		Notes:        a.Notes,
		Status:       a.Status,
		AnnotatedAt:  a.AnnotatedAt.UTC().Format(time.RFC3339),
	}
	if a.PrimaryIssue != "" {
		issue := a.PrimaryIssue
		out.PrimaryIssue = &issue
	}
	return out
}

type annotatedSampleJSON struct {
	Sample     sampleJSON     `json:"sample"`
	Annotation annotationJSON `json:"annotation"`
}

// --- Samples ---

func handleImportSamples(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImportBodySize)
		defer r.Body.Close()

		res, err := dataset.ParseJSON(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid import body: %v", err)
			return
		}

		inserted, err := deps.Store.InsertSamples(res.Samples)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to insert samples: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"inserted": inserted,
			"skipped":  len(res.Samples) - inserted,
			"invalid":  len(res.Invalid),
		})
	}
}

func handleListSamples(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			samples []storage.Sample
			err     error
		)
		switch filter := r.URL.Query().Get("filter"); filter {
		case "", "all":
			samples, err = deps.Store.ListSamples()
		case "unannotated":
			samples, err = deps.Store.UnannotatedSamples()
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown filter %q", filter)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list samples: %v", err)
			return
		}

		total := len(samples)
		offset := parseIntParam(r, "offset", 0, 0)
		if offset >= len(samples) {
			samples = nil
		} else {
			samples = samples[offset:]
		}
		if limit := parseIntParam(r, "limit", 0, 0); limit > 0 && limit < len(samples) {
			samples = samples[:limit]
		}

		out := make([]sampleJSON, len(samples))
		for i, s := range samples {
			out[i] = toSampleJSON(s)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"samples": out,
			"total":   total,
		})
	}
}

func handleGetSample(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sample, err := deps.Store.GetSample(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get sample: %v", err)
			return
		}
		if sample == nil {
			httpError(w, http.StatusNotFound, "not_found", "sample %s not found", id)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toSampleJSON(*sample))
	}
}

// --- Annotations ---

type annotationRequest struct {
	IsAcceptable *bool  `json:"is_acceptable"`
	PrimaryIssue string `json:"primary_issue"`
	Notes        string `json:"notes"`
	AnnotatorID  string `json:"annotator_id"`
}

func handleGetAnnotation(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		a, err := deps.Store.GetAnnotation(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get annotation: %v", err)
			return
		}
		if a == nil {
			httpError(w, http.StatusNotFound, "not_found", "no annotation for sample %s", id)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toAnnotationJSON(*a))
	}
}

func handlePutAnnotation(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImportBodySize)
		defer r.Body.Close()

		var req annotationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.IsAcceptable == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "is_acceptable is required")
			return
		}

		annotator := req.AnnotatorID
		if annotator == "" {
			annotator = deps.AnnotatorID
		}

		a := storage.Annotation{
			SampleID:     chi.URLParam(r, "id"),
			AnnotatorID:  annotator,
			IsAcceptable: *req.IsAcceptable,
			PrimaryIssue: req.PrimaryIssue,
			Notes:        req.Notes,
		}
		if err := a.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		stored, err := deps.Store.UpsertAnnotation(a)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "sample %s not found", a.SampleID)
			return
		case errors.Is(err, storage.ErrFinalized):
			httpError(w, http.StatusConflict, "conflict", "annotation for sample %s is final", a.SampleID)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save annotation: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toAnnotationJSON(*stored))
	}
}

func handleFinalize(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Store.FinalizeAll()
		if err != nil {
			var incomplete *storage.IncompleteError
			if errors.As(err, &incomplete) {
				httpError(w, http.StatusConflict, "conflict", "cannot finalize: %v", incomplete)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to finalize annotations: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"finalized": n})
	}
}

// --- Aggregation ---

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.Stats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute stats: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"total_annotated": stats.TotalAnnotated,
			"accepted":        stats.Accepted,
			"rejected":        stats.Rejected,
			"acceptance_rate": stats.AcceptanceRate,
		})
	}
}

func handleErrorDistribution(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := deps.Store.ErrorDistribution()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute error distribution: %v", err)
			return
		}

		type issueCountJSON struct {
			Issue string `json:"issue"`
			Label string `json:"label"`
			Count int    `json:"count"`
		}
		out := make([]issueCountJSON, len(counts))
		for i, c := range counts {
			out[i] = issueCountJSON{Issue: c.Issue, Label: storage.IssueLabels[c.Issue], Count: c.Count}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"issues": out})
	}
}

func handleSamplesByIssue(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		issue := chi.URLParam(r, "issue")
		pairs, err := deps.Store.SamplesByIssue(issue)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list samples by issue: %v", err)
			return
		}

		out := make([]annotatedSampleJSON, len(pairs))
		for i, p := range pairs {
			out[i] = annotatedSampleJSON{Sample: toSampleJSON(p.Sample), Annotation: toAnnotationJSON(p.Annotation)}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"samples": out})
	}
}

func handleMetadataBreakdown(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		breakdown, err := deps.Store.MetadataBreakdown()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute metadata breakdown: %v", err)
			return
		}

		type groupJSON struct {
			Value          string  `json:"value"`
			Total          int     `json:"total"`
			Accepted       int     `json:"accepted"`
			AcceptanceRate float64 `json:"acceptance_rate"`
		}
		out := make(map[string][]groupJSON, len(breakdown))
		for key, groups := range breakdown {
			gs := make([]groupJSON, len(groups))
			for i, g := range groups {
				gs[i] = groupJSON{Value: g.Value, Total: g.Total, Accepted: g.Accepted, AcceptanceRate: g.AcceptanceRate}
			}
			out[key] = gs
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"keys": out})
	}
}

func handleSummary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := deps.Store.Summary()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute summary: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"total_samples":     summary.TotalSamples,
			"draft_annotations": summary.DraftAnnotations,
			"final_annotations": summary.FinalAnnotations,
			"unannotated":       summary.Unannotated,
		})
	}
}

// --- Export ---

func handleExportAnnotations(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pairs, err := deps.Store.AnnotatedSamples()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load annotations: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="annotations.json"`)
		if err := dataset.ExportAnnotationsJSON(w, pairs); err != nil {
			slog.Error("annotation export failed mid-stream", "error", err)
		}
	}
}

func handleExportRejected(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pairs, err := deps.Store.AnnotatedSamples()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load annotations: %v", err)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="rejected.csv"`)
		if err := dataset.ExportRejectedCSV(w, pairs); err != nil {
			slog.Error("rejected export failed mid-stream", "error", err)
		}
	}
}

// --- Data management ---

func handleClearAll(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Store.ClearAll()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear data: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"samples":     res.Samples,
			"annotations": res.Annotations,
		})
	}
}

// --- Helpers ---

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
