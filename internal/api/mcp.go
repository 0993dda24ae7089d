package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/labelbench/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store       *storage.Store
	AnnotatorID string
}

// NewMCPServer creates an MCP server exposing the annotation workflow as
// tools, so an agent can review samples and record judgments.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"labelbench",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("labelbench — single-user annotation bench for judging prompt/response samples."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_unannotated",
			mcp.WithDescription("List samples that have no annotation yet, in import order."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of samples to return (default 20)")),
		),
		mcpListUnannotated(deps),
	)

	s.AddTool(
		mcp.NewTool("get_sample",
			mcp.WithDescription("Fetch a single sample with its annotation, if one exists."),
			mcp.WithString("id", mcp.Description("Sample id"), mcp.Required()),
		),
		mcpGetSample(deps),
	)

	s.AddTool(
		mcp.NewTool("annotate_sample",
			mcp.WithDescription("Record a draft judgment for a sample. Rejections need a primary_issue and notes."),
			mcp.WithString("id", mcp.Description("Sample id"), mcp.Required()),
			mcp.WithBoolean("is_acceptable", mcp.Description("Whether the response is acceptable"), mcp.Required()),
			mcp.WithString("primary_issue", mcp.Description("Issue code for rejections (e.g. hallucination, incomplete)")),
			mcp.WithString("notes", mcp.Description("Free-form reviewer notes; required for rejections")),
		),
		mcpAnnotateSample(deps),
	)

	s.AddTool(
		mcp.NewTool("finalize_annotations",
			mcp.WithDescription("Promote every draft annotation to final. Fails while any sample is still unannotated."),
		),
		mcpFinalizeAnnotations(deps),
	)

	s.AddTool(
		mcp.NewTool("annotation_stats",
			mcp.WithDescription("Acceptance stats and the issue distribution across rejected samples."),
		),
		mcpAnnotationStats(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"labelbench://summary",
			"Dataset Summary",
			mcp.WithResourceDescription("Sample and annotation counts as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSummary(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"labelbench://issues",
			"Issue Vocabulary",
			mcp.WithResourceDescription("Valid primary_issue codes with display labels"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceIssues(deps),
	)

	return s
}

func mcpListUnannotated(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		samples, err := deps.Store.UnannotatedSamples()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list samples: %v", err)), nil
		}
		if len(samples) > limit {
			samples = samples[:limit]
		}

		out := make([]sampleJSON, len(samples))
		for i, s := range samples {
			out[i] = toSampleJSON(s)
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal samples: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetSample(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		sample, err := deps.Store.GetSample(id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get sample: %v", err)), nil
		}
		if sample == nil {
			return mcpError(fmt.Sprintf("sample %s not found", id)), nil
		}

		annotation, err := deps.Store.GetAnnotation(id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get annotation: %v", err)), nil
		}

		result := struct {
			Sample     sampleJSON      `json:"sample"`
			Annotation *annotationJSON `json:"annotation"`
		}{Sample: toSampleJSON(*sample)}
		if annotation != nil {
			a := toAnnotationJSON(*annotation)
			result.Annotation = &a
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal sample: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAnnotateSample(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		acceptable, err := req.RequireBool("is_acceptable")
		if err != nil {
			return mcpError("is_acceptable is required"), nil
		}

		a := storage.Annotation{
			SampleID:     id,
			AnnotatorID:  deps.AnnotatorID,
			IsAcceptable: acceptable,
			PrimaryIssue: req.GetString("primary_issue", ""),
			Notes:        req.GetString("notes", ""),
		}
		if err := a.Validate(); err != nil {
			return mcpError(err.Error()), nil
		}

		stored, err := deps.Store.UpsertAnnotation(a)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return mcpError(fmt.Sprintf("sample %s not found", id)), nil
		case errors.Is(err, storage.ErrFinalized):
			return mcpError(fmt.Sprintf("annotation for sample %s is final and cannot change", id)), nil
		case err != nil:
			return mcpError(fmt.Sprintf("failed to save annotation: %v", err)), nil
		}

		verdict := "accepted"
		if !stored.IsAcceptable {
			verdict = fmt.Sprintf("rejected (%s)", stored.PrimaryIssue)
		}
		return mcpText(fmt.Sprintf("Saved draft annotation for sample %s: %s", id, verdict)), nil
	}
}

func mcpFinalizeAnnotations(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, err := deps.Store.FinalizeAll()
		if err != nil {
			var incomplete *storage.IncompleteError
			if errors.As(err, &incomplete) {
				return mcpError(fmt.Sprintf("cannot finalize: %v", incomplete)), nil
			}
			return mcpError(fmt.Sprintf("failed to finalize: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Finalized %d annotations", n)), nil
	}
}

func mcpAnnotationStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := deps.Store.Stats()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to compute stats: %v", err)), nil
		}
		counts, err := deps.Store.ErrorDistribution()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to compute error distribution: %v", err)), nil
		}

		type issueCount struct {
			Issue string `json:"issue"`
			Count int    `json:"count"`
		}
		issues := make([]issueCount, len(counts))
		for i, c := range counts {
			issues[i] = issueCount{Issue: c.Issue, Count: c.Count}
		}

		b, err := json.Marshal(map[string]any{
			"total_annotated": stats.TotalAnnotated,
			"accepted":        stats.Accepted,
			"rejected":        stats.Rejected,
			"acceptance_rate": stats.AcceptanceRate,
			"issues":          issues,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceSummary(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		summary, err := deps.Store.Summary()
		if err != nil {
			return nil, fmt.Errorf("failed to compute summary: %w", err)
		}

		b, err := json.Marshal(map[string]any{
			"total_samples":     summary.TotalSamples,
			"draft_annotations": summary.DraftAnnotations,
			"final_annotations": summary.FinalAnnotations,
			"unannotated":       summary.Unannotated,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal summary: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceIssues(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type issueEntry struct {
			Issue string `json:"issue"`
			Label string `json:"label"`
		}
		entries := make([]issueEntry, len(storage.Issues))
		for i, issue := range storage.Issues {
			entries[i] = issueEntry{Issue: issue, Label: storage.IssueLabels[issue]}
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal issues: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
