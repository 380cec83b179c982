// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	cxerrors "github.com/zeelapatel/codaxi/internal/errors"
	"github.com/zeelapatel/codaxi/pkg/docgen"
	"github.com/zeelapatel/codaxi/pkg/ingestion"
	"github.com/zeelapatel/codaxi/pkg/scan"
	"github.com/zeelapatel/codaxi/pkg/search"
)

// StartScanInput is the input of start_scan.
type StartScanInput struct {
	RepoID string `json:"repo_id" jsonschema:"id of a registered repository"`
	Branch string `json:"branch,omitempty" jsonschema:"branch to scan (default: the repository default branch)"`
}

// ScanInput is the input of scan_status.
type ScanInput struct {
	ScanID string `json:"scan_id" jsonschema:"id returned by start_scan"`
}

// ListScansInput is the input of list_scans.
type ListScansInput struct {
	RepoID string `json:"repo_id" jsonschema:"repository id"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of scans (default 20, max 100)"`
}

// ScanOutput is one scan.
type ScanOutput struct {
	ID                   string   `json:"id"`
	RepoID               string   `json:"repo_id"`
	Branch               string   `json:"branch,omitempty"`
	Status               string   `json:"status"`
	StartedAt            string   `json:"started_at"`
	CompletedAt          string   `json:"completed_at,omitempty"`
	FilesParsed          int      `json:"files_parsed"`
	EndpointsDetected    int      `json:"endpoints_detected"`
	ClientRoutesDetected int      `json:"client_routes_detected"`
	EventsDetected       int      `json:"events_detected"`
	TypesDetected        int      `json:"types_detected"`
	DurationSec          int64    `json:"duration_sec"`
	Errors               []string `json:"errors,omitempty"`
}

// ListScansOutput is the output of list_scans.
type ListScansOutput struct {
	Scans []ScanOutput `json:"scans"`
	Count int          `json:"count"`
}

// ListDocsInput is the input of list_docs.
type ListDocsInput struct {
	RepoID   string   `json:"repo_id" jsonschema:"repository id"`
	Query    string   `json:"query,omitempty" jsonschema:"free text matched against titles, paths and summaries"`
	Kinds    []string `json:"kinds,omitempty" jsonschema:"node kinds to keep: route, event, type, module, function, class"`
	Page     int      `json:"page,omitempty" jsonschema:"1-based page number"`
	PageSize int      `json:"page_size,omitempty" jsonschema:"items per page"`
}

// DocSummary is a documentation node without its rendered HTML.
type DocSummary struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Path    string `json:"path"`
	Summary string `json:"summary,omitempty"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ListDocsOutput is the output of list_docs.
type ListDocsOutput struct {
	Items    []DocSummary `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// DocInput addresses one node of a repository.
type DocInput struct {
	RepoID string `json:"repo_id" jsonschema:"repository id"`
	DocID  string `json:"doc_id" jsonschema:"documentation node id"`
}

// CitationOutput is one source anchor.
type CitationOutput struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// DocOutput is a documentation node with its citations.
type DocOutput struct {
	ID        string           `json:"id"`
	Kind      string           `json:"kind"`
	Title     string           `json:"title"`
	Path      string           `json:"path"`
	Summary   string           `json:"summary,omitempty"`
	Method    string           `json:"method,omitempty"`
	Citations []CitationOutput `json:"citations"`
}

// VersionsInput is the input of list_versions.
type VersionsInput struct {
	DocID  string `json:"doc_id" jsonschema:"documentation node id"`
	Latest bool   `json:"latest,omitempty" jsonschema:"return only the newest version"`
}

// VersionOutput is one stored schema version.
type VersionOutput struct {
	DocID     string            `json:"doc_id"`
	Version   int               `json:"version"`
	Source    string            `json:"source"`
	Model     string            `json:"model,omitempty"`
	CreatedAt string            `json:"created_at"`
	Schema    *docgen.DocSchema `json:"schema"`
}

// ListVersionsOutput is the output of list_versions.
type ListVersionsOutput struct {
	Versions []VersionOutput `json:"versions"`
	Count    int             `json:"count"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "start_scan",
		Description: "Start a scan of a registered repository. Returns immediately with the queued scan; poll scan_status for progress.",
	}, s.handleStartScan)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "scan_status",
		Description: "Get the status, counters and errors of a scan",
	}, s.handleScanStatus)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_scans",
		Description: "List recent scans of a repository, newest first",
	}, s.handleListScans)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_docs",
		Description: "Search the documentation nodes (routes, events, types) detected in a repository",
	}, s.handleListDocs)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_doc",
		Description: "Get one documentation node with its source citations",
	}, s.handleGetDoc)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "generate_schema",
		Description: "Generate a request/response schema for an endpoint from the code around it and store it as a new version",
	}, s.handleGenerate)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_versions",
		Description: "List generated schema versions of a documentation node, newest first",
	}, s.handleListVersions)
}

// toolError turns err into the text the client sees. Internal failures are
// logged and reported by message only.
func (s *Server) toolError(tool string, err error, msg string) error {
	ue := cxerrors.Classify(err, msg)
	if ue.HTTPStatus() >= http.StatusInternalServerError || ue.Cause == "" {
		s.logger.Error("mcp.tool.error", "tool", tool, "err", err)
		return errors.New(ue.Message)
	}
	return fmt.Errorf("%s: %s", ue.Message, ue.Cause)
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

func (s *Server) handleStartScan(ctx context.Context, _ *mcp.CallToolRequest, in StartScanInput) (*mcp.CallToolResult, ScanOutput, error) {
	if err := required("repo_id", in.RepoID); err != nil {
		return nil, ScanOutput{}, err
	}
	rec, err := s.ports.Scans.Start(ctx, scan.StartRequest{RepoID: in.RepoID, Branch: in.Branch})
	if err != nil {
		return nil, ScanOutput{}, s.toolError("start_scan", err, "Cannot start scan")
	}
	s.logger.Info("mcp.scan.start", "scan_id", rec.ID, "repo_id", rec.RepoID)
	return nil, scanOutput(rec), nil
}

func (s *Server) handleScanStatus(ctx context.Context, _ *mcp.CallToolRequest, in ScanInput) (*mcp.CallToolResult, ScanOutput, error) {
	if err := required("scan_id", in.ScanID); err != nil {
		return nil, ScanOutput{}, err
	}
	rec, err := s.ports.Scans.Get(ctx, in.ScanID)
	if err != nil {
		return nil, ScanOutput{}, s.toolError("scan_status", err, "Cannot read scan")
	}
	return nil, scanOutput(rec), nil
}

func (s *Server) handleListScans(ctx context.Context, _ *mcp.CallToolRequest, in ListScansInput) (*mcp.CallToolResult, ListScansOutput, error) {
	if err := required("repo_id", in.RepoID); err != nil {
		return nil, ListScansOutput{}, err
	}
	recs, err := s.ports.Scans.List(ctx, in.RepoID, scan.ClampListLimit(in.Limit))
	if err != nil {
		return nil, ListScansOutput{}, s.toolError("list_scans", err, "Cannot list scans")
	}
	out := ListScansOutput{Scans: make([]ScanOutput, 0, len(recs)), Count: len(recs)}
	for _, rec := range recs {
		out.Scans = append(out.Scans, scanOutput(rec))
	}
	return nil, out, nil
}

func (s *Server) handleListDocs(ctx context.Context, _ *mcp.CallToolRequest, in ListDocsInput) (*mcp.CallToolResult, ListDocsOutput, error) {
	if err := required("repo_id", in.RepoID); err != nil {
		return nil, ListDocsOutput{}, err
	}
	for _, k := range in.Kinds {
		if !ingestion.ValidKind(k) {
			return nil, ListDocsOutput{}, fmt.Errorf("unknown kind %q", k)
		}
	}
	page, err := s.ports.Docs.List(ctx, search.DocQuery{
		RepoID:   in.RepoID,
		Q:        in.Query,
		Kinds:    in.Kinds,
		Page:     in.Page,
		PageSize: in.PageSize,
	})
	if err != nil {
		return nil, ListDocsOutput{}, s.toolError("list_docs", err, "Cannot list documentation")
	}
	out := ListDocsOutput{
		Items:    make([]DocSummary, 0, len(page.Items)),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
	for i := range page.Items {
		out.Items = append(out.Items, docSummary(&page.Items[i]))
	}
	return nil, out, nil
}

func (s *Server) handleGetDoc(ctx context.Context, _ *mcp.CallToolRequest, in DocInput) (*mcp.CallToolResult, DocOutput, error) {
	if err := validateDocInput(in); err != nil {
		return nil, DocOutput{}, err
	}
	node, err := s.ports.Docs.Get(ctx, in.RepoID, in.DocID)
	if err != nil {
		return nil, DocOutput{}, s.toolError("get_doc", err, "Cannot read documentation node")
	}
	out := DocOutput{
		ID:        node.ID,
		Kind:      string(node.Kind),
		Title:     node.Title,
		Path:      node.Path,
		Summary:   node.Summary,
		Method:    strings.ToUpper(node.Method()),
		Citations: make([]CitationOutput, 0, len(node.Citations)),
	}
	for _, c := range node.Citations {
		out.Citations = append(out.Citations, CitationOutput{File: c.FilePath, StartLine: c.StartLine, EndLine: c.EndLine})
	}
	return nil, out, nil
}

func (s *Server) handleGenerate(ctx context.Context, _ *mcp.CallToolRequest, in DocInput) (*mcp.CallToolResult, VersionOutput, error) {
	if err := validateDocInput(in); err != nil {
		return nil, VersionOutput{}, err
	}
	// The node must belong to the repository the caller named.
	if _, err := s.ports.Docs.Get(ctx, in.RepoID, in.DocID); err != nil {
		return nil, VersionOutput{}, s.toolError("generate_schema", err, "Cannot read documentation node")
	}
	v, err := s.ports.Generator.GenerateForNode(ctx, in.DocID)
	if err != nil {
		return nil, VersionOutput{}, s.toolError("generate_schema", err, "Cannot generate schema")
	}
	s.logger.Info("mcp.schema.generated", "doc_id", v.DocID, "version", v.Version, "source", v.Source)
	return nil, versionOutput(v), nil
}

func (s *Server) handleListVersions(ctx context.Context, _ *mcp.CallToolRequest, in VersionsInput) (*mcp.CallToolResult, ListVersionsOutput, error) {
	if err := required("doc_id", in.DocID); err != nil {
		return nil, ListVersionsOutput{}, err
	}
	versions, err := s.ports.Versions.ListSchemaVersions(ctx, in.DocID)
	if err != nil {
		return nil, ListVersionsOutput{}, s.toolError("list_versions", err, "Cannot list schema versions")
	}
	if in.Latest && len(versions) > 1 {
		versions = versions[:1]
	}
	out := ListVersionsOutput{Versions: make([]VersionOutput, 0, len(versions)), Count: len(versions)}
	for _, v := range versions {
		out.Versions = append(out.Versions, versionOutput(v))
	}
	return nil, out, nil
}

func validateDocInput(in DocInput) error {
	if err := required("repo_id", in.RepoID); err != nil {
		return err
	}
	return required("doc_id", in.DocID)
}

func scanOutput(rec *ingestion.ScanRecord) ScanOutput {
	out := ScanOutput{
		ID:                   rec.ID,
		RepoID:               rec.RepoID,
		Branch:               rec.Branch,
		Status:               string(rec.Status),
		StartedAt:            rec.StartedAt.UTC().Format(time.RFC3339),
		FilesParsed:          rec.Metrics.FilesParsed,
		EndpointsDetected:    rec.Metrics.EndpointsDetected,
		ClientRoutesDetected: rec.Metrics.ClientRoutesDetected,
		EventsDetected:       rec.Metrics.EventsDetected,
		TypesDetected:        rec.Metrics.TypesDetected,
		DurationSec:          rec.Metrics.DurationSec,
	}
	if rec.CompletedAt != nil {
		out.CompletedAt = rec.CompletedAt.UTC().Format(time.RFC3339)
	}
	for _, e := range rec.Errors {
		out.Errors = append(out.Errors, fmt.Sprintf("[%s] %s", e.Stage, e.Message))
	}
	return out
}

func docSummary(n *ingestion.DocumentationNode) DocSummary {
	out := DocSummary{
		ID:      n.ID,
		Kind:    string(n.Kind),
		Title:   n.Title,
		Path:    n.Path,
		Summary: n.Summary,
	}
	if len(n.Citations) > 0 {
		out.File = n.Citations[0].FilePath
		out.Line = n.Citations[0].StartLine
	}
	return out
}

func versionOutput(v *docgen.SchemaVersion) VersionOutput {
	return VersionOutput{
		DocID:     v.DocID,
		Version:   v.Version,
		Source:    string(v.Source),
		Model:     v.Model,
		CreatedAt: v.CreatedAt.UTC().Format(time.RFC3339),
		Schema:    v.Schema,
	}
}
