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

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	cxerrors "github.com/zeelapatel/codaxi/internal/errors"
	"github.com/zeelapatel/codaxi/internal/output"
	"github.com/zeelapatel/codaxi/pkg/docgen"
	"github.com/zeelapatel/codaxi/pkg/ingestion"
	"github.com/zeelapatel/codaxi/pkg/scan"
	"github.com/zeelapatel/codaxi/pkg/search"
)

// maxBodyBytes bounds request bodies. Only small JSON objects are accepted.
const maxBodyBytes = 64 << 10

// Scans is the scan surface the API needs.
type Scans interface {
	Start(ctx context.Context, req scan.StartRequest) (*ingestion.ScanRecord, error)
	Get(ctx context.Context, id string) (*ingestion.ScanRecord, error)
	Cancel(ctx context.Context, id string) error
	Subscribe(id string) (<-chan scan.ProgressEvent, func())
	List(ctx context.Context, repoID string, limit int) ([]*ingestion.ScanRecord, error)
	Active(ctx context.Context) ([]*ingestion.ScanRecord, error)
	Latest(ctx context.Context, repoID string) (*ingestion.ScanRecord, error)
}

// Docs lists documentation nodes.
type Docs interface {
	List(ctx context.Context, q search.DocQuery) (*search.DocPage, error)
	Get(ctx context.Context, repoID, docID string) (*ingestion.DocumentationNode, error)
}

// Generator produces schema versions.
type Generator interface {
	GenerateForNode(ctx context.Context, docID string) (*docgen.SchemaVersion, error)
}

// Versions reads stored schema versions.
type Versions interface {
	ListSchemaVersions(ctx context.Context, docID string) ([]*docgen.SchemaVersion, error)
}

// Server routes API requests to the engine.
type Server struct {
	scans    Scans
	docs     Docs
	gen      Generator
	versions Versions
	logger   *slog.Logger
	mux      *http.ServeMux
}

// New builds a server. A nil logger uses slog.Default().
func New(scans Scans, docs Docs, gen Generator, versions Versions, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{scans: scans, docs: docs, gen: gen, versions: versions, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/scans", s.startScan)
	s.mux.HandleFunc("GET /api/scans/active", s.activeScans)
	s.mux.HandleFunc("GET /api/scans/{id}", s.getScan)
	s.mux.HandleFunc("POST /api/scans/{id}/cancel", s.cancelScan)
	s.mux.HandleFunc("GET /api/scans/{id}/stream", s.streamScan)

	s.mux.HandleFunc("GET /api/repos/{repoId}/scans", s.listScans)
	s.mux.HandleFunc("GET /api/repos/{repoId}/scans/latest", s.latestScan)
	s.mux.HandleFunc("GET /api/repos/{repoId}/docs", s.listDocs)
	s.mux.HandleFunc("GET /api/repos/{repoId}/docs/{docId}", s.getDoc)
	s.mux.HandleFunc("POST /api/repos/{repoId}/docs/{docId}/generate", s.generateDoc)
	s.mux.HandleFunc("GET /api/repos/{repoId}/docs/{docId}/versions", s.listVersions)

	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// ServeHTTP implements http.Handler with request logging.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug("http.request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// statusRecorder captures the response status for logging. It forwards
// Hijack so websocket upgrades keep working.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// fail classifies err and writes the error envelope.
func (s *Server) fail(w http.ResponseWriter, err error, msg string) {
	ue := cxerrors.Classify(err, msg)
	status := ue.HTTPStatus()
	text := ue.Cause
	if status >= http.StatusInternalServerError || text == "" {
		text = ue.Message
		s.logger.Error("http.error", "msg", msg, "err", err)
	}
	output.WriteEnvelope(w, status, output.Fail(text))
}

func badRequest(w http.ResponseWriter, msg string) {
	output.WriteEnvelope(w, http.StatusBadRequest, output.Fail(msg))
}

type startScanRequest struct {
	RepoID string `json:"repoId"`
	Branch string `json:"branch,omitempty"`
}

func (s *Server) startScan(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid request body")
		return
	}
	rec, err := s.scans.Start(r.Context(), scan.StartRequest{RepoID: req.RepoID, Branch: req.Branch})
	if err != nil {
		s.fail(w, err, "Cannot start scan")
		return
	}
	output.WriteEnvelope(w, http.StatusCreated, output.OK(rec, "scan started"))
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.scans.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Cannot load scan")
		return
	}
	output.WriteEnvelope(w, http.StatusOK, output.OK(rec, ""))
}

func (s *Server) cancelScan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.scans.Cancel(r.Context(), id); err != nil {
		s.fail(w, err, "Cannot cancel scan")
		return
	}
	output.WriteEnvelope(w, http.StatusAccepted, output.OK(map[string]string{"id": id}, "cancellation requested"))
}

// ActiveScans is the body of GET /api/scans/active.
type ActiveScans struct {
	Count int                     `json:"count"`
	Scans []*ingestion.ScanRecord `json:"scans"`
}

func (s *Server) activeScans(w http.ResponseWriter, r *http.Request) {
	recs, err := s.scans.Active(r.Context())
	if err != nil {
		s.fail(w, err, "Cannot list active scans")
		return
	}
	if recs == nil {
		recs = []*ingestion.ScanRecord{}
	}
	output.WriteEnvelope(w, http.StatusOK, output.OK(ActiveScans{Count: len(recs), Scans: recs}, ""))
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}
	recs, err := s.scans.List(r.Context(), r.PathValue("repoId"), scan.ClampListLimit(limit))
	if err != nil {
		s.fail(w, err, "Cannot list scans")
		return
	}
	if recs == nil {
		recs = []*ingestion.ScanRecord{}
	}
	output.WriteEnvelope(w, http.StatusOK, output.OK(recs, ""))
}

func (s *Server) latestScan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.scans.Latest(r.Context(), r.PathValue("repoId"))
	if err != nil {
		s.fail(w, err, "Cannot load latest scan")
		return
	}
	output.WriteEnvelope(w, http.StatusOK, output.OK(rec, ""))
}

func (s *Server) listDocs(w http.ResponseWriter, r *http.Request) {
	page, ok := intParam(w, r, "page")
	if !ok {
		return
	}
	size, ok := intParam(w, r, "pageSize")
	if !ok {
		return
	}
	q := r.URL.Query()
	res, err := s.docs.List(r.Context(), search.DocQuery{
		RepoID:   r.PathValue("repoId"),
		Q:        q.Get("q"),
		Kinds:    search.ParseKinds(q.Get("kinds")),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		s.fail(w, err, "Cannot list documentation")
		return
	}
	output.WriteEnvelope(w, http.StatusOK, output.OK(res, ""))
}

func (s *Server) getDoc(w http.ResponseWriter, r *http.Request) {
	n, err := s.docs.Get(r.Context(), r.PathValue("repoId"), r.PathValue("docId"))
	if err != nil {
		s.fail(w, err, "Cannot load documentation node")
		return
	}
	output.WriteEnvelope(w, http.StatusOK, output.OK(n, ""))
}

func (s *Server) generateDoc(w http.ResponseWriter, r *http.Request) {
	n, err := s.docs.Get(r.Context(), r.PathValue("repoId"), r.PathValue("docId"))
	if err != nil {
		s.fail(w, err, "Cannot load documentation node")
		return
	}
	v, err := s.gen.GenerateForNode(r.Context(), n.ID)
	if err != nil {
		s.fail(w, err, "Cannot generate schema")
		return
	}
	output.WriteEnvelope(w, http.StatusCreated, output.OK(v, "schema generated"))
}

func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	n, err := s.docs.Get(r.Context(), r.PathValue("repoId"), r.PathValue("docId"))
	if err != nil {
		s.fail(w, err, "Cannot load documentation node")
		return
	}
	versions, err := s.versions.ListSchemaVersions(r.Context(), n.ID)
	if err != nil {
		s.fail(w, err, "Cannot list schema versions")
		return
	}
	if versions == nil {
		versions = []*docgen.SchemaVersion{}
	}
	output.WriteEnvelope(w, http.StatusOK, output.OK(versions, ""))
}

// intParam parses an optional integer query parameter. Absent means 0.
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(w, name+" must be an integer")
		return 0, false
	}
	return n, true
}
