package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/elonfeng/fingest/internal/store"
	"github.com/elonfeng/fingest/pkg/ingest"
	"github.com/elonfeng/fingest/pkg/record"
	"github.com/elonfeng/fingest/pkg/source"
)

// MaxIngestBody caps the JSONL body accepted by the ingest endpoint.
const MaxIngestBody = 32 << 20

// Ingester runs raw records of one source through the pipeline.
type Ingester interface {
	Run(ctx context.Context, src record.SourceID, raws []record.Raw) (*ingest.Report, error)
}

// Server provides the HTTP API.
type Server struct {
	store    store.Store
	ingester Ingester
	port     int
	logger   *slog.Logger
}

// New creates a new HTTP server.
func New(s store.Store, ing Ingester, port int, logger *slog.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    s,
		ingester: ing,
		port:     port,
		logger:   logger,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/sources", s.handleSources)
	mux.HandleFunc("GET /api/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleRun)
	mux.HandleFunc("POST /api/v1/ingest/{source}", s.handleIngest)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sources, err := s.store.ListSources(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	counts, err := s.store.CountBySource(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	type sourceInfo struct {
		record.Source
		Table string `json:"table"`
		Rows  int    `json:"rows"`
	}

	infos := make([]sourceInfo, 0, len(sources))
	for _, src := range sources {
		info := sourceInfo{Source: src, Rows: counts[src.ID]}
		if t, ok := src.ID.Table(); ok {
			info.Table = t.Name
		}
		infos = append(infos, info)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  infos,
		"count": len(infos),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.RunListOpts{Limit: 50}

	if name := q.Get("source"); name != "" {
		src, ok := record.Lookup(name)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown source %q", name))
			return
		}
		opts.SourceID = src.ID
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("since: %w", err))
			return
		}
		opts.Since = t.UTC()
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer"))
			return
		}
		opts.Limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, fmt.Errorf("run %s not found", r.PathValue("id")))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// The stored report is returned as is.
	writeJSON(w, http.StatusOK, json.RawMessage(run.Report))
}

// handleIngest accepts a JSONL body of raw records for one source and
// returns the run report. A run that aborts answers 422 with the report.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	src, ok := record.Lookup(r.PathValue("source"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown source %q", r.PathValue("source")))
		return
	}

	raws, err := source.ReadJSONL(http.MaxBytesReader(w, r.Body, MaxIngestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	report, err := s.ingester.Run(r.Context(), src.ID, raws)
	if err != nil {
		s.logger.Warn("ingest request failed", "source", src.Name, "run_id", report.RunID, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
