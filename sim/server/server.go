// Package server exposes the pipeline over HTTP: the sample query protocol,
// metadata reads, truth tables, model descriptors, streamed runs, the run
// catalog and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qca-lab/qca-sim/sim"
	"github.com/qca-lab/qca-sim/sim/catalog"
	"github.com/qca-lab/qca-sim/sim/pipeline"
	"github.com/qca-lab/qca-sim/sim/query"
	"github.com/qca-lab/qca-sim/sim/store"
	"github.com/qca-lab/qca-sim/sim/truthtable"
)

// maxDesignBytes bounds request bodies for /run and /truth-table.
const maxDesignBytes = 64 << 20

// defaultRunsLimit is used by /runs when no limit is given.
const defaultRunsLimit = 50

// Server routes HTTP requests to the pipeline.
type Server struct {
	repo     *store.Repository
	catalog  catalog.Catalog
	executor *pipeline.Executor
	metrics  *Metrics

	mu         sync.Mutex
	addr       string
	httpServer *http.Server
}

// New wires a server. The executor's OnFinish hook is taken over for
// metrics.
func New(repo *store.Repository, cat catalog.Catalog, exec *pipeline.Executor) *Server {
	if cat == nil {
		cat = catalog.Nop{}
	}
	s := &Server{repo: repo, catalog: cat, executor: exec, metrics: NewMetrics()}
	if exec != nil {
		exec.OnFinish = s.metrics.ObserveRun
	}
	return s
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/load-sim", s.handleLoadSim)
	mux.HandleFunc("GET /simulation", s.handleSimulation)
	mux.HandleFunc("POST /truth-table", s.handleTruthTable)
	mux.HandleFunc("GET /models", s.handleModels)
	mux.HandleFunc("POST /run", s.handleRun)
	mux.HandleFunc("GET /runs", s.handleRuns)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return logRequests(mux)
}

// Addr returns the listening address, or "" before ListenAndServe binds.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. A clean shutdown returns nil.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	srv := s.httpServer
	s.mu.Unlock()
	logrus.Infof("[server] listening on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Warnf("[server] shutdown: %v", err)
		}
	}()

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleLoadSim(w http.ResponseWriter, r *http.Request) {
	if !query.Preflight(w, r) {
		return
	}
	resp := query.Serve(r.Context(), s.repo, r.URL.RawQuery)
	if resp.Err != nil {
		logrus.WithFields(logrus.Fields{"kind": sim.KindOf(resp.Err), "query": r.URL.RawQuery}).
			Warnf("[server] load-sim: %v", resp.Err)
	}
	s.metrics.ObserveQuery(resp.Status, len(resp.Body), resp.Err)
	query.Write(w, resp)
}

// simulationResponse is the metadata-only view of a store.
type simulationResponse struct {
	Design   *sim.Design             `json:"design"`
	Metadata *sim.SimulationMetadata `json:"metadata"`
}

func (s *Server) handleSimulation(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		s.fail(w, "simulation", fmt.Errorf("%w: filename", sim.ErrMissingParameter))
		return
	}
	design, meta, err := s.repo.LoadMetadata(r.Context(), filename)
	if err != nil {
		s.fail(w, "simulation", err)
		return
	}
	writeJSON(w, http.StatusOK, simulationResponse{Design: design, Metadata: meta})
}

func (s *Server) handleTruthTable(w http.ResponseWriter, r *http.Request) {
	var req truthtable.Request
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, "truth-table", err)
		return
	}
	table, err := truthtable.Resolve(r.Context(), s.repo, req)
	if err != nil {
		s.fail(w, "truth-table", err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	descriptors, err := sim.ModelDescriptors()
	if err != nil {
		s.metrics.ObserveError(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, descriptors)
}

// runLine is one NDJSON line of a /run stream. Progress lines carry State;
// the final line carries either Report or Error.
type runLine struct {
	*sim.ProgressEvent
	Report *pipeline.Report `json:"report,omitempty"`
	Error  string           `json:"error,omitempty"`
	Kind   string           `json:"kind,omitempty"`
}

// handleRun streams progress as NDJSON and returns once the store is
// persisted. Errors before the run starts are plain 400s.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.executor == nil {
		http.Error(w, "runs are disabled", http.StatusServiceUnavailable)
		return
	}
	var design sim.Design
	if err := decodeBody(w, r, &design); err != nil {
		s.fail(w, "run", err)
		return
	}
	if err := design.Validate(); err != nil {
		s.fail(w, "run", err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	emit := func(line runLine) {
		if err := enc.Encode(line); err != nil {
			logrus.Debugf("[server] run stream write: %v", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	report, err := s.executor.Execute(r.Context(), &design, func(ev sim.ProgressEvent) {
		if ev.State == sim.ProgressRunning {
			emit(runLine{ProgressEvent: &ev})
		}
	})
	if err != nil {
		emit(runLine{Error: err.Error(), Kind: sim.KindOf(err)})
		return
	}
	emit(runLine{Report: report})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.fail(w, "runs", fmt.Errorf("%w: limit %q must be a positive integer", sim.ErrInvalidRequest, raw))
			return
		}
		limit = n
	}
	records, err := s.catalog.List(r.Context(), limit)
	if err != nil {
		s.metrics.ObserveError(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []catalog.RunRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// fail answers 400 with the error text, matching the query protocol.
func (s *Server) fail(w http.ResponseWriter, route string, err error) {
	logrus.WithFields(logrus.Fields{"kind": sim.KindOf(err)}).Warnf("[server] %s: %v", route, err)
	s.metrics.ObserveError(err)
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDesignBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %v", sim.ErrInvalidRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Debugf("[server] response write: %v", err)
	}
}

// statusRecorder captures the status code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logrus.Debugf("[server] %s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}
