package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slok/wdeploy/internal/app/runlist"
	"github.com/slok/wdeploy/internal/app/runstatus"
	"github.com/slok/wdeploy/internal/log"
	"github.com/slok/wdeploy/internal/model"
	"github.com/slok/wdeploy/internal/printer"
)

// Coordinator is the deploy coordinator the server acts on.
type Coordinator interface {
	StartDeployAll(ctx context.Context, filter model.WorkerFilter) (<-chan error, error)
	StartRetryFailed(ctx context.Context) (<-chan error, error)
	Stop()
	State() model.DeployRun
}

// RunLister lists the run history.
type RunLister interface {
	Run(ctx context.Context, req runlist.Request) ([]model.DeployRun, error)
}

// RunGetter gets a run from the history.
type RunGetter interface {
	Run(ctx context.Context, req runstatus.Request) (*model.DeployRun, error)
}

// ServerConfig is the configuration for the API server.
type ServerConfig struct {
	ListenAddr  string
	Coordinator Coordinator
	// RunLister and RunGetter are optional, without them the history
	// endpoints are not available.
	RunLister RunLister
	RunGetter RunGetter
	// Token enables bearer token auth when set.
	Token  string
	Logger log.Logger
}

func (c *ServerConfig) defaults() error {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.Coordinator == nil {
		return fmt.Errorf("coordinator is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "api.Server"})
	return nil
}

// Server exposes the deploy coordinator state and actions over HTTP.
type Server struct {
	server      *http.Server
	handler     http.Handler
	coordinator Coordinator
	runLister   RunLister
	runGetter   RunGetter
	token       string
	logger      log.Logger
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		coordinator: cfg.Coordinator,
		runLister:   cfg.RunLister,
		runGetter:   cfg.RunGetter,
		token:       cfg.Token,
		logger:      cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("POST /deploy", s.handleDeploy)
	mux.HandleFunc("POST /retry", s.handleRetry)
	mux.HandleFunc("POST /stop", s.handleStop)
	if s.runLister != nil {
		mux.HandleFunc("GET /runs", s.handleListRuns)
	}
	if s.runGetter != nil {
		mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	}
	s.handler = s.auth(mux)

	s.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Run starts the server and blocks until ctx is cancelled. On shutdown the
// active run is stopped.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("API listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("API server error: %w", err)
	case <-ctx.Done():
		s.logger.Infof("Shutting down API")
		s.coordinator.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("API shutdown error: %w", err)
		}
		return nil
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) auth(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}

	expected := []byte("Bearer " + s.token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("missing or invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, printer.NewRunOutput(s.coordinator.State()))
}

type deployRequest struct {
	Status       string `json:"status"`
	Organization string `json:"organization"`
	Region       string `json:"region"`
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}

	filter := model.WorkerFilter{
		Status:       model.WorkerStatus(req.Status),
		Organization: req.Organization,
		Region:       req.Region,
	}

	// Runs outlive the request.
	done, err := s.coordinator.StartDeployAll(context.WithoutCancel(r.Context()), filter)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.watch("deploy", done)

	writeJSON(w, http.StatusAccepted, messageResponse{Message: "deploy started"})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	done, err := s.coordinator.StartRetryFailed(context.WithoutCancel(r.Context()))
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.watch("retry", done)

	writeJSON(w, http.StatusAccepted, messageResponse{Message: "retry started"})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.coordinator.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	req := runlist.Request{}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		req.Limit = limit
	}
	if v := q.Get("failed"); v != "" {
		onlyFailed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid failed %q", v))
			return
		}
		req.OnlyFailed = onlyFailed
	}

	runs, err := s.runLister.Run(r.Context(), req)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = printer.NewJSONPrinter(w).PrintRunList(runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runGetter.Run(r.Context(), runstatus.Request{ID: strings.TrimSpace(r.PathValue("id"))})
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, printer.NewRunOutput(*run))
}

func (s *Server) watch(op string, done <-chan error) {
	go func() {
		if err := <-done; err != nil {
			s.logger.Errorf("Background %s failed: %s", op, err)
		}
	}()
}

func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotValid):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrRunInProgress):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Errorf("Request failed: %s", err)
	}
	writeError(w, status, err)
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
