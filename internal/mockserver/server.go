package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzip"

	"github.com/kelsos/bosonnlp-go/internal/logger"
	"github.com/kelsos/bosonnlp-go/internal/models"
)

type jobKey struct {
	kind models.TaskKind
	id   string
}

type job struct {
	docs     []models.Document
	pushes   int
	analysed bool
	params   map[string]string
	polls    int
	failed   bool
}

// JobInfo is a snapshot of a job held by the server.
type JobInfo struct {
	Documents int
	Pushes    int
	Analysed  bool
	Polls     int
	Params    map[string]string
}

// Server is an in-memory stand-in for the BosonNLP cluster and comments
// endpoints. Jobs become "done" after a fixed number of status polls.
type Server struct {
	cfg    Config
	router chi.Router

	mu   sync.Mutex
	jobs map[jobKey]*job
}

// New creates a mock server. Zero-valued config fields take their defaults.
func New(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.PollsUntilDone < 0 {
		cfg.PollsUntilDone = 0
	}
	if cfg.MaxPushSize <= 0 {
		cfg.MaxPushSize = def.MaxPushSize
	}

	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		jobs:   make(map[jobKey]*job),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.Recoverer)
	r.Use(s.tokenMiddleware)

	r.Route("/{kind}", func(r chi.Router) {
		r.Use(kindMiddleware)
		r.Post("/push/{id}", s.handlePush)
		r.Get("/analysis/{id}", s.handleAnalysis)
		r.Get("/status/{id}", s.handleStatus)
		r.Get("/result/{id}", s.handleResult)
		r.Get("/clear/{id}", s.handleClear)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger.Debug("mock server: %s %s", r.Method, r.URL.RequestURI())
	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:        s.cfg.ListenAddr,
		Handler:     s,
		ReadTimeout: 15 * time.Second,
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := s.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Mock server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("Mock server stopped")
	return nil
}

// Job returns a snapshot of a stored job.
func (s *Server) Job(kind models.TaskKind, id string) (JobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobKey{kind, id}]
	if !ok {
		return JobInfo{}, false
	}
	params := make(map[string]string, len(j.params))
	for k, v := range j.params {
		params[k] = v
	}
	return JobInfo{
		Documents: len(j.docs),
		Pushes:    j.pushes,
		Analysed:  j.analysed,
		Polls:     j.polls,
		Params:    params,
	}, true
}

// FailJob makes the job report "error" from the next poll on.
func (s *Server) FailJob(kind models.TaskKind, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobKey{kind, id}]
	if ok {
		j.failed = true
	}
	return ok
}

// Evict drops a job as if the service had expired it.
func (s *Server) Evict(kind models.TaskKind, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := jobKey{kind, id}
	_, ok := s.jobs[key]
	delete(s.jobs, key)
	return ok
}

// Len returns the number of jobs held.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// --- middleware ---

func (s *Server) tokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token != "" && r.Header.Get("X-Token") != s.cfg.Token {
			writeError(w, http.StatusUnauthorized, "invalid api token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type kindCtxKey struct{}

func kindMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind, err := models.ParseTaskKind(chi.URLParam(r, "kind"))
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), kindCtxKey{}, kind)))
	})
}

func keyFrom(r *http.Request) jobKey {
	kind, _ := r.Context().Value(kindCtxKey{}).(models.TaskKind)
	return jobKey{kind: kind, id: chi.URLParam(r, "id")}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.APIError{Message: msg})
}

func requestBody(r *http.Request) (io.ReadCloser, error) {
	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		return gzip.NewReader(r.Body)
	}
	return r.Body, nil
}

// --- HTTP handlers ---

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	body, err := requestBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid gzip body")
		return
	}
	defer body.Close()

	var docs []models.Document
	if err := json.NewDecoder(body).Decode(&docs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(docs) == 0 {
		writeError(w, http.StatusBadRequest, "no documents in push")
		return
	}
	if len(docs) > s.cfg.MaxPushSize {
		writeError(w, http.StatusBadRequest, "too many documents in one push")
		return
	}

	key := keyFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[key]
	if !ok {
		j = &job{}
		s.jobs[key] = j
	}
	if j.analysed {
		writeError(w, http.StatusBadRequest, "task already under analysis")
		return
	}
	j.docs = append(j.docs, docs...)
	j.pushes++

	writeJSON(w, http.StatusOK, map[string]int{"count": len(j.docs)})
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[key]
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	params := make(map[string]string)
	for _, name := range []string{"alpha", "beta"} {
		if v := r.URL.Query().Get(name); v != "" {
			params[name] = v
		}
	}
	j.analysed = true
	j.params = params
	j.polls = 0

	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "received"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[key]
	if !ok || !j.analysed {
		writeJSON(w, http.StatusOK, models.StatusResponse{Status: "not found"})
		return
	}

	status := "running"
	switch {
	case j.failed:
		status = "error"
	case j.polls >= s.cfg.PollsUntilDone:
		status = "done"
	case j.polls == 0:
		status = "received"
	}
	j.polls++

	writeJSON(w, http.StatusOK, models.StatusResponse{Status: status})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[key]
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if !j.analysed || j.failed || j.polls <= s.cfg.PollsUntilDone {
		writeError(w, http.StatusBadRequest, "task not finished")
		return
	}

	switch key.kind {
	case models.KindComments:
		writeJSON(w, http.StatusOK, commentGroups(j.docs))
	default:
		writeJSON(w, http.StatusOK, clusters(j.docs))
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[key]; !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	delete(s.jobs, key)

	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
