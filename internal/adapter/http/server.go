package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/fim"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var hucRe = regexp.MustCompile(`^\d{8}$`)

// BenchmarkService is the FIM service surface exposed over HTTP.
type BenchmarkService interface {
	Query(ctx context.Context, q domain.Query) (fim.QueryResult, error)
	Process(ctx context.Context, req fim.ProcessRequest) (fim.ProcessResult, error)
	Availability(ctx context.Context, huc string) (string, error)
}

// Server exposes health, readiness, metrics and the benchmark API.
type Server struct {
	httpServer *http.Server
	svc        BenchmarkService
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api/v1 benchmark routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, svc BenchmarkService, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// Processing may download rasters and run the mapping program.
			WriteTimeout: 30 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		svc:    svc,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/benchmarks", s.handleQuery)
	mux.HandleFunc("POST /api/v1/benchmarks/process", s.handleProcess)
	mux.HandleFunc("GET /api/v1/availability/{huc}", s.handleAvailability)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	q := domain.Query{
		HUC:      v.Get("huc"),
		Date:     v.Get("date"),
		FileName: v.Get("file_name"),
		Start:    v.Get("start"),
		End:      v.Get("end"),
	}
	if !hucRe.MatchString(q.HUC) {
		writeError(w, http.StatusBadRequest, "huc must be an 8-digit hydrologic unit code")
		return
	}

	res, err := s.svc.Query(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

// processBody is the JSON body of a process request. The artifact flags
// default to true.
type processBody struct {
	HUC             string `json:"huc"`
	Date            string `json:"date"`
	FileName        string `json:"file_name"`
	EnsureArtifact  *bool  `json:"ensure_owp"`
	GenerateMissing *bool  `json:"generate_owp_if_missing"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var body processBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !hucRe.MatchString(body.HUC) {
		writeError(w, http.StatusBadRequest, "huc must be an 8-digit hydrologic unit code")
		return
	}

	res, err := s.svc.Process(r.Context(), fim.ProcessRequest{
		HUC:             body.HUC,
		Date:            body.Date,
		FileName:        body.FileName,
		EnsureArtifact:  boolOr(body.EnsureArtifact, true),
		GenerateMissing: boolOr(body.GenerateMissing, true),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Status == fim.StatusNotFound {
		status = http.StatusNotFound
	}
	sharedobs.WriteJSON(w, status, res)
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	huc := r.PathValue("huc")
	if !hucRe.MatchString(huc) {
		writeError(w, http.StatusBadRequest, "huc must be an 8-digit hydrologic unit code")
		return
	}
	summary, err := s.svc.Availability(r.Context(), huc)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]string{"huc": huc, "summary": summary})
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrBadDate) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("benchmark request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusBadGateway, "benchmark catalog unavailable")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
