package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
	"github.com/couchcryptid/road-rainfall-speed/internal/inference"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 16

// Predictor answers road speed queries. *inference.Engine implements it.
type Predictor interface {
	ValidateRoad(ctx context.Context, road string) (bool, error)
	NaturesForRoad(ctx context.Context, road string) ([]string, error)
	AvailableRoads(ctx context.Context) ([]string, error)
	SpeedWithoutRainfall(ctx context.Context, q inference.Query, unit inference.Unit) (float64, error)
	SpeedWithRainfall(ctx context.Context, q inference.Query, depth float64, unit inference.Unit) (float64, error)
	PercentageSlowdown(ctx context.Context, q inference.Query, depth float64) (float64, error)
}

// Server exposes the prediction API alongside health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	predictor  Predictor
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, and /metrics routes.
// The /v1 prediction routes are mounted only when predictor is non-nil.
func NewServer(addr string, predictor Predictor, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		predictor: predictor,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	if predictor != nil {
		mux.HandleFunc("GET /v1/roads", s.handleRoads)
		mux.HandleFunc("GET /v1/roads/{road}", s.handleRoad)
		mux.HandleFunc("POST /v1/speed", s.handleSpeed)
		mux.HandleFunc("POST /v1/slowdown", s.handleSlowdown)
	}

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

type roadResponse struct {
	Road    string   `json:"road"`
	Natures []string `json:"natures"`
}

func (s *Server) handleRoads(w http.ResponseWriter, r *http.Request) {
	roads, err := s.predictor.AvailableRoads(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if roads == nil {
		roads = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"roads": roads})
}

func (s *Server) handleRoad(w http.ResponseWriter, r *http.Request) {
	road := domain.NormalizeRoad(r.PathValue("road"))
	ok, err := s.predictor.ValidateRoad(r.Context(), road)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("road %q has no model", road)})
		return
	}
	natures, err := s.predictor.NaturesForRoad(r.Context(), road)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roadResponse{Road: road, Natures: natures})
}

// predictionRequest carries hour and day untyped so that integers, weekday
// names and wrongly typed values reach the domain validators unchanged.
type predictionRequest struct {
	Road   string   `json:"road"`
	Nature string   `json:"nature"`
	Hour   any      `json:"hour"`
	Day    any      `json:"day"`
	Depth  *float64 `json:"depth"`
	Unit   string   `json:"unit"`
}

func (p predictionRequest) query() inference.Query {
	return inference.Query{
		Road:   p.Road,
		Nature: p.Nature,
		Hour:   domain.HourFrom(p.Hour),
		Day:    domain.DayFrom(p.Day),
	}
}

type speedResponse struct {
	Road                 string   `json:"road"`
	Nature               string   `json:"nature"`
	Unit                 string   `json:"unit"`
	SpeedWithoutRainfall float64  `json:"speed_without_rainfall"`
	Depth                *float64 `json:"depth,omitempty"`
	SpeedWithRainfall    *float64 `json:"speed_with_rainfall,omitempty"`
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	unit, err := inference.ParseUnit(req.Unit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q := req.query()
	dry, err := s.predictor.SpeedWithoutRainfall(r.Context(), q, unit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := speedResponse{
		Road:                 domain.NormalizeRoad(req.Road),
		Nature:               req.Nature,
		Unit:                 unit.String(),
		SpeedWithoutRainfall: dry,
	}
	if req.Depth != nil {
		wet, err := s.predictor.SpeedWithRainfall(r.Context(), q, *req.Depth, unit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Depth = req.Depth
		resp.SpeedWithRainfall = &wet
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSlowdown(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Depth == nil {
		s.writeError(w, r, domain.NewValidationError("depth", nil, "is required"))
		return
	}
	pct, err := s.predictor.PercentageSlowdown(r.Context(), req.query(), *req.Depth)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"road":                domain.NormalizeRoad(req.Road),
		"depth":               *req.Depth,
		"percentage_slowdown": pct,
	})
}

var errBadBody = errors.New("malformed request body")

func decodeRequest(w http.ResponseWriter, r *http.Request) (predictionRequest, error) {
	var req predictionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("%w: %w", errBadBody, err)
	}
	return req, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errBadBody), errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrType):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
