// Package api exposes a [mixer.Mixer] over a JSON HTTP API.
//
// Routes, all relative to the mux the [Server] is registered on:
//
//	POST   /v1/call                 dispatch a prompt
//	GET    /v1/stats                statistics snapshot
//	GET    /v1/stats/stream         statistics pushed over a WebSocket
//	POST   /v1/stats/reset          clear statistics
//	GET    /v1/config               export the mixer configuration
//	PUT    /v1/config               import a mixer configuration
//	POST   /v1/providers             add a provider
//	PATCH  /v1/providers/{id}        update a provider
//	DELETE /v1/providers/{id}        remove a provider
//	PUT    /v1/strategy             replace the strategy
//	PUT    /v1/enabled              flip the global switch
//	POST   /v1/health/sweep         run one health sweep now
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/modelmixer/internal/observe"
	"github.com/MrWong99/modelmixer/pkg/mixer"
)

// maxBodyBytes caps request bodies, including imported configs.
const maxBodyBytes = 1 << 20

// ProviderHeader carries the id of the provider that answered a call.
const ProviderHeader = "X-Mixer-Provider"

// Server serves the HTTP API for one mixer.
type Server struct {
	mixer        *mixer.Mixer
	logger       *slog.Logger
	pushInterval time.Duration
	newID        func() string
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStatsInterval sets the push period of the stats stream. Default 5s.
func WithStatsInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pushInterval = d
		}
	}
}

// WithIDGenerator replaces the generator of ids for new providers.
// Default: random UUIDs.
func WithIDGenerator(gen func() string) Option {
	return func(s *Server) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New returns a Server for m.
func New(m *mixer.Mixer, opts ...Option) *Server {
	s := &Server{
		mixer:        m,
		logger:       slog.Default(),
		pushInterval: 5 * time.Second,
		newID:        uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register mounts all routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/call", s.handleCall)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/stats/stream", s.handleStatsStream)
	mux.HandleFunc("POST /v1/stats/reset", s.handleResetStats)
	mux.HandleFunc("GET /v1/config", s.handleExport)
	mux.HandleFunc("PUT /v1/config", s.handleImport)
	mux.HandleFunc("POST /v1/providers", s.handleAddProvider)
	mux.HandleFunc("PATCH /v1/providers/{id}", s.handlePatchProvider)
	mux.HandleFunc("DELETE /v1/providers/{id}", s.handleRemoveProvider)
	mux.HandleFunc("PUT /v1/strategy", s.handleStrategy)
	mux.HandleFunc("PUT /v1/enabled", s.handleEnabled)
	mux.HandleFunc("POST /v1/health/sweep", s.handleSweep)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// errBadRequest marks client input that could not be decoded or is invalid.
var errBadRequest = errors.New("bad request")

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var pe *mixer.ProviderError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, mixer.ErrImport):
		return http.StatusBadRequest
	case errors.Is(err, mixer.ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, mixer.ErrDuplicateProvider):
		return http.StatusConflict
	case errors.Is(err, mixer.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, mixer.ErrAllFailed), errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(ctx, s.logger).Warn("api request failed", "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v. Unknown fields are rejected.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
