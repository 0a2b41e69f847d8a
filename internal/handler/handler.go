// Package handler implements the HTTP request contract: POST/PUT
// content creation and mutation, GET retrieval, admin bulk delete, and
// health/metrics endpoints, plus the CORS and OPTIONS preflight
// behaviour shared by every route.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lucko/bytebin/internal/apierror"
	"github.com/lucko/bytebin/internal/cache"
	"github.com/lucko/bytebin/internal/coordinator"
	"github.com/lucko/bytebin/internal/executor"
	"github.com/lucko/bytebin/internal/expiry"
	"github.com/lucko/bytebin/internal/logsink"
	"github.com/lucko/bytebin/internal/metrics"
	"github.com/lucko/bytebin/internal/ratelimit"
	"github.com/lucko/bytebin/internal/token"
)

// Server holds every dependency the route handlers need. It has no
// knowledge of how it was wired together; cmd/bytebin owns that.
type Server struct {
	Log *slog.Logger

	Tokens *token.Generator

	PostLimiter   *ratelimit.Limiter
	UpdateLimiter *ratelimit.Limiter
	ReadLimiter   *ratelimit.Limiter
	NotFoundLimiter *ratelimit.Backoff

	RateLimitAPIKeys map[string]bool
	AdminAPIKeys     map[string]bool

	Expiry *expiry.Policy

	Cache   cache.Loader
	Coord   *coordinator.Coordinator
	Metrics *metrics.Metrics
	Sink    logsink.Sink
	Pool    *executor.Pool

	MaxContentLength int64
	HostAliases      []string

	// RequestTimeout bounds how long a handler may stay suspended
	// waiting on the worker pool before the connection is cut with a
	// 408, the Go analogue of the framework's per-request timeout. Zero
	// disables the bound.
	RequestTimeout time.Duration

	MetricsEnabled bool
	MetricsHandler http.Handler
}

// NewServer wires promhttp.Handler() in for MetricsHandler, matching
// the expositor used by the rest of the corpus's Prometheus-backed
// services.
func NewServer() *Server {
	return &Server{MetricsHandler: promhttp.Handler()}
}

type routeFunc func(s *Server, w http.ResponseWriter, r *http.Request, id string) (*response, *apierror.Error)

// ServeHTTP is the hand-rolled router: it classifies the request by
// method and path shape, applies CORS headers and the OPTIONS
// preflight to every route, dispatches to the matching handler, times
// it, and writes the result (or mapped error) to the wire.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	path := strings.TrimPrefix(r.URL.Path, "/")

	var method string
	var fn routeFunc
	var id string

	switch {
	case path == "post":
		method = "POST/PUT /post"
		switch r.Method {
		case http.MethodPost:
			fn = handlePost
		case http.MethodPut:
			fn = handlePostAsPut
		case http.MethodOptions:
			s.preflight(w, "POST, PUT, OPTIONS", "Content-Type, Content-Encoding, User-Agent, Allow-Modification, Bytebin-Api-Key, Bytebin-Forwarded-For")
			return
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

	case path == "admin/bulkdelete":
		method = "POST /admin/bulkdelete"
		switch r.Method {
		case http.MethodPost:
			fn = handleBulkDelete
		case http.MethodOptions:
			s.preflight(w, "POST, OPTIONS", "Content-Type, Bytebin-Api-Key")
			return
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

	case path == "health":
		method = "GET /health"
		switch r.Method {
		case http.MethodGet:
			fn = handleHealth
		case http.MethodOptions:
			s.preflight(w, "GET, OPTIONS", "")
			return
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

	case path == "metrics":
		s.serveMetrics(w, r)
		return

	case path != "" && !strings.Contains(path, "/"):
		id = path
		method = "GET/PUT /{id}"
		switch r.Method {
		case http.MethodGet:
			fn = handleGet
		case http.MethodPut:
			fn = handleUpdate
		case http.MethodOptions:
			s.preflight(w, "GET, PUT, OPTIONS", "Content-Type, Content-Encoding, Authorization")
			return
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

	default:
		apierror.InvalidPath()
		writeError(w, s.Log, apierror.InvalidPath())
		return
	}

	if s.RequestTimeout > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), s.RequestTimeout)
		defer cancel()
		r = r.WithContext(ctx)
	}

	start := time.Now()
	s.Metrics.IncActive()
	defer s.Metrics.DecActive()
	resp, apiErr := fn(s, w, r, id)
	s.Metrics.RecordRequest(method, time.Since(start))

	if apiErr != nil {
		s.Metrics.RecordRejected(method, apiErr.Message)
		writeError(w, s.Log, apiErr)
		return
	}
	writeResponse(w, resp)
}

func (s *Server) preflight(w http.ResponseWriter, methods, headers string) {
	w.Header().Set("Access-Control-Allow-Methods", methods)
	if headers != "" {
		w.Header().Set("Access-Control-Allow-Headers", headers)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) serveMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.MetricsEnabled {
		writeError(w, s.Log, apierror.InvalidPath())
		return
	}
	if r.Header.Get("X-Forwarded-For") != "" {
		writeError(w, s.Log, apierror.Unauthorized("Metrics are not available behind a proxy"))
		return
	}
	if r.Method == http.MethodOptions {
		s.preflight(w, "GET, OPTIONS", "")
		return
	}
	s.MetricsHandler.ServeHTTP(w, r)
}
