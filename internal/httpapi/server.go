// Package httpapi implements the database's read-only HTTP surface:
// a query endpoint, zone/summary introspection, a Prometheus scrape
// target, and a process health check. Grounded on the teacher's
// internal/app (gorilla/mux router, metricsMiddleware wrapping every
// handler, health/stats endpoint shapes) trimmed to the handlers a
// read-only query database actually needs.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"tracedb/internal/listener"
	"tracedb/internal/metrics"
	"tracedb/internal/otelspan"
	"tracedb/internal/query"
)

// Server wires a Listener's outbound accessors to a read-only HTTP API.
type Server struct {
	listener  *listener.Listener
	tracer    *otelspan.Manager
	logger    *logrus.Logger
	startTime time.Time
}

func New(l *listener.Listener, tracer *otelspan.Manager, logger *logrus.Logger) *Server {
	return &Server{listener: l, tracer: tracer, logger: logger, startTime: time.Now()}
}

// Router builds the mux.Router serving every endpoint. Each route
// except /metrics is wrapped individually by a response-time-recording
// middleware; /metrics serves metrics.Handler() unwrapped.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	wrap := s.metricsMiddleware

	r.Handle("/query", wrap(http.HandlerFunc(s.handleQuery))).Methods(http.MethodGet)
	r.Handle("/zones", wrap(http.HandlerFunc(s.handleZones))).Methods(http.MethodGet)
	r.Handle("/summary", wrap(http.HandlerFunc(s.handleSummary))).Methods(http.MethodGet)
	r.Handle("/healthz", wrap(http.HandlerFunc(s.handleHealthz))).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(logrus.Fields{
			"path":     r.URL.Path,
			"method":   r.Method,
			"duration": time.Since(start),
		}).Debug("http request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleQuery evaluates ?q=<expression> against the listener and
// renders the resulting node sequence as JSON.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("q")
	if expr == "" {
		writeError(w, http.StatusBadRequest, errMissingQuery)
		return
	}

	result, err := query.RunTraced(r.Context(), s.tracer, s.listener, expr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Expression: result.Expression,
		Kind:       kindLabel(result.Kind),
		Compiled:   result.Compiled,
		DurationMS: float64(result.Duration.Microseconds()) / 1000,
		Cancelled:  result.Cancelled,
		Results:    renderNodes(result.Results),
	})
}

// handleZones lists every zone currently held by the listener.
func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	zones := s.listener.ZoneIndices()
	out := make([]zoneSummary, 0, len(zones))
	for _, zi := range zones {
		id := zi.Identity()
		out = append(out, zoneSummary{
			Name:        id.Name,
			Type:        id.Type,
			Location:    id.Location,
			OpenScopes:  zi.OpenScopeCount(),
			Fingerprint: id.Fingerprint(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSummary reports the listener's overview statistics.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	first, hasFirst := s.listener.FirstEventTime()
	last, hasLast := s.listener.LastEventTime()
	timebase, hasTimebase := s.listener.Timebase()

	writeJSON(w, http.StatusOK, summaryResponse{
		TotalEvents: s.listener.TotalEventCount(),
		ZoneCount:   len(s.listener.ZoneIndices()),
		FlowCount:   s.listener.Flows().Count(),
		FirstEvent:  optionalInt64(first, hasFirst),
		LastEvent:   optionalInt64(last, hasLast),
		Timebase:    optionalInt64(timebase, hasTimebase),
	})
}

// handleHealthz reports process-level health, folding in system CPU
// and memory figures via gopsutil the way the teacher's healthHandler
// folds in dispatcher/monitor component status.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthzResponse{
		Status: "healthy",
		Uptime: time.Since(s.startTime).String(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryUsedPercent = vm.UsedPercent
	} else {
		s.logger.WithError(err).Debug("healthz: read virtual memory stats")
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		resp.CPUPercent = percents[0]
	} else if err != nil {
		s.logger.WithError(err).Debug("healthz: read cpu stats")
	}

	writeJSON(w, http.StatusOK, resp)
}

func optionalInt64(v int64, ok bool) *int64 {
	if !ok {
		return nil
	}
	return &v
}
