// Package metrics exposes the engine's telemetry as prometheus
// collectors: cache traffic, feasibility-engine work, task throughput
// and round progress.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/bohm/binstretch/pkg/cache"
	"github.com/bohm/binstretch/pkg/dynprog"
	"github.com/bohm/binstretch/pkg/minimax"
)

// Engine holds every collector of one search process.
type Engine struct {
	CacheLookupHits    *prometheus.CounterVec
	CacheLookupMisses  *prometheus.CounterVec
	CacheInserts       *prometheus.CounterVec
	CacheRandomEvicts  *prometheus.CounterVec
	DynprogCalls       prometheus.Counter
	BestFitCalls       prometheus.Counter
	MaxFeasibleCalls   prometheus.Counter
	TasksCompleted     *prometheus.CounterVec
	VerticesVisited    *prometheus.CounterVec
	RoundNumber        prometheus.Gauge
	MonotonicityLevel  prometheus.Gauge
	TasksOutstanding   prometheus.Gauge
	registry           *prometheus.Registry
	lastCacheSnapshots map[string]cache.Snapshot
}

// NewEngine creates and registers the collectors on a fresh registry.
func NewEngine() *Engine {
	e := &Engine{
		CacheLookupHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "binstretch_cache_lookup_hits_total",
			Help: "Cache lookups answered from a slot",
		}, []string{"cache"}),
		CacheLookupMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "binstretch_cache_lookup_misses_total",
			Help: "Cache lookups missing (empty slot or full probe window)",
		}, []string{"cache", "reason"}),
		CacheInserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "binstretch_cache_inserts_total",
			Help: "Cache inserts by kind (empty slot or duplicate key)",
		}, []string{"cache", "kind"}),
		CacheRandomEvicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "binstretch_cache_random_evictions_total",
			Help: "Inserts that overwrote a random slot in a full probe window",
		}, []string{"cache"}),
		DynprogCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "binstretch_dynprog_calls_total",
			Help: "Full dynamic-program evaluations",
		}),
		BestFitCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "binstretch_bestfit_calls_total",
			Help: "Best-fit-decreasing witness computations",
		}),
		MaxFeasibleCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "binstretch_maximum_feasible_calls_total",
			Help: "Invocations of the maximum-feasible engine",
		}),
		TasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "binstretch_tasks_completed_total",
			Help: "Tasks finished by outcome",
		}, []string{"outcome"}),
		VerticesVisited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "binstretch_vertices_visited_total",
			Help: "Minimax vertices visited by player",
		}, []string{"player"}),
		RoundNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "binstretch_round",
			Help: "Current scheduler round",
		}),
		MonotonicityLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "binstretch_monotonicity",
			Help: "Current monotonicity restriction",
		}),
		TasksOutstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "binstretch_tasks_outstanding",
			Help: "Tasks not yet decided this round",
		}),
		registry:           prometheus.NewRegistry(),
		lastCacheSnapshots: make(map[string]cache.Snapshot),
	}
	e.registry.MustRegister(
		e.CacheLookupHits, e.CacheLookupMisses, e.CacheInserts, e.CacheRandomEvicts,
		e.DynprogCalls, e.BestFitCalls, e.MaxFeasibleCalls,
		e.TasksCompleted, e.VerticesVisited,
		e.RoundNumber, e.MonotonicityLevel, e.TasksOutstanding,
	)
	return e
}

// ObserveCache folds the delta since the last snapshot of a named
// cache into the counters.
func (e *Engine) ObserveCache(name string, m *cache.Measurements) {
	cur := m.Snapshot()
	last := e.lastCacheSnapshots[name]
	e.CacheLookupHits.WithLabelValues(name).Add(float64(cur.LookupHit - last.LookupHit))
	e.CacheLookupMisses.WithLabelValues(name, "empty").Add(float64(cur.LookupMissEmpty - last.LookupMissEmpty))
	e.CacheLookupMisses.WithLabelValues(name, "full").Add(float64(cur.LookupMissFull - last.LookupMissFull))
	e.CacheInserts.WithLabelValues(name, "empty").Add(float64(cur.InsertEmpty - last.InsertEmpty))
	e.CacheInserts.WithLabelValues(name, "duplicate").Add(float64(cur.InsertDuplicate - last.InsertDuplicate))
	e.CacheRandomEvicts.WithLabelValues(name).Add(float64(cur.InsertRandom - last.InsertRandom))
	e.lastCacheSnapshots[name] = cur
}

// ObserveEngine folds one computation's feasibility-engine counters.
// Each computation starts from zero, so the values are already deltas.
func (e *Engine) ObserveEngine(m dynprog.EngineMeasurements) {
	e.DynprogCalls.Add(float64(m.DynprogCalls))
	e.BestFitCalls.Add(float64(m.BestFitCalls))
	e.MaxFeasibleCalls.Add(float64(m.MaximumFeasibleCalls))
}

// ObserveMinimax folds one computation's recursion counters.
func (e *Engine) ObserveMinimax(m minimax.Measurements) {
	e.VerticesVisited.WithLabelValues("adv").Add(float64(m.AdvVerticesVisited))
	e.VerticesVisited.WithLabelValues("alg").Add(float64(m.AlgVerticesVisited))
}

// TaskCompleted counts one finished task.
func (e *Engine) TaskCompleted(outcome string) {
	e.TasksCompleted.WithLabelValues(outcome).Inc()
}

// Server serves the registry over HTTP.
type Server struct {
	server *http.Server
}

// NewServer builds the /metrics endpoint for the engine's registry.
func NewServer(listen string, e *Engine) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	return &Server{server: &http.Server{
		Addr:         listen,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}}
}

// Start serves in the background.
func (s *Server) Start() {
	log.Info().Str("address", s.server.Addr).Msg("Starting metrics server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down metrics server")
	return s.server.Shutdown(ctx)
}
