package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the setup engine.
type Metrics struct {
	BarsTotal   *prometheus.CounterVec // labels: kind=bar|trade|quote
	TFBarsTotal *prometheus.CounterVec // labels: tf
	StaleBars   prometheus.Counter
	InputDrops  prometheus.Counter
	BarLatency  prometheus.Histogram

	SetupsTotal  *prometheus.CounterVec // labels: type, direction
	EventsTotal  *prometheus.CounterVec // labels: event
	ActiveSetups prometheus.Gauge

	// Backpressure
	EmitterDropsTotal    *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name
	EngineQueueDepth     prometheus.Gauge
	SymbolWorkers        prometheus.Gauge

	// Sinks
	FeedReconnects   prometheus.Counter
	RedisPublishDur  prometheus.Histogram
	SQLiteCommitDur  prometheus.Histogram
	SinkErrorsTotal  *prometheus.CounterVec // labels: sink
	AlertsTotal      *prometheus.CounterVec // labels: notifier, result
	PrunedSetups     prometheus.Counter
	WSClients        prometheus.Gauge
	MarketState      prometheus.Gauge // 0=closed, 1=open
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	fast := []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05}

	m := &Metrics{
		BarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "setups_inputs_total",
			Help: "Market data inputs processed (by kind)",
		}, []string{"kind"}),
		TFBarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "setups_tf_bars_total",
			Help: "Bars appended per timeframe",
		}, []string{"tf"}),
		StaleBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "setups_stale_bars_rejected_total",
			Help: "1m bars rejected as stale",
		}),
		InputDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "setups_input_drops_total",
			Help: "Inputs dropped because the engine was closed",
		}),
		BarLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "setups_bar_processing_seconds",
			Help:    "Time to aggregate, snapshot and detect on one 1m bar",
			Buckets: fast,
		}),

		SetupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "setups_detected_total",
			Help: "Setups created (by type and direction)",
		}, []string{"type", "direction"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "setups_events_total",
			Help: "Lifecycle events handed to the emitter",
		}, []string{"event"}),
		ActiveSetups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "setups_active",
			Help: "Setups that are neither CLOSED nor DISMISSED",
		}),

		EmitterDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "setups_emitter_drops_total",
			Help: "Events dropped by the emitter per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "setups_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),
		EngineQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "setups_engine_queue_depth",
			Help: "Commands waiting across symbol workers",
		}),
		SymbolWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "setups_symbol_workers",
			Help: "Running per-symbol workers",
		}),

		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "setups_feed_reconnects_total",
			Help: "Market data websocket reconnection attempts",
		}),
		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "setups_redis_publish_duration_seconds",
			Help:    "Redis pipeline latency per event",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "setups_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		SinkErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "setups_sink_errors_total",
			Help: "Write failures per sink",
		}, []string{"sink"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "setups_alerts_total",
			Help: "Alert deliveries by notifier and result",
		}, []string{"notifier", "result"}),
		PrunedSetups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "setups_pruned_total",
			Help: "Terminal setups removed by the retention job",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "setups_ws_clients",
			Help: "Connected websocket clients",
		}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "setups_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
	}

	reg.MustRegister(
		m.BarsTotal,
		m.TFBarsTotal,
		m.StaleBars,
		m.InputDrops,
		m.BarLatency,
		m.SetupsTotal,
		m.EventsTotal,
		m.ActiveSetups,
		m.EmitterDropsTotal,
		m.ChannelSaturationPct,
		m.EngineQueueDepth,
		m.SymbolWorkers,
		m.FeedReconnects,
		m.RedisPublishDur,
		m.SQLiteCommitDur,
		m.SinkErrorsTotal,
		m.AlertsTotal,
		m.PrunedSetups,
		m.WSClients,
		m.MarketState,
	)

	return m
}

// Saturation records len/cap of a channel as a percentage.
func (m *Metrics) Saturation(name string, length, capacity int) {
	if capacity <= 0 {
		return
	}
	m.ChannelSaturationPct.WithLabelValues(name).Set(float64(length) / float64(capacity) * 100)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server. gatherer may be nil to use
// the default registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	if gatherer == nil {
		mux.Handle("/metrics", promhttp.Handler())
	} else {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
