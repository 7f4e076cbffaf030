// cmd/setupengine runs the live setup detection pipeline:
//
//	[feed WS] → [engine workers] → [event bus] → [Redis | SQLite | alerts | WS gateway]
//
// Configuration comes from configs/setups.yaml (CONFIG_PATH), .env and the
// environment.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"trading-setups/config"
	"trading-setups/internal/breaker"
	"trading-setups/internal/bus"
	"trading-setups/internal/engine"
	"trading-setups/internal/gateway"
	"trading-setups/internal/logger"
	"trading-setups/internal/marketdata/agg"
	"trading-setups/internal/marketdata/tfbuilder"
	"trading-setups/internal/marketdata/wssim"
	"trading-setups/internal/metrics"
	"trading-setups/internal/model"
	"trading-setups/internal/notification"
	"trading-setups/internal/scheduler"
	redisstore "trading-setups/internal/store/redis"
	sqlitestore "trading-setups/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		log.Fatalf("[setupengine] config: %v", err)
	}

	_, logCloser := logger.InitFile(cfg.Service, logger.ParseLevel(cfg.LogLevel), cfg.Log)
	defer logCloser.Close()
	log.Println("[setupengine] starting...")

	session, err := cfg.SessionCalendar()
	if err != nil {
		log.Fatalf("[setupengine] session: %v", err)
	}

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sinkCtx, sinkCancel := context.WithCancel(context.Background())
	defer sinkCancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Event bus ----
	emitter := bus.New(cfg.Bus.QueueSize, cfg.Bus.SubscriberBuffer)
	emitter.OnDrop = func(sub string) {
		prom.EmitterDropsTotal.WithLabelValues(sub).Inc()
	}

	var sinks sync.WaitGroup
	runSink := func(name string, fn func()) {
		sinks.Add(1)
		go func() {
			defer sinks.Done()
			fn()
			log.Printf("[setupengine] %s sink stopped", name)
		}()
	}

	// ---- SQLite journal + bar archive ----
	var (
		sqlWriter *sqlitestore.Writer
		sqlReader *sqlitestore.Reader
		archiveCh chan model.Bar
	)
	if cfg.SQLite.Path != "" {
		sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{
			DBPath:        cfg.SQLite.Path,
			BatchSize:     cfg.SQLite.BatchSize,
			FlushInterval: cfg.SQLite.FlushInterval,
		})
		if err != nil {
			log.Fatalf("[setupengine] sqlite init failed: %v", err)
		}
		defer sqlWriter.Close()
		sqlWriter.OnCommit = func(rows int, took time.Duration) {
			prom.SQLiteCommitDur.Observe(took.Seconds())
		}
		sqlWriter.OnError = func(error) {
			prom.SinkErrorsTotal.WithLabelValues("sqlite").Inc()
		}
		health.EnableSQLite()
		health.CheckSQLite(ctx, sqlWriter.DB())

		sqlReader, err = sqlitestore.NewReader(cfg.SQLite.Path)
		if err != nil {
			log.Fatalf("[setupengine] sqlite reader failed: %v", err)
		}
		defer sqlReader.Close()

		journalCh := emitter.Subscribe("sqlite")
		runSink("sqlite", func() { sqlWriter.Run(sinkCtx, journalCh) })

		if cfg.SQLite.ArchiveBars {
			archiveCh = make(chan model.Bar, cfg.Bus.SubscriberBuffer)
			runSink("bar-archive", func() { sqlWriter.RunBars(sinkCtx, archiveCh) })
		}
		log.Printf("[setupengine] sqlite journal ready at %s (archive bars=%v)", cfg.SQLite.Path, cfg.SQLite.ArchiveBars)
	}

	// ---- Redis publisher ----
	var redisPub *redisstore.Publisher
	if cfg.Redis.Addr != "" {
		redisPub, err = redisstore.New(redisstore.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			LatestTTL:    cfg.Redis.LatestTTL,
			StreamMaxLen: cfg.Redis.StreamMaxLen,
		})
		if err != nil {
			log.Printf("[setupengine] WARNING: redis init failed: %v (continuing without redis)", err)
		}
		if redisPub != nil {
			defer redisPub.Close()
			redisPub.OnPublish = func(took time.Duration) {
				prom.RedisPublishDur.Observe(took.Seconds())
			}
			redisPub.OnError = func() {
				prom.SinkErrorsTotal.WithLabelValues("redis").Inc()
			}
			redisPub.Breaker().OnStateChange = func(from, to breaker.State) {
				log.Printf("[setupengine] redis breaker %s → %s", from, to)
			}
			health.EnableRedis()
			health.CheckRedis(ctx, redisPub.Client())

			redisCh := emitter.Subscribe("redis")
			runSink("redis", func() { redisPub.Run(sinkCtx, redisCh) })
		}
	}

	var (
		redisClient = redisClientOf(redisPub)
		sqlDB       = sqlDBOf(sqlWriter)
	)
	health.StartLivenessChecker(ctx, redisClient, sqlDB, 10*time.Second)

	// ---- Alerts ----
	notifiers := buildNotifiers(cfg.Alerts, prom)
	if len(notifiers) > 0 {
		dispatcher := notification.NewDispatcher(cfg.Alerts.MinScore, notifiers...)
		alertCh := emitter.Subscribe("alerts")
		runSink("alerts", func() { dispatcher.Run(sinkCtx, alertCh) })
		log.Printf("[setupengine] %d alert channel(s) enabled, min score %d", len(notifiers), cfg.Alerts.MinScore)
	}

	// ---- WebSocket hub ----
	hub := gateway.NewHub(cfg.Gateway.ReplaySize)
	hub.OnClients = func(n int) { prom.WSClients.Set(float64(n)) }
	wsCh := emitter.Subscribe("ws")
	runSink("ws", func() { hub.Run(sinkCtx, wsCh) })

	// ---- Engine (HOT PATH) ----
	eng := engine.New(engineConfig(cfg), session, emitter, nil, engine.Hooks{
		OnBar: func(symbol string, took time.Duration) {
			prom.BarLatency.Observe(took.Seconds())
		},
		OnTFBar: func(tf model.Timeframe) {
			prom.TFBarsTotal.WithLabelValues(tf.String()).Inc()
		},
		OnStaleBar: func() { prom.StaleBars.Inc() },
		OnSetup: func(s model.Setup) {
			prom.SetupsTotal.WithLabelValues(string(s.Type), string(s.Direction)).Inc()
		},
		OnEvent: func(t model.EventType) {
			prom.EventsTotal.WithLabelValues(string(t)).Inc()
		},
		OnInputDrop: func() { prom.InputDrops.Inc() },
		OnWorkerUp: func(symbol string) {
			prom.SymbolWorkers.Inc()
			log.Printf("[setupengine] tracking %s", symbol)
		},
	})

	var emitterDone sync.WaitGroup
	emitterDone.Add(1)
	go func() {
		defer emitterDone.Done()
		emitter.Run(sinkCtx)
	}()

	go sampleGauges(ctx, prom, health, emitter, eng)

	// ---- Feed ----
	feedCtx, feedCancel := context.WithCancel(ctx)
	defer feedCancel()
	var feedWG sync.WaitGroup

	pipe := &pipeline{eng: eng, archive: archiveCh, health: health, prom: prom}
	if cfg.Feed.BuildBars {
		tradeCh := make(chan model.Trade, cfg.Bus.QueueSize)
		barCh := make(chan model.Bar, cfg.Bus.SubscriberBuffer)
		pipe.trades = tradeCh

		aggregator := agg.New()
		aggregator.OnDroppedTrade = func() { prom.InputDrops.Inc() }
		feedWG.Add(2)
		go func() {
			defer feedWG.Done()
			defer close(barCh)
			aggregator.Run(feedCtx, tradeCh, barCh)
		}()
		go func() {
			defer feedWG.Done()
			for b := range barCh {
				pipe.onBar(b)
			}
		}()
		log.Println("[setupengine] building 1m bars from trades")
	}

	if cfg.Feed.URL != "" {
		ingest, err := wssim.New(wssim.Config{
			URL:               cfg.Feed.URL,
			Symbols:           cfg.Feed.Symbols,
			MaxReconnectDelay: cfg.Feed.MaxReconnect,
		}, pipe)
		if err != nil {
			log.Fatalf("[setupengine] feed init failed: %v", err)
		}
		ingest.OnConnect = health.SetFeedConnected
		ingest.OnReconnect = func() { prom.FeedReconnects.Inc() }

		feedWG.Add(1)
		go func() {
			defer feedWG.Done()
			if err := ingest.Start(feedCtx); err != nil {
				log.Printf("[setupengine] feed error: %v", err)
			}
		}()
		log.Printf("[setupengine] feed source: %s symbols=%v", cfg.Feed.URL, cfg.Feed.Symbols)
	} else {
		log.Println("[setupengine] WARNING: no FEED_URL configured, engine idle")
	}

	// ---- Gateway ----
	var history model.SetupReader
	if sqlReader != nil {
		history = sqlReader
	}
	api := gateway.NewServer(eng, history, hub, gateway.Options{
		TOTPSecret:     cfg.Gateway.TOTPSecret,
		AllowedOrigins: cfg.Gateway.AllowedOrigins,
	})
	apiSrv := &http.Server{
		Addr:              cfg.Gateway.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("[setupengine] gateway listening on %s", cfg.Gateway.Addr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[setupengine] gateway error: %v", err)
		}
	}()

	var metricsSrv *metrics.Server
	if cfg.Metrics.Addr != "" {
		metricsSrv = metrics.NewServer(cfg.Metrics.Addr, health, reg)
		metricsSrv.Start()
	}

	// ---- Scheduler ----
	var journal scheduler.JournalPruner
	if sqlWriter != nil {
		journal = sqlWriter
	}
	sched := scheduler.New(eng, journal, session, cfg.Schedule.Retention)
	sched.OnPrune = func(n int) { prom.PrunedSetups.Add(float64(n)) }
	sched.OnMarketState = func(open bool) {
		if open {
			prom.MarketState.Set(1)
		} else {
			prom.MarketState.Set(0)
		}
	}
	if err := sched.RegisterAll(cfg.Schedule.PruneCron, cfg.Schedule.StatusCron); err != nil {
		log.Fatalf("[setupengine] scheduler: %v", err)
	}
	sched.Start()

	log.Println("[setupengine] ╔══════════════════════════════════════════════════════════╗")
	log.Println("[setupengine] ║  Setup Detection Engine                                  ║")
	log.Println("[setupengine] ║  [Feed] → [Engine] → [Bus] → [Redis/SQLite/Alerts/WS]    ║")
	log.Printf("[setupengine] ║  Gateway: %-46s ║", cfg.Gateway.Addr)
	log.Printf("[setupengine] ║  Metrics: %-46s ║", cfg.Metrics.Addr)
	log.Println("[setupengine] ╚══════════════════════════════════════════════════════════╝")

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[setupengine] shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop inputs first, then drain the engine and the bus into the sinks.
	feedCancel()
	feedWG.Wait()
	sched.Stop()
	apiSrv.Shutdown(shutdownCtx)

	eng.Close()
	emitter.Close()
	if archiveCh != nil {
		close(archiveCh)
	}

	drained := make(chan struct{})
	go func() {
		emitterDone.Wait()
		sinks.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Println("[setupengine] WARNING: sinks did not drain in time")
	}
	sinkCancel()
	cancel()

	if metricsSrv != nil {
		metricsSrv.Stop(shutdownCtx)
	}
	log.Println("[setupengine] shutdown complete.")
}

func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		Caps: tfbuilder.Caps{
			Bars1m:  cfg.Engine.Cap1m,
			Bars5m:  cfg.Engine.Cap5m,
			Bars60m: cfg.Engine.Cap60m,
		},
		SnapshotMin1m:      cfg.Engine.SnapshotMin1m,
		SnapshotMin5m:      cfg.Engine.SnapshotMin5m,
		SnapshotMin60m:     cfg.Engine.SnapshotMin60m,
		QueueSize:          cfg.Engine.QueueSize,
		SuppressDuplicates: cfg.Engine.SuppressDuplicates,
		StaleTolerance:     cfg.Engine.StaleTolerance,
		Strategy:           cfg.Strategy,
	}
}

func buildNotifiers(a config.AlertsConfig, prom *metrics.Metrics) []notification.Notifier {
	var out []notification.Notifier
	guard := func(name string, n notification.Notifier) {
		g := notification.NewGuarded(name, n, breaker.New(a.BreakerThreshold, a.BreakerCooldown))
		g.OnResult = func(name, result string) {
			prom.AlertsTotal.WithLabelValues(name, result).Inc()
		}
		out = append(out, g)
	}
	if a.DiscordWebhook != "" {
		guard("discord", notification.NewDiscordNotifier(a.DiscordWebhook))
	}
	if a.TelegramToken != "" {
		guard("telegram", notification.NewTelegramNotifier(a.TelegramToken, a.TelegramChatID))
	}
	if a.WebhookURL != "" {
		guard("webhook", notification.NewWebhookNotifier(a.WebhookURL))
	}
	return out
}

// sampleGauges refreshes saturation and size gauges every 5 seconds.
func sampleGauges(ctx context.Context, prom *metrics.Metrics, health *metrics.HealthStatus, emitter *bus.Emitter, eng *engine.Engine) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range emitter.ChannelStats() {
				prom.Saturation(s.Name, s.Len, s.Cap)
			}
			prom.EngineQueueDepth.Set(float64(eng.QueueDepth()))
			prom.ActiveSetups.Set(float64(len(eng.GetActiveSetups())))
			health.SetSymbols(len(eng.Symbols()))
		}
	}
}
