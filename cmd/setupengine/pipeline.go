package main

import (
	"database/sql"

	goredis "github.com/go-redis/redis/v8"

	"trading-setups/internal/engine"
	"trading-setups/internal/metrics"
	"trading-setups/internal/model"
	redisstore "trading-setups/internal/store/redis"
	sqlitestore "trading-setups/internal/store/sqlite"
)

// pipeline sits between the feed and the engine. It tees bars into the
// archive and, when bars are built locally, trades into the aggregator.
type pipeline struct {
	eng     *engine.Engine
	archive chan<- model.Bar   // nil when archiving is off
	trades  chan<- model.Trade // nil unless bars are built from trades
	health  *metrics.HealthStatus
	prom    *metrics.Metrics
}

func (p *pipeline) ProcessBar(bar model.Bar) {
	if p.trades != nil {
		// Locally built bars replace the feed's.
		return
	}
	p.onBar(bar)
}

func (p *pipeline) onBar(bar model.Bar) {
	p.prom.BarsTotal.WithLabelValues("bar").Inc()
	p.eng.ProcessBar(bar)
	p.health.SetLastBarTime(bar.Timestamp)
	if p.archive != nil {
		select {
		case p.archive <- bar:
		default:
			p.prom.SinkErrorsTotal.WithLabelValues("bar-archive").Inc()
		}
	}
}

func (p *pipeline) ProcessTrade(trade model.Trade) {
	p.prom.BarsTotal.WithLabelValues("trade").Inc()
	p.eng.ProcessTrade(trade)
	if p.trades != nil {
		select {
		case p.trades <- trade:
		default:
			p.prom.InputDrops.Inc()
		}
	}
}

func (p *pipeline) ProcessQuote(quote model.Quote) {
	p.prom.BarsTotal.WithLabelValues("quote").Inc()
	p.eng.ProcessQuote(quote)
}

func redisClientOf(p *redisstore.Publisher) *goredis.Client {
	if p == nil {
		return nil
	}
	return p.Client()
}

func sqlDBOf(w *sqlitestore.Writer) *sql.DB {
	if w == nil {
		return nil
	}
	return w.DB()
}
