// Package scheduler runs periodic housekeeping: pruning terminal setups from
// memory and the journal, and logging the market session state.
package scheduler

import (
	"fmt"
	"log"
	"time"

	"trading-setups/internal/markethours"

	"github.com/robfig/cron/v3"
)

// Pruner drops terminal setups last updated before cutoff.
type Pruner interface {
	PruneTerminal(cutoff time.Time) int
}

// JournalPruner deletes journaled setups last updated before cutoff.
type JournalPruner interface {
	DeleteSetupsBefore(cutoff time.Time) (int64, error)
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron      *cron.Cron
	Engine    Pruner
	Journal   JournalPruner // nil when SQLite is disabled
	Session   *markethours.Session
	Retention time.Duration

	now func() time.Time

	// Optional hooks
	OnPrune       func(n int)
	OnMarketState func(open bool)
}

// New creates a Scheduler with second-resolution cron specs.
func New(engine Pruner, journal JournalPruner, session *markethours.Session, retention time.Duration) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Engine:    engine,
		Journal:   journal,
		Session:   session,
		Retention: retention,
		now:       time.Now,
	}
}

// RegisterAll registers the prune and status tasks. An empty spec skips that task.
func (s *Scheduler) RegisterAll(pruneCron, statusCron string) error {
	if pruneCron != "" {
		if _, err := s.Cron.AddFunc(pruneCron, s.pruneTask); err != nil {
			return fmt.Errorf("register prune task: %w", err)
		}
	}
	if statusCron != "" {
		if _, err := s.Cron.AddFunc(statusCron, s.statusTask); err != nil {
			return fmt.Errorf("register status task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler and publishes the current market state.
func (s *Scheduler) Start() {
	s.statusTask()
	s.Cron.Start()
	log.Println("[scheduler] started")
}

// Stop stops the cron scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[scheduler] stopped")
}

func (s *Scheduler) pruneTask() {
	cutoff := s.now().Add(-s.Retention)
	n := s.Engine.PruneTerminal(cutoff)
	if s.OnPrune != nil {
		s.OnPrune(n)
	}

	var archived int64
	if s.Journal != nil {
		var err error
		archived, err = s.Journal.DeleteSetupsBefore(cutoff)
		if err != nil {
			log.Printf("[scheduler] journal prune: %v", err)
		}
	}
	if n > 0 || archived > 0 {
		log.Printf("[scheduler] pruned %d in-memory, %d journaled setups older than %s", n, archived, cutoff.Format(time.RFC3339))
	}
}

func (s *Scheduler) statusTask() {
	if s.Session == nil {
		return
	}
	now := s.now()
	open := s.Session.IsMarketOpen(now)
	if s.OnMarketState != nil {
		s.OnMarketState(open)
	}
	log.Printf("[scheduler] market %s", s.Session.StatusString(now))
}
