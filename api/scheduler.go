/*
scheduler.go - Periodic consistency audit

PURPOSE:
  Periodically audits every party's stored history (status versus derived
  remainder, explicit balance references versus chronology, over-clearance)
  and logs what it finds. Findings are also counted in the reconcile
  metrics, so alerts can key off ledger_audit_findings_total.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Never modifies records; it only reports

CONFIGURATION:
  - Interval: How often to audit (config audit.interval, default 1 hour)
  - Enabled:  Whether the scheduler is active (config audit.enabled)

USAGE:
  scheduler := NewAuditScheduler(rec, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - reconcile/audit.go: the checks
  - handlers.go: AuditAll endpoint (manual run)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/ledger-engine/reconcile"
)

// AuditScheduler runs reconcile.AuditAll on a ticker.
type AuditScheduler struct {
	Reconciler *reconcile.Reconciler
	Interval   time.Duration
	Enabled    bool

	log    *logrus.Entry
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastRun      time.Time
	lastFindings int
}

// NewAuditScheduler creates an enabled scheduler with a one hour interval.
func NewAuditScheduler(rec *reconcile.Reconciler, log *logrus.Entry) *AuditScheduler {
	return &AuditScheduler{
		Reconciler: rec,
		Interval:   time.Hour,
		Enabled:    true,
		log:        log.WithField("module", "scheduler"),
	}
}

// Start begins the scheduler.
func (s *AuditScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("audit scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.log.WithField("interval", s.Interval.String()).Info("audit scheduler started")
}

// Stop stops the scheduler and waits for an in-flight audit to finish.
func (s *AuditScheduler) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("audit scheduler stopped")
}

func (s *AuditScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow audits every party and returns the reports.
func (s *AuditScheduler) RunNow(ctx context.Context) []reconcile.Report {
	start := time.Now()
	reports, err := s.Reconciler.AuditAll(ctx)
	if err != nil {
		s.log.WithError(err).Error("audit run incomplete")
	}

	findings, dirty := 0, 0
	for _, rep := range reports {
		if !rep.Clean() {
			dirty++
			findings += len(rep.Findings)
		}
	}

	s.mu.Lock()
	s.lastRun = start
	s.lastFindings = findings
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"parties":  len(reports),
		"dirty":    dirty,
		"findings": findings,
		"duration": time.Since(start).String(),
	}).Info("audit run completed")
	return reports
}

// LastRun reports when the last audit started and how many findings it had.
func (s *AuditScheduler) LastRun() (time.Time, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastFindings
}

// NextRunTime returns when the next scheduled audit will occur.
func (s *AuditScheduler) NextRunTime() time.Time {
	last, _ := s.LastRun()
	if last.IsZero() {
		return time.Now()
	}
	return last.Add(s.Interval)
}
