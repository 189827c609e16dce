// Package runner orchestrates an attack: it ramps up the virtual users,
// holds them until the run-time deadline or the stop signal, drains them,
// and hands the final snapshot to the reporter and the history store.
package runner

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/BegleyBrothers/swanling/internal/cadence"
	"github.com/BegleyBrothers/swanling/internal/logger"
	"github.com/BegleyBrothers/swanling/internal/metrics"
	"github.com/BegleyBrothers/swanling/internal/report"
	"github.com/BegleyBrothers/swanling/internal/storage"
	"github.com/BegleyBrothers/swanling/internal/telemetry"
	"github.com/BegleyBrothers/swanling/internal/user"
)

// Config is the runtime configuration of one attack.
type Config struct {
	Host      string
	Users     int
	HatchRate float64
	RunTime   time.Duration
	Timeout   time.Duration

	Mitigation cadence.Policy

	RequestLog  string
	SwanlingLog string
	Verbose     bool
	ReportFile  string

	WaitMin time.Duration
	WaitMax time.Duration

	TelemetryAddr string
	// HistoryPath is the bbolt run-history database; empty disables it.
	HistoryPath string

	// Out receives the tabular report; defaults to stdout.
	Out io.Writer
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Users < 1 {
		return errors.Errorf("users must be at least 1, got %d", c.Users)
	}
	if c.HatchRate <= 0 {
		c.HatchRate = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.WaitMax < c.WaitMin {
		return errors.Errorf("wait-time-max (%s) is below wait-time-min (%s)", c.WaitMax, c.WaitMin)
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	return nil
}

// Runner owns the shared state of one attack.
type Runner struct {
	cfg Config
	seq user.Sequence

	agg    *metrics.Aggregator
	log    *logrus.Logger
	reqLog *logger.RequestLogger
	tel    *telemetry.Metrics

	closeLog func() error
}

func New(cfg Config, seq user.Sequence) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(seq.Tasks) == 0 {
		return nil, errors.New("at least one task is required")
	}

	log, closeLog, err := logger.New(logger.Config{
		SwanlingLog: cfg.SwanlingLog,
		Verbose:     cfg.Verbose,
	})
	if err != nil {
		return nil, err
	}
	reqLog, err := logger.NewRequestLogger(cfg.RequestLog)
	if err != nil {
		closeLog()
		return nil, err
	}

	r := &Runner{
		cfg:      cfg,
		seq:      seq,
		agg:      metrics.NewAggregator(),
		log:      log,
		reqLog:   reqLog,
		closeLog: closeLog,
	}
	if cfg.TelemetryAddr != "" {
		r.tel = telemetry.New()
	}
	return r, nil
}

// Aggregator exposes the shared metrics sink.
func (r *Runner) Aggregator() *metrics.Aggregator {
	return r.agg
}

// Run executes the attack until the run-time deadline expires or ctx is
// cancelled, then drains the users and emits the reports. The returned
// snapshot is the final aggregated state.
func (r *Runner) Run(ctx context.Context) (*metrics.Snapshot, error) {
	started := time.Now()
	defer r.closeLog()

	runCtx := ctx
	var cancel context.CancelFunc
	if r.cfg.RunTime > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.RunTime)
		defer cancel()
	}

	if r.tel != nil {
		go func() {
			if err := r.tel.Serve(runCtx, r.cfg.TelemetryAddr); err != nil {
				r.log.Warnf("telemetry endpoint failed: %v", err)
			}
		}()
	}

	r.log.Infof("launching swanling attack against %s: %d users at %.2f users/sec",
		r.cfg.Host, r.cfg.Users, r.cfg.HatchRate)

	// Ramp-up: one user per hatch interval, all on the shared stop signal.
	hatchInterval := time.Duration(float64(time.Second) / r.cfg.HatchRate)
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Users; i++ {
		if i > 0 {
			select {
			case <-runCtx.Done():
			case <-time.After(hatchInterval):
			}
		}
		if runCtx.Err() != nil {
			break
		}
		u := user.New(user.Options{
			ID:         i,
			Sequence:   r.seq,
			Policy:     r.cfg.Mitigation,
			Host:       r.cfg.Host,
			Timeout:    r.cfg.Timeout,
			Started:    started,
			WaitMin:    r.cfg.WaitMin,
			WaitMax:    r.cfg.WaitMax,
			Aggregator: r.agg,
			RequestLog: r.reqLog,
			Log:        r.log,
			Telemetry:  r.tel,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.Run(runCtx)
		}()
	}

	<-runCtx.Done()
	// In-flight requests complete and record during the drain.
	wg.Wait()
	r.log.Infof("stopping swanling attack after %s", time.Since(started).Round(time.Second))

	if err := r.reqLog.Close(); err != nil {
		r.log.Warnf("request-log close failed: %v", err)
	}

	snap := r.agg.Snapshot()
	if err := report.Write(r.cfg.Out, snap); err != nil {
		return snap, err
	}
	if r.cfg.ReportFile != "" {
		if err := report.WriteHTML(r.cfg.ReportFile, snap); err != nil {
			return snap, err
		}
	}
	r.saveHistory(started, snap)
	return snap, nil
}

func (r *Runner) saveHistory(started time.Time, snap *metrics.Snapshot) {
	if r.cfg.HistoryPath == "" {
		return
	}
	store, err := storage.Open(r.cfg.HistoryPath)
	if err != nil {
		r.log.Warnf("run history unavailable: %v", err)
		return
	}
	defer store.Close()

	agg := snap.Aggregated
	rec := storage.RunRecord{
		ID:            uuid.New().String(),
		Started:       started,
		Host:          r.cfg.Host,
		Users:         r.cfg.Users,
		Mitigation:    r.cfg.Mitigation.String(),
		RawCount:      agg.Raw.Count,
		AdjustedCount: agg.Adjusted.Count,
		Failures:      r.agg.Failures(),
		RawAvgMs:      agg.Raw.Avg,
		AdjustedAvgMs: agg.Adjusted.Avg,
		RawP99Ms:      agg.Raw.Percentiles[3],
		AdjustedP99Ms: agg.Adjusted.Percentiles[3],
	}
	if err := store.Save(rec); err != nil {
		r.log.Warnf("failed to save run history: %v", err)
	}
}
