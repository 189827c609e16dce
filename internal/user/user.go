// Package user runs one virtual user: the task loop, its cadence tracking,
// and the per-request path that records samples and back-fills synthetics
// when coordinated omission mitigation is enabled.
package user

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BegleyBrothers/swanling/internal/backfill"
	"github.com/BegleyBrothers/swanling/internal/cadence"
	"github.com/BegleyBrothers/swanling/internal/client"
	"github.com/BegleyBrothers/swanling/internal/logger"
	"github.com/BegleyBrothers/swanling/internal/metrics"
	"github.com/BegleyBrothers/swanling/internal/telemetry"
)

// TaskFn is a user-supplied task body: given the session, it issues zero
// or more requests. Samples flow through the session's observer; the
// returned error is informational and never aborts the user.
type TaskFn func(ctx context.Context, s *client.Session) error

// Task is one named unit of a sequence.
type Task struct {
	Name string
	Run  TaskFn
}

// Sequence is the ordered task list a user loops over, with optional
// one-shot phases outside the measured loop.
type Sequence struct {
	OnStart []Task
	Tasks   []Task
	OnStop  []Task
}

// Options wires a virtual user into the shared attack state.
type Options struct {
	ID       int
	Sequence Sequence
	Policy   cadence.Policy

	Host    string
	Timeout time.Duration
	Started time.Time

	// WaitMin/WaitMax bound the random sleep between tasks; zero disables
	// it. Slept time is excluded from cadence.
	WaitMin time.Duration
	WaitMax time.Duration

	Aggregator *metrics.Aggregator
	RequestLog *logger.RequestLogger
	Log        *logrus.Logger
	Telemetry  *telemetry.Metrics
}

// User is one virtual user. All fields are owned by the user's goroutine;
// the aggregator and loggers are the only shared sinks.
type User struct {
	id      int
	seq     Sequence
	tracker *cadence.Tracker
	session *client.Session

	waitMin time.Duration
	waitMax time.Duration

	agg       *metrics.Aggregator
	reqLog    *logger.RequestLogger
	log       *logrus.Logger
	telemetry *telemetry.Metrics

	ctx          context.Context
	prevLoopSlow bool
	rng          *rand.Rand
}

func New(opts Options) *User {
	u := &User{
		id:        opts.ID,
		seq:       opts.Sequence,
		tracker:   cadence.NewTracker(opts.Policy),
		waitMin:   opts.WaitMin,
		waitMax:   opts.WaitMax,
		agg:       opts.Aggregator,
		reqLog:    opts.RequestLog,
		log:       opts.Log,
		telemetry: opts.Telemetry,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(opts.ID)<<32)),
	}
	u.session = client.NewSession(client.Options{
		Host:    opts.Host,
		User:    opts.ID,
		Started: opts.Started,
		Timeout: opts.Timeout,
	}, u.observe)
	return u
}

// ID returns the user's stable id.
func (u *User) ID() int {
	return u.id
}

// Session exposes the user's HTTP session to task bodies run outside the
// normal loop (tests, on-demand tasks).
func (u *User) Session() *client.Session {
	return u.session
}

// Run executes the user's lifecycle: on_start tasks once, the task loop
// until ctx is cancelled, then on_stop tasks. The stop signal is observed
// at every loop boundary and between tasks; an in-flight request is
// allowed to complete and its sample recorded.
func (u *User) Run(ctx context.Context) {
	u.ctx = ctx
	u.telemetry.UserStarted()
	defer u.telemetry.UserStopped()
	u.log.Infof("launching user %d...", u.id)

	// Tasks run on a context the stop signal does not cancel, so a request
	// already in flight finishes and records; ctx is checked between tasks.
	taskCtx := context.WithoutCancel(ctx)

	for _, t := range u.seq.OnStart {
		if ctx.Err() != nil {
			break
		}
		_ = t.Run(taskCtx, u.session)
	}

	for ctx.Err() == nil && len(u.seq.Tasks) > 0 {
		u.tracker.StartLoop()
		for _, t := range u.seq.Tasks {
			if ctx.Err() != nil {
				break
			}
			_ = t.Run(taskCtx, u.session)
			u.waitBetweenTasks(ctx)
		}
		if ctx.Err() != nil {
			// Partial loops do not feed the cadence statistics.
			break
		}
		duration := u.tracker.EndLoop()
		c, ok := u.tracker.Cadence()
		slow := cadence.SlowLoop(duration, c, ok)
		if slow {
			u.log.Warnf("user %d looped through its tasks abnormally slowly: %d ms (cadence %d ms)", u.id, duration, c)
		}
		u.prevLoopSlow = slow
	}

	// on_stop tasks run during drain, after the stop signal.
	stopCtx := context.Background()
	for _, t := range u.seq.OnStop {
		_ = t.Run(stopCtx, u.session)
	}
	u.log.Infof("exiting user %d...", u.id)
}

// LoopCount reports how many full loops the user completed.
func (u *User) LoopCount() int64 {
	return u.tracker.LoopCount()
}

// PrevLoopSlow reports whether the last completed loop took more than
// twice the cadence. The flag is only reported here; the per-request path
// does not read it and back-fills whenever a single request exceeds the
// cadence, whatever the previous loop did.
func (u *User) PrevLoopSlow() bool {
	return u.prevLoopSlow
}

// observe is the session observer: it stamps the sample with the current
// cadence, records it as raw-and-adjusted, and, when the request on its
// own exceeded the cadence, logs the slow-request line and back-fills
// synthetics into the adjusted histogram.
func (u *User) observe(s metrics.Sample) {
	c, ok := u.tracker.Cadence()
	if ok {
		s.UserCadence = c
	}

	u.agg.Record(s, metrics.RawAndAdjusted)
	u.reqLog.Log(s)
	u.telemetry.ObserveSample(s, false)

	if !cadence.SlowRequest(s.ResponseTime, c, ok) {
		return
	}
	u.log.Infof("%ds into swanling attack: \"%s %s\" [%d] took abnormally long (%d ms), task name: \"%s\"",
		s.Elapsed/1000, s.Method.HTTP(), s.URL, s.StatusCode, s.ResponseTime, s.Name)

	if u.ctx != nil && u.ctx.Err() != nil {
		// The stop signal already fired; partial stalls are not
		// reconstructed.
		return
	}
	for _, syn := range backfill.Generate(s, c) {
		u.agg.Record(syn, metrics.AdjustedOnly)
		u.reqLog.Log(syn)
		u.telemetry.ObserveSample(syn, true)
	}
}

func (u *User) waitBetweenTasks(ctx context.Context) {
	if u.waitMax <= 0 || ctx.Err() != nil {
		return
	}
	wait := u.waitMin
	if u.waitMax > u.waitMin {
		wait += time.Duration(u.rng.Int63n(int64(u.waitMax - u.waitMin)))
	}
	if wait <= 0 {
		return
	}
	slept := time.Now()
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
	u.tracker.RecordSleep(time.Since(slept))
}
