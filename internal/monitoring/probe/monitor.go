// Package probe runs the fetch, verify, record and publish cycle for
// each monitored package artifact.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/pkgwatch/internal/core/domain"
	"github.com/vietddude/pkgwatch/internal/core/sla"
	"github.com/vietddude/pkgwatch/internal/integrity"
)

// Fetcher downloads an artifact in a single attempt.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Sink exports outcomes. It must not mutate recorder state.
type Sink interface {
	Publish(o domain.Outcome, snap sla.Snapshot)
}

// TransitionPublisher is told when a target's availability flips.
type TransitionPublisher interface {
	PublishTransition(ctx context.Context, t domain.Transition) error
}

// Options configures a Monitor.
type Options struct {
	WindowSize int
	Threshold  float64
	Publisher  TransitionPublisher // optional
	Logger     *slog.Logger        // defaults to slog.Default()
}

// TargetStatus is the read-only view of one target served by the health API.
type TargetStatus struct {
	Target      domain.Target
	Snapshot    sla.Snapshot
	LastReason  domain.Reason
	LastError   string
	LastChecked time.Time
}

type targetState struct {
	target   domain.Target
	recorder *sla.Recorder

	// cycleMu serializes whole cycles of this target.
	cycleMu sync.Mutex

	mu          sync.RWMutex
	lastReason  domain.Reason
	lastError   string
	lastChecked time.Time
}

// Monitor owns one isolated state bundle per target.
type Monitor struct {
	fetcher   Fetcher
	sink      Sink
	publisher TransitionPublisher
	log       *slog.Logger
	now       func() time.Time

	targets map[string]*targetState
	order   []string
}

// NewMonitor registers targets and creates their recorders.
func NewMonitor(targets []domain.Target, fetcher Fetcher, sink Sink, opts Options) (*Monitor, error) {
	if fetcher == nil {
		return nil, errors.New("probe: fetcher is required")
	}
	if sink == nil {
		return nil, errors.New("probe: sink is required")
	}
	if opts.WindowSize < 1 {
		return nil, fmt.Errorf("probe: window size must be >= 1, got %d", opts.WindowSize)
	}
	if opts.Threshold < 0 || opts.Threshold >= 1 {
		return nil, fmt.Errorf("probe: sla threshold must be in [0,1), got %v", opts.Threshold)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	m := &Monitor{
		fetcher:   fetcher,
		sink:      sink,
		publisher: opts.Publisher,
		log:       log,
		now:       time.Now,
		targets:   make(map[string]*targetState, len(targets)),
		order:     make([]string, 0, len(targets)),
	}

	for _, t := range targets {
		if _, dup := m.targets[t.Name]; dup {
			return nil, fmt.Errorf("probe: duplicate target %q", t.Name)
		}
		m.targets[t.Name] = &targetState{
			target:   t,
			recorder: sla.NewRecorder(opts.WindowSize, opts.Threshold),
		}
		m.order = append(m.order, t.Name)
	}

	return m, nil
}

// Targets returns the registered targets in registration order.
func (m *Monitor) Targets() []domain.Target {
	out := make([]domain.Target, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.targets[name].target)
	}
	return out
}

// RunCycle performs one fetch, verify, record, recompute and publish pass
// for the named target and returns the outcome.
//
// Download failures and digest mismatches are recorded and never returned
// as errors. The only error is ctx being cancelled before the fetch
// completes, in which case nothing is recorded. RunCycle panics if name
// was not registered.
func (m *Monitor) RunCycle(ctx context.Context, name string) (domain.Outcome, error) {
	st, ok := m.targets[name]
	if !ok {
		panic(fmt.Sprintf("probe: unknown target %q", name))
	}

	st.cycleMu.Lock()
	defer st.cycleMu.Unlock()

	outcome := domain.Outcome{
		Target:  name,
		CycleID: uuid.NewString(),
		At:      m.now(),
	}

	start := time.Now()
	content, err := m.fetcher.Fetch(ctx, st.target.URL)
	outcome.Latency = time.Since(start)

	switch {
	case err != nil && ctx.Err() != nil:
		m.log.Debug("Cycle aborted", "target", name, "cycle_id", outcome.CycleID, "error", ctx.Err())
		return outcome, ctx.Err()
	case err != nil:
		outcome.Reason = domain.ReasonFetchError
		outcome.Err = err
	case !integrity.Verify(content, st.target.ExpectedDigest):
		outcome.Reason = domain.ReasonDigestMismatch
		outcome.Err = fmt.Errorf("%w: got %s want %s", domain.ErrDigestMismatch, integrity.Sum(content), st.target.ExpectedDigest)
	default:
		outcome.Success = true
		outcome.Reason = domain.ReasonOK
	}

	prev := st.recorder.Snapshot()

	// Status readers hold st.mu, so they see the window, latency and last
	// result of the same cycle.
	st.mu.Lock()
	snap := st.recorder.Observe(outcome.Success, outcome.Latency)
	st.lastReason = outcome.Reason
	st.lastChecked = outcome.At
	st.lastError = ""
	if outcome.Err != nil {
		st.lastError = outcome.Err.Error()
	}
	st.mu.Unlock()

	m.sink.Publish(outcome, snap)

	if prev.HasRatio && prev.Up != snap.Up && m.publisher != nil {
		t := domain.Transition{
			Target: name,
			From:   prev.Up,
			To:     snap.Up,
			Reason: outcome.Reason,
			Ratio:  snap.Ratio,
			At:     outcome.At,
		}
		if err := m.publisher.PublishTransition(ctx, t); err != nil {
			m.log.Warn("Failed to publish transition", "target", name, "error", err)
		}
	}

	m.logOutcome(st.target, outcome, snap)
	return outcome, nil
}

// RunAll runs one cycle for every target concurrently and returns the
// outcomes in registration order.
func (m *Monitor) RunAll(ctx context.Context) ([]domain.Outcome, error) {
	outcomes := make([]domain.Outcome, len(m.order))
	errs := make([]error, len(m.order))

	var wg sync.WaitGroup
	for i, name := range m.order {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			outcomes[i], errs[i] = m.RunCycle(ctx, name)
		}(i, name)
	}
	wg.Wait()

	return outcomes, errors.Join(errs...)
}

// Status returns the current state of every target in registration order.
func (m *Monitor) Status() []TargetStatus {
	out := make([]TargetStatus, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.statusOf(m.targets[name]))
	}
	return out
}

// StatusOf returns the state of one target.
func (m *Monitor) StatusOf(name string) (TargetStatus, bool) {
	st, ok := m.targets[name]
	if !ok {
		return TargetStatus{}, false
	}
	return m.statusOf(st), true
}

func (m *Monitor) statusOf(st *targetState) TargetStatus {
	st.mu.RLock()
	defer st.mu.RUnlock()

	return TargetStatus{
		Target:      st.target,
		Snapshot:    st.recorder.Snapshot(),
		LastReason:  st.lastReason,
		LastError:   st.lastError,
		LastChecked: st.lastChecked,
	}
}

func (m *Monitor) logOutcome(t domain.Target, o domain.Outcome, snap sla.Snapshot) {
	attrs := []any{
		"target", t.Name,
		"cycle_id", o.CycleID,
		"success", o.Success,
		"reason", o.Reason,
		"latency", o.Latency,
		"ratio", snap.Ratio,
		"up", snap.Up,
	}

	switch o.Reason {
	case domain.ReasonOK:
		m.log.Info("Downloaded and verified", append(attrs, "url", t.URL)...)
	case domain.ReasonDigestMismatch:
		m.log.Error("Downloaded, but digest incorrect", append(attrs, "url", t.URL, "error", o.Err)...)
	default:
		m.log.Error("Download failed", append(attrs, "error", o.Err)...)
	}
}
