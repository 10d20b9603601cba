package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/pkgwatch/internal/core/domain"
	"github.com/vietddude/pkgwatch/internal/core/sla"
	"github.com/vietddude/pkgwatch/internal/infra/httpfetch"
	"github.com/vietddude/pkgwatch/internal/integrity"
)

// =============================================================================
// Fakes
// =============================================================================

var artifact = []byte("requests-2.31.0.tar.gz contents")

type scriptedFetcher struct {
	mu    sync.Mutex
	steps []fetchStep
	calls int
}

type fetchStep struct {
	body []byte
	err  error
}

func (f *scriptedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	step := f.steps[f.calls%len(f.steps)]
	f.calls++
	return step.body, step.err
}

func (f *scriptedFetcher) then(steps ...fetchStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = steps
	f.calls = 0
}

type published struct {
	outcome domain.Outcome
	snap    sla.Snapshot
}

type fakeSink struct {
	mu  sync.Mutex
	got []published
}

func (s *fakeSink) Publish(o domain.Outcome, snap sla.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, published{o, snap})
}

func (s *fakeSink) last() published {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.got[len(s.got)-1]
}

type fakePublisher struct {
	mu  sync.Mutex
	got []domain.Transition
}

func (p *fakePublisher) PublishTransition(_ context.Context, t domain.Transition) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, t)
	return nil
}

func okStep() fetchStep { return fetchStep{body: artifact} }

func failStep() fetchStep {
	return fetchStep{err: &httpfetch.FetchError{URL: "https://x", StatusCode: 503}}
}

func newTarget(t *testing.T, name string) domain.Target {
	t.Helper()
	tg, err := domain.NewTarget(name, "https://registry.example/"+name, integrity.Sum(artifact))
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	return tg
}

func newMonitor(t *testing.T, f Fetcher, sink Sink, pub TransitionPublisher, targets ...domain.Target) *Monitor {
	t.Helper()
	m, err := NewMonitor(targets, f, sink, Options{WindowSize: 5, Threshold: 0.6, Publisher: pub})
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	return m
}

// =============================================================================
// Tests
// =============================================================================

func TestRunCycle_Scenarios(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []fetchStep{okStep()}}
	sink := &fakeSink{}
	m := newMonitor(t, fetcher, sink, nil, newTarget(t, "pypi"))
	ctx := context.Background()

	// A: five consecutive successes
	for i := 0; i < 5; i++ {
		o, err := m.RunCycle(ctx, "pypi")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !o.Success || o.Reason != domain.ReasonOK {
			t.Fatalf("cycle %d: expected success, got %+v", i, o)
		}
	}
	snap := sink.last().snap
	if snap.Successes != 5 || snap.Failures != 0 || !snap.Up {
		t.Fatalf("scenario A: unexpected snapshot %+v", snap)
	}

	// B: sixth cycle fails to fetch
	fetcher.then(failStep())
	o, _ := m.RunCycle(ctx, "pypi")
	if o.Success || o.Reason != domain.ReasonFetchError {
		t.Fatalf("scenario B: expected fetch error, got %+v", o)
	}
	var fetchErr *httpfetch.FetchError
	if !errors.As(o.Err, &fetchErr) {
		t.Errorf("scenario B: expected FetchError, got %v", o.Err)
	}
	snap = sink.last().snap
	if !reflect.DeepEqual(snap.Window, []bool{true, true, true, true, false}) {
		t.Errorf("scenario B: unexpected window %v", snap.Window)
	}
	if snap.Ratio != 0.8 || !snap.Up {
		t.Errorf("scenario B: expected up at 0.8, got up=%v ratio=%v", snap.Up, snap.Ratio)
	}
	if snap.Failures != 1 {
		t.Errorf("scenario B: expected 1 failure, got %d", snap.Failures)
	}

	// C: fetch succeeds but content is wrong
	fetcher.then(fetchStep{body: []byte("tampered")})
	o, _ = m.RunCycle(ctx, "pypi")
	if o.Success || o.Reason != domain.ReasonDigestMismatch {
		t.Fatalf("scenario C: expected digest mismatch, got %+v", o)
	}
	if !errors.Is(o.Err, domain.ErrDigestMismatch) {
		t.Errorf("scenario C: expected ErrDigestMismatch, got %v", o.Err)
	}
	if sink.last().outcome.Reason != domain.ReasonDigestMismatch {
		t.Errorf("scenario C: sink saw reason %s", sink.last().outcome.Reason)
	}

	status, ok := m.StatusOf("pypi")
	if !ok {
		t.Fatal("expected status for pypi")
	}
	if status.LastReason != domain.ReasonDigestMismatch || status.LastError == "" {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestRunCycle_TargetsAreIsolated(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []fetchStep{okStep()}}
	sink := &fakeSink{}
	m := newMonitor(t, fetcher, sink, nil, newTarget(t, "npm"), newTarget(t, "deb"))

	_, _ = m.RunCycle(context.Background(), "npm")

	npm, _ := m.StatusOf("npm")
	deb, _ := m.StatusOf("deb")
	if npm.Snapshot.Successes != 1 {
		t.Errorf("expected npm to have 1 success, got %d", npm.Snapshot.Successes)
	}
	if deb.Snapshot.Successes != 0 || len(deb.Snapshot.Window) != 0 || deb.Snapshot.Up {
		t.Errorf("deb state changed by npm cycle: %+v", deb.Snapshot)
	}
}

func TestRunCycle_PublishesTransitions(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []fetchStep{okStep()}}
	pub := &fakePublisher{}
	m := newMonitor(t, fetcher, &fakeSink{}, pub, newTarget(t, "pypi"))
	ctx := context.Background()

	// The first outcome only establishes a baseline.
	_, _ = m.RunCycle(ctx, "pypi")
	if len(pub.got) != 0 {
		t.Fatalf("expected no transition on first cycle, got %v", pub.got)
	}

	fetcher.then(failStep())
	_, _ = m.RunCycle(ctx, "pypi") // 1/2 = 0.5, down

	if len(pub.got) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(pub.got))
	}
	tr := pub.got[0]
	if !tr.From || tr.To || tr.Reason != domain.ReasonFetchError || tr.Target != "pypi" {
		t.Errorf("unexpected transition %+v", tr)
	}

	_, _ = m.RunCycle(ctx, "pypi") // still down
	if len(pub.got) != 1 {
		t.Errorf("expected no new transition while down, got %d", len(pub.got))
	}
}

func TestRunCycle_CancelledRecordsNothing(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []fetchStep{{err: context.Canceled}}}
	sink := &fakeSink{}
	m := newMonitor(t, fetcher, sink, nil, newTarget(t, "pypi"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.RunCycle(ctx, "pypi"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sink.got) != 0 {
		t.Errorf("expected nothing published, got %d", len(sink.got))
	}
	status, _ := m.StatusOf("pypi")
	if status.Snapshot.Failures != 0 {
		t.Errorf("expected no recorded failure, got %d", status.Snapshot.Failures)
	}
}

func TestRunCycle_UnknownTargetPanics(t *testing.T) {
	m := newMonitor(t, &scriptedFetcher{steps: []fetchStep{okStep()}}, &fakeSink{}, nil, newTarget(t, "pypi"))

	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown target")
		}
	}()
	_, _ = m.RunCycle(context.Background(), "cargo")
}

func TestRunCycle_ConcurrentCallsNoLostUpdates(t *testing.T) {
	const n = 200
	m := newMonitor(t, &scriptedFetcher{steps: []fetchStep{okStep(), failStep()}}, &fakeSink{}, nil, newTarget(t, "npm"))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.RunCycle(context.Background(), "npm")
		}()
	}
	wg.Wait()

	status, _ := m.StatusOf("npm")
	if got := status.Snapshot.Successes + status.Snapshot.Failures; got != n {
		t.Errorf("expected %d outcomes, got %d", n, got)
	}
}

func TestStatus_ConsistentWithLastCycle(t *testing.T) {
	const n = 200
	m := newMonitor(t, &scriptedFetcher{steps: []fetchStep{okStep(), failStep(), okStep()}}, &fakeSink{}, nil, newTarget(t, "pypi"))

	done := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				st, _ := m.StatusOf("pypi")
				snap := st.Snapshot
				if len(snap.Window) == 0 {
					continue
				}
				if got := int64(snap.Successes + snap.Failures); got != snap.Latency.Count {
					t.Errorf("outcomes %d and latency observations %d out of step", got, snap.Latency.Count)
					return
				}
				last := snap.Window[len(snap.Window)-1]
				if last != (st.LastReason == domain.ReasonOK) {
					t.Errorf("last window entry %v but last reason %q", last, st.LastReason)
					return
				}
			}
		}()
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.RunCycle(context.Background(), "pypi")
		}()
	}
	wg.Wait()
	close(done)
	readers.Wait()
}

func TestNewMonitor_Validation(t *testing.T) {
	tg := newTarget(t, "pypi")
	f := &scriptedFetcher{steps: []fetchStep{okStep()}}

	if _, err := NewMonitor([]domain.Target{tg, tg}, f, &fakeSink{}, Options{WindowSize: 1, Threshold: 0.5}); err == nil {
		t.Error("expected duplicate target error")
	}
	if _, err := NewMonitor([]domain.Target{tg}, f, &fakeSink{}, Options{WindowSize: 0, Threshold: 0.5}); err == nil {
		t.Error("expected window size error")
	}
	if _, err := NewMonitor([]domain.Target{tg}, f, &fakeSink{}, Options{WindowSize: 1, Threshold: 1}); err == nil {
		t.Error("expected threshold error")
	}
	if _, err := NewMonitor([]domain.Target{tg}, nil, &fakeSink{}, Options{WindowSize: 1, Threshold: 0.5}); err == nil {
		t.Error("expected fetcher error")
	}
}

func TestRunAll_WithHTTPFetcher(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/good.tgz":
			_, _ = w.Write(artifact)
		case "/bad.tgz":
			_, _ = w.Write([]byte("not the artifact"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	digest := integrity.Sum(artifact)
	mk := func(name, path string) domain.Target {
		tg, err := domain.NewTarget(name, server.URL+path, digest)
		if err != nil {
			t.Fatalf("NewTarget: %v", err)
		}
		return tg
	}

	m, err := NewMonitor(
		[]domain.Target{mk("npm", "/good.tgz"), mk("deb", "/bad.tgz"), mk("pypi", "/missing")},
		httpfetch.New(httpfetch.Config{Timeout: 2 * time.Second}),
		&fakeSink{},
		Options{WindowSize: 3, Threshold: 0.5},
	)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}

	outcomes, err := m.RunAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []domain.Reason{domain.ReasonOK, domain.ReasonDigestMismatch, domain.ReasonFetchError}
	for i, o := range outcomes {
		if o.Reason != want[i] {
			t.Errorf("%s: expected %s, got %s", o.Target, want[i], o.Reason)
		}
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", hits.Load())
	}
}
