// Package health serves target status and Prometheus metrics over HTTP.
package health

import (
	"time"

	"github.com/vietddude/pkgwatch/internal/monitoring/probe"
)

// TargetHealth is what the API exposes per target.
type TargetHealth struct {
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Up          bool     `json:"up"`
	Ratio       *float64 `json:"ratio"`
	Window      []int    `json:"window"`
	WindowSize  int      `json:"window_size"`
	Successes   uint64   `json:"download_success"`
	Failures    uint64   `json:"download_failure"`
	LatencyMs   int64    `json:"last_latency_ms"`
	MeanMs      int64    `json:"mean_latency_ms"`
	LastReason  string   `json:"last_reason,omitempty"`
	LastError   string   `json:"last_error,omitempty"`
	LastChecked string   `json:"last_checked,omitempty"`
}

// Report aggregates all targets.
type Report struct {
	Up      bool           `json:"up"`
	Targets []TargetHealth `json:"targets"`
}

// StatusSource supplies the per-target view.
type StatusSource interface {
	Status() []probe.TargetStatus
	StatusOf(name string) (probe.TargetStatus, bool)
}

func toTargetHealth(st probe.TargetStatus) TargetHealth {
	snap := st.Snapshot

	window := make([]int, len(snap.Window))
	for i, v := range snap.Window {
		if v {
			window[i] = 1
		}
	}

	th := TargetHealth{
		Name:       st.Target.Name,
		URL:        st.Target.URL,
		Up:         snap.Up,
		Window:     window,
		WindowSize: snap.Capacity,
		Successes:  snap.Successes,
		Failures:   snap.Failures,
		LatencyMs:  snap.Latency.Last.Milliseconds(),
		MeanMs:     snap.Latency.Mean().Milliseconds(),
		LastReason: string(st.LastReason),
		LastError:  st.LastError,
	}
	if snap.HasRatio {
		r := snap.Ratio
		th.Ratio = &r
	}
	if !st.LastChecked.IsZero() {
		th.LastChecked = st.LastChecked.UTC().Format(time.RFC3339)
	}
	return th
}

// BuildReport converts statuses into a report. The report is up only
// when every target is up.
func BuildReport(statuses []probe.TargetStatus) Report {
	r := Report{Up: len(statuses) > 0, Targets: make([]TargetHealth, 0, len(statuses))}
	for _, st := range statuses {
		th := toTargetHealth(st)
		if !th.Up {
			r.Up = false
		}
		r.Targets = append(r.Targets, th)
	}
	return r
}
