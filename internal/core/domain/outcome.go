package domain

import (
	"errors"
	"time"
)

// ErrDigestMismatch is carried by an Outcome whose content did not match the expected digest.
var ErrDigestMismatch = errors.New("digest mismatch")

// Reason classifies a cycle outcome.
type Reason string

const (
	ReasonOK             Reason = "ok"
	ReasonFetchError     Reason = "fetch_error"
	ReasonDigestMismatch Reason = "digest_mismatch"
)

// Outcome is the result of one cycle for one target. It is consumed
// into the recorder and the metrics sink and never stored individually.
type Outcome struct {
	Target  string
	CycleID string
	Success bool
	Reason  Reason
	Latency time.Duration
	At      time.Time
	Err     error
}
