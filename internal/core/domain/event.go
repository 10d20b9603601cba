package domain

import "time"

// Transition is emitted when a target's availability flips.
type Transition struct {
	Target string    `json:"target"`
	From   bool      `json:"from"`
	To     bool      `json:"to"`
	Reason Reason    `json:"reason"`
	Ratio  float64   `json:"ratio"`
	At     time.Time `json:"at"`
}
