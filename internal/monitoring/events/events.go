// Package events fans availability transitions out to subscribers.
package events

import (
	"context"
	"log/slog"

	"github.com/vietddude/pkgwatch/internal/core/domain"
)

// Publisher receives availability transitions.
type Publisher interface {
	PublishTransition(ctx context.Context, t domain.Transition) error
}

// LogPublisher writes transitions to the logger.
type LogPublisher struct {
	Log *slog.Logger
}

func (p LogPublisher) PublishTransition(ctx context.Context, t domain.Transition) error {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	level := slog.LevelInfo
	if !t.To {
		level = slog.LevelWarn
	}
	log.Log(ctx, level, "Availability changed",
		"target", t.Target,
		"from", t.From,
		"to", t.To,
		"reason", t.Reason,
		"ratio", t.Ratio,
	)
	return nil
}

// Multi publishes to every publisher in order, logging failures
// instead of returning them so one broken subscriber does not mask others.
type Multi struct {
	Publishers []Publisher
	Log        *slog.Logger
}

func (m Multi) PublishTransition(ctx context.Context, t domain.Transition) error {
	for _, p := range m.Publishers {
		if err := p.PublishTransition(ctx, t); err != nil {
			log := m.Log
			if log == nil {
				log = slog.Default()
			}
			log.Warn("Failed to publish transition", "target", t.Target, "error", err)
		}
	}
	return nil
}
