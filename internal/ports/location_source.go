package ports

import (
	"context"

	"driver-nav-service/internal/domain"
)

// Contract for a stream of driver position samples.
type LocationSource interface {
	// Start watching. The channel is closed when ctx ends or the source is exhausted.
	// Failures are delivered as samples with Err set.
	Watch(ctx context.Context) (<-chan domain.PositionSample, error)
}

// Consumer of spoken instructions.
type VoiceSink interface {
	// Speak blocks until playback of text is finished.
	Speak(ctx context.Context, text string) error
}
