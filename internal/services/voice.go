package services

import (
	"context"
	"log/slog"
)

// LogVoice is a VoiceSink for hosts without audio: each line is logged and
// counts as spoken immediately.
type LogVoice struct {
	Log *slog.Logger
}

func (v LogVoice) Speak(ctx context.Context, text string) error {
	if v.Log != nil {
		v.Log.InfoContext(ctx, "voice", slog.String("text", text))
	}
	return ctx.Err()
}
