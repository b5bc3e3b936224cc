package tts

import (
	"context"
	"errors"
)

// ErrUnconfigured is returned by a synthesizer whose provider credentials
// are absent. Callers degrade to mock timing instead of failing playback.
var ErrUnconfigured = errors.New("tts: provider not configured")

// Synthesizer converts text into encoded audio.
type Synthesizer interface {
	// Synthesize returns the full audio body and its MIME content type.
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, string, error)
}
