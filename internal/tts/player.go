package tts

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
)

// Options configures one Play call. OnStart and OnEnd fire exactly once
// each, in that order, even when synthesis fails; downstream turn
// advancement hangs off OnEnd and must never be left blocked.
type Options struct {
	VoiceID string
	OnStart func()
	OnEnd   func()
	// OnAudio receives the synthesized body when a real provider produced
	// one. Not called in mock mode.
	OnAudio func(audio []byte, contentType string)
}

// Player serializes audio playback for the turn sequencer. A nil or
// unconfigured synthesizer degrades to a timed no-audio placeholder whose
// duration tracks text length, preserving the sequencing contract for tests
// and keyless deployments.
type Player struct {
	synth Synthesizer

	// timing for the mock placeholder and for pacing real playback
	perWord time.Duration
	minHold time.Duration
	maxHold time.Duration

	mu sync.Mutex
}

// NewPlayer returns a player backed by synth. synth may be nil.
func NewPlayer(synth Synthesizer) *Player {
	return &Player{
		synth:   synth,
		perWord: 320 * time.Millisecond,
		minHold: 400 * time.Millisecond,
		maxHold: 30 * time.Second,
	}
}

// SetTiming overrides placeholder pacing. Used by tests to keep runs fast.
func (p *Player) SetTiming(perWord, minHold, maxHold time.Duration) {
	p.perWord, p.minHold, p.maxHold = perWord, minHold, maxHold
}

// Play synthesizes text and holds for its playback duration. Concurrent
// calls are serialized so at most one turn is ever playing. The returned
// error reports synthesis failure; OnEnd has already fired by then.
func (p *Player) Play(ctx context.Context, text string, opts Options) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if opts.OnStart != nil {
		opts.OnStart()
	}
	defer func() {
		if opts.OnEnd != nil {
			opts.OnEnd()
		}
	}()

	var synthErr error
	if p.synth != nil {
		audio, contentType, err := p.synth.Synthesize(ctx, text, opts.VoiceID)
		switch {
		case err == nil:
			if opts.OnAudio != nil && len(audio) > 0 {
				opts.OnAudio(audio, contentType)
			}
		case errors.Is(err, ErrUnconfigured):
			log.Printf("tts: provider unconfigured, using timed placeholder")
		default:
			log.Printf("tts: synthesis failed: %v", err)
			synthErr = err
		}
	}

	p.hold(ctx, text)
	return synthErr
}

// hold sleeps for the estimated spoken duration of text, waking early on
// context cancellation.
func (p *Player) hold(ctx context.Context, text string) {
	d := p.speakDuration(text)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// speakDuration estimates how long text takes to speak at a conversational
// word rate, clamped to sane bounds.
func (p *Player) speakDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	d := time.Duration(words) * p.perWord
	if d < p.minHold {
		d = p.minHold
	}
	if d > p.maxHold {
		d = p.maxHold
	}
	return d
}
