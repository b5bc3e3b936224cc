package tts

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSynth struct {
	audio []byte
	ctype string
	err   error
	calls int32
}

func (f *fakeSynth) Synthesize(_ context.Context, _, _ string) ([]byte, string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.audio, f.ctype, f.err
}

func fastPlayer(s Synthesizer) *Player {
	p := NewPlayer(s)
	p.SetTiming(time.Millisecond, time.Millisecond, 50*time.Millisecond)
	return p
}

func TestPlay_MockMode_CallbackOrderAndBoundedDuration(t *testing.T) {
	p := fastPlayer(nil)

	var starts, ends int32
	var startedFirst atomic.Bool
	begin := time.Now()
	err := p.Play(context.Background(), "hello world", Options{
		OnStart: func() {
			if atomic.LoadInt32(&ends) == 0 {
				startedFirst.Store(true)
			}
			atomic.AddInt32(&starts, 1)
		},
		OnEnd: func() { atomic.AddInt32(&ends, 1) },
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if starts != 1 || ends != 1 {
		t.Fatalf("expected one start and one end, got %d/%d", starts, ends)
	}
	if !startedFirst.Load() {
		t.Fatalf("OnStart fired after OnEnd")
	}
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Fatalf("mock playback took too long: %v", elapsed)
	}
}

func TestPlay_SynthErrorStillFiresOnEnd(t *testing.T) {
	boom := errors.New("boom")
	p := fastPlayer(&fakeSynth{err: boom})

	var ends int32
	err := p.Play(context.Background(), "some text", Options{
		OnEnd: func() { atomic.AddInt32(&ends, 1) },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected synth error surfaced, got %v", err)
	}
	if ends != 1 {
		t.Fatalf("OnEnd must fire on failure, fired %d times", ends)
	}
}

func TestPlay_UnconfiguredDegradesSilently(t *testing.T) {
	p := fastPlayer(&fakeSynth{err: ErrUnconfigured})

	var gotAudio int32
	err := p.Play(context.Background(), "quiet", Options{
		OnAudio: func([]byte, string) { atomic.AddInt32(&gotAudio, 1) },
	})
	if err != nil {
		t.Fatalf("unconfigured provider must not error: %v", err)
	}
	if gotAudio != 0 {
		t.Fatalf("no audio expected in degraded mode")
	}
}

func TestPlay_DeliversAudioBody(t *testing.T) {
	p := fastPlayer(&fakeSynth{audio: []byte{1, 2, 3}, ctype: "audio/mpeg"})

	var body []byte
	var ctype string
	err := p.Play(context.Background(), "hi", Options{
		OnAudio: func(a []byte, c string) { body, ctype = a, c },
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if len(body) != 3 || ctype != "audio/mpeg" {
		t.Fatalf("audio not delivered: %v %q", body, ctype)
	}
}

func TestPlay_SerializesConcurrentCalls(t *testing.T) {
	p := NewPlayer(nil)
	p.SetTiming(time.Millisecond, 20*time.Millisecond, 50*time.Millisecond)

	var active, maxActive int32
	play := func(done chan<- struct{}) {
		_ = p.Play(context.Background(), "one two three", Options{
			OnStart: func() {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
			},
			OnEnd: func() { atomic.AddInt32(&active, -1) },
		})
		done <- struct{}{}
	}

	done := make(chan struct{}, 2)
	go play(done)
	go play(done)
	<-done
	<-done
	if atomic.LoadInt32(&maxActive) != 1 {
		t.Fatalf("expected strictly serialized playback, saw %d concurrent", maxActive)
	}
}

func TestSpeakDuration_ScalesWithLengthAndClamps(t *testing.T) {
	p := NewPlayer(nil)
	short := p.speakDuration("hi")
	long := p.speakDuration("this answer has quite a few more words in it than the short one does")
	if long <= short {
		t.Fatalf("expected longer text to hold longer: %v <= %v", long, short)
	}
	huge := p.speakDuration(repeatWords(10000))
	if huge > p.maxHold {
		t.Fatalf("duration not clamped: %v", huge)
	}
}

func repeatWords(n int) string {
	out := make([]byte, 0, n*5)
	for i := 0; i < n; i++ {
		out = append(out, "word "...)
	}
	return string(out)
}
