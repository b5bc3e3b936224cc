package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/justgrego/AI-pplicant/internal/transcribe"
)

// Microphone availability errors. Each maps to a distinct user-facing
// message; both are terminal for the current attempt and recoverable by
// retrying after the user grants access.
var (
	ErrPermissionDenied = errors.New("capture: microphone permission denied")
	ErrNoDevice         = errors.New("capture: no microphone device found")
)

// Engine errors that force a permanent switch to the fallback path for the
// rest of the session.
var (
	ErrEngineAuth    = errors.New("capture: recognition engine rejected credentials")
	ErrEngineNetwork = errors.New("capture: recognition engine network failure")
)

// ErrTranscription marks a fallback upload that still failed after its retry.
// Callers surface it as a no-speech result rather than a hard error.
var ErrTranscription = errors.New("capture: transcription failed")

// unrecoverable reports whether a recognizer error means the primary engine
// is unusable for the remainder of the session.
func unrecoverable(err error) bool {
	return errors.Is(err, ErrEngineAuth) || errors.Is(err, ErrEngineNetwork)
}

// Recognizer is the primary low-latency recognition engine.
type Recognizer interface {
	Connect() error
	SendAudio(pcm []byte) error
	// Transcripts streams live partial text; Finalized delivers
	// end-of-utterance text. Both close on Close.
	Transcripts() <-chan string
	Finalized() <-chan string
	Close() error
}

// MicStream delivers recorded audio frames from an open microphone.
// Close must be safe to call more than once.
type MicStream interface {
	// Read returns the next frame, or io.EOF once the stream is closed.
	Read() ([]byte, error)
	// Encodings lists the MIME types this source can record, most
	// preferred first.
	Encodings() []string
	Close() error
}

// MicSource opens the microphone. Open fails with ErrPermissionDenied or
// ErrNoDevice when capture cannot begin.
type MicSource interface {
	Open() (MicStream, error)
}

// preferredEncodings is the content-negotiation order for the fallback
// upload path. Not every recorder supports the same codecs; the first
// supported entry wins.
var preferredEncodings = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/ogg;codecs=opus",
	"audio/mp4",
	"audio/wav",
}

// NegotiateEncoding picks the first preferred encoding the source supports.
func NegotiateEncoding(supported []string) (string, error) {
	for _, want := range preferredEncodings {
		for _, have := range supported {
			if want == have {
				return want, nil
			}
		}
	}
	return "", fmt.Errorf("capture: no supported audio encoding among %v", supported)
}

// Capture converts spoken audio to text. It prefers the realtime engine and
// transparently falls back to record-and-upload transcription when the
// engine is unavailable or fails mid-session. The fallback decision is
// sticky for the lifetime of the Capture.
type Capture struct {
	newRecognizer func() Recognizer // nil when the engine is unsupported
	fallback      transcribe.Transcriber
	source        MicSource

	// OnPartial, when set before StartListening, receives live partial
	// transcripts from the primary engine as the candidate speaks.
	OnPartial func(string)

	mu          sync.Mutex
	active      bool
	useFallback bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// New constructs a Capture. newRecognizer may be nil to force the fallback
// path from the start.
func New(newRecognizer func() Recognizer, fallback transcribe.Transcriber, source MicSource) *Capture {
	return &Capture{
		newRecognizer: newRecognizer,
		fallback:      fallback,
		source:        source,
		useFallback:   newRecognizer == nil,
	}
}

// StartListening verifies microphone availability and begins capture.
// Transcripts are delivered through onTranscript regardless of which path
// produced them. Returns ErrPermissionDenied or ErrNoDevice when the mic
// cannot be acquired, and an error if capture is already running.
func (c *Capture) StartListening(onTranscript func(string), onError func(error)) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return fmt.Errorf("capture: already listening")
	}
	c.mu.Unlock()

	stream, err := c.source.Open()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.active = true
	c.cancel = cancel
	c.done = done
	useFallback := c.useFallback
	c.mu.Unlock()

	// Closing the stream is what unblocks a pending Read when capture stops.
	go func() {
		<-ctx.Done()
		stream.Close()
	}()

	go func() {
		defer close(done)
		defer stream.Close()

		// One reader per capture session, shared by both paths so no frame
		// is lost across an engine restart or a mid-session fallback switch.
		frames := make(chan []byte, 64)
		readErr := make(chan error, 1)
		go func() {
			defer close(frames)
			for {
				frame, err := stream.Read()
				if len(frame) > 0 {
					select {
					case frames <- frame:
					case <-ctx.Done():
						return
					}
				}
				if err != nil {
					if err != io.EOF {
						readErr <- err
					}
					return
				}
			}
		}()

		if !useFallback {
			if c.runPrimary(ctx, frames, readErr, onTranscript, onError) {
				return
			}
			log.Printf("capture: switching to fallback transcription")
		}
		c.runFallback(frames, stream.Encodings(), onTranscript, onError)
	}()
	return nil
}

// runPrimary feeds mic frames to the recognition engine and forwards its
// finalized utterances. It auto-restarts across transient engine stops while
// capture is active. Returns true when capture finished cleanly, false when
// the engine is unusable and the fallback should take over.
func (c *Capture) runPrimary(ctx context.Context, frames <-chan []byte, readErr <-chan error, onTranscript func(string), onError func(error)) bool {
	for {
		rec := c.newRecognizer()
		if err := rec.Connect(); err != nil {
			if unrecoverable(err) {
				c.markFallback()
				return false
			}
			if onError != nil {
				onError(err)
			}
			return true
		}

		err := c.pumpRecognizer(ctx, rec, frames, readErr, onTranscript)
		_ = rec.Close()
		// Drain any final utterance flushed by Close so the last words of
		// an answer are not lost.
		for text := range rec.Finalized() {
			if text != "" && onTranscript != nil {
				onTranscript(text)
			}
		}

		if ctx.Err() != nil || errors.Is(err, io.EOF) {
			return true
		}
		if err != nil {
			if unrecoverable(err) {
				c.markFallback()
				return false
			}
			if onError != nil {
				onError(err)
			}
		}
		// Transient engine end while still listening: restart and continue.
		log.Printf("capture: recognition engine stopped, restarting")
		time.Sleep(50 * time.Millisecond)
	}
}

// pumpRecognizer runs one engine connection: mic frames in, utterances out.
// Returns io.EOF when the mic stream itself has ended.
func (c *Capture) pumpRecognizer(ctx context.Context, rec Recognizer, frames <-chan []byte, readErr <-chan error, onTranscript func(string)) error {
	partials := rec.Transcripts()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case frame, ok := <-frames:
			if !ok {
				return io.EOF
			}
			if err := rec.SendAudio(frame); err != nil {
				return err
			}
		case text, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if text != "" && c.OnPartial != nil {
				c.OnPartial(text)
			}
		case text, ok := <-rec.Finalized():
			if !ok {
				// Engine ended on its own; caller decides whether to restart.
				return nil
			}
			if text != "" && onTranscript != nil {
				onTranscript(text)
			}
		}
	}
}

// runFallback buffers the rest of the recording, then uploads it for
// transcription. Stopping capture closes the mic stream, which ends the
// frame channel and triggers the upload.
func (c *Capture) runFallback(frames <-chan []byte, supported []string, onTranscript func(string), onError func(error)) {
	encoding, err := NegotiateEncoding(supported)
	if err != nil {
		if onError != nil {
			onError(err)
		}
		return
	}

	var recorded []byte
	for frame := range frames {
		recorded = append(recorded, frame...)
	}

	if c.fallback == nil {
		if onError != nil {
			onError(fmt.Errorf("capture: no fallback transcriber configured"))
		}
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	text, err := c.fallback.Transcribe(ctx, recorded, encoding)
	if err != nil {
		log.Printf("capture: fallback transcription failed, retrying once: %v", err)
		text, err = c.fallback.Transcribe(ctx, recorded, encoding)
	}
	if err != nil {
		if onError != nil {
			onError(fmt.Errorf("%w: %v", ErrTranscription, err))
		}
		return
	}
	if onTranscript != nil {
		onTranscript(text)
	}
}

func (c *Capture) markFallback() {
	c.mu.Lock()
	c.useFallback = true
	c.mu.Unlock()
}

// UsingFallback reports whether the session has switched to the
// record-and-upload path.
func (c *Capture) UsingFallback() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.useFallback
}

// StopListening ends capture and releases the microphone. Idempotent. On
// the primary path any recognized speech is flushed through onTranscript
// before the capture goroutine exits; on the fallback path stopping is what
// triggers transcription.
func (c *Capture) StopListening() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			log.Printf("capture: timed out waiting for capture loop to stop")
		}
	}
}
