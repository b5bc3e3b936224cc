package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

type fakeStream struct {
	ch     chan []byte
	closed chan struct{}
	once   sync.Once
	encs   []string
}

func newFakeStream(encs ...string) *fakeStream {
	if len(encs) == 0 {
		encs = []string{"audio/webm;codecs=opus"}
	}
	return &fakeStream{ch: make(chan []byte, 16), closed: make(chan struct{}), encs: encs}
}

func (f *fakeStream) Read() ([]byte, error) {
	select {
	case b, ok := <-f.ch:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeStream) Encodings() []string { return f.encs }

func (f *fakeStream) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

type fakeSource struct {
	stream *fakeStream
	err    error
}

func (f *fakeSource) Open() (MicStream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

type fakeRecognizer struct {
	connectErr error
	sendErr    error
	partials   chan string
	finals     chan string
	flushText  string
	once       sync.Once
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{
		partials: make(chan string, 8),
		finals:   make(chan string, 8),
	}
}

func (f *fakeRecognizer) Connect() error { return f.connectErr }

func (f *fakeRecognizer) SendAudio([]byte) error { return f.sendErr }

func (f *fakeRecognizer) Transcripts() <-chan string { return f.partials }

func (f *fakeRecognizer) Finalized() <-chan string { return f.finals }

func (f *fakeRecognizer) Close() error {
	f.once.Do(func() {
		if f.flushText != "" {
			f.finals <- f.flushText
		}
		close(f.partials)
		close(f.finals)
	})
	return nil
}

// fakeTranscriber errors its first failures calls, then succeeds.
type fakeTranscriber struct {
	text     string
	failures int
	calls    int
	got      []byte
	mu       sync.Mutex
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.got = append([]byte(nil), audio...)
	if f.calls <= f.failures {
		return "", errors.New("transcription service unavailable")
	}
	return f.text, nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("transcript = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for transcript %q", want)
	}
}

func TestNegotiateEncoding(t *testing.T) {
	cases := []struct {
		supported []string
		want      string
		wantErr   bool
	}{
		{[]string{"audio/webm;codecs=opus", "audio/wav"}, "audio/webm;codecs=opus", false},
		{[]string{"audio/wav", "audio/mp4"}, "audio/mp4", false},
		{[]string{"audio/wav"}, "audio/wav", false},
		{[]string{"audio/flac"}, "", true},
		{nil, "", true},
	}
	for _, tc := range cases {
		got, err := NegotiateEncoding(tc.supported)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("expected error for %v", tc.supported)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("NegotiateEncoding(%v) = %q, %v; want %q", tc.supported, got, err, tc.want)
		}
	}
}

func TestStartListening_MicErrors(t *testing.T) {
	for _, micErr := range []error{ErrPermissionDenied, ErrNoDevice} {
		c := New(nil, &fakeTranscriber{}, &fakeSource{err: micErr})
		err := c.StartListening(nil, nil)
		if !errors.Is(err, micErr) {
			t.Fatalf("expected %v, got %v", micErr, err)
		}
	}
}

func TestFallbackPath_DeliversTranscriptViaSameCallback(t *testing.T) {
	stream := newFakeStream()
	tr := &fakeTranscriber{text: "fallback transcript"}
	// nil recognizer factory = primary engine unsupported
	c := New(nil, tr, &fakeSource{stream: stream})

	got := make(chan string, 1)
	if err := c.StartListening(func(s string) { got <- s }, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream.ch <- []byte{1, 2}
	stream.ch <- []byte{3}
	time.Sleep(20 * time.Millisecond)
	c.StopListening()

	waitFor(t, got, "fallback transcript")
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.got) != 3 {
		t.Fatalf("expected 3 recorded bytes uploaded, got %d", len(tr.got))
	}
}

func TestFallback_NoSupportedEncoding(t *testing.T) {
	stream := newFakeStream("audio/flac")
	errs := make(chan error, 1)
	c := New(nil, &fakeTranscriber{}, &fakeSource{stream: stream})
	if err := c.StartListening(nil, func(err error) { errs <- err }); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case err := <-errs:
		if err == nil {
			t.Fatalf("expected negotiation error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for negotiation error")
	}
	c.StopListening()
}

func TestPrimaryPath_DeliversFinalizedUtterances(t *testing.T) {
	stream := newFakeStream()
	rec := newFakeRecognizer()
	c := New(func() Recognizer { return rec }, &fakeTranscriber{}, &fakeSource{stream: stream})

	got := make(chan string, 4)
	if err := c.StartListening(func(s string) { got <- s }, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream.ch <- []byte{0, 0}
	rec.finals <- "first utterance"
	waitFor(t, got, "first utterance")
	c.StopListening()
}

func TestPrimaryPath_StopFlushesFinalTranscript(t *testing.T) {
	stream := newFakeStream()
	rec := newFakeRecognizer()
	rec.flushText = "last words"
	c := New(func() Recognizer { return rec }, &fakeTranscriber{}, &fakeSource{stream: stream})

	got := make(chan string, 4)
	if err := c.StartListening(func(s string) { got <- s }, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.StopListening()
	waitFor(t, got, "last words")
}

func TestPrimaryPath_ReconnectsAfterTransientEngineStop(t *testing.T) {
	stream := newFakeStream()
	recs := []*fakeRecognizer{newFakeRecognizer(), newFakeRecognizer()}
	var mu sync.Mutex
	calls := 0
	factory := func() Recognizer {
		mu.Lock()
		defer mu.Unlock()
		rec := recs[len(recs)-1]
		if calls < len(recs) {
			rec = recs[calls]
		}
		calls++
		return rec
	}
	c := New(factory, &fakeTranscriber{}, &fakeSource{stream: stream})

	got := make(chan string, 4)
	if err := c.StartListening(func(s string) { got <- s }, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	recs[0].finals <- "before the engine stop"
	waitFor(t, got, "before the engine stop")

	// Engine ends on its own while capture is still active; a fresh
	// connection must keep transcripts flowing.
	recs[0].Close()
	recs[1].finals <- "after the reconnect"
	waitFor(t, got, "after the reconnect")
	c.StopListening()

	mu.Lock()
	defer mu.Unlock()
	if calls < 2 {
		t.Fatalf("expected a reconnect, factory called %d time(s)", calls)
	}
}

func TestPrimaryPath_StreamsPartialTranscripts(t *testing.T) {
	stream := newFakeStream()
	rec := newFakeRecognizer()
	c := New(func() Recognizer { return rec }, &fakeTranscriber{}, &fakeSource{stream: stream})
	partials := make(chan string, 4)
	c.OnPartial = func(s string) { partials <- s }

	if err := c.StartListening(nil, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.partials <- "i worked"
	rec.partials <- "i worked on the backend"
	waitFor(t, partials, "i worked")
	waitFor(t, partials, "i worked on the backend")
	c.StopListening()
}

func TestFallback_RetriesTranscriptionOnce(t *testing.T) {
	stream := newFakeStream()
	tr := &fakeTranscriber{text: "second attempt worked", failures: 1}
	c := New(nil, tr, &fakeSource{stream: stream})

	got := make(chan string, 1)
	if err := c.StartListening(func(s string) { got <- s }, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream.ch <- []byte{1}
	time.Sleep(20 * time.Millisecond)
	c.StopListening()

	waitFor(t, got, "second attempt worked")
	if got := tr.callCount(); got != 2 {
		t.Fatalf("expected 2 transcription attempts, got %d", got)
	}
}

func TestFallback_PersistentTranscriptionFailure(t *testing.T) {
	stream := newFakeStream()
	tr := &fakeTranscriber{failures: 2}
	c := New(nil, tr, &fakeSource{stream: stream})

	errs := make(chan error, 1)
	if err := c.StartListening(nil, func(err error) { errs <- err }); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream.ch <- []byte{1}
	time.Sleep(20 * time.Millisecond)
	c.StopListening()

	select {
	case err := <-errs:
		if !errors.Is(err, ErrTranscription) {
			t.Fatalf("expected ErrTranscription, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for transcription failure")
	}
	if got := tr.callCount(); got != 2 {
		t.Fatalf("expected 2 transcription attempts, got %d", got)
	}
}

func TestRecognizerLateEmitAfterCloseIsDropped(t *testing.T) {
	r := NewRealtimeRecognizer("key", "")
	r.sendMu.Lock()
	r.chanClosed = true
	r.sendMu.Unlock()
	close(r.finals)
	// A silence timer firing after shutdown must drop its delta, not panic.
	r.emitFinal("late delta")

	close(r.stop)
	r.finalizeOnSilence()
}

func TestUnrecoverableEngineErrorSwitchesToFallback(t *testing.T) {
	stream := newFakeStream()
	rec := newFakeRecognizer()
	rec.connectErr = ErrEngineAuth
	tr := &fakeTranscriber{text: "rescued by fallback"}
	c := New(func() Recognizer { return rec }, tr, &fakeSource{stream: stream})

	got := make(chan string, 1)
	if err := c.StartListening(func(s string) { got <- s }, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream.ch <- []byte{9}
	time.Sleep(20 * time.Millisecond)
	c.StopListening()

	waitFor(t, got, "rescued by fallback")
	if !c.UsingFallback() {
		t.Fatalf("expected sticky fallback after unrecoverable engine error")
	}
}

func TestStopListening_Idempotent(t *testing.T) {
	stream := newFakeStream()
	c := New(nil, &fakeTranscriber{}, &fakeSource{stream: stream})
	if err := c.StartListening(nil, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.StopListening()
	c.StopListening() // second stop is a no-op
}

func TestContinuationWords(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"I worked on the backend and", true},
		{"let me think about", true},
		{"that was the result.", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := continuationLikely(tc.text); got != tc.want {
			t.Fatalf("continuationLikely(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestLastWord(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hello there, World!", "world"},
		{"one two-three", "three"},
		{"  ", ""},
		{"123", ""},
	}
	for _, tc := range cases {
		if got := lastWord(tc.in); got != tc.want {
			t.Fatalf("lastWord(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
