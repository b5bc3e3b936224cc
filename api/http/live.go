package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/justgrego/AI-pplicant/internal/capture"
	"github.com/justgrego/AI-pplicant/internal/interview"
	"github.com/justgrego/AI-pplicant/internal/session"
	"github.com/justgrego/AI-pplicant/internal/tts"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// liveStart is the first message a client sends after connecting.
type liveStart struct {
	Company        string   `json:"company"`
	JobDescription string   `json:"jobDescription"`
	InterviewMode  string   `json:"interviewMode"`
	VoiceID        string   `json:"voiceId"`
	Encodings      []string `json:"encodings"`
}

// liveCommand is any later text-frame control message.
type liveCommand struct {
	Type string `json:"type"` // "listen", "stop", "answer", "restart"
	Text string `json:"text"`
}

type liveEvent struct {
	Type        string          `json:"type"`
	Turn        *interview.Turn `json:"turn,omitempty"`
	TurnID      string          `json:"turnId,omitempty"`
	ContentType string          `json:"contentType,omitempty"`
	Audio       string          `json:"audio,omitempty"` // base64
	Transcript  string          `json:"transcript,omitempty"`
	Message     string          `json:"message,omitempty"`
}

// wsMicStream adapts binary websocket frames to the capture mic contract.
// The socket read loop pushes frames in; capture reads them out.
type wsMicStream struct {
	frames    chan []byte
	closed    chan struct{}
	once      sync.Once
	encodings []string
}

func newWSMicStream(encodings []string) *wsMicStream {
	if len(encodings) == 0 {
		encodings = []string{"audio/webm;codecs=opus"}
	}
	return &wsMicStream{
		frames:    make(chan []byte, 64),
		closed:    make(chan struct{}),
		encodings: encodings,
	}
}

func (s *wsMicStream) Read() ([]byte, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *wsMicStream) Encodings() []string { return s.encodings }

func (s *wsMicStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *wsMicStream) push(frame []byte) {
	select {
	case s.frames <- frame:
	case <-s.closed:
	default:
		// Drop the frame rather than stall the socket read loop.
	}
}

// wsMicSource hands out one stream per listen request and remembers the
// current one so the socket read loop knows where to route audio frames.
type wsMicSource struct {
	mu        sync.Mutex
	current   *wsMicStream
	encodings []string
}

func (s *wsMicSource) Open() (capture.MicStream, error) {
	stream := newWSMicStream(s.encodings)
	s.mu.Lock()
	s.current = stream
	s.mu.Unlock()
	return stream, nil
}

func (s *wsMicSource) push(frame []byte) {
	s.mu.Lock()
	stream := s.current
	s.mu.Unlock()
	if stream != nil {
		stream.push(frame)
	}
}

// live runs one interview over a websocket: question and feedback turns and
// their audio stream down as JSON events, candidate speech streams up as
// binary frames.
func (h Handlers) live(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	var start liveStart
	if _, raw, err := conn.ReadMessage(); err != nil {
		return nil
	} else if err := json.Unmarshal(raw, &start); err != nil || start.Company == "" || start.JobDescription == "" {
		_ = conn.WriteJSON(liveEvent{Type: "error", Message: "first message must set company and jobDescription"})
		return nil
	}

	// One writer goroutine serializes all socket writes. Session callbacks may
	// fire after the handler returns; send drops events instead of blocking or
	// writing to a dead socket.
	out := make(chan liveEvent, 32)
	done := make(chan struct{})
	writerDone := make(chan struct{})
	defer close(done)
	go func() {
		defer close(writerDone)
		for {
			select {
			case ev := <-out:
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()
	send := func(ev liveEvent) {
		select {
		case out <- ev:
		case <-writerDone:
		case <-done:
		}
	}

	sess := session.New(session.Config{
		Company:        start.Company,
		JobDescription: start.JobDescription,
		Mode:           start.InterviewMode,
		VoiceID:        start.VoiceID,
		Questions:      h.Questions,
		Feedback:       h.Feedback,
		Player:         tts.NewPlayer(h.Synth),
		OnTurn: func(t interview.Turn) {
			send(liveEvent{Type: "turn", Turn: &t})
		},
		OnAudio: func(turnID string, audio []byte, contentType string) {
			send(liveEvent{
				Type:        "audio",
				TurnID:      turnID,
				ContentType: contentType,
				Audio:       base64.StdEncoding.EncodeToString(audio),
			})
		},
	})
	defer sess.Close()

	if err := sess.Start(c.Request().Context()); err != nil {
		send(liveEvent{Type: "error", Message: "could not start the interview"})
	}

	var recFactory func() capture.Recognizer
	if h.AssemblyAIKey != "" {
		key := h.AssemblyAIKey
		recFactory = func() capture.Recognizer {
			return capture.NewRealtimeRecognizer(key, "")
		}
	}
	source := &wsMicSource{encodings: start.Encodings}
	mic := capture.New(recFactory, h.Transcriber, source)
	mic.OnPartial = func(text string) {
		send(liveEvent{Type: "partial", Transcript: text})
	}
	defer mic.StopListening()

	submit := func(text string) {
		if text == "" {
			return
		}
		go func() {
			if _, err := sess.SubmitAnswer(context.Background(), text); err != nil {
				log.Printf("live: answer rejected: %v", err)
			}
		}()
	}
	onTranscript := func(text string) {
		send(liveEvent{Type: "transcript", Transcript: text})
		submit(text)
	}
	onCaptureErr := func(err error) {
		log.Printf("live: capture error: %v", err)
		if errors.Is(err, capture.ErrTranscription) {
			send(liveEvent{Type: "transcript", Transcript: "", Message: "No speech detected in the recording."})
			return
		}
		send(liveEvent{Type: "error", Message: err.Error()})
	}

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		if msgType == websocket.BinaryMessage {
			source.push(raw)
			continue
		}

		var cmd liveCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			send(liveEvent{Type: "error", Message: "unrecognized control message"})
			continue
		}
		switch cmd.Type {
		case "listen":
			if err := mic.StartListening(onTranscript, onCaptureErr); err != nil {
				send(liveEvent{Type: "error", Message: err.Error()})
			}
		case "stop":
			mic.StopListening()
		case "answer":
			submit(cmd.Text)
		case "restart":
			mic.StopListening()
			sess.Restart()
			if err := sess.Start(c.Request().Context()); err != nil {
				send(liveEvent{Type: "error", Message: "could not restart the interview"})
			}
		default:
			send(liveEvent{Type: "error", Message: "unknown command type"})
		}
	}
}
