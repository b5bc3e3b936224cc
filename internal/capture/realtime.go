package capture

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gorilla/websocket"
)

// silenceThreshold is the inactivity window required before an utterance is
// considered complete. Conservative so the candidate is not cut off
// mid-sentence.
const silenceThreshold = 700 * time.Millisecond

// continuationExtension is added to the threshold when the last recognized
// word suggests the sentence will continue ("and", "because", ...).
const continuationExtension = 1200 * time.Millisecond

// RealtimeRecognizer streams PCM to a websocket speech-recognition service
// and emits partial and finalized transcripts. It is the primary engine in
// Capture; auth and connection failures are classified so the session can
// switch to the upload fallback.
type RealtimeRecognizer struct {
	apiKey     string
	endpoint   string
	sampleRate int

	conn      *websocket.Conn
	partials  chan string
	finals    chan string
	outgoing  chan []byte
	stop      chan struct{}
	readDone  chan struct{}
	mu        sync.RWMutex
	connected bool

	// sendMu orders late producer sends against channel close
	sendMu     sync.Mutex
	chanClosed bool

	// utterance accumulation under its own lock
	accMu     sync.Mutex
	latest    string
	committed string
	lastText  time.Time
	lastVoice time.Time
	silence   *time.Timer
}

// recognizer wire messages
type recognizerEvent struct {
	Type       string `json:"type"`
	ID         string `json:"id,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Error      string `json:"error,omitempty"`
}

// NewRealtimeRecognizer targets the given streaming endpoint. An empty
// endpoint selects the default AssemblyAI v3 streaming service.
func NewRealtimeRecognizer(apiKey, endpoint string) *RealtimeRecognizer {
	if endpoint == "" {
		endpoint = "wss://streaming.assemblyai.com/v3/ws"
	}
	return &RealtimeRecognizer{
		apiKey:     apiKey,
		endpoint:   endpoint,
		sampleRate: 16000,
		partials:   make(chan string, 100),
		finals:     make(chan string, 10),
		outgoing:   make(chan []byte, 1000),
		stop:       make(chan struct{}),
	}
}

// Connect dials the streaming service and starts the read/write pumps.
func (r *RealtimeRecognizer) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected {
		return nil
	}
	if r.apiKey == "" {
		return fmt.Errorf("%w: api key missing", ErrEngineAuth)
	}

	params := url.Values{}
	params.Set("sample_rate", fmt.Sprintf("%d", r.sampleRate))
	params.Set("encoding", "pcm_s16le")
	wsURL := fmt.Sprintf("%s?%s", r.endpoint, params.Encode())

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, http.Header{"Authorization": {r.apiKey}})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: status=%d", ErrEngineAuth, resp.StatusCode)
		}
		return fmt.Errorf("%w: dial: %v", ErrEngineNetwork, err)
	}

	r.conn = conn
	r.connected = true
	r.readDone = make(chan struct{})
	now := time.Now()
	r.accMu.Lock()
	r.lastText = now
	r.lastVoice = now
	r.accMu.Unlock()

	go r.readLoop()
	go r.writeLoop()
	return nil
}

// SendAudio queues a PCM16LE frame for the service and tracks voice energy
// for end-of-utterance detection. Frames are dropped, not blocked on, when
// the queue is full.
func (r *RealtimeRecognizer) SendAudio(pcm []byte) error {
	r.mu.RLock()
	connected := r.connected
	r.mu.RUnlock()
	if !connected {
		return fmt.Errorf("%w: not connected", ErrEngineNetwork)
	}
	r.trackVoiceEnergy(pcm)
	select {
	case r.outgoing <- pcm:
	default:
		log.Printf("capture: audio queue full, dropping frame")
	}
	return nil
}

// Transcripts streams live partial transcripts.
func (r *RealtimeRecognizer) Transcripts() <-chan string { return r.partials }

// Finalized delivers end-of-utterance deltas.
func (r *RealtimeRecognizer) Finalized() <-chan string { return r.finals }

// RecentVoice reports whether voice energy was seen within the window.
func (r *RealtimeRecognizer) RecentVoice(window time.Duration) bool {
	r.accMu.Lock()
	last := r.lastVoice
	r.accMu.Unlock()
	return time.Since(last) <= window
}

// Close terminates the connection, flushes any uncommitted transcript to
// Finalized, and closes the transcript channels. The read pump is joined
// first and the silence timer's send is fenced by sendMu, so no producer can
// race the channel close.
func (r *RealtimeRecognizer) Close() error {
	r.mu.Lock()
	if !r.connected {
		r.mu.Unlock()
		return nil
	}
	close(r.stop)
	conn := r.conn
	readDone := r.readDone
	r.connected = false
	r.conn = nil
	r.mu.Unlock()

	r.accMu.Lock()
	if r.silence != nil {
		r.silence.Stop()
		r.silence = nil
	}
	r.accMu.Unlock()

	if conn != nil {
		_ = conn.WriteJSON(map[string]string{"type": "Terminate"})
		_ = conn.Close()
	}
	if readDone != nil {
		select {
		case <-readDone:
		case <-time.After(time.Second):
			log.Printf("capture: timed out waiting for recognizer read loop")
		}
	}
	r.flushDelta()

	r.sendMu.Lock()
	r.chanClosed = true
	r.sendMu.Unlock()
	close(r.partials)
	close(r.finals)
	return nil
}

// trackVoiceEnergy updates lastVoice when the frame's RMS crosses the voice
// threshold. Expects 16-bit little-endian mono PCM.
func (r *RealtimeRecognizer) trackVoiceEnergy(pcm []byte) {
	const minSamples = 160 // 10ms at 16kHz
	if len(pcm) < minSamples*2 {
		return
	}
	step := 2
	if len(pcm) > 3200 {
		step = 4
	}
	var sum float64
	n := 0
	for i := 0; i+1 < len(pcm); i += 2 * step {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sum += float64(v) * float64(v)
		n++
	}
	if n == 0 {
		return
	}
	const voiceRMS = 250.0
	if math.Sqrt(sum/float64(n)) >= voiceRMS {
		r.accMu.Lock()
		r.lastVoice = time.Now()
		r.accMu.Unlock()
	}
}

func (r *RealtimeRecognizer) readLoop() {
	r.mu.RLock()
	readDone := r.readDone
	r.mu.RUnlock()
	defer close(readDone)
	for {
		select {
		case <-r.stop:
			return
		default:
		}
		r.mu.RLock()
		conn := r.conn
		r.mu.RUnlock()
		if conn == nil {
			return
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-r.stop:
			default:
				log.Printf("capture: recognizer read: %v", err)
			}
			return
		}
		r.handleEvent(message)
	}
}

func (r *RealtimeRecognizer) handleEvent(message []byte) {
	select {
	case <-r.stop:
		return
	default:
	}
	var ev recognizerEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		log.Printf("capture: bad recognizer event: %v", err)
		return
	}
	switch ev.Type {
	case "Begin":
		log.Printf("capture: recognizer session began id=%s", ev.ID)
	case "Turn":
		if ev.Transcript == "" {
			return
		}
		select {
		case r.partials <- ev.Transcript:
		default:
		}
		r.accMu.Lock()
		r.latest = ev.Transcript
		r.lastText = time.Now()
		if r.silence == nil {
			r.silence = time.AfterFunc(silenceThreshold, r.finalizeOnSilence)
		} else {
			r.silence.Stop()
			r.silence.Reset(silenceThreshold)
		}
		r.accMu.Unlock()
	case "Termination":
		r.flushDelta()
	case "Error":
		log.Printf("capture: recognizer error: %s", ev.Error)
	}
}

// finalizeOnSilence fires after the silence window. If the transcript or
// voice energy is still fresh (or the last word implies continuation) the
// timer is pushed out; otherwise the uncommitted delta is emitted.
func (r *RealtimeRecognizer) finalizeOnSilence() {
	select {
	case <-r.stop:
		return
	default:
	}

	r.accMu.Lock()
	threshold := silenceThreshold
	if continuationLikely(r.latest) {
		threshold += continuationExtension
	}
	now := time.Now()
	sinceText := now.Sub(r.lastText)
	sinceVoice := now.Sub(r.lastVoice)
	if sinceText < threshold || sinceVoice < threshold {
		wait := threshold - sinceText
		if rem := threshold - sinceVoice; sinceVoice < threshold && rem < wait {
			wait = rem
		}
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
		if r.silence == nil {
			r.silence = time.AfterFunc(wait, r.finalizeOnSilence)
		} else {
			r.silence.Stop()
			r.silence.Reset(wait)
		}
		r.accMu.Unlock()
		return
	}
	delta := r.commitDeltaLocked()
	r.accMu.Unlock()

	if delta != "" {
		r.emitFinal(delta)
	}
}

// emitFinal delivers a finalized delta unless the channels have been closed.
// Best-effort with a short timeout so a stalled consumer cannot wedge the
// silence timer.
func (r *RealtimeRecognizer) emitFinal(delta string) {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	if r.chanClosed {
		return
	}
	select {
	case r.finals <- delta:
	case <-time.After(200 * time.Millisecond):
		log.Printf("capture: timed out delivering final transcript delta")
	}
}

// commitDeltaLocked computes the transcript delta since the last commit and
// advances the committed marker. Caller holds accMu.
func (r *RealtimeRecognizer) commitDeltaLocked() string {
	delta := strings.TrimSpace(strings.TrimPrefix(r.latest, r.committed))
	if delta == "" && r.committed != "" {
		if idx := strings.LastIndex(r.latest, r.committed); idx >= 0 {
			delta = strings.TrimSpace(r.latest[idx+len(r.committed):])
		}
	}
	r.committed = r.latest
	return delta
}

// flushDelta pushes any uncommitted transcript so the last words of an
// answer survive shutdown.
func (r *RealtimeRecognizer) flushDelta() {
	r.accMu.Lock()
	delta := r.commitDeltaLocked()
	r.accMu.Unlock()
	if delta != "" {
		r.emitFinal(delta)
	}
}

func (r *RealtimeRecognizer) writeLoop() {
	for {
		select {
		case <-r.stop:
			return
		case pcm, ok := <-r.outgoing:
			if !ok {
				return
			}
			r.mu.RLock()
			conn := r.conn
			r.mu.RUnlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				log.Printf("capture: recognizer write: %v", err)
				return
			}
		}
	}
}

// continuationLikely reports whether the last meaningful word suggests the
// speaker is mid-sentence.
func continuationLikely(text string) bool {
	w := lastWord(text)
	if w == "" {
		return false
	}
	_, ok := continuationWords[w]
	return ok
}

func lastWord(text string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(text), func(c rune) bool { return !unicode.IsLetter(c) })
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

var continuationWords = map[string]struct{}{
	"and": {}, "or": {}, "but": {}, "nor": {}, "yet": {}, "so": {},
	"if": {}, "when": {}, "while": {}, "though": {}, "although": {},
	"because": {}, "since": {}, "unless": {}, "until": {}, "whereas": {},
	"also": {}, "plus": {}, "um": {}, "uh": {}, "like": {},
	"about": {}, "with": {}, "to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
}
