package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/justgrego/AI-pplicant/internal/interview"
	"github.com/justgrego/AI-pplicant/internal/llm"
	"github.com/justgrego/AI-pplicant/internal/tts"
)

// ErrEmptyAnswer rejects blank answer submissions locally.
var ErrEmptyAnswer = errors.New("session: answer is empty")

// Config wires a session's collaborators. Questions and Feedback may be the
// real OpenAI client or the deterministic mock; the session degrades to the
// mock itself when a remote call fails.
type Config struct {
	Company        string
	JobDescription string
	Mode           string
	VoiceID        string

	Questions llm.QuestionGenerator
	Feedback  llm.FeedbackGenerator
	Player    *tts.Player

	// OnTurn fires after a turn is accepted into the log.
	OnTurn func(interview.Turn)
	// OnAudio receives synthesized audio for a turn, when a real provider
	// produced any.
	OnAudio func(turnID string, audio []byte, contentType string)
}

// Session orchestrates one mock interview: it feeds generated questions and
// feedback into the turn sequencer and drives serialized audio playback.
//
// Every remote call snapshots the generation counter; Restart bumps it, so
// a stale response arriving after a restart is detected and dropped instead
// of being applied to the reset conversation.
type Session struct {
	id  string
	cfg Config
	seq *interview.Sequencer

	generation atomic.Uint64

	mu         sync.Mutex
	playing    string          // id of the turn whose audio is active, "" when idle
	lastPlayed int64           // sequence of the last turn that finished playing
	played     map[string]bool // session-scoped played store
	playCtx    context.Context
	playStop   context.CancelFunc

	questions []llm.GeneratedQuestion
	asked     int
	deferred  *llm.GeneratedQuestion // follow-up rejected while a question was pending
}

// New constructs an idle session. Call Start to generate questions and begin.
func New(cfg Config) *Session {
	if cfg.Questions == nil {
		cfg.Questions = llm.Mock{}
	}
	if cfg.Feedback == nil {
		cfg.Feedback = llm.Mock{}
	}
	if cfg.Player == nil {
		cfg.Player = tts.NewPlayer(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		seq:      interview.NewSequencer(),
		played:   make(map[string]bool),
		playCtx:  ctx,
		playStop: cancel,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Turns returns the current conversation log.
func (s *Session) Turns() []interview.Turn { return s.seq.Turns() }

// Generation returns the current restart generation.
func (s *Session) Generation() uint64 { return s.generation.Load() }

// Start generates the question set and asks the first question. A failing
// question service degrades to the mock list rather than failing the
// interview.
func (s *Session) Start(ctx context.Context) error {
	gen := s.generation.Load()
	req := llm.QuestionRequest{
		Company:        s.cfg.Company,
		JobDescription: s.cfg.JobDescription,
		Mode:           s.cfg.Mode,
	}
	questions, err := s.cfg.Questions.GenerateQuestions(ctx, req)
	if err != nil {
		log.Printf("session: question generation failed, using mock set: %v", err)
		questions, _ = llm.Mock{}.GenerateQuestions(ctx, req)
	}
	if s.stale(gen) {
		log.Printf("session: dropping question set from a previous generation")
		return nil
	}

	s.mu.Lock()
	s.questions = questions
	s.asked = 0
	s.mu.Unlock()

	s.askNextQuestion()
	return nil
}

// SubmitAnswer records the candidate's answer, fetches feedback for it, and
// queues the follow-up or next question. The returned feedback is also
// appended to the log as a feedback turn.
func (s *Session) SubmitAnswer(ctx context.Context, answer string) (*llm.FeedbackResult, error) {
	if answer == "" {
		return nil, ErrEmptyAnswer
	}
	gen := s.generation.Load()

	if err := s.addTurn(interview.Turn{
		Role:    interview.RoleCandidate,
		Content: answer,
	}); err != nil {
		// Duplicate submissions are a no-op, not a user-visible failure.
		log.Printf("session: answer turn rejected: %v", err)
		return nil, nil
	}

	current := s.currentQuestion()
	req := llm.FeedbackRequest{
		Answer:           answer,
		Company:          s.cfg.Company,
		Mode:             s.cfg.Mode,
		History:          s.history(),
		GenerateFollowUp: true,
	}
	if current != nil {
		req.Question = current.Text
		req.Category = current.Category
		req.Difficulty = current.Difficulty
	}

	fb, err := s.cfg.Feedback.GenerateFeedback(ctx, req)
	if err != nil {
		log.Printf("session: feedback failed, using mock rubric: %v", err)
		fb, _ = llm.Mock{}.GenerateFeedback(ctx, req)
	}
	if s.stale(gen) {
		log.Printf("session: dropping feedback from a previous generation")
		return nil, nil
	}

	if err := s.addTurn(interview.Turn{
		Role:          interview.RoleFeedback,
		Content:       fb.Feedback,
		SpokenContent: fb.Feedback,
		Feedback: &interview.Feedback{
			Text:         fb.Feedback,
			Strengths:    fb.Strengths,
			Improvements: fb.Improvements,
			Score:        fb.Score,
			FollowUp:     fb.FollowUp,
		},
	}); err != nil {
		log.Printf("session: feedback turn rejected: %v", err)
	}

	// A question parked by the unanswered-question guard gets its one retry
	// only after the feedback turn has landed, so feedback always sorts
	// between the answer it scores and the next question.
	s.retryDeferredQuestion()

	if fb.FollowUp && fb.FollowUpQuestion != "" {
		s.askQuestion(llm.GeneratedQuestion{
			Question: fb.FollowUpQuestion,
			Category: fb.FollowUpCategory,
		})
	} else {
		s.askNextQuestion()
	}
	return fb, nil
}

// Restart resets the conversation for a fresh interview. In-flight remote
// responses from before the restart are dropped by the generation check.
func (s *Session) Restart() {
	s.generation.Add(1)

	s.mu.Lock()
	s.playStop()
	ctx, cancel := context.WithCancel(context.Background())
	s.playCtx = ctx
	s.playStop = cancel
	s.playing = ""
	s.lastPlayed = 0
	s.played = make(map[string]bool)
	s.questions = nil
	s.asked = 0
	s.deferred = nil
	s.mu.Unlock()

	s.seq.Reset()
}

// Close stops playback permanently.
func (s *Session) Close() {
	s.mu.Lock()
	s.playStop()
	s.mu.Unlock()
}

// stale reports whether gen belongs to a generation before the last restart.
func (s *Session) stale(gen uint64) bool {
	return gen != s.generation.Load()
}

// addTurn appends through the sequencer, notifies OnTurn, and kicks playback.
func (s *Session) addTurn(t interview.Turn) error {
	if err := s.seq.AddTurn(t); err != nil {
		return err
	}
	if s.cfg.OnTurn != nil {
		// Fetch the stored turn so the callback sees assigned id/sequence.
		for _, stored := range s.seq.Turns() {
			if stored.Role == t.Role && stored.Content == t.Content {
				s.cfg.OnTurn(stored)
				break
			}
		}
	}
	s.advance()
	return nil
}

// askNextQuestion takes the next unasked question from the generated set.
func (s *Session) askNextQuestion() {
	s.mu.Lock()
	if s.asked >= len(s.questions) {
		s.mu.Unlock()
		return
	}
	q := s.questions[s.asked]
	s.mu.Unlock()
	s.askQuestion(q)
}

// askQuestion appends an interviewer turn for q. When the unanswered-question
// guard rejects it, the question is parked for one retry after the next
// answer.
func (s *Session) askQuestion(q llm.GeneratedQuestion) {
	err := s.addTurn(interview.Turn{
		Role:          interview.RoleInterviewer,
		Content:       q.Question,
		SpokenContent: q.Question,
		Question: &interview.Question{
			Text:       q.Question,
			Category:   q.Category,
			Difficulty: q.Difficulty,
		},
	})
	switch {
	case err == nil:
		s.mu.Lock()
		s.asked++
		s.mu.Unlock()
	case errors.Is(err, interview.ErrQuestionPending):
		s.mu.Lock()
		s.deferred = &q
		s.mu.Unlock()
		log.Printf("session: question deferred until current one is answered")
	default:
		log.Printf("session: question turn rejected: %v", err)
	}
}

func (s *Session) retryDeferredQuestion() {
	s.mu.Lock()
	q := s.deferred
	s.deferred = nil
	s.mu.Unlock()
	if q != nil {
		s.askQuestion(*q)
	}
}

// currentQuestion returns the most recent interviewer question, if any.
func (s *Session) currentQuestion() *interview.Question {
	turns := s.seq.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == interview.RoleInterviewer && turns[i].Question != nil {
			return turns[i].Question
		}
	}
	return nil
}

// history renders the log for the feedback prompt.
func (s *Session) history() []llm.HistoryItem {
	turns := s.seq.Turns()
	out := make([]llm.HistoryItem, 0, len(turns))
	for _, t := range turns {
		out = append(out, llm.HistoryItem{Role: string(t.Role), Content: t.Content})
	}
	return out
}

// advance plays the next audio turn if nothing is playing. Playback is
// strictly serialized: the playing slot is cleared before the next candidate
// is selected, and a turn that has already played is never replayed.
func (s *Session) advance() {
	s.mu.Lock()
	if s.playing != "" {
		s.mu.Unlock()
		return
	}
	turn, ok := s.seq.NextAudioTurn(s.lastPlayed)
	if !ok {
		s.mu.Unlock()
		return
	}
	if s.played[turn.ID] {
		// Already played in this session; consume and look again.
		s.mu.Unlock()
		s.seq.MarkAudioConsumed(turn.ID)
		s.advance()
		return
	}
	s.playing = turn.ID
	ctx := s.playCtx
	s.mu.Unlock()

	gen := s.generation.Load()
	go func() {
		err := s.cfg.Player.Play(ctx, turn.Spoken(), tts.Options{
			VoiceID: s.cfg.VoiceID,
			OnAudio: func(audio []byte, contentType string) {
				if s.cfg.OnAudio != nil && !s.stale(gen) {
					s.cfg.OnAudio(turn.ID, audio, contentType)
				}
			},
			OnEnd: func() {
				s.finishPlayback(turn, gen)
			},
		})
		if err != nil {
			log.Printf("session: playback error for turn %s: %v", turn.ID, err)
		}
	}()
}

// finishPlayback releases the playing slot and advances the cursor.
func (s *Session) finishPlayback(turn interview.Turn, gen uint64) {
	s.mu.Lock()
	if s.playing == turn.ID {
		s.playing = ""
	}
	s.played[turn.ID] = true
	if turn.Sequence > s.lastPlayed {
		s.lastPlayed = turn.Sequence
	}
	s.mu.Unlock()

	s.seq.MarkAudioConsumed(turn.ID)
	if !s.stale(gen) {
		s.advance()
	}
}

// String implements fmt.Stringer for diagnostics.
func (s *Session) String() string {
	return fmt.Sprintf("session %s gen=%d turns=%d", s.id, s.Generation(), s.seq.Len())
}
