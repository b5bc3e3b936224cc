package interview

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Rejection reasons returned by AddTurn. Callers treat all of these as
// droppable no-ops: a racing duplicate submission must never corrupt the
// conversation log, so the correct reaction is to log and move on, not to
// surface an error to the user.
var (
	ErrDuplicateTurn   = errors.New("interview: duplicate turn")
	ErrQuestionPending = errors.New("interview: previous question not yet answered")
	ErrNoAnswer        = errors.New("interview: feedback requires a prior candidate answer")
	ErrFeedbackExists  = errors.New("interview: answer already has feedback")
)

// Sequencer owns the ordered turn log for one interview session. It decides
// which turn should play audio next and enforces the conversation-shape
// guards: at most one unanswered interviewer question, at most one feedback
// turn per candidate answer, no duplicate turns.
//
// The sequencer is a pure data structure: it does not track which turn is
// currently playing. That slot belongs to the session that owns it.
type Sequencer struct {
	mu    sync.Mutex
	turns []Turn
	next  int64
}

// NewSequencer returns an empty sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{next: 1}
}

// AddTurn validates and inserts a turn into the log. Missing ID and Sequence
// are assigned at insertion. The log is kept sorted by Sequence so turns that
// arrive late with an earlier logical timestamp interleave correctly.
func (s *Sequencer) AddTurn(t Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.turns {
		if t.ID != "" && existing.ID == t.ID {
			return ErrDuplicateTurn
		}
		if existing.Role == t.Role && existing.Content == t.Content {
			return ErrDuplicateTurn
		}
	}

	switch t.Role {
	case RoleInterviewer:
		if t.Question != nil && s.hasUnansweredQuestionLocked() {
			return ErrQuestionPending
		}
	case RoleFeedback:
		lastCandidate := s.lastSequenceLocked(RoleCandidate)
		if lastCandidate == 0 {
			return ErrNoAnswer
		}
		if s.lastSequenceLocked(RoleFeedback) > lastCandidate {
			return ErrFeedbackExists
		}
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Sequence == 0 {
		t.Sequence = s.next
	}
	if t.Sequence >= s.next {
		s.next = t.Sequence + 1
	}
	if t.SpokenContent != "" {
		t.NeedsAudio = true
	}

	s.turns = append(s.turns, t)
	sort.SliceStable(s.turns, func(i, j int) bool {
		return s.turns[i].Sequence < s.turns[j].Sequence
	})
	return nil
}

// hasUnansweredQuestionLocked reports whether the most recent
// interviewer-with-question turn is newer than the most recent candidate turn.
func (s *Sequencer) hasUnansweredQuestionLocked() bool {
	var lastQuestion, lastAnswer int64
	for _, t := range s.turns {
		switch {
		case t.Role == RoleInterviewer && t.Question != nil:
			if t.Sequence > lastQuestion {
				lastQuestion = t.Sequence
			}
		case t.Role == RoleCandidate:
			if t.Sequence > lastAnswer {
				lastAnswer = t.Sequence
			}
		}
	}
	return lastQuestion > lastAnswer
}

func (s *Sequencer) lastSequenceLocked(role Role) int64 {
	var last int64
	for _, t := range s.turns {
		if t.Role == role && t.Sequence > last {
			last = t.Sequence
		}
	}
	return last
}

// NextAudioTurn returns the turn that should play audio next. It prefers the
// earliest unplayed turn with Sequence > afterSeq; when nothing follows
// afterSeq it falls back to the earliest unplayed turn overall, so a turn
// queued out of order is not starved forever. Pass 0 to take the earliest
// unplayed turn. The second return is false when no turn needs audio.
func (s *Sequencer) NextAudioTurn(afterSeq int64) (Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.turns {
		if t.NeedsAudio && t.Sequence > afterSeq {
			return t, true
		}
	}
	for _, t := range s.turns {
		if t.NeedsAudio {
			return t, true
		}
	}
	return Turn{}, false
}

// MarkAudioConsumed flips NeedsAudio off for the given turn. Idempotent;
// unknown IDs are ignored.
func (s *Sequencer) MarkAudioConsumed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.turns {
		if s.turns[i].ID == id {
			s.turns[i].NeedsAudio = false
			return
		}
	}
}

// Reset clears the log for an interview restart. The sequence counter keeps
// climbing so turns from before the reset can never interleave with new ones.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// Turns returns a snapshot of the log in sequence order.
func (s *Sequencer) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len reports the number of turns in the log.
func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}
