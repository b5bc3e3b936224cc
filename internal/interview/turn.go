package interview

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
	RoleFeedback    Role = "feedback"
)

// Question carries the structured payload attached to an interviewer turn.
type Question struct {
	Text       string `json:"question"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty,omitempty"`
}

// Feedback carries the structured payload attached to a feedback turn.
type Feedback struct {
	Text         string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Score        int      `json:"score"`
	FollowUp     bool     `json:"follow_up"`
}

// Turn is one message in the interview conversation.
//
// Content is the full text shown in the UI; SpokenContent, when set, is the
// shorter form used for audio playback. NeedsAudio stays true until the
// turn's audio has finished playing. Sequence is a logical timestamp: the
// log is ordered by Sequence, not by arrival, so a delayed feedback turn can
// still interleave after the answer it belongs to.
type Turn struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	SpokenContent string    `json:"spokenContent,omitempty"`
	NeedsAudio    bool      `json:"needsAudio"`
	Sequence      int64     `json:"sequence"`
	Question      *Question `json:"question,omitempty"`
	Feedback      *Feedback `json:"feedback,omitempty"`
}

// Spoken returns the text to synthesize for this turn.
func (t Turn) Spoken() string {
	if t.SpokenContent != "" {
		return t.SpokenContent
	}
	return t.Content
}
