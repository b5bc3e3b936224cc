package llm

import "context"

// QuestionRequest describes one question-set generation call.
type QuestionRequest struct {
	Company        string
	JobDescription string
	Mode           string
	InitialOnly    bool
}

// GeneratedQuestion is a single interview question with its metadata.
type GeneratedQuestion struct {
	Question   string `json:"question"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty,omitempty"`
}

// HistoryItem is one prior exchange passed along for feedback context.
type HistoryItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FeedbackRequest describes one per-answer feedback call.
type FeedbackRequest struct {
	Answer           string
	Question         string
	Category         string
	Difficulty       string
	Company          string
	Mode             string
	History          []HistoryItem
	GenerateFollowUp bool
}

// FeedbackResult is the structured feedback for one candidate answer.
type FeedbackResult struct {
	Feedback         string   `json:"feedback"`
	Strengths        []string `json:"strengths"`
	Improvements     []string `json:"improvements"`
	Score            int      `json:"score"`
	FollowUp         bool     `json:"follow_up"`
	FollowUpQuestion string   `json:"follow_up_question,omitempty"`
	FollowUpCategory string   `json:"follow_up_category,omitempty"`
}

// QuestionGenerator produces an interview question set.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, req QuestionRequest) ([]GeneratedQuestion, error)
}

// FeedbackGenerator scores a candidate answer.
type FeedbackGenerator interface {
	GenerateFeedback(ctx context.Context, req FeedbackRequest) (*FeedbackResult, error)
}
