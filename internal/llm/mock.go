package llm

import (
	"context"
	"fmt"
	"strings"
)

// Mock provides deterministic question and feedback generation for
// deployments without OpenAI credentials and for tests. The interface shape
// is identical to the real client so callers degrade transparently.
type Mock struct{}

var _ QuestionGenerator = Mock{}
var _ FeedbackGenerator = Mock{}

var behavioralQuestions = []GeneratedQuestion{
	{Question: "Tell me about yourself and why you're interested in %s.", Category: "introduction", Difficulty: "easy"},
	{Question: "Describe a challenging project you worked on and how you handled it.", Category: "behavioral", Difficulty: "medium"},
	{Question: "Tell me about a time you disagreed with a teammate. What did you do?", Category: "behavioral", Difficulty: "medium"},
	{Question: "What is your biggest professional weakness, and how do you manage it?", Category: "self-assessment", Difficulty: "medium"},
	{Question: "Where do you see yourself in five years, and how does %s fit into that?", Category: "motivation", Difficulty: "easy"},
}

var technicalQuestions = []GeneratedQuestion{
	{Question: "Walk me through how you would design a system relevant to the role at %s.", Category: "system-design", Difficulty: "hard"},
	{Question: "Describe a difficult bug you tracked down. How did you find the root cause?", Category: "debugging", Difficulty: "medium"},
	{Question: "How do you decide what to test, and what does good test coverage mean to you?", Category: "testing", Difficulty: "medium"},
	{Question: "Explain a technical concept from the job description to a non-technical stakeholder.", Category: "communication", Difficulty: "medium"},
	{Question: "What trade-offs do you weigh when choosing between a quick fix and a refactor?", Category: "engineering-judgment", Difficulty: "medium"},
}

// GenerateQuestions returns a fixed question list with the company name
// substituted in. Never fails.
func (Mock) GenerateQuestions(_ context.Context, req QuestionRequest) ([]GeneratedQuestion, error) {
	source := behavioralQuestions
	if strings.EqualFold(req.Mode, "technical") {
		source = technicalQuestions
	}
	count := len(source)
	if req.InitialOnly {
		count = 2
	}
	company := req.Company
	if company == "" {
		company = "the company"
	}
	out := make([]GeneratedQuestion, 0, count)
	for _, q := range source[:count] {
		if strings.Contains(q.Question, "%s") {
			q.Question = fmt.Sprintf(q.Question, company)
		}
		out = append(out, q)
	}
	return out, nil
}

// strongKeywords nudge the mock score up when they appear in an answer.
var strongKeywords = []string{
	"result", "impact", "team", "learned", "measured", "improved",
	"led", "designed", "tested", "shipped", "data", "customer",
}

// GenerateFeedback derives a deterministic-ish score from answer length and
// keyword presence, mirroring the real rubric's shape. Never fails.
func (Mock) GenerateFeedback(_ context.Context, req FeedbackRequest) (*FeedbackResult, error) {
	answer := strings.TrimSpace(req.Answer)
	words := len(strings.Fields(answer))

	score := 2
	if words >= 30 {
		score = 3
	}
	if words >= 80 {
		score = 4
	}
	lower := strings.ToLower(answer)
	hits := 0
	for _, kw := range strongKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	if hits >= 2 && score < 5 {
		score++
	}
	if words < 10 {
		score = 1
	}

	result := &FeedbackResult{
		Score: score,
		Strengths: []string{
			"You engaged with the question directly.",
		},
		Improvements: []string{
			"Structure your answer with a situation, action and result.",
		},
	}
	switch {
	case score >= 4:
		result.Feedback = "Strong answer: specific, well structured and grounded in real outcomes."
		result.Strengths = append(result.Strengths, "Concrete details and measurable outcomes.")
	case score == 3:
		result.Feedback = "Solid answer. Adding a measurable result would make it more convincing."
	default:
		result.Feedback = "The answer is too brief to evaluate well. Expand with a concrete example."
		result.Improvements = append(result.Improvements, "Aim for at least a few sentences with a real example.")
	}

	if req.GenerateFollowUp {
		result.FollowUp = true
		result.FollowUpQuestion = "Can you go deeper on the most difficult part of that, and what you would do differently now?"
		result.FollowUpCategory = req.Category
		if result.FollowUpCategory == "" {
			result.FollowUpCategory = "follow-up"
		}
	}
	return result, nil
}
