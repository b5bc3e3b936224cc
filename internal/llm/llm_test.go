package llm

import (
	"context"
	"strings"
	"testing"
)

func TestMockQuestions_ModeAndCompany(t *testing.T) {
	m := Mock{}
	qs, err := m.GenerateQuestions(context.Background(), QuestionRequest{
		Company: "Acme", Mode: "behavioral",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(qs) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(qs))
	}
	found := false
	for _, q := range qs {
		if q.Question == "" || q.Category == "" {
			t.Fatalf("question missing fields: %+v", q)
		}
		if strings.Contains(q.Question, "Acme") {
			found = true
		}
		if strings.Contains(q.Question, "%s") {
			t.Fatalf("unsubstituted placeholder in %q", q.Question)
		}
	}
	if !found {
		t.Fatalf("company name never substituted into question set")
	}
}

func TestMockQuestions_InitialOnly(t *testing.T) {
	m := Mock{}
	qs, err := m.GenerateQuestions(context.Background(), QuestionRequest{
		Company: "Acme", Mode: "technical", InitialOnly: true,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("expected 2 initial questions, got %d", len(qs))
	}
}

func TestMockFeedback_ScoreTracksAnswerQuality(t *testing.T) {
	m := Mock{}
	short, _ := m.GenerateFeedback(context.Background(), FeedbackRequest{Answer: "I don't know."})
	long, _ := m.GenerateFeedback(context.Background(), FeedbackRequest{
		Answer: strings.Repeat("I led the team and we measured the impact of what we shipped. ", 10),
	})
	if short.Score != 1 {
		t.Fatalf("expected score 1 for a throwaway answer, got %d", short.Score)
	}
	if long.Score <= short.Score {
		t.Fatalf("expected a richer answer to score higher: %d vs %d", long.Score, short.Score)
	}
	if long.Score < 1 || long.Score > 5 {
		t.Fatalf("score out of range: %d", long.Score)
	}
	// Deterministic: same input, same output.
	again, _ := m.GenerateFeedback(context.Background(), FeedbackRequest{Answer: "I don't know."})
	if again.Score != short.Score || again.Feedback != short.Feedback {
		t.Fatalf("mock feedback not deterministic")
	}
}

func TestMockFeedback_FollowUp(t *testing.T) {
	m := Mock{}
	fb, _ := m.GenerateFeedback(context.Background(), FeedbackRequest{
		Answer:           "A reasonable answer with some detail about the team and the result we achieved together.",
		Category:         "behavioral",
		GenerateFollowUp: true,
	})
	if !fb.FollowUp || fb.FollowUpQuestion == "" {
		t.Fatalf("expected follow-up question, got %+v", fb)
	}
	if fb.FollowUpCategory != "behavioral" {
		t.Fatalf("expected follow-up category to inherit, got %q", fb.FollowUpCategory)
	}

	none, _ := m.GenerateFeedback(context.Background(), FeedbackRequest{Answer: "Answer."})
	if none.FollowUp {
		t.Fatalf("unexpected follow-up when not requested")
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`[{"question":"q"}]`, `[{"question":"q"}]`},
		{"Here you go:\n```json\n[{\"question\":\"q\"}]\n```", `[{"question":"q"}]`},
		{"```\n{\"score\":3}\n```", `{"score":3}`},
		{"Sure! {\"score\": 4} Hope that helps.", `{"score": 4}`},
	}
	for _, tc := range cases {
		if got := extractJSON(tc.in); got != tc.want {
			t.Fatalf("extractJSON(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
