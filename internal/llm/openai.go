package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient generates questions and feedback via the OpenAI chat API.
type OpenAIClient struct {
	client *openai.Client
	model  string
	apiKey string
}

// NewOpenAIClient constructs a client. The key is validated per call so the
// zero-credential case degrades instead of failing construction.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = "gpt-4o-mini"
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{client: &client, model: model, apiKey: apiKey}
}

// Configured reports whether an API key is present.
func (c *OpenAIClient) Configured() bool { return c.apiKey != "" }

const questionSystemPrompt = "You are an experienced interviewer preparing questions for a candidate. " +
	"Respond with a JSON array only, no prose. Each element has fields " +
	"\"question\", \"category\" and optional \"difficulty\"."

// GenerateQuestions asks the model for a question set tailored to the
// company and job description.
func (c *OpenAIClient) GenerateQuestions(ctx context.Context, req QuestionRequest) ([]GeneratedQuestion, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("openai api key missing")
	}

	count := 5
	if req.InitialOnly {
		count = 2
	}
	user := fmt.Sprintf(
		"Company: %s\nInterview mode: %s\nJob description:\n%s\n\nGenerate %d %s interview questions for this role.",
		req.Company, req.Mode, req.JobDescription, count, req.Mode)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(questionSystemPrompt),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai questions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai questions: empty choices")
	}

	var questions []GeneratedQuestion
	if err := json.Unmarshal([]byte(extractJSON(resp.Choices[0].Message.Content)), &questions); err != nil {
		return nil, fmt.Errorf("openai questions: parse reply: %w", err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("openai questions: no questions in reply")
	}
	return questions, nil
}

const feedbackSystemPrompt = "You are an interview coach. Evaluate the candidate's answer and respond with a " +
	"JSON object only: {\"feedback\", \"strengths\" (array), \"improvements\" (array), " +
	"\"score\" (1-5), \"follow_up\" (bool), \"follow_up_question\", \"follow_up_category\"}."

// GenerateFeedback asks the model to score a single answer, optionally
// producing a follow-up question.
func (c *OpenAIClient) GenerateFeedback(ctx context.Context, req FeedbackRequest) (*FeedbackResult, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("openai api key missing")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\nInterview mode: %s\n", req.Company, req.Mode)
	fmt.Fprintf(&b, "Question (%s, %s): %s\n", req.Category, req.Difficulty, req.Question)
	if len(req.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, h := range req.History {
			fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(h.Role), h.Content)
		}
	}
	fmt.Fprintf(&b, "Candidate answer: %s\n", req.Answer)
	if req.GenerateFollowUp {
		b.WriteString("Include a follow-up question that probes deeper into this answer.\n")
	} else {
		b.WriteString("Do not include a follow-up question.\n")
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(feedbackSystemPrompt),
			openai.UserMessage(b.String()),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai feedback: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai feedback: empty choices")
	}

	var result FeedbackResult
	if err := json.Unmarshal([]byte(extractJSON(resp.Choices[0].Message.Content)), &result); err != nil {
		return nil, fmt.Errorf("openai feedback: parse reply: %w", err)
	}
	if result.Score < 1 {
		result.Score = 1
	}
	if result.Score > 5 {
		result.Score = 5
	}
	return &result, nil
}

// extractJSON strips markdown code fences and surrounding prose that models
// sometimes wrap around a JSON payload.
func extractJSON(reply string) string {
	s := strings.TrimSpace(reply)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	s = strings.TrimSpace(s)
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '[' {
		end = strings.LastIndex(s, "]")
	} else {
		end = strings.LastIndex(s, "}")
	}
	if end > start {
		return s[start : end+1]
	}
	return s
}
