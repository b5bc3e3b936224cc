package http

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/justgrego/AI-pplicant/internal/config"
	"github.com/justgrego/AI-pplicant/internal/llm"
	"github.com/justgrego/AI-pplicant/internal/transcribe"
	"github.com/justgrego/AI-pplicant/internal/tts"
)

// Handlers carries the provider clients behind the interview API. Each slot
// may hold a real client or the deterministic mock; handlers additionally
// degrade to mock output when a live call fails, so no upstream outage turns
// into a 5xx for the interview flow.
type Handlers struct {
	Questions   llm.QuestionGenerator
	Feedback    llm.FeedbackGenerator
	Synth       tts.Synthesizer
	Transcriber transcribe.Transcriber

	DefaultVoiceID string
	AssemblyAIKey  string
}

// NewHandlers selects real or mock providers from the configured credentials.
func NewHandlers(cfg config.Config) Handlers {
	h := Handlers{
		Questions:      llm.Mock{},
		Feedback:       llm.Mock{},
		Transcriber:    transcribe.Mock{},
		DefaultVoiceID: cfg.ElevenLabsVoiceID,
		AssemblyAIKey:  cfg.AssemblyAIKey,
	}

	if cfg.OpenAIKey != "" {
		oa := llm.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModelID)
		h.Questions = oa
		h.Feedback = oa
		h.Transcriber = transcribe.NewOpenAIClient(cfg.OpenAIKey)
	}

	switch cfg.TTSProvider {
	case "deepgram":
		if cfg.DeepgramKey != "" {
			h.Synth = tts.NewDeepgramSynth(cfg.DeepgramKey, "")
		}
	default:
		if cfg.ElevenLabsKey != "" && cfg.ElevenLabsVoiceID != "" {
			h.Synth = tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
		}
	}
	return h
}

// Register mounts the interview API on e.
func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.POST("/interview", h.interview)
	e.POST("/chat", h.chat)
	e.POST("/voice", h.voice)
	e.POST("/transcribe", h.transcribe)
	e.GET("/interview/live", h.live)
}

type interviewRequest struct {
	Company              string `json:"company"`
	JobDescription       string `json:"jobDescription"`
	InterviewMode        string `json:"interviewMode"`
	InitialQuestionsOnly bool   `json:"initialQuestionsOnly"`
}

type interviewResponse struct {
	Questions []llm.GeneratedQuestion `json:"questions"`
	SessionID string                  `json:"sessionId"`
}

func (h Handlers) interview(c echo.Context) error {
	var req interviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.Company == "" || req.JobDescription == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "company and jobDescription are required"})
	}

	gen := llm.QuestionRequest{
		Company:        req.Company,
		JobDescription: req.JobDescription,
		Mode:           req.InterviewMode,
		InitialOnly:    req.InitialQuestionsOnly,
	}
	questions, err := h.Questions.GenerateQuestions(c.Request().Context(), gen)
	if err != nil {
		log.Printf("question generation failed, serving mock set: %v", err)
		questions, _ = llm.Mock{}.GenerateQuestions(c.Request().Context(), gen)
	}
	return c.JSON(http.StatusOK, interviewResponse{
		Questions: questions,
		SessionID: uuid.NewString(),
	})
}

type chatRequest struct {
	UserAnswer          string            `json:"userAnswer"`
	Question            string            `json:"question"`
	Category            string            `json:"category"`
	Difficulty          string            `json:"difficulty"`
	Company             string            `json:"company"`
	InterviewMode       string            `json:"interviewMode"`
	ConversationHistory []llm.HistoryItem `json:"conversationHistory"`
	GenerateFollowUp    bool              `json:"generateFollowUp"`
}

func (h Handlers) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.UserAnswer == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "userAnswer is required"})
	}

	fbReq := llm.FeedbackRequest{
		Answer:           req.UserAnswer,
		Question:         req.Question,
		Category:         req.Category,
		Difficulty:       req.Difficulty,
		Company:          req.Company,
		Mode:             req.InterviewMode,
		History:          req.ConversationHistory,
		GenerateFollowUp: req.GenerateFollowUp,
	}
	fb, err := h.Feedback.GenerateFeedback(c.Request().Context(), fbReq)
	if err != nil {
		log.Printf("feedback failed, serving mock rubric: %v", err)
		fb, _ = llm.Mock{}.GenerateFeedback(c.Request().Context(), fbReq)
	}
	return c.JSON(http.StatusOK, fb)
}

type voiceRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId"`
}

func (h Handlers) voice(c echo.Context) error {
	var req voiceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "text is required"})
	}

	if h.Synth == nil {
		return c.JSON(http.StatusOK, echo.Map{
			"mockData": true,
			"message":  "Voice synthesis is not configured; the client should fall back to its local voice.",
		})
	}
	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = h.DefaultVoiceID
	}
	audio, contentType, err := h.Synth.Synthesize(c.Request().Context(), req.Text, voiceID)
	if err != nil {
		if !errors.Is(err, tts.ErrUnconfigured) {
			log.Printf("voice synthesis failed: %v", err)
		}
		return c.JSON(http.StatusOK, echo.Map{
			"mockData": true,
			"message":  "Voice synthesis unavailable; the client should fall back to its local voice.",
		})
	}
	return c.Blob(http.StatusOK, contentType, audio)
}

func (h Handlers) transcribe(c echo.Context) error {
	file, err := c.FormFile("audio")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "multipart field 'audio' is required"})
	}
	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not open uploaded audio"})
	}
	defer src.Close()
	audio, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not read uploaded audio"})
	}

	mimeType := file.Header.Get("Content-Type")
	text, err := h.Transcriber.Transcribe(c.Request().Context(), audio, mimeType)
	if err != nil {
		log.Printf("transcription failed: %v", err)
		return c.JSON(http.StatusOK, echo.Map{
			"transcript": "",
			"message":    "Transcription is unavailable right now. Please try again or type your answer.",
		})
	}
	if text == "" {
		return c.JSON(http.StatusOK, echo.Map{
			"transcript": "",
			"message":    "No speech detected in the recording.",
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"transcript": text})
}
