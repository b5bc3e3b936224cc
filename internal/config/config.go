package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress       string
	OpenAIKey         string
	OpenAIModelID     string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	DeepgramKey       string
	TTSProvider       string
	AssemblyAIKey     string
}

// Load reads environment variables and returns Config with sane defaults.
// Missing provider keys are warnings, not errors: every endpoint degrades
// to mock behavior without credentials.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - questions, feedback and transcription run in mock mode")
	}
	model := os.Getenv("OPENAI_MODEL_ID")
	if model == "" {
		model = "gpt-4o-mini"
	}

	elevenKey := os.Getenv("ELEVENLABS_API_KEY")
	voiceID := os.Getenv("ELEVENLABS_VOICE_ID")
	if elevenKey == "" || voiceID == "" {
		log.Println("Warning: ELEVENLABS_API_KEY or ELEVENLABS_VOICE_ID not set - voice synthesis runs in mock mode")
	}

	provider := os.Getenv("TTS_PROVIDER")
	if provider == "" {
		provider = "elevenlabs"
	}
	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if provider == "deepgram" && deepgramKey == "" {
		log.Println("Warning: TTS_PROVIDER=deepgram but DEEPGRAM_API_KEY not set - voice synthesis runs in mock mode")
	}

	assemblyKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if assemblyKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - live capture uses upload transcription only")
	}

	log.Printf("config: HTTP_ADDRESS=%s TTS_PROVIDER=%s", addr, provider)
	return Config{
		HTTPAddress:       addr,
		OpenAIKey:         openAIKey,
		OpenAIModelID:     model,
		ElevenLabsKey:     elevenKey,
		ElevenLabsVoiceID: voiceID,
		DeepgramKey:       deepgramKey,
		TTSProvider:       provider,
		AssemblyAIKey:     assemblyKey,
	}
}
