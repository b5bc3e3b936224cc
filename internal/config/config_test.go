package config

import (
	"os"
	"testing"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("OPENAI_MODEL_ID", "")
	os.Setenv("TTS_PROVIDER", "")
	cfg := Load()
	if cfg.HTTPAddress == "" {
		t.Fatalf("expected default http address")
	}
	if cfg.OpenAIModelID == "" {
		t.Fatalf("expected default openai model id")
	}
	if cfg.TTSProvider != "elevenlabs" {
		t.Fatalf("expected default tts provider, got %q", cfg.TTSProvider)
	}
}

func TestLoad_ProviderOverride(t *testing.T) {
	os.Setenv("TTS_PROVIDER", "deepgram")
	defer os.Unsetenv("TTS_PROVIDER")
	cfg := Load()
	if cfg.TTSProvider != "deepgram" {
		t.Fatalf("expected deepgram provider, got %q", cfg.TTSProvider)
	}
}
