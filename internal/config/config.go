package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress       string
	AssemblyAIKey     string
	DeepgramKey       string
	DeepgramVoice     string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	CerebrasKey       string
	CerebrasModelID   string
	GeminiKey         string
	GeminiModelID     string
	SupabaseURL       string
	SupabaseKey       string
	WhisperBin        string
	WhisperModel      string

	ConnectDelay    time.Duration
	NoAnswerTimeout time.Duration
	SilenceDebounce time.Duration
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	assemblyAIKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if assemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - live transcription will not work")
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	elevenKey := os.Getenv("ELEVENLABS_API_KEY")
	if deepgramKey == "" && elevenKey == "" {
		log.Println("Warning: no DEEPGRAM_API_KEY or ELEVENLABS_API_KEY set - TTS will not work")
	}

	voiceID := os.Getenv("ELEVENLABS_VOICE_ID")
	if elevenKey != "" && voiceID == "" {
		log.Println("Warning: ELEVENLABS_VOICE_ID not set - set a concrete voice ID from your ElevenLabs dashboard")
	}

	cerebrasKey := os.Getenv("CEREBRAS_API_KEY")
	cerebrasModel := os.Getenv("CEREBRAS_MODEL_ID")
	if cerebrasModel == "" {
		cerebrasModel = "gpt-oss-120b"
	}
	geminiKey := os.Getenv("GEMINI_API_KEY")
	geminiModel := os.Getenv("GEMINI_MODEL_ID")
	if cerebrasKey == "" && geminiKey == "" {
		log.Println("Warning: no CEREBRAS_API_KEY or GEMINI_API_KEY set - question generation will not work")
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if supabaseURL == "" || supabaseKey == "" {
		log.Println("Warning: SUPABASE_URL or SUPABASE_SERVICE_ROLE_KEY not set - results will not be persisted")
	}

	whisperBin := os.Getenv("WHISPER_BIN")
	if whisperBin == "" {
		whisperBin = "whisper"
	}
	whisperModel := os.Getenv("WHISPER_MODEL")
	if whisperModel == "" {
		whisperModel = "small"
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return Config{
		HTTPAddress:       addr,
		AssemblyAIKey:     assemblyAIKey,
		DeepgramKey:       deepgramKey,
		DeepgramVoice:     os.Getenv("DEEPGRAM_VOICE"),
		ElevenLabsKey:     elevenKey,
		ElevenLabsVoiceID: voiceID,
		CerebrasKey:       cerebrasKey,
		CerebrasModelID:   cerebrasModel,
		GeminiKey:         geminiKey,
		GeminiModelID:     geminiModel,
		SupabaseURL:       supabaseURL,
		SupabaseKey:       supabaseKey,
		WhisperBin:        whisperBin,
		WhisperModel:      whisperModel,

		ConnectDelay:    durationMS("CONNECT_DELAY_MS", 0),
		NoAnswerTimeout: durationMS("NO_ANSWER_TIMEOUT_MS", 0),
		SilenceDebounce: durationMS("SILENCE_DEBOUNCE_MS", 0),
	}
}

// durationMS reads a millisecond count from the environment. Zero means "use
// the dialog package default".
func durationMS(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms < 0 {
		log.Printf("Warning: invalid %s=%q, ignoring", key, v)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
