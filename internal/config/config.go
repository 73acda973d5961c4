package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot and supporting
// services. It is built once at startup and passed by value; none of the
// core packages read the environment themselves.
type Config struct {
	BotToken string
	MySQLDSN string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	SystemPrompt  string

	// Ordered fallback candidates per capability, primary override first.
	ChatModels       []string
	VisionModels     []string
	ImageModels      []string
	TranscribeModels []string
	SpeechModels     []string

	TTSVoice  string
	ImageSize string

	RequestTimeout time.Duration

	AdminChatID int64

	FreeDailyText         int
	FreeDailyImages       int
	StandardMonthlyImages int

	AdminListenAddr string
	AdminUsername   string
	AdminPassword   string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// Default fallback orders, descending preference. A primary override from
// the environment is prepended, duplicates removed.
var (
	defaultChatModels       = []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant", "gemma2-9b-it"}
	defaultVisionModels     = []string{"llama-3.2-11b-vision-preview", "llama-3.2-90b-vision-preview"}
	defaultImageModels      = []string{"dall-e-3", "dall-e-2"}
	defaultTranscribeModels = []string{"whisper-large-v3", "whisper-large-v3-turbo"}
	defaultSpeechModels     = []string{"tts-1", "tts-1-hd"}
)

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	loadEnvFile()

	cfg := Config{
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", "https://api.groq.com/openai/v1"),
		SystemPrompt:          getEnv("SYSTEM_PROMPT", "You are a helpful assistant."),
		ChatModels:            candidates(os.Getenv("CHAT_MODEL"), defaultChatModels),
		VisionModels:          candidates(os.Getenv("VISION_MODEL"), defaultVisionModels),
		ImageModels:           candidates(os.Getenv("IMAGE_MODEL"), defaultImageModels),
		TranscribeModels:      candidates(os.Getenv("TRANSCRIBE_MODEL"), defaultTranscribeModels),
		SpeechModels:          candidates(os.Getenv("TTS_MODEL"), defaultSpeechModels),
		TTSVoice:              getEnv("TTS_VOICE", "alloy"),
		ImageSize:             getEnv("IMAGE_SIZE", "1024x1024"),
		RequestTimeout:        time.Second * time.Duration(getInt("REQUEST_TIMEOUT_SECONDS", 60)),
		AdminChatID:           getInt64("ADMIN_CHAT_ID", 0),
		FreeDailyText:         getInt("FREE_DAILY_TEXT", 15),
		FreeDailyImages:       getInt("FREE_DAILY_IMAGES", 3),
		StandardMonthlyImages: getInt("STANDARD_MONTHLY_IMAGES", 20),
		AdminListenAddr:       getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:         getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:         getEnv("ADMIN_PASSWORD", "change-me"),
		S3Endpoint:            os.Getenv("S3_ENDPOINT"),
		S3Region:              os.Getenv("S3_REGION"),
		S3AccessKey:           os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:           os.Getenv("S3_SECRET_KEY"),
		S3Bucket:              os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:       os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:        getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:              getEnv("S3_PREFIX", "photos"),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

// S3Enabled reports whether the photo re-hosting uploader is fully
// configured. When it is not, inbound photos are passed to the vision
// provider by their Telegram file URL instead.
func (c Config) S3Enabled() bool {
	return c.S3Region != "" && c.S3AccessKey != "" && c.S3SecretKey != "" &&
		c.S3Bucket != "" && c.S3PublicBaseURL != ""
}

// candidates builds an ordered fallback list: primary override first,
// then the defaults, deduplicated preserving first occurrence.
func candidates(primary string, defaults []string) []string {
	out := make([]string, 0, len(defaults)+1)
	seen := make(map[string]struct{}, len(defaults)+1)
	add := func(model string) {
		model = strings.TrimSpace(model)
		if model == "" {
			return
		}
		if _, ok := seen[model]; ok {
			return
		}
		seen[model] = struct{}{}
		out = append(out, model)
	}
	add(primary)
	for _, model := range defaults {
		add(model)
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// loadEnvFile overlays a .env file when one exists. Absence is fine: in
// production everything comes from the process environment.
func loadEnvFile() {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates, filepath.Join("configs", ".env"), ".env")

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err == nil {
			return
		}
	}
}
