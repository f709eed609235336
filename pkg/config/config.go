package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissing marks a configuration value that the selected backends require.
var ErrMissing = errors.New("missing configuration")

const (
	BackendHuggingFace = "huggingface"
	BackendReplicate   = "replicate"
	BackendOpenAI      = "openai"
	BackendImagen      = "imagen"
	BackendDiffusers   = "diffusers"

	NarrationNone       = "none"
	NarrationGoogle     = "google"
	NarrationElevenLabs = "elevenlabs"

	PublisherCloudinary = "cloudinary"
	PublisherS3         = "s3"
)

const defaultPrompt = "A dramatic chiaroscuro oil painting in the tenebrism style of Caravaggio: " +
	"lush green pastures beside calm still waters at dusk, a single shaft of warm golden light " +
	"breaking through deep shadows. Peaceful, contemplative, sacred atmosphere. No people, no text."

const defaultNegativePrompt = "text, letters, watermark, signature, people, faces, blurry, low quality"

type Config struct {
	PsalmAPIURL string
	Heading     string

	ImageBackend        string
	ImagePrompt         string
	ImageNegativePrompt string
	CanvasWidth         int
	CanvasHeight        int

	HuggingFaceToken       string
	HuggingFaceBaseURL     string
	HuggingFaceModel       string
	HuggingFaceSteps       int
	HuggingFaceGuidance    float64
	HuggingFaceMaxRetries  int
	HuggingFaceDefaultWait time.Duration

	ReplicateAPIToken   string
	ReplicateBaseURL    string
	ReplicateModel      string
	ReplicatePreferWait bool
	JobPollInterval     time.Duration

	OpenAIAPIKey     string
	OpenAIImageModel string
	OpenAIImageSize  string

	GoogleProject  string
	GoogleLocation string
	ImagenModel    string

	DiffusersBaseURL  string
	DiffusersModel    string
	DiffusersSteps    int
	DiffusersGuidance float64

	NarrationBackend  string
	TTSLanguage       string
	TTSVoice          string
	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string
	ElevenLabsVoiceID string
	ElevenLabsModel   string

	Publisher            string
	CloudinaryCloudName  string
	CloudinaryAPIKey     string
	CloudinaryAPISecret  string
	S3Bucket             string
	S3Region             string
	S3PublicBaseURL      string
	AssetCategory        string

	FontPath     string
	LayoutPreset string
	OutputDir    string
	FFmpegPath   string
	HTTPTimeout  time.Duration
	Schedule     string
	Timezone     string
	LogLevel     string
}

func Load() Config {
	return Config{
		PsalmAPIURL: getEnv("PSALM_API_URL", "https://liturgia.up.railway.app/"),
		Heading:     getEnv("CARD_HEADING", "Liturgia Diária"),

		ImageBackend:        strings.ToLower(getEnv("IMAGE_BACKEND", BackendHuggingFace)),
		ImagePrompt:         getEnv("IMAGE_PROMPT", defaultPrompt),
		ImageNegativePrompt: getEnv("IMAGE_NEGATIVE_PROMPT", defaultNegativePrompt),
		CanvasWidth:         getEnvInt("CANVAS_WIDTH", 1080),
		CanvasHeight:        getEnvInt("CANVAS_HEIGHT", 1352),

		HuggingFaceToken:       getEnv("HF_API_TOKEN", ""),
		HuggingFaceBaseURL:     getEnv("HF_BASE_URL", "https://api-inference.huggingface.co"),
		HuggingFaceModel:       getEnv("HF_MODEL", "stabilityai/stable-diffusion-xl-base-1.0"),
		HuggingFaceSteps:       getEnvInt("HF_STEPS", 30),
		HuggingFaceGuidance:    getEnvFloat("HF_GUIDANCE", 7.5),
		HuggingFaceMaxRetries:  getEnvInt("HF_MAX_RETRIES", 5),
		HuggingFaceDefaultWait: getEnvDuration("HF_DEFAULT_WAIT", 20*time.Second),

		ReplicateAPIToken:   getEnv("REPLICATE_API_TOKEN", ""),
		ReplicateBaseURL:    getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ReplicateModel:      getEnv("REPLICATE_MODEL", "black-forest-labs/flux-schnell"),
		ReplicatePreferWait: getEnvBool("REPLICATE_PREFER_WAIT", true),
		JobPollInterval:     getEnvDuration("JOB_POLL_INTERVAL", 4*time.Second),

		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIImageModel: getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),
		OpenAIImageSize:  getEnv("OPENAI_IMAGE_SIZE", "1024x1792"),

		GoogleProject:  getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleLocation: getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
		ImagenModel:    getEnv("IMAGEN_MODEL", "imagegeneration@006"),

		DiffusersBaseURL:  getEnv("DIFFUSERS_BASE_URL", "http://127.0.0.1:7860"),
		DiffusersModel:    getEnv("DIFFUSERS_MODEL", "stabilityai/stable-diffusion-xl-base-1.0"),
		DiffusersSteps:    getEnvInt("DIFFUSERS_STEPS", 25),
		DiffusersGuidance: getEnvFloat("DIFFUSERS_GUIDANCE", 7.0),

		NarrationBackend:  strings.ToLower(getEnv("NARRATION_BACKEND", NarrationNone)),
		TTSLanguage:       getEnv("TTS_LANGUAGE", "pt-BR"),
		TTSVoice:          getEnv("TTS_VOICE", "pt-BR-Wavenet-B"),
		ElevenLabsAPIKey:  getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsBaseURL: getEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", ""),
		ElevenLabsModel:   getEnv("ELEVENLABS_MODEL", "eleven_multilingual_v2"),

		Publisher:           strings.ToLower(getEnv("PUBLISHER", PublisherCloudinary)),
		CloudinaryCloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
		S3Bucket:            getEnv("S3_BUCKET", ""),
		S3Region:            getEnv("S3_REGION", "us-east-1"),
		S3PublicBaseURL:     getEnv("S3_PUBLIC_BASE_URL", ""),
		AssetCategory:       getEnv("ASSET_CATEGORY", "salmos"),

		FontPath:     getEnv("FONT_PATH", "Cookie-Regular.ttf"),
		LayoutPreset: getEnv("LAYOUT_PRESET", ""),
		OutputDir:    getEnv("OUTPUT_DIR", "./outputs"),
		FFmpegPath:   getEnv("FFMPEG_PATH", ""),
		HTTPTimeout:  getEnvDuration("HTTP_TIMEOUT", 2*time.Minute),
		Schedule:     getEnv("SCHEDULE", ""),
		Timezone:     getEnv("TIMEZONE", "America/Sao_Paulo"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports every credential the selected backends need but are missing.
// Publishing credentials are skipped when skipPublish is set.
func (cfg Config) Validate(skipPublish bool) error {
	var missing []string
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	if cfg.CanvasWidth <= 0 || cfg.CanvasHeight <= 0 {
		return fmt.Errorf("canvas size must be positive, got %dx%d", cfg.CanvasWidth, cfg.CanvasHeight)
	}

	switch cfg.ImageBackend {
	case BackendHuggingFace:
		require("HF_API_TOKEN", cfg.HuggingFaceToken)
	case BackendReplicate:
		require("REPLICATE_API_TOKEN", cfg.ReplicateAPIToken)
	case BackendOpenAI:
		require("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	case BackendImagen:
		require("GOOGLE_CLOUD_PROJECT", cfg.GoogleProject)
	case BackendDiffusers:
		require("DIFFUSERS_BASE_URL", cfg.DiffusersBaseURL)
	default:
		return fmt.Errorf("unknown IMAGE_BACKEND %q", cfg.ImageBackend)
	}

	switch cfg.NarrationBackend {
	case NarrationNone, "":
	case NarrationGoogle:
		require("GOOGLE_CLOUD_PROJECT", cfg.GoogleProject)
	case NarrationElevenLabs:
		require("ELEVENLABS_API_KEY", cfg.ElevenLabsAPIKey)
		require("ELEVENLABS_VOICE_ID", cfg.ElevenLabsVoiceID)
	default:
		return fmt.Errorf("unknown NARRATION_BACKEND %q", cfg.NarrationBackend)
	}

	if !skipPublish {
		switch cfg.Publisher {
		case PublisherCloudinary:
			require("CLOUDINARY_CLOUD_NAME", cfg.CloudinaryCloudName)
			require("CLOUDINARY_API_KEY", cfg.CloudinaryAPIKey)
			require("CLOUDINARY_API_SECRET", cfg.CloudinaryAPISecret)
		case PublisherS3:
			require("S3_BUCKET", cfg.S3Bucket)
		default:
			return fmt.Errorf("unknown PUBLISHER %q", cfg.Publisher)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(dedupe(missing), ", "))
	}
	return nil
}

// Location resolves Timezone, falling back to the local zone.
func (cfg Config) Location() *time.Location {
	if cfg.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, value := range values {
		if seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	return out
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
