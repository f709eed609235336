// Package narration turns the psalm text into spoken MP3 audio.
package narration

import (
	"context"
	"fmt"

	"github.com/salmodiario/internal/ai/elevenlabs"
	"github.com/salmodiario/internal/ai/google"
	"github.com/salmodiario/pkg/config"
)

type Narrator interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// New returns the configured narrator, or nil when narration is disabled.
func New(ctx context.Context, cfg config.Config) (Narrator, error) {
	switch cfg.NarrationBackend {
	case config.NarrationNone, "":
		return nil, nil
	case config.NarrationGoogle:
		client, err := google.NewClient(ctx, cfg.GoogleProject, cfg.GoogleLocation, cfg.ImagenModel, cfg.HTTPTimeout)
		if err != nil {
			return nil, err
		}
		return &Google{Client: client, LanguageCode: cfg.TTSLanguage, Voice: cfg.TTSVoice}, nil
	case config.NarrationElevenLabs:
		client := elevenlabs.NewClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsBaseURL, cfg.ElevenLabsVoiceID,
			cfg.ElevenLabsModel, cfg.HTTPTimeout)
		return &ElevenLabs{Client: client}, nil
	default:
		return nil, fmt.Errorf("unknown narration backend %q", cfg.NarrationBackend)
	}
}

type Google struct {
	Client       *google.Client
	LanguageCode string
	Voice        string
}

func (narrator *Google) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return narrator.Client.Synthesize(ctx, text, narrator.LanguageCode, narrator.Voice)
}

type ElevenLabs struct {
	Client *elevenlabs.Client
}

func (narrator *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return narrator.Client.TextToSpeech(ctx, text)
}
