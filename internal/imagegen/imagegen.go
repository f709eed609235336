// Package imagegen produces the card background through one of several text-to-image backends.
package imagegen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/salmodiario/internal/ai/diffusers"
	"github.com/salmodiario/internal/ai/google"
	"github.com/salmodiario/internal/ai/huggingface"
	"github.com/salmodiario/internal/ai/replicate"
	"github.com/salmodiario/pkg/config"
)

// Generator returns a background already fitted to width x height.
type Generator interface {
	Generate(ctx context.Context, prompt string, width, height int) (image.Image, error)
}

// New builds the generator selected by cfg.ImageBackend.
func New(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (Generator, error) {
	switch cfg.ImageBackend {
	case config.BackendHuggingFace:
		client := huggingface.NewClient(cfg.HuggingFaceToken, cfg.HuggingFaceBaseURL, cfg.HuggingFaceModel,
			cfg.HuggingFaceMaxRetries, cfg.HuggingFaceDefaultWait, cfg.HTTPTimeout, logger)
		return &HuggingFace{
			Client:         client,
			Steps:          cfg.HuggingFaceSteps,
			Guidance:       cfg.HuggingFaceGuidance,
			NegativePrompt: cfg.ImageNegativePrompt,
		}, nil
	case config.BackendReplicate:
		client := replicate.NewClient(cfg.ReplicateAPIToken, cfg.ReplicateBaseURL, cfg.ReplicateModel,
			cfg.JobPollInterval, cfg.HTTPTimeout)
		return &Replicate{Client: client, PreferWait: cfg.ReplicatePreferWait}, nil
	case config.BackendOpenAI:
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIImageModel, cfg.OpenAIImageSize, cfg.HTTPTimeout), nil
	case config.BackendImagen:
		client, err := google.NewClient(ctx, cfg.GoogleProject, cfg.GoogleLocation, cfg.ImagenModel, cfg.HTTPTimeout)
		if err != nil {
			return nil, err
		}
		return &Imagen{Client: client, NegativePrompt: cfg.ImageNegativePrompt}, nil
	case config.BackendDiffusers:
		client := diffusers.NewClient(cfg.DiffusersBaseURL, cfg.JobPollInterval, cfg.HTTPTimeout)
		return &Diffusers{
			Client:         client,
			Model:          cfg.DiffusersModel,
			Steps:          cfg.DiffusersSteps,
			Guidance:       cfg.DiffusersGuidance,
			NegativePrompt: cfg.ImageNegativePrompt,
		}, nil
	default:
		return nil, fmt.Errorf("unknown image backend %q", cfg.ImageBackend)
	}
}

// Fit scales img to cover width x height and crops the overflow around the center.
func Fit(img image.Image, width, height int) *image.NRGBA {
	return imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)
}

func decodeAndFit(data []byte, width, height int) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("backend returned an empty image")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if bounds := img.Bounds(); bounds.Dx() == width && bounds.Dy() == height {
		return img, nil
	}
	return Fit(img, width, height), nil
}

var aspectRatios = []struct {
	label string
	ratio float64
}{
	{"1:1", 1},
	{"3:4", 3.0 / 4.0},
	{"4:3", 4.0 / 3.0},
	{"9:16", 9.0 / 16.0},
	{"16:9", 16.0 / 9.0},
}

// AspectRatio picks the supported aspect ratio label closest to width x height.
func AspectRatio(width, height int) string {
	if width <= 0 || height <= 0 {
		return "1:1"
	}
	target := float64(width) / float64(height)
	best := aspectRatios[0]
	for _, candidate := range aspectRatios[1:] {
		if math.Abs(candidate.ratio-target) < math.Abs(best.ratio-target) {
			best = candidate
		}
	}
	return best.label
}
