package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/salmodiario/internal/audio"
	"github.com/salmodiario/internal/imagegen"
	"github.com/salmodiario/internal/layout"
	"github.com/salmodiario/internal/narration"
	"github.com/salmodiario/internal/psalm"
	"github.com/salmodiario/internal/publish"
)

type Event struct {
	Stage    string
	Message  string
	Progress float64
}

type Input struct {
	Date      time.Time
	Prompt    string
	OutputDir string
	DryRun    bool
}

type Result struct {
	RunID     string
	RunDir    string
	ImagePath string
	AudioPath string
	ImageURL  string
	AudioURL  string
	MetaPath  string
	Annotated bool
	Plan      layout.Plan
	Narration *audio.Analysis
}

type ContentSource interface {
	FetchDaily(ctx context.Context) (psalm.Content, error)
}

type Runner struct {
	Psalms        ContentSource
	Generator     imagegen.Generator
	Layout        *layout.Engine
	Narrator      narration.Narrator
	Publisher     publish.Publisher
	Heading       string
	AssetCategory string
	Width         int
	Height        int
	Backend       string
	FFmpegPath    string
	Logger        *zap.SugaredLogger
}

// Run executes one card pipeline. Nothing is uploaded unless the card was saved locally, and
// narration problems never fail the run.
func (runner *Runner) Run(ctx context.Context, input Input, events chan<- Event) (Result, error) {
	logger := runner.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	send := func(stage, message string, progress float64) {
		logger.Infow(message, "stage", stage, "progress", progress)
		if events != nil {
			events <- Event{Stage: stage, Message: message, Progress: progress}
		}
	}

	if runner.Psalms == nil || runner.Generator == nil || runner.Layout == nil {
		return Result{}, fmt.Errorf("runner is missing a content source, generator or layout engine")
	}
	if !input.DryRun && runner.Publisher == nil {
		return Result{}, fmt.Errorf("publisher not configured")
	}
	if strings.TrimSpace(input.Prompt) == "" {
		return Result{}, fmt.Errorf("image prompt is empty")
	}
	if input.Date.IsZero() {
		input.Date = time.Now()
	}
	if input.OutputDir == "" {
		input.OutputDir = "outputs"
	}

	result := Result{RunID: uuid.NewString()}
	result.RunDir = filepath.Join(input.OutputDir, input.Date.Format("2006-01-02")+"-"+result.RunID)
	logger = logger.With("run_id", result.RunID)

	send("fetch", "Fetching psalm of the day", 0.05)
	content, err := runner.Psalms.FetchDaily(ctx)
	if err != nil {
		return result, fmt.Errorf("fetch psalm: %w", err)
	}

	send("generate", "Generating background image", 0.2)
	background, err := runner.Generator.Generate(ctx, input.Prompt, runner.Width, runner.Height)
	if err != nil {
		return result, fmt.Errorf("generate image: %w", err)
	}

	send("compose", "Composing text", 0.55)
	doc := layout.Document{
		Title:      runner.Heading,
		Subtitle:   content.Title,
		Date:       psalm.FormatDate(input.Date),
		Refrain:    content.Refrain,
		Paragraphs: content.Paragraphs,
	}
	card, plan, err := runner.Layout.Render(toRGBA(background), doc)
	switch {
	case err == nil:
		result.Annotated = true
		result.Plan = plan
	case errors.Is(err, layout.ErrFontUnavailable):
		logger.Warnw("publishing card without text", "error", err)
	default:
		return result, fmt.Errorf("compose card: %w", err)
	}

	send("save", "Saving card", 0.65)
	if err := os.MkdirAll(result.RunDir, 0o755); err != nil {
		return result, err
	}
	result.ImagePath = filepath.Join(result.RunDir, "salmo.png")
	if err := imaging.Save(card, result.ImagePath); err != nil {
		return result, fmt.Errorf("save card: %w", err)
	}

	if runner.Narrator != nil {
		send("narrate", "Synthesizing narration", 0.75)
		result.AudioPath, result.Narration = runner.narrate(ctx, logger, content, result.RunDir)
	}

	if input.DryRun {
		send("publish", "Dry run, skipping upload", 0.85)
	} else {
		send("publish", "Uploading card", 0.85)
		imageID := publish.AssetID(runner.AssetCategory, publish.KindImage, input.Date)
		result.ImageURL, err = runner.Publisher.Upload(ctx, result.ImagePath, imageID, publish.KindImage)
		if err != nil {
			return result, fmt.Errorf("publish image: %w", err)
		}
		if result.AudioPath != "" {
			audioID := publish.AssetID(runner.AssetCategory, publish.KindAudio, input.Date)
			result.AudioURL, err = runner.Publisher.Upload(ctx, result.AudioPath, audioID, publish.KindAudio)
			if err != nil {
				logger.Warnw("narration upload failed", "asset_id", audioID, "error", err)
			}
		}
	}

	send("metadata", "Writing run metadata", 0.95)
	metaPath, err := runner.writeMetadata(input, content, result)
	switch {
	case err == nil:
		result.MetaPath = metaPath
	case result.ImageURL != "":
		// the card is already public
		logger.Warnw("run metadata not written", "image_url", result.ImageURL, "error", err)
	default:
		return result, fmt.Errorf("write metadata: %w", err)
	}

	send("done", "Completed", 1.0)
	return result, nil
}

// narrate never fails the run; it returns an empty path when no usable audio was produced.
func (runner *Runner) narrate(ctx context.Context, logger *zap.SugaredLogger, content psalm.Content, runDir string) (string, *audio.Analysis) {
	data, err := runner.Narrator.Synthesize(ctx, content.NarrationText())
	if err != nil {
		logger.Warnw("narration failed", "error", err)
		return "", nil
	}

	audioPath := filepath.Join(runDir, "narration.mp3")
	if err := os.WriteFile(audioPath, data, 0o644); err != nil {
		logger.Warnw("narration not saved", "path", audioPath, "error", err)
		return "", nil
	}
	if err := audio.ValidateAudioPath(audioPath); err != nil {
		logger.Warnw("narration unusable", "path", audioPath, "error", err)
		return "", nil
	}

	analysis, err := audio.Probe(ctx, runner.FFmpegPath, audioPath)
	if err != nil {
		logger.Debugw("narration probe skipped", "error", err)
		return audioPath, nil
	}
	return audioPath, &analysis
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}

func (runner *Runner) writeMetadata(input Input, content psalm.Content, result Result) (string, error) {
	payload := map[string]any{
		"run_id":        result.RunID,
		"date":          input.Date.Format("2006-01-02"),
		"psalm_title":   content.Title,
		"refrain":       content.Refrain,
		"paragraphs":    len(content.Paragraphs),
		"prompt":        input.Prompt,
		"image_backend": runner.Backend,
		"image_path":    result.ImagePath,
		"image_url":     result.ImageURL,
		"audio_path":    result.AudioPath,
		"audio_url":     result.AudioURL,
		"annotated":     result.Annotated,
		"layout":        result.Plan,
		"narration":     result.Narration,
		"dry_run":       input.DryRun,
		"created_at":    time.Now().Format(time.RFC3339),
	}

	metaPath := filepath.Join(result.RunDir, fmt.Sprintf("metadata-%s.json", result.RunID))
	file, err := os.Create(metaPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		return "", err
	}
	return metaPath, nil
}
