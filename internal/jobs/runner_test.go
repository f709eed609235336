package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/salmodiario/internal/layout"
	"github.com/salmodiario/internal/psalm"
	"github.com/salmodiario/internal/publish"
)

type fakeSource struct {
	content psalm.Content
	err     error
}

func (source fakeSource) FetchDaily(ctx context.Context) (psalm.Content, error) {
	return source.content, source.err
}

type fakeGenerator struct {
	err   error
	calls int
}

func (generator *fakeGenerator) Generate(ctx context.Context, prompt string, width, height int) (image.Image, error) {
	generator.calls++
	if generator.err != nil {
		return nil, generator.err
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 30, 60, 40, 255
	}
	return img, nil
}

type fakeNarrator struct {
	audio []byte
	err   error
}

func (narrator fakeNarrator) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return narrator.audio, narrator.err
}

type upload struct {
	path    string
	assetID string
	kind    publish.Kind
}

type fakePublisher struct {
	uploads  []upload
	failOn   publish.Kind
	onUpload func(localPath string)
}

func (publisher *fakePublisher) Upload(ctx context.Context, localPath, assetID string, kind publish.Kind) (string, error) {
	if kind == publisher.failOn {
		return "", errors.New("upload rejected")
	}
	if publisher.onUpload != nil {
		publisher.onUpload(localPath)
	}
	publisher.uploads = append(publisher.uploads, upload{path: localPath, assetID: assetID, kind: kind})
	return "https://cdn.example.com/" + assetID, nil
}

var runDate = time.Date(2026, time.October, 18, 6, 0, 0, 0, time.UTC)

func psalm23() psalm.Content {
	return psalm.Content{
		Title:   "Salmo 22(23)",
		Refrain: "O Senhor é o pastor que me conduz; não me falta coisa alguma.",
		Paragraphs: []string{
			"Pelos prados e campinas verdejantes ele me leva a descansar.",
			"Para as águas repousantes me encaminha, e restaura as minhas forças.",
		},
	}
}

func newRunner(t *testing.T, fontPath string, logger *zap.SugaredLogger) (*Runner, *fakeGenerator, *fakePublisher) {
	t.Helper()
	cfg := layout.Defaults()
	cfg.FontPath = fontPath
	generator := &fakeGenerator{}
	publisher := &fakePublisher{}
	return &Runner{
		Psalms:        fakeSource{content: psalm23()},
		Generator:     generator,
		Layout:        layout.NewEngine(cfg, logger),
		Publisher:     publisher,
		Heading:       "Liturgia Diária",
		AssetCategory: "salmos",
		Width:         540,
		Height:        676,
		Backend:       "fake",
		FFmpegPath:    filepath.Join(t.TempDir(), "no-ffmpeg"),
		Logger:        logger,
	}, generator, publisher
}

func writeFont(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Go-Regular.ttf")
	if err := os.WriteFile(path, goregular.TTF, 0o644); err != nil {
		t.Fatalf("write font: %v", err)
	}
	return path
}

func input(t *testing.T) Input {
	return Input{Date: runDate, Prompt: "still waters", OutputDir: t.TempDir()}
}

func TestRunPublishesCardAndNarration(t *testing.T) {
	runner, _, publisher := newRunner(t, writeFont(t), zap.NewNop().Sugar())
	runner.Narrator = fakeNarrator{audio: []byte("ID3")}

	events := make(chan Event, 32)
	result, err := runner.Run(context.Background(), input(t), events)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	close(events)

	if !result.Annotated || result.Plan.BodyFontSize == 0 {
		t.Fatalf("expected an annotated card, got %+v", result)
	}
	if len(publisher.uploads) != 2 {
		t.Fatalf("expected image and audio uploads, got %+v", publisher.uploads)
	}
	if publisher.uploads[0].assetID != "salmos/salmo_2026_10_18" || publisher.uploads[0].kind != publish.KindImage {
		t.Fatalf("unexpected image upload %+v", publisher.uploads[0])
	}
	if publisher.uploads[1].assetID != "salmos/audio/salmo_2026_10_18" || publisher.uploads[1].kind != publish.KindAudio {
		t.Fatalf("unexpected audio upload %+v", publisher.uploads[1])
	}
	if result.ImageURL != "https://cdn.example.com/salmos/salmo_2026_10_18" {
		t.Fatalf("unexpected image url %q", result.ImageURL)
	}
	if !strings.HasPrefix(filepath.Base(result.RunDir), "2026-10-18-") {
		t.Fatalf("unexpected run dir %q", result.RunDir)
	}

	var stages []string
	for event := range events {
		stages = append(stages, event.Stage)
	}
	want := "fetch,generate,compose,save,narrate,publish,metadata,done"
	if strings.Join(stages, ",") != want {
		t.Fatalf("unexpected stages %v", stages)
	}

	data, err := os.ReadFile(result.MetaPath)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var metadata map[string]any
	if err := json.Unmarshal(data, &metadata); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if metadata["run_id"] != result.RunID || metadata["audio_url"] != result.AudioURL {
		t.Fatalf("unexpected metadata %v", metadata)
	}
}

func TestRunGenerationFailurePublishesNothing(t *testing.T) {
	runner, generator, publisher := newRunner(t, writeFont(t), nil)
	generator.err = errors.New("model unavailable")

	_, err := runner.Run(context.Background(), input(t), nil)
	if err == nil || !strings.Contains(err.Error(), "generate image") {
		t.Fatalf("expected generation error, got %v", err)
	}
	if len(publisher.uploads) != 0 {
		t.Fatalf("expected no uploads, got %+v", publisher.uploads)
	}
}

func TestRunFetchFailureStopsBeforeGeneration(t *testing.T) {
	runner, generator, _ := newRunner(t, writeFont(t), nil)
	runner.Psalms = fakeSource{err: psalm.ErrMalformedPayload}

	_, err := runner.Run(context.Background(), input(t), nil)
	if !errors.Is(err, psalm.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if generator.calls != 0 {
		t.Fatalf("generator should not run")
	}
}

func TestRunNarrationFailureStillPublishesImage(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	runner, _, publisher := newRunner(t, writeFont(t), zap.New(core).Sugar())
	runner.Narrator = fakeNarrator{err: errors.New("quota exceeded")}

	result, err := runner.Run(context.Background(), input(t), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(publisher.uploads) != 1 || publisher.uploads[0].kind != publish.KindImage {
		t.Fatalf("expected only the image upload, got %+v", publisher.uploads)
	}
	if result.AudioPath != "" || result.AudioURL != "" {
		t.Fatalf("expected no audio, got %+v", result)
	}
	if logs.FilterMessage("narration failed").Len() != 1 {
		t.Fatalf("expected narration warning")
	}
}

func TestRunAudioUploadFailureIsSoft(t *testing.T) {
	runner, _, publisher := newRunner(t, writeFont(t), nil)
	runner.Narrator = fakeNarrator{audio: []byte("ID3")}
	publisher.failOn = publish.KindAudio

	result, err := runner.Run(context.Background(), input(t), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ImageURL == "" || result.AudioURL != "" {
		t.Fatalf("unexpected urls %+v", result)
	}
}

func TestRunImageUploadFailureFails(t *testing.T) {
	runner, _, publisher := newRunner(t, writeFont(t), nil)
	publisher.failOn = publish.KindImage

	result, err := runner.Run(context.Background(), input(t), nil)
	if err == nil || !strings.Contains(err.Error(), "publish image") {
		t.Fatalf("expected publish error, got %v", err)
	}
	if _, statErr := os.Stat(result.ImagePath); statErr != nil {
		t.Fatalf("card should be saved before publishing: %v", statErr)
	}
}

func TestRunMissingFontPublishesPlainCard(t *testing.T) {
	runner, _, publisher := newRunner(t, filepath.Join(t.TempDir(), "missing.ttf"), nil)

	result, err := runner.Run(context.Background(), input(t), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Annotated {
		t.Fatalf("card should not be annotated without a font")
	}
	if len(publisher.uploads) != 1 {
		t.Fatalf("expected the plain card to be published, got %+v", publisher.uploads)
	}
}

func TestRunDryRunSkipsPublishing(t *testing.T) {
	runner, _, _ := newRunner(t, writeFont(t), nil)
	runner.Publisher = nil

	in := input(t)
	in.DryRun = true
	result, err := runner.Run(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ImageURL != "" {
		t.Fatalf("dry run should not publish")
	}
	if _, err := os.Stat(result.ImagePath); err != nil {
		t.Fatalf("card not saved: %v", err)
	}
}

func TestRunRequiresPublisherOutsideDryRun(t *testing.T) {
	runner, _, _ := newRunner(t, writeFont(t), nil)
	runner.Publisher = nil
	if _, err := runner.Run(context.Background(), input(t), nil); err == nil {
		t.Fatalf("expected missing publisher error")
	}
}

// blockMetadata puts a directory where the run's metadata file would go.
func blockMetadata(t *testing.T) func(string) {
	return func(localPath string) {
		runDir := filepath.Dir(localPath)
		runID := strings.TrimPrefix(filepath.Base(runDir), runDate.Format("2006-01-02")+"-")
		if err := os.MkdirAll(filepath.Join(runDir, "metadata-"+runID+".json"), 0o755); err != nil {
			t.Fatalf("block metadata: %v", err)
		}
	}
}

func TestRunMetadataFailureAfterPublishIsSoft(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	runner, _, publisher := newRunner(t, writeFont(t), zap.New(core).Sugar())
	publisher.onUpload = blockMetadata(t)

	result, err := runner.Run(context.Background(), input(t), nil)
	if err != nil {
		t.Fatalf("published run should succeed, got %v", err)
	}
	if result.ImageURL == "" || result.MetaPath != "" {
		t.Fatalf("unexpected result %+v", result)
	}
	if logs.FilterMessage("run metadata not written").Len() != 1 {
		t.Fatalf("expected metadata warning")
	}
}

func TestRunMetadataFailureOnDryRunFails(t *testing.T) {
	runner, _, _ := newRunner(t, writeFont(t), nil)
	runner.Publisher = nil
	in := input(t)
	in.DryRun = true

	events := make(chan Event)
	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := runner.Run(context.Background(), in, events)
		done <- outcome{result, err}
	}()

	// Run blocks on the unbuffered channel, so the card is saved and metadata not yet written
	// while the publish event is being handled.
	for event := range events {
		if event.Stage != "publish" {
			continue
		}
		cards, err := filepath.Glob(filepath.Join(in.OutputDir, "*", "salmo.png"))
		if err != nil || len(cards) != 1 {
			t.Fatalf("expected one saved card, got %v (%v)", cards, err)
		}
		blockMetadata(t)(cards[0])
		break
	}
	go func() {
		for range events {
		}
	}()

	got := <-done
	close(events)
	if got.err == nil || !strings.Contains(got.err.Error(), "write metadata") {
		t.Fatalf("expected metadata error, got %v", got.err)
	}
}
