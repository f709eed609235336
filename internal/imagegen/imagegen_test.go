package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/salmodiario/pkg/config"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buffer.Bytes()
}

func assertSize(t *testing.T, img image.Image, width, height int) {
	t.Helper()
	if img.Bounds().Dx() != width || img.Bounds().Dy() != height {
		t.Fatalf("expected %dx%d, got %v", width, height, img.Bounds())
	}
}

func TestFitCoversCanvas(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1024, 1024))
	fitted := Fit(src, 108, 135)
	assertSize(t, fitted, 108, 135)
}

func TestHuggingFaceBackend(t *testing.T) {
	payload := encodePNG(t, 64, 64)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request map[string]any
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("decode: %v", err)
		}
		params, _ := request["parameters"].(map[string]any)
		if params["negative_prompt"] != "text" {
			t.Errorf("negative prompt not forwarded: %v", params)
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	cfg := config.Config{
		ImageBackend:        config.BackendHuggingFace,
		HuggingFaceToken:    "hf",
		HuggingFaceBaseURL:  server.URL,
		HuggingFaceModel:    "sdxl",
		HuggingFaceSteps:    20,
		ImageNegativePrompt: "text",
		HTTPTimeout:         5 * time.Second,
	}
	generator, err := New(context.Background(), cfg, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	img, err := generator.Generate(context.Background(), "pastures", 80, 100)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	assertSize(t, img, 80, 100)
}

func TestDiffusersBackend(t *testing.T) {
	payload := encodePNG(t, 40, 50)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/jobs":
			_, _ = w.Write([]byte(`{"job_id":"abc"}`))
		case "/v1/jobs/abc":
			_, _ = w.Write([]byte(`{"status":"completed"}`))
		case "/v1/jobs/abc/image":
			_, _ = w.Write(payload)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cfg := config.Config{
		ImageBackend:     config.BackendDiffusers,
		DiffusersBaseURL: server.URL,
		DiffusersModel:   "sdxl",
		JobPollInterval:  time.Millisecond,
		HTTPTimeout:      5 * time.Second,
	}
	generator, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	img, err := generator.Generate(context.Background(), "waters", 40, 50)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	assertSize(t, img, 40, 50)
}

func TestReplicateBackend(t *testing.T) {
	payload := encodePNG(t, 30, 40)
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/predictions") && r.Method == http.MethodPost:
			var request struct {
				Input map[string]any `json:"input"`
			}
			_ = json.NewDecoder(r.Body).Decode(&request)
			if request.Input["aspect_ratio"] != "3:4" {
				t.Errorf("unexpected aspect ratio %v", request.Input["aspect_ratio"])
			}
			_, _ = w.Write([]byte(`{"id":"p","status":"succeeded","output":["` + server.URL + `/out.png"]}`))
		case r.URL.Path == "/out.png":
			_, _ = w.Write(payload)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cfg := config.Config{
		ImageBackend:      config.BackendReplicate,
		ReplicateAPIToken: "r8",
		ReplicateBaseURL:  server.URL,
		ReplicateModel:    "owner/model",
		HTTPTimeout:       5 * time.Second,
	}
	generator, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	img, err := generator.Generate(context.Background(), "p", 108, 135)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	assertSize(t, img, 108, 135)
}

func TestOpenAIBackend(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(encodePNG(t, 32, 56))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/images/generations") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var request map[string]any
		_ = json.NewDecoder(r.Body).Decode(&request)
		if request["response_format"] != "b64_json" || request["model"] != "dall-e-3" {
			t.Errorf("unexpected request %v", request)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[{"b64_json":"` + encoded + `"}]}`))
	}))
	defer server.Close()

	generator := NewOpenAI("sk-test", "dall-e-3", "1024x1792", 5*time.Second,
		option.WithBaseURL(server.URL+"/"), option.WithMaxRetries(0))
	img, err := generator.Generate(context.Background(), "p", 64, 80)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	assertSize(t, img, 64, 80)
}

func TestGenerateRejectsUndecodableImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not an image"))
	}))
	defer server.Close()

	cfg := config.Config{
		ImageBackend:       config.BackendHuggingFace,
		HuggingFaceToken:   "hf",
		HuggingFaceBaseURL: server.URL,
		HTTPTimeout:        time.Second,
	}
	generator, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := generator.Generate(context.Background(), "p", 10, 10); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New(context.Background(), config.Config{ImageBackend: "midjourney"}, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestAspectRatio(t *testing.T) {
	cases := []struct {
		width, height int
		want          string
	}{
		{1080, 1352, "3:4"},
		{1024, 1024, "1:1"},
		{1080, 1920, "9:16"},
		{1920, 1080, "16:9"},
		{0, 10, "1:1"},
	}
	for _, tc := range cases {
		if got := AspectRatio(tc.width, tc.height); got != tc.want {
			t.Errorf("AspectRatio(%d, %d) = %s, want %s", tc.width, tc.height, got, tc.want)
		}
	}
}
