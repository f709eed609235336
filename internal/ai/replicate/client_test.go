package replicate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCreateAwaitFetch(t *testing.T) {
	var server *httptest.Server
	polls := 0
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/models/black-forest-labs/flux-schnell/predictions":
			if r.Header.Get("Prefer") != "wait" {
				t.Errorf("expected Prefer: wait")
			}
			var request predictionRequest
			if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
				t.Errorf("decode: %v", err)
			}
			if request.Input.Prompt != "pastures" || request.Input.AspectRatio != "4:5" {
				t.Errorf("unexpected input %+v", request.Input)
			}
			_, _ = w.Write([]byte(`{"id":"p1","status":"starting"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/predictions/p1":
			polls++
			if polls < 2 {
				_, _ = w.Write([]byte(`{"id":"p1","status":"processing"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"p1","status":"succeeded","output":["` +
				server.URL + `/files/out.webp","` + server.URL + `/files/out.png"]}`))
		case r.URL.Path == "/files/out.png":
			_, _ = w.Write([]byte("png"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient("r8_test", server.URL, "", time.Millisecond, 5*time.Second)
	ctx := context.Background()
	prediction, err := client.CreateImage(ctx, ImageRequest{Prompt: "pastures", AspectRatio: "4:5"}, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	prediction, err = client.Await(ctx, prediction)
	if err != nil {
		t.Fatalf("await: %v", err)
	}

	ref := PickImage(prediction.ImageURLs(), "png")
	if !strings.HasSuffix(ref, "/files/out.png") {
		t.Fatalf("expected the png output, got %q", ref)
	}
	data, err := client.FetchImage(ctx, ref)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "png" {
		t.Fatalf("unexpected data %q", data)
	}
}

func TestAwaitReportsFailure(t *testing.T) {
	client := NewClient("r8_test", "http://127.0.0.1:1", "", time.Millisecond, time.Second)
	_, err := client.Await(context.Background(), Prediction{ID: "p2", Status: "failed", Error: "nsfw"})
	if err == nil || !strings.Contains(err.Error(), "nsfw") {
		t.Fatalf("expected failure with reason, got %v", err)
	}
}

func TestCreateImageValidatesInput(t *testing.T) {
	if _, err := NewClient("", "", "", 0, time.Second).CreateImage(context.Background(), ImageRequest{Prompt: "p"}, false); err == nil {
		t.Fatalf("expected token error")
	}
	if _, err := NewClient("r8", "", "", 0, time.Second).CreateImage(context.Background(), ImageRequest{Prompt: " "}, false); err == nil {
		t.Fatalf("expected empty prompt error")
	}
}

func TestCreateImageReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"aspect_ratio must be one of 1:1, 16:9"}`))
	}))
	defer server.Close()

	client := NewClient("r8", server.URL, "owner/model", time.Millisecond, time.Second)
	_, err := client.CreateImage(context.Background(), ImageRequest{Prompt: "p", AspectRatio: "7:3"}, false)
	if err == nil || !strings.Contains(err.Error(), "422") || !strings.Contains(err.Error(), "aspect_ratio") {
		t.Fatalf("expected status error with detail, got %v", err)
	}
}

func TestImageURLsShapes(t *testing.T) {
	cases := map[string][]string{
		`"https://x/a.png"`:                     {"https://x/a.png"},
		`["https://x/a.png","https://x/b.png"]`: {"https://x/a.png", "https://x/b.png"},
		`{"images":["https://x/c.webp"]}`:       {"https://x/c.webp"},
		`{"image":"https://x/d.jpg","seed":42}`: {"https://x/d.jpg"},
		`null`:                                  nil,
		``:                                      nil,
	}
	for raw, want := range cases {
		got := Prediction{Output: json.RawMessage(raw)}.ImageURLs()
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("output %s: got %v, want %v", raw, got, want)
		}
	}
}

func TestPickImage(t *testing.T) {
	refs := []string{"https://x/log.txt", "https://x/a.webp?sig=1", "https://x/b.png"}
	if got := PickImage(refs, "png"); got != "https://x/b.png" {
		t.Fatalf("unexpected %q", got)
	}
	if got := PickImage(refs, "jpg"); got != "https://x/a.webp?sig=1" {
		t.Fatalf("unexpected fallback %q", got)
	}
	if got := PickImage([]string{"https://x/raw"}, "png"); got != "https://x/raw" {
		t.Fatalf("unexpected %q", got)
	}
	if got := PickImage(nil, "png"); got != "" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestFetchImageDataURI(t *testing.T) {
	client := NewClient("r8", "", "", 0, time.Second)
	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("inline"))
	if got := PickImage([]string{ref}, "png"); got != ref {
		t.Fatalf("data uri should match png, got %q", got)
	}
	data, err := client.FetchImage(context.Background(), ref)
	if err != nil || string(data) != "inline" {
		t.Fatalf("unexpected data %q err %v", data, err)
	}
	if _, err := client.FetchImage(context.Background(), "data:text/plain,hello"); err == nil {
		t.Fatalf("expected error for non-base64 data uri")
	}
}
