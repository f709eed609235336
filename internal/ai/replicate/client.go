package replicate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

type Client struct {
	APIToken     string
	BaseURL      string
	Model        string
	PollInterval time.Duration
	HTTPClient   *http.Client
}

// ImageRequest is the input accepted by text-to-image models such as flux-schnell and sdxl.
type ImageRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	OutputFormat   string `json:"output_format,omitempty"`
	NumOutputs     int    `json:"num_outputs,omitempty"`
}

type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	Logs   string          `json:"logs"`
}

type predictionRequest struct {
	Input ImageRequest `json:"input"`
}

func NewClient(apiToken, baseURL, model string, pollInterval, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	if model == "" {
		model = "black-forest-labs/flux-schnell"
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Client{
		APIToken:     apiToken,
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Model:        model,
		PollInterval: pollInterval,
		HTTPClient:   &http.Client{Timeout: timeout},
	}
}

// CreateImage starts a prediction on the configured model. With preferWait the API holds the
// connection until the image is ready or its own sync window expires.
func (client *Client) CreateImage(ctx context.Context, request ImageRequest, preferWait bool) (Prediction, error) {
	if client.APIToken == "" {
		return Prediction{}, fmt.Errorf("replicate api token is required")
	}
	if strings.TrimSpace(request.Prompt) == "" {
		return Prediction{}, fmt.Errorf("replicate prompt is empty")
	}

	payload, err := json.Marshal(predictionRequest{Input: request})
	if err != nil {
		return Prediction{}, err
	}

	var prediction Prediction
	endpoint := fmt.Sprintf("%s/models/%s/predictions", client.BaseURL, client.Model)
	if err := client.call(ctx, http.MethodPost, endpoint, payload, preferWait, &prediction); err != nil {
		return Prediction{}, fmt.Errorf("replicate create prediction: %w", err)
	}
	return prediction, nil
}

func (client *Client) Prediction(ctx context.Context, id string) (Prediction, error) {
	var prediction Prediction
	if err := client.call(ctx, http.MethodGet, client.BaseURL+"/predictions/"+id, nil, false, &prediction); err != nil {
		return Prediction{}, fmt.Errorf("replicate prediction %s: %w", id, err)
	}
	return prediction, nil
}

// Await polls the prediction until it reaches a terminal status.
func (client *Client) Await(ctx context.Context, prediction Prediction) (Prediction, error) {
	for {
		switch strings.ToLower(prediction.Status) {
		case "succeeded":
			return prediction, nil
		case "failed", "canceled":
			return Prediction{}, fmt.Errorf("replicate prediction %s %s: %v", prediction.ID, prediction.Status, prediction.Error)
		case "starting", "processing":
		default:
			return Prediction{}, fmt.Errorf("replicate prediction %s: unknown status %q", prediction.ID, prediction.Status)
		}

		select {
		case <-ctx.Done():
			return Prediction{}, ctx.Err()
		case <-time.After(client.PollInterval):
		}

		var err error
		prediction, err = client.Prediction(ctx, prediction.ID)
		if err != nil {
			return Prediction{}, err
		}
	}
}

// FetchImage returns the bytes behind an output reference, either an https URL on the
// delivery host or an inline data URI.
func (client *Client) FetchImage(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "data:") {
		header, encoded, ok := strings.Cut(ref, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("replicate output is not a base64 data uri")
		}
		return base64.StdEncoding.DecodeString(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	response, err := client.HTTPClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}
	if response.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("replicate image download error (%d): %s", response.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (client *Client) call(ctx context.Context, method, endpoint string, payload []byte, preferWait bool, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	request, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", "Bearer "+client.APIToken)
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if preferWait {
		request.Header.Set("Prefer", "wait")
	}

	response, err := client.HTTPClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(response.Body)
		return fmt.Errorf("status %d: %s", response.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.NewDecoder(response.Body).Decode(out)
}

// ImageURLs lists the image references in the prediction output. Models return a bare string,
// a list of strings, or an object with an "image" or "images" field.
func (prediction Prediction) ImageURLs() []string {
	return collectURLs(prediction.Output)
}

func collectURLs(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		var urls []string
		for _, item := range list {
			urls = append(urls, collectURLs(item)...)
		}
		return urls
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err == nil {
		for _, key := range []string{"images", "image"} {
			if value, ok := object[key]; ok {
				return collectURLs(value)
			}
		}
	}
	return nil
}

// PickImage prefers a reference in the requested format, then any image reference, then the
// first one.
func PickImage(refs []string, format string) string {
	if len(refs) == 0 {
		return ""
	}
	wanted := "." + strings.ToLower(strings.TrimPrefix(format, "."))
	for _, ref := range refs {
		if imageExt(ref) == wanted {
			return ref
		}
	}
	for _, ref := range refs {
		switch imageExt(ref) {
		case ".png", ".jpg", ".jpeg", ".webp":
			return ref
		}
	}
	return refs[0]
}

func imageExt(ref string) string {
	if strings.HasPrefix(ref, "data:") {
		mediaType, _, _ := strings.Cut(strings.TrimPrefix(ref, "data:"), ";")
		return "." + strings.TrimPrefix(mediaType, "image/")
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(parsed.Path))
}
