package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrModelLoading is returned when the model was still warming up after every retry.
var ErrModelLoading = errors.New("model still loading")

type Client struct {
	APIToken    string
	BaseURL     string
	Model       string
	MaxRetries  int
	DefaultWait time.Duration
	HTTPClient  *http.Client
	Logger      *zap.SugaredLogger
}

type Parameters struct {
	Width             int     `json:"width,omitempty"`
	Height            int     `json:"height,omitempty"`
	NumInferenceSteps int     `json:"num_inference_steps,omitempty"`
	GuidanceScale     float64 `json:"guidance_scale,omitempty"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
}

type inferenceRequest struct {
	Inputs     string     `json:"inputs"`
	Parameters Parameters `json:"parameters"`
}

type loadingResponse struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

func NewClient(apiToken, baseURL, model string, maxRetries int, defaultWait, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	if baseURL == "" {
		baseURL = "https://api-inference.huggingface.co"
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if defaultWait <= 0 {
		defaultWait = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		APIToken:    apiToken,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Model:       model,
		MaxRetries:  maxRetries,
		DefaultWait: defaultWait,
		HTTPClient:  &http.Client{Timeout: timeout},
		Logger:      logger,
	}
}

// TextToImage returns the encoded image bytes produced for prompt. While the endpoint answers
// 503 (model loading) it waits for the server's estimated_time hint, or DefaultWait, and retries
// up to MaxRetries times, so at most MaxRetries+1 requests are sent.
func (client *Client) TextToImage(ctx context.Context, prompt string, params Parameters) ([]byte, error) {
	if client.APIToken == "" {
		return nil, fmt.Errorf("hugging face api token is required")
	}

	payload, err := json.Marshal(inferenceRequest{Inputs: prompt, Parameters: params})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s", client.BaseURL, client.Model)
	for attempt := 1; ; attempt++ {
		body, wait, err := client.post(ctx, url, payload)
		if err != nil {
			return nil, err
		}
		if body != nil {
			return body, nil
		}
		if attempt > client.MaxRetries {
			return nil, fmt.Errorf("%w after %d attempts", ErrModelLoading, attempt)
		}

		client.Logger.Infow("model loading, waiting before retry",
			"model", client.Model,
			"retry", attempt,
			"max_retries", client.MaxRetries,
			"wait", wait,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// post returns the image bytes, or a nil body plus the wait hint when the model is loading.
func (client *Client) post(ctx context.Context, url string, payload []byte) ([]byte, time.Duration, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	request.Header.Set("Authorization", "Bearer "+client.APIToken)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "image/png")

	response, err := client.HTTPClient.Do(request)
	if err != nil {
		return nil, 0, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, 0, err
	}

	if response.StatusCode == http.StatusServiceUnavailable {
		return nil, client.waitHint(body), nil
	}
	if response.StatusCode >= http.StatusBadRequest {
		return nil, 0, fmt.Errorf("hugging face inference error (%d): %s", response.StatusCode, strings.TrimSpace(string(body)))
	}
	if strings.HasPrefix(response.Header.Get("Content-Type"), "application/json") {
		return nil, 0, fmt.Errorf("hugging face returned json instead of an image: %s", strings.TrimSpace(string(body)))
	}
	return body, 0, nil
}

func (client *Client) waitHint(body []byte) time.Duration {
	var loading loadingResponse
	if err := json.Unmarshal(body, &loading); err != nil || loading.EstimatedTime <= 0 {
		return client.DefaultWait
	}
	return time.Duration(loading.EstimatedTime * float64(time.Second))
}
