// Package diffusers talks to a self-hosted diffusion pipeline server that exposes a
// submit / status / download job API.
package diffusers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	BaseURL      string
	GeneratePath string
	StatusPath   string
	DownloadPath string
	PollInterval time.Duration
	HTTPClient   *http.Client
}

type GenerateRequest struct {
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	Model             string  `json:"model"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
}

type JobStatus struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	Progress  float64 `json:"progress"`
	OutputURL string  `json:"output_url"`
	Error     string  `json:"error"`
}

type GenerateResponse struct {
	JobID string `json:"job_id"`
	ID    string `json:"id"`
}

func NewClient(baseURL string, pollInterval, timeout time.Duration) *Client {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		GeneratePath: "/v1/jobs",
		StatusPath:   "/v1/jobs/%s",
		DownloadPath: "/v1/jobs/%s/image",
		PollInterval: pollInterval,
		HTTPClient:   &http.Client{Timeout: timeout},
	}
}

func (client *Client) SubmitJob(ctx context.Context, request GenerateRequest) (string, error) {
	if client.BaseURL == "" {
		return "", fmt.Errorf("diffusers base url is required")
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return "", err
	}
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, client.BaseURL+client.GeneratePath, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := client.HTTPClient.Do(httpRequest)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(response.Body)
		return "", fmt.Errorf("diffusers submit error: %s", string(body))
	}

	var generated GenerateResponse
	if err := json.NewDecoder(response.Body).Decode(&generated); err != nil {
		return "", err
	}

	jobID := generated.JobID
	if jobID == "" {
		jobID = generated.ID
	}
	if jobID == "" {
		return "", fmt.Errorf("diffusers response missing job id")
	}
	return jobID, nil
}

func (client *Client) FetchStatus(ctx context.Context, jobID string) (JobStatus, error) {
	url := client.BaseURL + fmt.Sprintf(client.StatusPath, jobID)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return JobStatus{}, err
	}

	response, err := client.HTTPClient.Do(request)
	if err != nil {
		return JobStatus{}, err
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(response.Body)
		return JobStatus{}, fmt.Errorf("diffusers status error: %s", string(body))
	}

	var status JobStatus
	if err := json.NewDecoder(response.Body).Decode(&status); err != nil {
		return JobStatus{}, err
	}
	if status.ID == "" {
		status.ID = jobID
	}
	return status, nil
}

// Wait polls the job until it completes or fails.
func (client *Client) Wait(ctx context.Context, jobID string) (JobStatus, error) {
	for {
		status, err := client.FetchStatus(ctx, jobID)
		if err != nil {
			return JobStatus{}, err
		}
		switch strings.ToLower(status.Status) {
		case "completed", "succeeded", "done":
			return status, nil
		case "failed", "error", "canceled":
			return JobStatus{}, fmt.Errorf("diffusers job %s failed: %s", jobID, status.Error)
		}

		select {
		case <-ctx.Done():
			return JobStatus{}, ctx.Err()
		case <-time.After(client.PollInterval):
		}
	}
}

func (client *Client) DownloadOutput(ctx context.Context, jobStatus JobStatus) ([]byte, error) {
	downloadURL := jobStatus.OutputURL
	if downloadURL == "" {
		downloadURL = client.BaseURL + fmt.Sprintf(client.DownloadPath, jobStatus.ID)
	} else if strings.HasPrefix(downloadURL, "/") {
		downloadURL = client.BaseURL + downloadURL
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}

	response, err := client.HTTPClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(response.Body)
		return nil, fmt.Errorf("diffusers download error: %s", string(body))
	}
	return io.ReadAll(response.Body)
}
