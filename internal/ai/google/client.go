// Package google calls Vertex AI Imagen and Cloud Text-to-Speech with application default
// credentials.
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// maxSpeechInputBytes is the Cloud Text-to-Speech request limit.
const maxSpeechInputBytes = 5000

type Client struct {
	Project       string
	Location      string
	ImagenModel   string
	VertexBaseURL string
	SpeechBaseURL string
	HTTPClient    *http.Client
}

type imagenRequest struct {
	Instances  []imagenInstance `json:"instances"`
	Parameters imagenParameters `json:"parameters"`
}

type imagenInstance struct {
	Prompt string `json:"prompt"`
}

type imagenParameters struct {
	SampleCount    int    `json:"sampleCount"`
	AspectRatio    string `json:"aspectRatio,omitempty"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
}

type imagenResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
}

type speechRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name,omitempty"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string `json:"audioEncoding"`
	} `json:"audioConfig"`
}

type speechResponse struct {
	AudioContent string `json:"audioContent"`
}

// NewClient resolves application default credentials for the cloud-platform scope.
func NewClient(ctx context.Context, project, location, imagenModel string, timeout time.Duration) (*Client, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
	credentials, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("google credentials: %w", err)
	}
	if project == "" {
		project = credentials.ProjectID
	}
	return NewClientWithTokenSource(ctx, credentials.TokenSource, project, location, imagenModel, timeout), nil
}

func NewClientWithTokenSource(ctx context.Context, source oauth2.TokenSource, project, location, imagenModel string, timeout time.Duration) *Client {
	if location == "" {
		location = "us-central1"
	}
	if imagenModel == "" {
		imagenModel = "imagegeneration@006"
	}
	httpClient := oauth2.NewClient(ctx, source)
	httpClient.Timeout = timeout
	return &Client{
		Project:       project,
		Location:      location,
		ImagenModel:   imagenModel,
		VertexBaseURL: fmt.Sprintf("https://%s-aiplatform.googleapis.com", location),
		SpeechBaseURL: "https://texttospeech.googleapis.com",
		HTTPClient:    httpClient,
	}
}

// GenerateImage runs an Imagen predict call and returns the first decoded image.
func (client *Client) GenerateImage(ctx context.Context, prompt, negativePrompt, aspectRatio string) ([]byte, error) {
	if client.Project == "" {
		return nil, fmt.Errorf("google cloud project is required")
	}

	request := imagenRequest{
		Instances: []imagenInstance{{Prompt: prompt}},
		Parameters: imagenParameters{
			SampleCount:    1,
			AspectRatio:    aspectRatio,
			NegativePrompt: negativePrompt,
		},
	}
	url := fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		strings.TrimRight(client.VertexBaseURL, "/"), client.Project, client.Location, client.ImagenModel)

	var response imagenResponse
	if err := client.postJSON(ctx, url, request, &response); err != nil {
		return nil, fmt.Errorf("imagen predict: %w", err)
	}
	for _, prediction := range response.Predictions {
		if prediction.BytesBase64Encoded == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(prediction.BytesBase64Encoded)
		if err != nil {
			return nil, fmt.Errorf("imagen decode: %w", err)
		}
		return data, nil
	}
	// Imagen answers 200 with no predictions when its safety filter drops the sample.
	return nil, fmt.Errorf("imagen returned no image for prompt")
}

// Synthesize returns MP3 narration for text.
func (client *Client) Synthesize(ctx context.Context, text, languageCode, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("speech text is empty")
	}
	if len(text) > maxSpeechInputBytes {
		return nil, fmt.Errorf("speech text is %d bytes, limit is %d", len(text), maxSpeechInputBytes)
	}

	var request speechRequest
	request.Input.Text = text
	request.Voice.LanguageCode = languageCode
	request.Voice.Name = voice
	request.AudioConfig.AudioEncoding = "MP3"

	url := strings.TrimRight(client.SpeechBaseURL, "/") + "/v1/text:synthesize"
	var response speechResponse
	if err := client.postJSON(ctx, url, request, &response); err != nil {
		return nil, fmt.Errorf("text to speech: %w", err)
	}
	if response.AudioContent == "" {
		return nil, fmt.Errorf("text to speech returned no audio")
	}
	return base64.StdEncoding.DecodeString(response.AudioContent)
}

func (client *Client) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	if client.Project != "" {
		request.Header.Set("x-goog-user-project", client.Project)
	}

	response, err := client.HTTPClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(response.Body)
		return fmt.Errorf("google api error (%d): %s", response.StatusCode, string(data))
	}
	return json.NewDecoder(response.Body).Decode(out)
}
