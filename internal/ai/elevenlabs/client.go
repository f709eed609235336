package elevenlabs

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
	APIKey     string
	BaseURL    string
	VoiceID    string
	Model      string
	HTTPClient *http.Client
}

type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

func NewClient(apiKey, baseURL, voiceID, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io"
	}
	if model == "" {
		model = "eleven_multilingual_v2"
	}
	return &Client{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		VoiceID:    voiceID,
		Model:      model,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// TextToSpeech returns MP3 audio for text.
func (client *Client) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	if client.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs api key is required")
	}
	if client.VoiceID == "" {
		return nil, fmt.Errorf("elevenlabs voice id is required")
	}

	payload, err := json.Marshal(speechRequest{
		Text:          text,
		ModelID:       client.Model,
		VoiceSettings: VoiceSettings{Stability: 0.45, SimilarityBoost: 0.75},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=mp3_44100_128", client.BaseURL, client.VoiceID)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	request.Header.Set("xi-api-key", client.APIKey)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "audio/mpeg")

	response, err := client.HTTPClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(response.Body)
		return nil, fmt.Errorf("elevenlabs error: %s", string(body))
	}
	return io.ReadAll(response.Body)
}
