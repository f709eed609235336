package psalm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultTitle = "Salmo"

// ErrMalformedPayload is returned when the API answers without a usable psalm.
var ErrMalformedPayload = errors.New("malformed psalm payload")

// Content is the psalm of the day. Paragraphs never contain blank entries.
type Content struct {
	Title      string   `json:"title"`
	Refrain    string   `json:"refrain"`
	Paragraphs []string `json:"paragraphs"`
}

type Client struct {
	URL        string
	HTTPClient *http.Client
}

type liturgyResponse struct {
	Psalm *struct {
		Title   string `json:"titulo"`
		Refrain string `json:"refrao"`
		Text    string `json:"texto"`
	} `json:"salmo"`
}

func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = "https://liturgia.up.railway.app/"
	}
	return &Client{
		URL:        url,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (client *Client) FetchDaily(ctx context.Context) (Content, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.URL, nil)
	if err != nil {
		return Content{}, err
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.HTTPClient.Do(request)
	if err != nil {
		return Content{}, err
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(response.Body)
		return Content{}, fmt.Errorf("liturgy api error (%d): %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload liturgyResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return payload.content()
}

func (payload liturgyResponse) content() (Content, error) {
	if payload.Psalm == nil {
		return Content{}, fmt.Errorf("%w: missing salmo", ErrMalformedPayload)
	}
	refrain := strings.TrimSpace(payload.Psalm.Refrain)
	if refrain == "" {
		return Content{}, fmt.Errorf("%w: missing refrao", ErrMalformedPayload)
	}
	paragraphs := SplitParagraphs(payload.Psalm.Text)
	if len(paragraphs) == 0 {
		return Content{}, fmt.Errorf("%w: missing texto", ErrMalformedPayload)
	}
	title := strings.TrimSpace(payload.Psalm.Title)
	if title == "" {
		title = DefaultTitle
	}
	return Content{Title: title, Refrain: refrain, Paragraphs: paragraphs}, nil
}

// SplitParagraphs splits newline separated text, trimming lines and dropping blanks.
func SplitParagraphs(text string) []string {
	var paragraphs []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		paragraphs = append(paragraphs, line)
	}
	return paragraphs
}

// NarrationText joins the psalm into a single script for speech synthesis.
func (content Content) NarrationText() string {
	parts := make([]string, 0, len(content.Paragraphs)+2)
	parts = append(parts, content.Title, content.Refrain)
	parts = append(parts, content.Paragraphs...)
	return strings.Join(parts, "\n\n")
}
