// Package speech is the ASR side path spec.md §6 names as SpeechService, an
// opaque HTTP request/response port per spec.md §1's non-goals. Grounded on
// original_source/server/src/common/asr.hpp.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Port recognizes speech content, returning the transcription.
type Port interface {
	Recognize(ctx context.Context, speechContent []byte) (string, error)
}

// HTTPRecognizer calls an opaque ASR HTTP service.
type HTTPRecognizer struct {
	client *http.Client
	url    string
}

// New constructs an HTTPRecognizer targeting url.
func New(client *http.Client, url string) *HTTPRecognizer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRecognizer{client: client, url: url}
}

// Recognize posts speechContent and returns the recognition_result text.
func (r *HTTPRecognizer) Recognize(ctx context.Context, speechContent []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(speechContent))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("speech: recognize: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		RecognitionResult string `json:"recognition_result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("speech: decode response: %w", err)
	}
	return parsed.RecognitionResult, nil
}
