// Package classifier is the text-moderation side path spec.md §1 treats as
// an opaque request/response port. It is a supplemented feature: the
// original BreezeChat source (original_source/server/src/common/channel.hpp,
// llm.hpp) runs submitted text through a fast keyword filter first and
// escalates ambiguous verdicts to a second, semantic LLM pass; spec.md's
// distillation collapses this into a single "text classifier" mention. This
// package reintroduces the two stages without changing the externally
// visible contract (Check returns compliant/not-compliant).
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Port classifies submitted text as compliant or not.
type Port interface {
	Check(ctx context.Context, text string) (compliant bool, err error)
}

// HTTPClassifier calls two opaque HTTP services: a fast keyword/channel
// filter and, only when that filter is unsure, a semantic LLM pass.
type HTTPClassifier struct {
	client        *http.Client
	channelURL    string
	llmURL        string
}

// New constructs an HTTPClassifier. llmURL may be empty, in which case the
// channel filter's verdict is authoritative (no semantic second pass).
func New(client *http.Client, channelURL, llmURL string) *HTTPClassifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClassifier{client: client, channelURL: channelURL, llmURL: llmURL}
}

type verdict struct {
	Compliant bool `json:"compliant"`
	Uncertain bool `json:"uncertain"`
}

// Check runs the keyword filter, escalating to the LLM pass only when the
// filter reports uncertain=true.
func (c *HTTPClassifier) Check(ctx context.Context, text string) (bool, error) {
	v, err := c.call(ctx, c.channelURL, text)
	if err != nil {
		return false, fmt.Errorf("classifier: channel filter: %w", err)
	}
	if !v.Uncertain || c.llmURL == "" {
		return v.Compliant, nil
	}

	v2, err := c.call(ctx, c.llmURL, text)
	if err != nil {
		return false, fmt.Errorf("classifier: llm pass: %w", err)
	}
	return v2.Compliant, nil
}

func (c *HTTPClassifier) call(ctx context.Context, url, text string) (verdict, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return verdict{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return verdict{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return verdict{}, err
	}
	defer resp.Body.Close()

	var v verdict
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return verdict{}, err
	}
	return v, nil
}
