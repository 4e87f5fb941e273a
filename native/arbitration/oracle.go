package arbitration

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

// ProofFetcher retrieves the raw text behind a worker-supplied proof URL.
type ProofFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Oracle renders a free-form judgment for the supplied prompt. The call is
// non-deterministic: replicas issuing the same prompt may receive textually
// different answers. Agreement on one accepted answer happens outside this
// package; the bridge only ever applies an already-agreed raw answer.
type Oracle interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

const maxProofBytes = 1 << 20 // 1 MiB cap on fetched proof documents

// HTTPProofFetcher fetches proof documents over plain HTTP(S).
type HTTPProofFetcher struct {
	httpClient *http.Client
}

// NewHTTPProofFetcher constructs a proof fetcher with the supplied timeout. A
// non-positive timeout falls back to 15 seconds.
func NewHTTPProofFetcher(timeout time.Duration) *HTTPProofFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPProofFetcher{httpClient: &http.Client{Timeout: timeout}}
}

// FetchText downloads the proof document and returns its body as text.
func (f *HTTPProofFetcher) FetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build proof request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch proof: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch proof: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProofBytes))
	if err != nil {
		return "", fmt.Errorf("read proof body: %w", err)
	}
	return string(body), nil
}

// HTTPOracle calls an OpenAI-style completion endpoint and returns the
// generated text verbatim.
type HTTPOracle struct {
	url        string
	model      string
	apiKey     string
	httpClient *http.Client
}

// OracleConfig represents the oracle client configuration.
type OracleConfig struct {
	URL     string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPOracle constructs an oracle client targeting the supplied endpoint.
func NewHTTPOracle(cfg OracleConfig) *HTTPOracle {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPOracle{
		url:        strings.TrimSpace(cfg.URL),
		model:      strings.TrimSpace(cfg.Model),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type completionRequest struct {
	Model    string              `json:"model"`
	Messages []completionMessage `json:"messages"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message completionMessage `json:"message"`
	} `json:"choices"`
}

// GenerateText implements the Oracle interface.
func (o *HTTPOracle) GenerateText(ctx context.Context, prompt string) (string, error) {
	if o.url == "" {
		return "", fmt.Errorf("oracle endpoint not configured")
	}
	payload := completionRequest{
		Model:    o.model,
		Messages: []completionMessage{{Role: "user", Content: prompt}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode oracle request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call oracle: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("call oracle: unexpected status %d", resp.StatusCode)
	}
	var decoded completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode oracle response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("oracle returned no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}
