package reasoning

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/banshee-data/watchpost/internal/incident"
	"github.com/go-resty/resty/v2"
)

const (
	DefaultOllamaEndpoint = "http://127.0.0.1:11434/api/generate"
	DefaultOllamaModel    = "gemma3n:e4b"

	reachabilityTimeout = 1500 * time.Millisecond
)

// Ollama enriches decided incidents through an Ollama-compatible
// /api/generate endpoint.
type Ollama struct {
	client   *resty.Client
	endpoint string
	tagsURL  string
	model    string
}

type ollamaGenerateRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Options struct {
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// NewOllama returns a client posting to endpoint, the full generate URL.
func NewOllama(endpoint, model string, timeout time.Duration) *Ollama {
	if endpoint == "" {
		endpoint = DefaultOllamaEndpoint
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	o := &Ollama{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		endpoint: endpoint,
		model:    model,
	}
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		u.Path, u.RawQuery = "/api/tags", ""
		o.tagsURL = u.String()
	}
	return o
}

// Reachable probes the server's model listing with a short timeout.
func (o *Ollama) Reachable(ctx context.Context) bool {
	if o == nil || o.tagsURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, reachabilityTimeout)
	defer cancel()
	resp, err := o.client.R().SetContext(ctx).Get(o.tagsURL)
	return err == nil && resp.IsSuccess()
}

func (o *Ollama) generate(ctx context.Context, prompt string) (string, error) {
	var req ollamaGenerateRequest
	req.Model, req.Prompt, req.Stream = o.model, prompt, false
	req.Options.Temperature = temperature

	var result ollamaGenerateResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&result).
		ForceContentType("application/json").
		Post(o.endpoint)
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("ollama: status %d: %s", resp.StatusCode(), result.Error)
	}
	return result.Response, nil
}

// Enrich asks the local model to describe inc. The type is never taken
// from the reply.
func (o *Ollama) Enrich(ctx context.Context, summary string, inc incident.Incident) (Enrichment, error) {
	text, err := o.generate(ctx, EnrichPrompt(summary, inc))
	if err != nil {
		return Enrichment{}, err
	}
	e, err := ParseEnrichment(text)
	if err != nil {
		return Enrichment{}, err
	}
	if e.Evidence == "" && e.RecommendedAction == "" {
		return Enrichment{}, errors.New("ollama: reply carried no evidence or action")
	}
	return e, nil
}
