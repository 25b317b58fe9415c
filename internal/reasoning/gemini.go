package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/watchpost/internal/incident"
	"github.com/go-resty/resty/v2"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-1.5-flash"
	DefaultTimeout       = 8 * time.Second

	temperature = 0.1
)

// Gemini classifies summaries with the generateContent REST API.
type Gemini struct {
	client *resty.Client
	model  string
	apiKey string
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGemini returns a client for model at baseURL. Empty arguments take the
// package defaults.
func NewGemini(baseURL, model, apiKey string, timeout time.Duration) *Gemini {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Gemini{client: client, model: model, apiKey: apiKey}
}

// Configured reports whether a credential is set.
func (g *Gemini) Configured() bool {
	return g != nil && g.apiKey != ""
}

// Classify asks the model for incidents. Errors cover transport failures,
// API errors and unparseable replies alike.
func (g *Gemini) Classify(ctx context.Context, summary string) ([]incident.Incident, error) {
	if !g.Configured() {
		return nil, errors.New("gemini: no api key configured")
	}

	var req geminiRequest
	req.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: ClassifyPrompt(summary)}}}}
	req.GenerationConfig.Temperature = temperature

	var result geminiResponse
	var apiErr geminiError
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("model", g.model).
		SetQueryParam("key", g.apiKey).
		SetBody(req).
		SetResult(&result).
		SetError(&apiErr).
		ForceContentType("application/json").
		Post("/v1beta/models/{model}:generateContent")
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("gemini: status %d: %s", resp.StatusCode(), apiErr.Error.Message)
	}

	var text strings.Builder
	if len(result.Candidates) > 0 {
		for _, part := range result.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	return ParseIncidents(text.String(), DefaultRemoteEvidence)
}
