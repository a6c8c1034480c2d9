package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultGeminiModel = "gemini-2.0-flash-lite"
	DefaultGeminiURL   = "https://generativelanguage.googleapis.com/v1beta"
)

// Gemini calls the generateContent REST endpoint.
type Gemini struct {
	APIKey    string
	BaseURL   string
	ModelName string
	Client    *http.Client
}

func NewGemini(apiKey, baseURL, model string, timeout time.Duration) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	if baseURL == "" {
		baseURL = DefaultGeminiURL
	}
	return &Gemini{
		APIKey:    apiKey,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ModelName: model,
		Client:    newHTTPClient(timeout),
	}
}

func (g *Gemini) Name() string  { return "gemini" }
func (g *Gemini) Model() string { return g.ModelName }

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

func (g *Gemini) Generate(ctx context.Context, req GenerateRequest) (Response, error) {
	if g.APIKey == "" {
		return Response{}, fmt.Errorf("%w: gemini api key not configured", ErrUnsupported)
	}
	payload := map[string]any{
		"contents": []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Prompt}},
		}},
		"generationConfig": map[string]any{
			"temperature":     req.Sampling.Temperature,
			"topP":            req.Sampling.TopP,
			"maxOutputTokens": req.Sampling.MaxOutputTokens,
		},
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.BaseURL, url.PathEscape(g.ModelName))

	var decoded struct {
		Candidates []struct {
			Content      geminiContent `json:"content"`
			FinishReason string        `json:"finishReason"`
		} `json:"candidates"`
	}
	headers := map[string]string{"x-goog-api-key": g.APIKey}
	if err := postJSON(ctx, g.Client, g.Name(), endpoint, headers, payload, &decoded); err != nil {
		return Response{}, err
	}

	// generateContent has no top-level text; ExtractText reads the parts.
	out := Response{Candidates: make([]Candidate, 0, len(decoded.Candidates))}
	for _, c := range decoded.Candidates {
		cand := Candidate{FinishReason: c.FinishReason}
		for _, p := range c.Content.Parts {
			cand.Content.Parts = append(cand.Content.Parts, Part{Text: p.Text})
		}
		out.Candidates = append(out.Candidates, cand)
	}
	return out, nil
}
