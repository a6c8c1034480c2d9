package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultOpenAIURL   = "https://api.openai.com/v1"
)

type OpenAI struct {
	APIKey    string
	BaseURL   string
	ModelName string
	Client    *http.Client
}

func NewOpenAI(apiKey, baseURL, model string, timeout time.Duration) *OpenAI {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	return &OpenAI{
		APIKey:    apiKey,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ModelName: model,
		Client:    newHTTPClient(timeout),
	}
}

func (o *OpenAI) Name() string  { return "openai" }
func (o *OpenAI) Model() string { return o.ModelName }

func (o *OpenAI) Generate(ctx context.Context, req GenerateRequest) (Response, error) {
	if o.APIKey == "" {
		return Response{}, fmt.Errorf("%w: openai api key not configured", ErrUnsupported)
	}
	payload := map[string]any{
		"model": o.ModelName,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
		"temperature": req.Sampling.Temperature,
		"top_p":       req.Sampling.TopP,
		"max_tokens":  req.Sampling.MaxOutputTokens,
	}
	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + o.APIKey}
	if err := postJSON(ctx, o.Client, o.Name(), o.BaseURL+"/chat/completions", headers, payload, &decoded); err != nil {
		return Response{}, err
	}

	var out Response
	for i, choice := range decoded.Choices {
		if i == 0 {
			out.Text = choice.Message.Content
		}
		out.Candidates = append(out.Candidates, Candidate{
			Content:      Content{Parts: []Part{{Text: choice.Message.Content}}},
			FinishReason: choice.FinishReason,
		})
	}
	return out, nil
}
