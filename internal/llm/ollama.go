package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const DefaultOllamaModel = "llama3"

type Ollama struct {
	BaseURL   string
	ModelName string
	Client    *http.Client
}

func NewOllama(baseURL string, model string, timeout time.Duration) *Ollama {
	if model == "" {
		model = DefaultOllamaModel
	}
	return &Ollama{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ModelName: model,
		Client:    newHTTPClient(timeout),
	}
}

func (o *Ollama) Name() string  { return "ollama" }
func (o *Ollama) Model() string { return o.ModelName }

func (o *Ollama) Generate(ctx context.Context, req GenerateRequest) (Response, error) {
	if o.BaseURL == "" {
		return Response{}, fmt.Errorf("%w: ollama url not configured", ErrUnsupported)
	}
	payload := map[string]any{
		"model":  o.ModelName,
		"prompt": req.Prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": req.Sampling.Temperature,
			"top_p":       req.Sampling.TopP,
			"num_predict": req.Sampling.MaxOutputTokens,
		},
	}
	var decoded struct {
		Response   string `json:"response"`
		DoneReason string `json:"done_reason"`
	}
	if err := postJSON(ctx, o.Client, o.Name(), o.BaseURL+"/api/generate", nil, payload, &decoded); err != nil {
		return Response{}, err
	}
	return Response{Text: decoded.Response}, nil
}
