package questions

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiGenerator generates questions through the Gemini API. It is the
// fallback when no Cerebras key is configured.
type GeminiGenerator struct {
	apiKey string
	model  string
}

func NewGeminiGenerator(apiKey, model string) *GeminiGenerator {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiGenerator{apiKey: apiKey, model: model}
}

func (g *GeminiGenerator) GenerateQuestions(ctx context.Context, spec Spec) ([]string, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("gemini api key missing")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(buildPrompt(spec)), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate: %w", err)
	}
	return parseQuestionList(resp.Text())
}
