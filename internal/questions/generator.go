package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Spec describes the interview to prepare questions for.
type Spec struct {
	Role      string `json:"role"`
	Level     string `json:"level"`
	Type      string `json:"type"`
	TechStack string `json:"techstack"`
	Amount    int    `json:"amount"`
}

// Generator produces a list of spoken-friendly interview questions.
type Generator interface {
	GenerateQuestions(ctx context.Context, spec Spec) ([]string, error)
}

// buildPrompt asks for a bare JSON array so the output survives both JSON
// parsing and text-to-speech without cleanup.
func buildPrompt(spec Spec) string {
	amount := spec.Amount
	if amount <= 0 {
		amount = 5
	}
	return fmt.Sprintf(`
Prepare questions for a job interview.
The job role is %s.
The job experience level is %s.
The tech stack used in the job is: %s.
The focus between behavioural and technical questions should lean towards: %s.
The amount of questions required is: %d.

Rules:
- Return ONLY a valid JSON array
- No markdown
- No special characters like *, /, -
- Suitable for voice assistant
- Format exactly like:
["Question 1", "Question 2"]

Start now.
`, spec.Role, spec.Level, spec.TechStack, spec.Type, amount)
}

// parseQuestionList extracts the first JSON array from a model response.
// Models occasionally wrap the array in prose or code fences despite the
// prompt rules.
func parseQuestionList(raw string) ([]string, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("questions: no JSON array in response")
	}
	var qs []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &qs); err != nil {
		return nil, fmt.Errorf("questions: parse array: %w", err)
	}
	out := qs[:0]
	for _, q := range qs {
		if t := strings.TrimSpace(q); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("questions: model returned no usable questions")
	}
	return out, nil
}
