// Package stub is a deterministic LLM provider for local runs and tests. It answers the
// interview prompts by recognizing the JSON key each prompt asks for.
package stub

import (
	"encoding/json"
	"strings"
	"sync/atomic"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// Client never fails and never calls the network.
type Client struct {
	n atomic.Int64
}

// New returns a stub provider.
func New() *Client { return &Client{} }

// Name identifies the provider in logs and metrics.
func (c *Client) Name() string { return "stub" }

// Complete returns a fenced JSON payload matching the prompt's expected keys.
func (c *Client) Complete(_ domain.Context, prompt string) (string, error) {
	n := c.n.Add(1)
	var payload map[string]any
	switch {
	case strings.Contains(prompt, `"resume_highlights"`):
		payload = map[string]any{
			"name":              "Jordan Doe",
			"resume_highlights": "Backend engineer with five years of Go, Kafka and PostgreSQL experience.",
		}
	case strings.Contains(prompt, `"next_question"`):
		questions := []string{
			"Can you describe a system you designed end to end?",
			"How do you make sure your services stay reliable under load?",
			"Tell me about a time you disagreed with a technical decision.",
		}
		payload = map[string]any{"next_question": questions[int(n)%len(questions)]}
	case strings.Contains(prompt, `"feedback"`):
		payload = map[string]any{
			"feedback": "Clear and structured answer. Add concrete metrics to show impact.",
			"score":    7,
		}
	default:
		payload = map[string]any{}
	}
	b, _ := json.Marshal(payload)
	return "```json\n" + string(b) + "\n```", nil
}
