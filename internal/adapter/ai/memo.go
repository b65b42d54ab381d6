package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// PromptKey is the memoization key of a prompt: the sha256 of its trimmed text.
func PromptKey(prompt string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(prompt)))
	return hex.EncodeToString(h[:])
}

// memoGateway remembers successful completions by PromptKey with FIFO eviction.
// It is safe for concurrent use. Failures are never remembered.
type memoGateway struct {
	base     domain.LLMGateway
	capacity int
	mu       sync.RWMutex
	m        map[string]string
	ord      []string
}

// NewMemoGateway wraps base with a memo of the given capacity (number of prompts).
// If capacity <= 0, base is returned unmodified.
func NewMemoGateway(base domain.LLMGateway, capacity int) domain.LLMGateway {
	if capacity <= 0 || base == nil {
		return base
	}
	return &memoGateway{base: base, capacity: capacity, m: make(map[string]string, capacity), ord: make([]string, 0, capacity)}
}

func (c *memoGateway) Call(ctx domain.Context, prompt string) (string, error) {
	k := PromptKey(prompt)
	c.mu.RLock()
	v, ok := c.m[k]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}
	out, err := c.base.Call(ctx, prompt)
	if err != nil {
		return "", err
	}
	c.put(k, out)
	return out, nil
}

func (c *memoGateway) put(k, v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[k]; exists {
		c.m[k] = v
		return
	}
	if len(c.ord) >= c.capacity {
		old := c.ord[0]
		c.ord = c.ord[1:]
		delete(c.m, old)
	}
	c.m[k] = v
	c.ord = append(c.ord, k)
}
