// Package tokencount counts and trims prompt text in model tokens.
//
// Encodings come from tiktoken-go with its offline BPE loader, so counting never touches
// the network. Models without a tiktoken encoding (Mistral, Gemini) are approximated with
// cl100k_base, which is close enough for budgeting.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

const fallbackEncoding = "cl100k_base"

// Counter provides thread-safe token counting. Encodings are cached per model.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{
		encodingCache: make(map[string]*tiktoken.Tiktoken),
	}
}

func (c *Counter) encoding(model string) (*tiktoken.Tiktoken, error) {
	key := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[key]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[key]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(key)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding", slog.String("model", model), slog.Any("error", err))
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, err
		}
	}
	c.encodingCache[key] = enc
	return enc, nil
}

// normalizeModelName maps provider model ids to a tiktoken model name.
func normalizeModelName(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	switch {
	case strings.HasPrefix(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		return "gpt-4"
	}
}

// CountTokens counts the tokens of text for model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.encoding(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// Truncate cuts text to at most budget tokens. It returns the text unchanged when it
// fits, when budget <= 0, or when no encoding is available (then it falls back to a
// four-characters-per-token estimate).
func (c *Counter) Truncate(text, model string, budget int) (string, bool) {
	if budget <= 0 || text == "" {
		return text, false
	}
	enc, err := c.encoding(model)
	if err != nil {
		if limit := budget * 4; len(text) > limit {
			return strings.ToValidUTF8(text[:limit], ""), true
		}
		return text, false
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text, false
	}
	return strings.ToValidUTF8(enc.Decode(tokens[:budget]), ""), true
}
