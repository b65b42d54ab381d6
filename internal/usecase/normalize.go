package usecase

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// Score bounds of a normalized answer score.
const (
	MinScore = 0.0
	MaxScore = 10.0
)

// NormalizeScore maps a raw score field to [0,10]. Numbers and numeric strings inside
// the range pass through unchanged; anything else (missing, non-numeric, NaN, out of
// range) becomes 0. It reports whether the value was substituted.
func NormalizeScore(v any) (float64, bool) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < MinScore || f > MaxScore {
		return 0, true
	}
	return f, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}

// NormalizeFeedback builds a FeedbackResult from parsed fields. Missing text becomes
// unclear; the score goes through NormalizeScore.
func NormalizeFeedback(fields map[string]any, unclear string) (domain.FeedbackResult, bool) {
	text := stringField(fields, "feedback")
	substituted := false
	if text == "" {
		text = unclear
		substituted = true
	}
	score, scoreSubstituted := NormalizeScore(fields["score"])
	return domain.FeedbackResult{Text: text, Score: score}, substituted || scoreSubstituted
}

// NormalizeNextQuestion returns the parsed question or fallback when it is missing.
func NormalizeNextQuestion(fields map[string]any, fallback string) (string, bool) {
	if q := stringField(fields, "next_question"); q != "" {
		return q, false
	}
	return fallback, true
}
