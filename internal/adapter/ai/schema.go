package ai

import (
	"context"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/observability"
)

// SchemaChecker validates parsed responses against the JSON schema of the prompt that
// produced them. Violations are reported, never enforced: normalization downstream
// already substitutes defaults for anything missing.
type SchemaChecker struct {
	schemas map[string]*gojsonschema.Schema
}

// NewSchemaChecker compiles one schema per prompt name.
func NewSchemaChecker(schemas map[string]string) (*SchemaChecker, error) {
	c := &SchemaChecker{schemas: make(map[string]*gojsonschema.Schema, len(schemas))}
	for name, src := range schemas {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("op=ai.NewSchemaChecker: schema %s: %w", name, err)
		}
		c.schemas[name] = s
	}
	return c, nil
}

// Check returns the violations of fields against the named schema, sorted. A nil
// checker, an unknown prompt or an Empty parse yields nothing.
func (c *SchemaChecker) Check(ctx context.Context, prompt string, res ParseResult) []string {
	if c == nil {
		return nil
	}
	fields := res.Map()
	schema, ok := c.schemas[prompt]
	if !ok || fields == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(fields))
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("schema validation failed to run", "prompt", prompt, "error", err)
		return nil
	}
	if result.Valid() {
		return nil
	}
	out := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		out = append(out, e.String())
	}
	sort.Strings(out)
	observability.AISchemaViolationsTotal.WithLabelValues(prompt).Inc()
	observability.LoggerFromContext(ctx).Warn("llm response violates prompt contract",
		"prompt", prompt, "violations", out)
	return out
}
