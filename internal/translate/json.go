package translate

import (
	"context"
	"encoding/json"
	"fmt"
)

// TranslateDocument parses raw as JSON and translates every string leaf
// through the chain, leaving keys listed in skipKeys untouched. Leaves whose
// translation fails keep their original value.
func (c *Chain) TranslateDocument(ctx context.Context, raw, from, to string, skipKeys ...string) (string, error) {
	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}
	skip := make(map[string]bool, len(skipKeys))
	for _, key := range skipKeys {
		skip[key] = true
	}
	translated := c.translateValue(ctx, doc, from, to, skip)
	out, err := json.Marshal(translated)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(out), nil
}

func (c *Chain) translateValue(ctx context.Context, v interface{}, from, to string, skip map[string]bool) interface{} {
	switch typed := v.(type) {
	case map[string]interface{}:
		for key, val := range typed {
			if skip[key] {
				continue
			}
			typed[key] = c.translateValue(ctx, val, from, to, skip)
		}
		return typed
	case []interface{}:
		for i, val := range typed {
			typed[i] = c.translateValue(ctx, val, from, to, skip)
		}
		return typed
	case string:
		if typed == "" {
			return typed
		}
		translated, err := c.Translate(ctx, typed, from, to)
		if err != nil || translated == "" {
			return typed
		}
		return translated
	default:
		return v
	}
}
