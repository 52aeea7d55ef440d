package translate

import (
	"context"
	"errors"
	"log"
)

// ErrUnavailable reports that a backend is not configured or returned nothing usable.
var ErrUnavailable = errors.New("translator unavailable")

// Translator converts text between two language codes.
type Translator interface {
	Name() string
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// JSONTranslator translates a whole JSON document while preserving its structure.
type JSONTranslator interface {
	TranslateJSON(ctx context.Context, raw, from, to string) (string, error)
}

// Chain tries each translator in order and returns the first success.
type Chain struct {
	translators []Translator
}

// NewChain builds a chain from the given translators, skipping nil entries.
func NewChain(translators ...Translator) *Chain {
	chain := &Chain{}
	for _, tr := range translators {
		if tr != nil {
			chain.translators = append(chain.translators, tr)
		}
	}
	return chain
}

// Len reports how many backends the chain carries.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.translators)
}

// Translate runs the chain. Text passes through unchanged when from == to
// or when the text is empty.
func (c *Chain) Translate(ctx context.Context, text, from, to string) (string, error) {
	if text == "" || from == to {
		return text, nil
	}
	if c == nil || len(c.translators) == 0 {
		return "", ErrUnavailable
	}
	var lastErr error
	for _, tr := range c.translators {
		translated, err := tr.Translate(ctx, text, from, to)
		if err == nil && translated != "" {
			return translated, nil
		}
		if err != nil {
			log.Printf("translator %s failed (%s->%s): %v", tr.Name(), from, to, err)
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = ErrUnavailable
	}
	return "", lastErr
}
