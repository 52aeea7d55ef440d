package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tilahungoito/healthydoc/internal/config"
)

const defaultGoogleEndpoint = "https://translation.googleapis.com/language/translate/v2"

// Google calls the Cloud Translation v2 REST API.
type Google struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

// NewGoogle returns nil when no API key is configured.
func NewGoogle(cfg config.GoogleConfig) *Google {
	if cfg.APIKey == "" {
		return nil
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultGoogleEndpoint
	}
	return &Google{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Google) Name() string { return "google" }

func (t *Google) Translate(ctx context.Context, text, from, to string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"q":      text,
		"source": from,
		"target": to,
		"format": "text",
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.endpoint+"?key="+t.apiKey, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("google translate status %d", resp.StatusCode)
	}

	var decoded struct {
		Data struct {
			Translations []struct {
				TranslatedText string `json:"translatedText"`
			} `json:"translations"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Data.Translations) == 0 {
		return "", fmt.Errorf("google translate: empty response")
	}
	return decoded.Data.Translations[0].TranslatedText, nil
}
