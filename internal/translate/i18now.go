package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tilahungoito/healthydoc/internal/config"
)

// I18Now calls a self-hosted i18now translation server. The server's route
// layout varies across deployments, so several endpoint shapes are probed
// and the first that answers wins.
type I18Now struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewI18Now returns nil when no base URL is configured.
func NewI18Now(cfg config.I18NowConfig) *I18Now {
	if cfg.BaseURL == "" {
		return nil
	}
	return &I18Now{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *I18Now) Name() string { return "i18now" }

// Translate probes the known text endpoints in order.
func (t *I18Now) Translate(ctx context.Context, text, from, to string) (string, error) {
	body := map[string]string{"text": text, "from": from, "to": to}
	for _, path := range []string{"/translate", "/v1/translate", "/api/translate"} {
		if out, err := t.post(ctx, t.baseURL+path, body, textFields); err == nil && out != "" {
			return out, nil
		}
	}
	// Some builds only expose a GET query form.
	query := url.Values{"text": {text}, "from": {from}, "to": {to}}
	if out, err := t.get(ctx, t.baseURL+"/translate?"+query.Encode(), textFields); err == nil && out != "" {
		return out, nil
	}
	return "", fmt.Errorf("i18now: %w", ErrUnavailable)
}

// TranslateJSON asks the server to translate the string values of a JSON
// document in place.
func (t *I18Now) TranslateJSON(ctx context.Context, raw, from, to string) (string, error) {
	body := map[string]interface{}{
		"json":              json.RawMessage(raw),
		"from":              from,
		"to":                to,
		"preserveStructure": true,
	}
	for _, path := range []string{"/translate/json", "/v1/translate/json", "/api/translate/json"} {
		if out, err := t.post(ctx, t.baseURL+path, body, jsonFields); err == nil && out != "" {
			return out, nil
		}
	}
	return "", fmt.Errorf("i18now json: %w", ErrUnavailable)
}

var textFields = []string{"translatedText", "translation", "text", "result"}
var jsonFields = []string{"translated", "result", "json"}

func (t *I18Now) post(ctx context.Context, endpoint string, body interface{}, fields []string) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req, fields)
}

func (t *I18Now) get(ctx context.Context, endpoint string, fields []string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	return t.do(req, fields)
}

func (t *I18Now) do(req *http.Request, fields []string) (string, error) {
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("i18now status %d", resp.StatusCode)
	}
	var decoded map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	for _, field := range fields {
		raw, ok := decoded[field]
		if !ok {
			continue
		}
		var asString string
		if err := json.Unmarshal(raw, &asString); err == nil {
			return asString, nil
		}
		// JSON endpoints may return the translated document as an object.
		return string(raw), nil
	}
	return "", fmt.Errorf("i18now: no translation field in response")
}
