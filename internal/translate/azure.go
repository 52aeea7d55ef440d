package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tilahungoito/healthydoc/internal/config"
)

// Azure calls the Azure Cognitive Services Translator v3 API.
type Azure struct {
	endpoint string
	key      string
	region   string
	http     *http.Client
}

// NewAzure returns nil when the endpoint or key is missing.
func NewAzure(cfg config.AzureConfig) *Azure {
	if cfg.Endpoint == "" || cfg.Key == "" {
		return nil
	}
	return &Azure{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		key:      cfg.Key,
		region:   cfg.Region,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Azure) Name() string { return "azure" }

func (t *Azure) Translate(ctx context.Context, text, from, to string) (string, error) {
	payload, err := json.Marshal([]map[string]string{{"Text": text}})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	query := url.Values{
		"api-version": {"3.0"},
		"from":        {from},
		"to":          {to},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.endpoint+"/translate?"+query.Encode(), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", t.key)
	if t.region != "" {
		req.Header.Set("Ocp-Apim-Subscription-Region", t.region)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("azure translate status %d", resp.StatusCode)
	}

	var decoded []struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded) == 0 || len(decoded[0].Translations) == 0 {
		return "", fmt.Errorf("azure translate: empty response")
	}
	return decoded[0].Translations[0].Text, nil
}
