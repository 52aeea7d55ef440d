package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tilahungoito/healthydoc/internal/config"
	"github.com/tilahungoito/healthydoc/internal/models"
)

const (
	defaultBaseURL = "http://localhost:5007"
	// Model inference on a cold service can take a while.
	predictTimeout = 30 * time.Second
)

// Scan kinds served by the classifier service.
const (
	KindMalaria   = "malaria"
	KindPneumonia = "pneumonia"
)

var kindEndpoints = map[string]string{
	KindMalaria:   "/predict",
	KindPneumonia: "/pneumonia-predict",
}

// ValidKind reports whether kind names a supported classifier.
func ValidKind(kind string) bool {
	_, ok := kindEndpoints[kind]
	return ok
}

// Client proxies uploaded images to the external classifier service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a classifier client from config. BaseURL falls back to
// the default local service address.
func NewClient(cfg config.ScannerConfig) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: predictTimeout},
	}
}

// Health reports whether the classifier service is up and which models it
// has loaded.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier service not ready: %s", resp.Status)
	}
	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return status, nil
}

// Predict forwards the image at imagePath to the classifier for the given
// kind and returns the verdict.
func (c *Client) Predict(ctx context.Context, kind, imagePath string) (*models.ScanResult, error) {
	endpoint, ok := kindEndpoints[kind]
	if !ok {
		return nil, fmt.Errorf("unknown scan kind: %s", kind)
	}

	file, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		var svcErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &svcErr) == nil && svcErr.Error != "" {
			return nil, fmt.Errorf("classifier service: %s", svcErr.Error)
		}
		return nil, fmt.Errorf("classifier service: %s", resp.Status)
	}

	var result models.ScanResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	return &result, nil
}
