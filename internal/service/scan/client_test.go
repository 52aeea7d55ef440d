package scan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/tilahungoito/healthydoc/internal/config"
)

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cell.png")
	if err := os.WriteFile(path, []byte("not really a png"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func TestPredictMalaria(t *testing.T) {
	var gotPath, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			file.Close()
			gotFile = header.Filename
		}
		json.NewEncoder(w).Encode(map[string]any{
			"prediction":      "Parasitized",
			"confidence":      0.93,
			"message":         "Malaria parasites detected",
			"recommendations": []string{"Consult a clinician promptly"},
		})
	}))
	defer srv.Close()

	client := NewClient(config.ScannerConfig{BaseURL: srv.URL})
	result, err := client.Predict(context.Background(), KindMalaria, writeTestImage(t))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if gotPath != "/predict" {
		t.Fatalf("expected /predict, got %s", gotPath)
	}
	if gotFile != "cell.png" {
		t.Fatalf("expected uploaded filename, got %q", gotFile)
	}
	if result.Prediction != "Parasitized" || result.Confidence != 0.93 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Recommendations) != 1 {
		t.Fatalf("expected one recommendation, got %d", len(result.Recommendations))
	}
}

func TestPredictPneumoniaEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{"prediction": "Normal", "confidence": 0.88})
	}))
	defer srv.Close()

	client := NewClient(config.ScannerConfig{BaseURL: srv.URL})
	result, err := client.Predict(context.Background(), KindPneumonia, writeTestImage(t))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if gotPath != "/pneumonia-predict" {
		t.Fatalf("expected /pneumonia-predict, got %s", gotPath)
	}
	if result.Prediction != "Normal" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestPredictServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "model not loaded"})
	}))
	defer srv.Close()

	client := NewClient(config.ScannerConfig{BaseURL: srv.URL})
	_, err := client.Predict(context.Background(), KindMalaria, writeTestImage(t))
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := err.Error(); got != "classifier service: model not loaded" {
		t.Fatalf("unexpected error: %v", got)
	}
}

func TestPredictUnknownKind(t *testing.T) {
	client := NewClient(config.ScannerConfig{})
	if _, err := client.Predict(context.Background(), "xray", "nope.png"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "ok", "pneumonia_model": true})
	}))
	defer srv.Close()

	client := NewClient(config.ScannerConfig{BaseURL: srv.URL})
	status, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if status["pneumonia_model"] != true {
		t.Fatalf("unexpected status: %v", status)
	}
}
