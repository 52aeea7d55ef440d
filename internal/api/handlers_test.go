package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tilahungoito/healthydoc/internal/auth"
	"github.com/tilahungoito/healthydoc/internal/config"
	"github.com/tilahungoito/healthydoc/internal/language"
	"github.com/tilahungoito/healthydoc/internal/models"
	"github.com/tilahungoito/healthydoc/internal/service/assistant"
	"github.com/tilahungoito/healthydoc/internal/service/doctor"
	"github.com/tilahungoito/healthydoc/internal/storage"
	"github.com/tilahungoito/healthydoc/internal/worker"
)

func TestConsultationFlow(t *testing.T) {
	router, db, _, fakes := newTestServer(t)
	defer db.Close()
	_, headers := registerAndLogin(t, router)

	fakes.workers.startFn = func(ctx context.Context, userID int64) (*doctor.StartResult, error) {
		return &doctor.StartResult{
			SessionID:      "consultation_1_abc",
			InitialMessage: "Hello! I'm your AI doctor.",
			Timestamp:      time.Now(),
		}, nil
	}
	rec := doJSONRequest(t, router, http.MethodPost, "/api/ai-doctor/start", nil, headers)
	assertStatus(t, rec, http.StatusOK)
	var started struct {
		SessionID      string `json:"sessionId"`
		InitialMessage string `json:"initialMessage"`
	}
	decodeJSON(t, rec.Body.Bytes(), &started)
	if started.SessionID != "consultation_1_abc" || started.InitialMessage == "" {
		t.Fatalf("unexpected start response: %+v", started)
	}

	fakes.workers.consultFn = func(ctx context.Context, req worker.ConsultRequest) (*doctor.ChatResult, error) {
		if req.SessionID != started.SessionID {
			t.Errorf("unexpected session id %q", req.SessionID)
		}
		return &doctor.ChatResult{
			Reply:    &models.DoctorReply{Response: "When did the headache start?", IsFollowUp: true},
			Language: language.English,
		}, nil
	}
	rec = doJSONRequest(t, router, http.MethodPost, "/api/ai-doctor/chat", map[string]string{
		"sessionId": started.SessionID,
		"message":   "I have a headache",
	}, headers)
	assertStatus(t, rec, http.StatusOK)
	var turn struct {
		Response       string                 `json:"response"`
		IsFollowUp     bool                   `json:"isFollowUp"`
		IsComplete     bool                   `json:"isComplete"`
		MedicalReceipt *models.MedicalReceipt `json:"medicalReceipt"`
	}
	decodeJSON(t, rec.Body.Bytes(), &turn)
	if !turn.IsFollowUp || turn.IsComplete || turn.MedicalReceipt != nil {
		t.Fatalf("unexpected follow-up turn: %+v", turn)
	}

	receipt := &models.MedicalReceipt{
		SessionID:       started.SessionID,
		Date:            time.Now(),
		Summary:         "Patient reported headaches.",
		Recommendations: []string{"Rest and hydrate"},
		Prescriptions:   []string{},
		Urgency:         models.UrgencyLow,
	}
	fakes.workers.consultFn = func(ctx context.Context, req worker.ConsultRequest) (*doctor.ChatResult, error) {
		return &doctor.ChatResult{
			Reply:    &models.DoctorReply{Response: "Take care.", IsComplete: true},
			Receipt:  receipt,
			Language: language.English,
		}, nil
	}
	rec = doJSONRequest(t, router, http.MethodPost, "/api/ai-doctor/chat", map[string]string{
		"sessionId": started.SessionID,
		"message":   "No other symptoms",
	}, headers)
	assertStatus(t, rec, http.StatusOK)
	decodeJSON(t, rec.Body.Bytes(), &turn)
	if !turn.IsComplete || turn.MedicalReceipt == nil {
		t.Fatalf("expected completed turn with receipt: %+v", turn)
	}
	if turn.MedicalReceipt.Summary != receipt.Summary {
		t.Fatalf("unexpected receipt summary: %q", turn.MedicalReceipt.Summary)
	}
	if n := countRecords(t, db, models.RecordConsultation); n != 1 {
		t.Fatalf("expected 1 consultation record, got %d", n)
	}

	fakes.workers.receiptFn = func(ctx context.Context, req worker.ReceiptRequest) (*models.MedicalReceipt, error) {
		return receipt, nil
	}
	rec = doJSONRequest(t, router, http.MethodGet, "/api/ai-doctor/receipt/"+started.SessionID, nil, headers)
	assertStatus(t, rec, http.StatusOK)
	var got models.MedicalReceipt
	decodeJSON(t, rec.Body.Bytes(), &got)
	if got.SessionID != started.SessionID {
		t.Fatalf("unexpected receipt: %+v", got)
	}

	fakes.workers.endFn = func(ctx context.Context, userID int64, sessionID string) error { return nil }
	rec = doJSONRequest(t, router, http.MethodPost, "/api/ai-doctor/end/"+started.SessionID, nil, headers)
	assertStatus(t, rec, http.StatusOK)
	var ended struct {
		Success bool `json:"success"`
	}
	decodeJSON(t, rec.Body.Bytes(), &ended)
	if !ended.Success {
		t.Fatalf("expected success body, got %s", rec.Body.String())
	}
}

func TestChatValidationAndErrors(t *testing.T) {
	router, db, _, fakes := newTestServer(t)
	defer db.Close()
	_, headers := registerAndLogin(t, router)

	rec := doJSONRequest(t, router, http.MethodPost, "/api/ai-doctor/chat", map[string]string{"message": "hi"}, headers)
	assertStatus(t, rec, http.StatusBadRequest)
	rec = doJSONRequest(t, router, http.MethodPost, "/api/ai-doctor/chat", map[string]string{"sessionId": "s"}, headers)
	assertStatus(t, rec, http.StatusBadRequest)

	rec = doJSONRequest(t, router, http.MethodPost, "/api/ai-doctor/chat", map[string]string{"sessionId": "s", "message": "hi"}, nil)
	assertStatus(t, rec, http.StatusUnauthorized)

	body := map[string]string{"sessionId": "s", "message": "hi"}
	fakes.workers.consultFn = func(ctx context.Context, req worker.ConsultRequest) (*doctor.ChatResult, error) {
		return nil, worker.ErrDispatcherBusy
	}
	rec = doJSONRequest(t, router, http.MethodPost, "/api/ai-doctor/chat", body, headers)
	assertStatus(t, rec, http.StatusTooManyRequests)

	fakes.workers.consultFn = func(ctx context.Context, req worker.ConsultRequest) (*doctor.ChatResult, error) {
		return nil, worker.ErrSessionNotFound
	}
	rec = doJSONRequest(t, router, http.MethodPost, "/api/ai-doctor/chat", body, headers)
	assertStatus(t, rec, http.StatusNotFound)

	fakes.workers.consultFn = func(ctx context.Context, req worker.ConsultRequest) (*doctor.ChatResult, error) {
		return nil, fmt.Errorf("provider down")
	}
	rec = doJSONRequest(t, router, http.MethodPost, "/api/ai-doctor/chat", body, headers)
	assertStatus(t, rec, http.StatusInternalServerError)
	var failure struct {
		Error    string `json:"error"`
		Response string `json:"response"`
	}
	decodeJSON(t, rec.Body.Bytes(), &failure)
	if failure.Error != "Failed to process message" || failure.Response == "" {
		t.Fatalf("unexpected failure body: %+v", failure)
	}
}

func TestReceiptPostedConversation(t *testing.T) {
	router, db, _, fakes := newTestServer(t)
	defer db.Close()
	_, headers := registerAndLogin(t, router)

	var gotPosted []models.ConversationMessage
	fakes.workers.receiptFn = func(ctx context.Context, req worker.ReceiptRequest) (*models.MedicalReceipt, error) {
		gotPosted = req.Posted
		return &models.MedicalReceipt{SessionID: req.SessionID, Recommendations: []string{}, Prescriptions: []string{}}, nil
	}
	rec := doJSONRequest(t, router, http.MethodPost, "/api/ai-doctor/receipt/sess-1", map[string]any{
		"conversationMessages": []map[string]string{
			{"role": "user", "content": "I feel dizzy"},
			{"role": "assistant", "content": "How long has this lasted?"},
		},
	}, headers)
	assertStatus(t, rec, http.StatusOK)
	if len(gotPosted) != 2 || gotPosted[0].Content != "I feel dizzy" {
		t.Fatalf("posted transcript not forwarded: %+v", gotPosted)
	}
}

func TestAnalyze(t *testing.T) {
	router, db, _, fakes := newTestServer(t)
	defer db.Close()
	_, headers := registerAndLogin(t, router)

	var gotSymptoms string
	var gotLang language.Language
	fakes.analyzer.fn = func(ctx context.Context, symptoms string, lang language.Language) (*models.HealthAnalysis, error) {
		gotSymptoms, gotLang = symptoms, lang
		return &models.HealthAnalysis{
			PossibleConditions: []models.Condition{{Name: "Tension headache", Confidence: 0.7}},
			RecommendedActions: []string{"Rest"},
			UrgencyLevel:       "low",
			GeneralAdvice:      "Stay hydrated.",
		}, nil
	}
	rec := doJSONRequest(t, router, http.MethodPost, "/api/analyze", map[string]any{
		"symptoms": []string{"headache", " blurred vision "},
		"language": "am",
	}, headers)
	assertStatus(t, rec, http.StatusOK)
	if gotSymptoms != "headache, blurred vision" {
		t.Fatalf("unexpected symptoms: %q", gotSymptoms)
	}
	if gotLang != language.Amharic {
		t.Fatalf("unexpected language: %q", gotLang)
	}
	var analysis models.HealthAnalysis
	decodeJSON(t, rec.Body.Bytes(), &analysis)
	if len(analysis.PossibleConditions) != 1 {
		t.Fatalf("unexpected analysis: %+v", analysis)
	}
	if n := countRecords(t, db, models.RecordAnalysis); n != 1 {
		t.Fatalf("expected 1 analysis record, got %d", n)
	}

	rec = doJSONRequest(t, router, http.MethodPost, "/api/analyze", map[string]any{"symptoms": []string{"  "}}, headers)
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestHealthHistoryRoutes(t *testing.T) {
	router, db, handler, _ := newTestServer(t)
	defer db.Close()
	userID, headers := registerAndLogin(t, router)

	saved, err := handler.assistant.SaveHealthRecord(context.Background(), userID, models.RecordAnalysis, "Analysis", `{"urgency":"low"}`)
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}

	rec := doJSONRequest(t, router, http.MethodGet, "/api/health-history", nil, headers)
	assertStatus(t, rec, http.StatusOK)
	var listing struct {
		Records []models.HealthRecord `json:"records"`
	}
	decodeJSON(t, rec.Body.Bytes(), &listing)
	if len(listing.Records) != 1 || listing.Records[0].ID != saved.ID {
		t.Fatalf("unexpected listing: %+v", listing)
	}

	rec = doJSONRequest(t, router, http.MethodGet, fmt.Sprintf("/api/health-history/%d", saved.ID), nil, headers)
	assertStatus(t, rec, http.StatusOK)
	rec = doJSONRequest(t, router, http.MethodGet, "/api/health-history/9999", nil, headers)
	assertStatus(t, rec, http.StatusNotFound)

	rec = doJSONRequest(t, router, http.MethodDelete, fmt.Sprintf("/api/health-history/%d", saved.ID), nil, headers)
	assertStatus(t, rec, http.StatusNoContent)
	rec = doJSONRequest(t, router, http.MethodDelete, "/api/health-history", nil, headers)
	assertStatus(t, rec, http.StatusNoContent)
}

func TestUploadAndScan(t *testing.T) {
	router, db, _, fakes := newTestServer(t)
	defer db.Close()
	_, headers := registerAndLogin(t, router)

	pngBytes := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 16)...)
	rec := doUpload(t, router, "/api/uploads", "cell.png", pngBytes, headers)
	assertStatus(t, rec, http.StatusCreated)
	var uploaded struct {
		FileID   int64  `json:"file_id"`
		FileName string `json:"file_name"`
		Mime     string `json:"mime"`
	}
	decodeJSON(t, rec.Body.Bytes(), &uploaded)
	if uploaded.FileID <= 0 || uploaded.Mime != "image/png" {
		t.Fatalf("unexpected upload response: %+v", uploaded)
	}

	rec = doUpload(t, router, "/api/uploads", "notes.txt", []byte("plain text content"), headers)
	assertStatus(t, rec, http.StatusBadRequest)

	fakes.scanner.fn = func(ctx context.Context, kind, imagePath string) (*models.ScanResult, error) {
		if kind != "malaria" {
			t.Errorf("unexpected kind %q", kind)
		}
		return &models.ScanResult{Prediction: "Parasitized", Confidence: 0.91}, nil
	}
	rec = doJSONRequest(t, router, http.MethodPost, "/api/scan/malaria", map[string]int64{"file_id": uploaded.FileID}, headers)
	assertStatus(t, rec, http.StatusOK)
	var result models.ScanResult
	decodeJSON(t, rec.Body.Bytes(), &result)
	if result.Prediction != "Parasitized" {
		t.Fatalf("unexpected scan result: %+v", result)
	}
	if n := countRecords(t, db, models.RecordScan); n != 1 {
		t.Fatalf("expected 1 scan record, got %d", n)
	}

	rec = doJSONRequest(t, router, http.MethodPost, "/api/scan/xray", map[string]int64{"file_id": uploaded.FileID}, headers)
	assertStatus(t, rec, http.StatusBadRequest)
	rec = doJSONRequest(t, router, http.MethodPost, "/api/scan/malaria", map[string]int64{"file_id": 9999}, headers)
	assertStatus(t, rec, http.StatusNotFound)
}

func TestLogoutRevokesToken(t *testing.T) {
	router, db, _, fakes := newTestServer(t)
	defer db.Close()
	_, headers := registerAndLogin(t, router)

	rec := doJSONRequest(t, router, http.MethodPost, "/api/users/logout", nil, headers)
	assertStatus(t, rec, http.StatusNoContent)
	if fakes.workers.resetCalls != 1 {
		t.Fatalf("expected worker reset on logout")
	}
	rec = doJSONRequest(t, router, http.MethodPost, "/api/ai-doctor/start", nil, headers)
	assertStatus(t, rec, http.StatusUnauthorized)
}

func TestHealthCheck(t *testing.T) {
	router, db, _, _ := newTestServer(t)
	defer db.Close()
	rec := doJSONRequest(t, router, http.MethodGet, "/api/health", nil, nil)
	assertStatus(t, rec, http.StatusOK)
}

type fakeWorkerManager struct {
	startFn    func(ctx context.Context, userID int64) (*doctor.StartResult, error)
	consultFn  func(ctx context.Context, req worker.ConsultRequest) (*doctor.ChatResult, error)
	receiptFn  func(ctx context.Context, req worker.ReceiptRequest) (*models.MedicalReceipt, error)
	endFn      func(ctx context.Context, userID int64, sessionID string) error
	resetCalls int
}

func (f *fakeWorkerManager) StartConsultation(ctx context.Context, userID int64) (*doctor.StartResult, error) {
	if f.startFn == nil {
		return &doctor.StartResult{SessionID: "consultation_stub", Timestamp: time.Now()}, nil
	}
	return f.startFn(ctx, userID)
}

func (f *fakeWorkerManager) Consult(ctx context.Context, req worker.ConsultRequest) (*doctor.ChatResult, error) {
	if f.consultFn == nil {
		return &doctor.ChatResult{Reply: &models.DoctorReply{Response: "ok"}}, nil
	}
	return f.consultFn(ctx, req)
}

func (f *fakeWorkerManager) Receipt(ctx context.Context, req worker.ReceiptRequest) (*models.MedicalReceipt, error) {
	if f.receiptFn == nil {
		return &models.MedicalReceipt{SessionID: req.SessionID}, nil
	}
	return f.receiptFn(ctx, req)
}

func (f *fakeWorkerManager) EndConsultation(ctx context.Context, userID int64, sessionID string) error {
	if f.endFn == nil {
		return nil
	}
	return f.endFn(ctx, userID, sessionID)
}

func (f *fakeWorkerManager) ResetUser(ctx context.Context, userID int64) {
	f.resetCalls++
}

type fakeAnalyzer struct {
	fn func(ctx context.Context, symptoms string, lang language.Language) (*models.HealthAnalysis, error)
}

func (f *fakeAnalyzer) AnalyzeSymptoms(ctx context.Context, symptoms string, lang language.Language) (*models.HealthAnalysis, error) {
	if f.fn == nil {
		return &models.HealthAnalysis{UrgencyLevel: "medium"}, nil
	}
	return f.fn(ctx, symptoms, lang)
}

type fakeScanner struct {
	fn func(ctx context.Context, kind, imagePath string) (*models.ScanResult, error)
}

func (f *fakeScanner) Predict(ctx context.Context, kind, imagePath string) (*models.ScanResult, error) {
	if f.fn == nil {
		return &models.ScanResult{Prediction: "Normal"}, nil
	}
	return f.fn(ctx, kind, imagePath)
}

type testFakes struct {
	workers  *fakeWorkerManager
	analyzer *fakeAnalyzer
	scanner  *fakeScanner
}

func newTestServer(t *testing.T) (*gin.Engine, *sql.DB, *Handler, *testFakes) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// in-memory sqlite is per-connection
	db.SetMaxOpenConns(1)
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	fakes := &testFakes{
		workers:  &fakeWorkerManager{},
		analyzer: &fakeAnalyzer{},
		scanner:  &fakeScanner{},
	}
	asst := assistant.NewService(db)
	authSvc := auth.NewService(db, nil, time.Hour)
	handler := NewHandler(asst, authSvc, fakes.workers, fakes.analyzer, fakes.scanner, t.TempDir(), time.Hour)

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, db, handler, fakes
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func doUpload(t *testing.T, router *gin.Engine, path, filename string, content []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

func countRecords(t *testing.T, db *sql.DB, kind string) int {
	t.Helper()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM health_records WHERE kind = ?`, kind).Scan(&count); err != nil {
		t.Fatalf("count records: %v", err)
	}
	return count
}

func registerAndLogin(t *testing.T, router *gin.Engine) (int64, map[string]string) {
	t.Helper()
	username := fmt.Sprintf("tester_%d", time.Now().UnixNano())
	password := "pass123"
	regResp := doJSONRequest(t, router, http.MethodPost, "/api/users/register", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, regResp, http.StatusCreated)
	var regBody struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, regResp.Body.Bytes(), &regBody)

	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/users/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	var loginBody struct {
		AuthToken string `json:"auth_token"`
	}
	decodeJSON(t, loginResp.Body.Bytes(), &loginBody)
	if loginBody.AuthToken == "" {
		t.Fatalf("expected auth token after login")
	}
	authHeader := map[string]string{"Authorization": fmt.Sprintf("Bearer %s", loginBody.AuthToken)}
	return regBody.ID, authHeader
}
