package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tilahungoito/healthydoc/internal/auth"
	"github.com/tilahungoito/healthydoc/internal/language"
	"github.com/tilahungoito/healthydoc/internal/models"
	"github.com/tilahungoito/healthydoc/internal/service/assistant"
	"github.com/tilahungoito/healthydoc/internal/service/doctor"
	"github.com/tilahungoito/healthydoc/internal/service/scan"
	"github.com/tilahungoito/healthydoc/internal/worker"
)

// WorkerManager routes consultation traffic through the per-user dispatcher.
type WorkerManager interface {
	StartConsultation(ctx context.Context, userID int64) (*doctor.StartResult, error)
	Consult(ctx context.Context, req worker.ConsultRequest) (*doctor.ChatResult, error)
	Receipt(ctx context.Context, req worker.ReceiptRequest) (*models.MedicalReceipt, error)
	EndConsultation(ctx context.Context, userID int64, sessionID string) error
	ResetUser(ctx context.Context, userID int64)
}

// Analyzer runs one-shot symptom assessments.
type Analyzer interface {
	AnalyzeSymptoms(ctx context.Context, symptoms string, lang language.Language) (*models.HealthAnalysis, error)
}

// Scanner classifies uploaded medical images.
type Scanner interface {
	Predict(ctx context.Context, kind, imagePath string) (*models.ScanResult, error)
}

// Handler wires HTTP routes to the consultation, analysis, and account services.
type Handler struct {
	assistant *assistant.Service
	auth      *auth.Service
	workers   WorkerManager
	analyzer  Analyzer
	scanner   Scanner
	fileBase  string
	fileTTL   time.Duration
}

// NewHandler constructs a Handler instance.
func NewHandler(service *assistant.Service, authService *auth.Service, workers WorkerManager, analyzer Analyzer, scanner Scanner, fileBase string, fileTTL time.Duration) *Handler {
	return &Handler{
		assistant: service,
		auth:      authService,
		workers:   workers,
		analyzer:  analyzer,
		scanner:   scanner,
		fileBase:  fileBase,
		fileTTL:   fileTTL,
	}
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/health", h.healthCheck)
	api.POST("/users/register", h.registerUser)
	api.POST("/users/login", h.loginUser)

	authed := api.Group("")
	authed.Use(h.auth.Middleware(), h.auth.CSRFMiddleware())
	authed.POST("/ai-doctor/start", h.startConsultation)
	authed.POST("/ai-doctor/chat", h.chat)
	authed.GET("/ai-doctor/receipt/:session_id", h.getReceipt)
	authed.POST("/ai-doctor/receipt/:session_id", h.getReceipt)
	authed.POST("/ai-doctor/end/:session_id", h.endConsultation)
	authed.POST("/analyze", h.analyze)
	authed.GET("/health-history", h.listHealthHistory)
	authed.GET("/health-history/:id", h.getHealthRecord)
	authed.DELETE("/health-history", h.deleteAllHealthHistory)
	authed.DELETE("/health-history/:id", h.deleteHealthRecord)
	authed.POST("/uploads", h.filesUpload)
	authed.POST("/scan/:kind", h.runScan)
	authed.POST("/users/logout", h.logoutUser)
	authed.DELETE("/users", h.deleteUser)
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// User create&login interface
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.assistant.RegisterUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.assistant.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
		"auth_token": authToken,
	})
}

func (h *Handler) startConsultation(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	result, err := h.workers.StartConsultation(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, worker.ErrDispatcherBusy) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start consultation"})
		return
	}
	c.JSON(http.StatusOK, result)
}

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Language  string `json:"language"`
}

func (h *Handler) chat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session ID and message are required"})
		return
	}

	result, err := h.workers.Consult(c.Request.Context(), worker.ConsultRequest{
		Context:   c.Request.Context(),
		UserID:    userID,
		SessionID: req.SessionID,
		Message:   req.Message,
		Language:  req.Language,
	})
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrDispatcherBusy):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		case errors.Is(err, worker.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":    "Failed to process message",
				"response": doctor.ChatErrorResponse,
			})
		}
		return
	}

	if result.Receipt != nil {
		h.saveReceiptRecord(c.Request.Context(), userID, result.Receipt)
	}
	resp := gin.H{
		"response":       result.Reply.Response,
		"isFollowUp":     result.Reply.IsFollowUp,
		"isComplete":     result.Reply.IsComplete,
		"medicalReceipt": nil,
	}
	if result.Receipt != nil {
		resp["medicalReceipt"] = result.Receipt
	}
	c.JSON(http.StatusOK, resp)
}

type receiptRequest struct {
	ConversationMessages []models.ConversationMessage `json:"conversationMessages"`
}

// getReceipt serves GET and POST. The POST form lets the client supply its
// own transcript when the server no longer has one.
func (h *Handler) getReceipt(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id is required"})
		return
	}
	var posted []models.ConversationMessage
	if c.Request.Method == http.MethodPost {
		var req receiptRequest
		// a bad body just means no client transcript
		if err := c.ShouldBindJSON(&req); err == nil {
			posted = req.ConversationMessages
		}
	}
	receipt, err := h.workers.Receipt(c.Request.Context(), worker.ReceiptRequest{
		Context:   c.Request.Context(),
		UserID:    userID,
		SessionID: sessionID,
		Posted:    posted,
	})
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrDispatcherBusy):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		case errors.Is(err, worker.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build receipt"})
		}
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *Handler) endConsultation(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id is required"})
		return
	}
	if err := h.workers.EndConsultation(c.Request.Context(), userID, sessionID); err != nil {
		if errors.Is(err, worker.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end consultation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type analyzeRequest struct {
	Symptoms []string `json:"symptoms"`
	Language string   `json:"language"`
}

func (h *Handler) analyze(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	symptoms := make([]string, 0, len(req.Symptoms))
	for _, s := range req.Symptoms {
		if s = strings.TrimSpace(s); s != "" {
			symptoms = append(symptoms, s)
		}
	}
	if len(symptoms) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symptoms are required"})
		return
	}
	lang := language.Language(req.Language)
	if !lang.Valid() {
		lang = language.English
	}
	analysis, err := h.analyzer.AnalyzeSymptoms(c.Request.Context(), strings.Join(symptoms, ", "), lang)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to analyze symptoms"})
		return
	}
	h.saveAnalysisRecord(c.Request.Context(), userID, symptoms, analysis)
	c.JSON(http.StatusOK, analysis)
}

func (h *Handler) listHealthHistory(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	records, err := h.assistant.ListHealthRecords(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *Handler) getHealthRecord(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	recordID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || recordID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}
	record, err := h.assistant.GetHealthRecord(c.Request.Context(), userID, recordID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handler) deleteHealthRecord(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	recordID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || recordID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}
	if err := h.assistant.DeleteHealthRecord(c.Request.Context(), userID, recordID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteAllHealthHistory(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.assistant.DeleteAllHealthRecords(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) runScan(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	kind := c.Param("kind")
	if !scan.ValidKind(kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown scan kind"})
		return
	}
	var req struct {
		FileID int64 `json:"file_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.FileID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_id is required"})
		return
	}
	file, err := h.assistant.GetTempFile(c.Request.Context(), userID, req.FileID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	result, err := h.scanner.Predict(c.Request.Context(), kind, file.StoredPath)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to analyze image", "details": err.Error()})
		return
	}
	h.saveScanRecord(c.Request.Context(), userID, kind, file.FileName, result)
	c.JSON(http.StatusOK, result)
}

func (h *Handler) logoutUser(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	h.workers.ResetUser(c.Request.Context(), userID)
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.auth.RevokeToken(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.auth.RevokeUserTokens(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.workers.ResetUser(c.Request.Context(), id)
	if err := h.assistant.DeleteUser(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

// History records are best-effort: a failed save never fails the request.
func (h *Handler) saveReceiptRecord(ctx context.Context, userID int64, receipt *models.MedicalReceipt) {
	payload, err := json.Marshal(receipt)
	if err != nil {
		return
	}
	title := "Consultation " + receipt.SessionID
	if _, err := h.assistant.SaveHealthRecord(ctx, userID, models.RecordConsultation, title, string(payload)); err != nil {
		log.Printf("save consultation record failed: %v", err)
	}
}

func (h *Handler) saveAnalysisRecord(ctx context.Context, userID int64, symptoms []string, analysis *models.HealthAnalysis) {
	payload, err := json.Marshal(gin.H{"symptoms": symptoms, "analysis": analysis})
	if err != nil {
		return
	}
	title := "Symptom analysis: " + truncateTitle(strings.Join(symptoms, ", "), 60)
	if _, err := h.assistant.SaveHealthRecord(ctx, userID, models.RecordAnalysis, title, string(payload)); err != nil {
		log.Printf("save analysis record failed: %v", err)
	}
}

func (h *Handler) saveScanRecord(ctx context.Context, userID int64, kind, fileName string, result *models.ScanResult) {
	payload, err := json.Marshal(gin.H{"kind": kind, "file_name": fileName, "result": result})
	if err != nil {
		return
	}
	title := fmt.Sprintf("%s scan: %s", strings.ToUpper(kind[:1])+kind[1:], result.Prediction)
	if _, err := h.assistant.SaveHealthRecord(ctx, userID, models.RecordScan, title, string(payload)); err != nil {
		log.Printf("save scan record failed: %v", err)
	}
}

func truncateTitle(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}

const (
	maxUploadBytes   = 10 << 20 // 10 MB
	userStorageLimit = 50 << 20 // 50 MB per user
)

func (h *Handler) filesUpload(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	usage, err := h.assistant.TempStorageUsage(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "calculate usage failed"})
		return
	}
	if usage+file.Size > userStorageLimit {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "storage quota exceeded"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	_ = f.Close()
	contentType := http.DetectContentType(buf[:n])
	if !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type. Please upload an image file."})
		return
	}
	filename := filepath.Base(file.Filename)
	destDir, destPath, finalName := h.getUniqueFilePath(userID, filename)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create directory failed"})
		return
	}
	if err := c.SaveUploadedFile(file, destPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save file failed"})
		return
	}
	record, err := h.assistant.RecordTempFile(c.Request.Context(), userID, finalName, destPath, contentType, file.Size, h.fileTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record file failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"file_id":   record.ID,
		"file_name": finalName,
		"size":      file.Size,
		"mime":      contentType,
		"used":      usage + file.Size,
		"limit":     userStorageLimit,
	})
}

func (h *Handler) getFilePath(userID int64, filename string) (string, string) {
	destDir := filepath.Join(h.fileBase, strconv.FormatInt(userID, 10))
	destPath := filepath.Join(destDir, filename)
	return destDir, destPath
}

func (h *Handler) getUniqueFilePath(userID int64, filename string) (string, string, string) {
	destDir, destPath := h.getFilePath(userID, filename)
	if _, err := os.Stat(destPath); os.IsNotExist(err) {
		return destDir, destPath, filename
	}
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	for idx := 1; idx <= 1000; idx++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, idx, ext)
		dir, path := h.getFilePath(userID, candidate)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return dir, path, candidate
		}
	}
	fallback := fmt.Sprintf("%s-%d%s", base, time.Now().UnixNano(), ext)
	return destDir, filepath.Join(destDir, fallback), fallback
}
