package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tilahungoito/healthydoc/internal/models"
)

// RecordTempFile registers an uploaded file so the cleaner can reap it once
// its TTL passes. The file itself is already on disk at storedPath.
func (s *Service) RecordTempFile(ctx context.Context, userID int64, fileName, storedPath, mimeType string, size int64, ttl time.Duration) (*models.TempFile, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" || strings.TrimSpace(storedPath) == "" {
		return nil, errors.New("file name and path are required")
	}
	if ttl <= 0 {
		ttl = DefaultTempFileTTL
	}

	now := time.Now().UTC()
	expires := now.Add(ttl)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO temp_files (user_id, file_name, stored_path, mime_type, size, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, 'active', ?, ?)`,
		userID, fileName, storedPath, mimeType, size, now, expires,
	)
	if err != nil {
		return nil, fmt.Errorf("record temp file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("temp file id: %w", err)
	}
	return &models.TempFile{
		ID: id, UserID: userID, FileName: fileName, StoredPath: storedPath,
		MimeType: mimeType, Size: size, Status: "active",
		CreatedAt: now, ExpiresAt: expires,
	}, nil
}

// GetTempFile fetches an active upload owned by the user.
func (s *Service) GetTempFile(ctx context.Context, userID, fileID int64) (*models.TempFile, error) {
	if userID <= 0 || fileID <= 0 {
		return nil, errors.New("invalid id")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, file_name, stored_path, mime_type, size, status, created_at, expires_at
		FROM temp_files WHERE id = ? AND user_id = ? AND status = 'active'`,
		fileID, userID,
	)
	var f models.TempFile
	if err := row.Scan(&f.ID, &f.UserID, &f.FileName, &f.StoredPath, &f.MimeType, &f.Size, &f.Status, &f.CreatedAt, &f.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("file not found")
		}
		return nil, fmt.Errorf("get temp file: %w", err)
	}
	return &f, nil
}

// TempStorageUsage sums the bytes the user's active uploads currently occupy.
func (s *Service) TempStorageUsage(ctx context.Context, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, errors.New("invalid user id")
	}
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(size) FROM temp_files WHERE user_id = ? AND status = 'active'`, userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("temp storage usage: %w", err)
	}
	return total.Int64, nil
}
