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

const defaultHistoryLimit = 50

// SaveHealthRecord persists one consultation, analysis, or scan result for
// the user. Payload is an opaque JSON document.
func (s *Service) SaveHealthRecord(ctx context.Context, userID int64, kind, title, payload string) (*models.HealthRecord, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}
	kind = strings.TrimSpace(kind)
	switch kind {
	case models.RecordConsultation, models.RecordAnalysis, models.RecordScan:
	default:
		return nil, fmt.Errorf("unknown record kind: %s", kind)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = kind
	}
	if strings.TrimSpace(payload) == "" {
		return nil, errors.New("payload is required")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO health_records (user_id, kind, title, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, kind, title, payload, now,
	)
	if err != nil {
		return nil, fmt.Errorf("save health record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("record id: %w", err)
	}
	return &models.HealthRecord{
		ID: id, UserID: userID, Kind: kind, Title: title, Payload: payload, CreatedAt: now,
	}, nil
}

// ListHealthRecords returns the user's records, newest first.
func (s *Service) ListHealthRecords(ctx context.Context, userID int64, limit int) ([]*models.HealthRecord, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, title, payload, created_at FROM health_records
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list health records: %w", err)
	}
	defer rows.Close()

	records := make([]*models.HealthRecord, 0)
	for rows.Next() {
		var record models.HealthRecord
		if err := rows.Scan(&record.ID, &record.UserID, &record.Kind, &record.Title, &record.Payload, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan health record: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// GetHealthRecord fetches one record owned by the user.
func (s *Service) GetHealthRecord(ctx context.Context, userID, recordID int64) (*models.HealthRecord, error) {
	if userID <= 0 || recordID <= 0 {
		return nil, errors.New("invalid id")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, kind, title, payload, created_at FROM health_records WHERE id = ? AND user_id = ?`,
		recordID, userID,
	)
	var record models.HealthRecord
	if err := row.Scan(&record.ID, &record.UserID, &record.Kind, &record.Title, &record.Payload, &record.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("record not found")
		}
		return nil, fmt.Errorf("get health record: %w", err)
	}
	return &record, nil
}

// DeleteHealthRecord removes one record owned by the user.
func (s *Service) DeleteHealthRecord(ctx context.Context, userID, recordID int64) error {
	if userID <= 0 || recordID <= 0 {
		return errors.New("invalid id")
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM health_records WHERE id = ? AND user_id = ?`, recordID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete health record: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.New("record not found")
	}
	return nil
}

// DeleteAllHealthRecords wipes the user's history.
func (s *Service) DeleteAllHealthRecords(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return errors.New("invalid user id")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM health_records WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete health records: %w", err)
	}
	return nil
}
