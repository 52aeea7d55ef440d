package models

import "time"

// TempFile is an uploaded medical image held until its TTL expires or the
// scan that consumes it completes.
type TempFile struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	FileName   string    `json:"file_name"`
	StoredPath string    `json:"stored_path"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
