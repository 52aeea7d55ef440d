package worker

import (
	"context"

	"github.com/tilahungoito/healthydoc/internal/models"
	"github.com/tilahungoito/healthydoc/internal/service/doctor"
)

type JobType string

const (
	Start   JobType = "start"
	Consult JobType = "consult"
	Receipt JobType = "receipt"
	Stop    JobType = "stop"
)

// StartRequest opens a consultation for a user.
type StartRequest struct {
	Context context.Context
	UserID  int64
}

// ConsultRequest is one chat turn routed through the dispatcher.
type ConsultRequest struct {
	Context   context.Context
	UserID    int64
	SessionID string
	Message   string
	Language  string
}

// ReceiptRequest fetches or generates the receipt for a session.
type ReceiptRequest struct {
	Context   context.Context
	UserID    int64
	SessionID string
	Posted    []models.ConversationMessage
}

type jobReturn struct {
	start   *doctor.StartResult
	consult *doctor.ChatResult
	receipt *models.MedicalReceipt
	err     error
}

type startTask struct {
	req      StartRequest
	resultCh chan jobReturn
}

type consultTask struct {
	req      ConsultRequest
	resultCh chan jobReturn
}

type receiptTask struct {
	req      ReceiptRequest
	resultCh chan jobReturn
}

type Job struct {
	Type        JobType
	StartTask   startTask
	ConsultTask consultTask
	ReceiptTask receiptTask
}

func (job Job) userID() int64 {
	switch job.Type {
	case Start:
		return job.StartTask.req.UserID
	case Consult:
		return job.ConsultTask.req.UserID
	case Receipt:
		return job.ReceiptTask.req.UserID
	default:
		return 0
	}
}
