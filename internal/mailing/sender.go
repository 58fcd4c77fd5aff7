package mailing

import (
	"context"
	"time"
)

// EmailMessage is a fully rendered message ready for delivery.
type EmailMessage struct {
	Email       string
	Subject     string
	HTMLContent string
	TextContent string
	FromName    string
	FromEmail   string
	ReplyTo     string
	Pipeline    string
	MemberID    string
}

// SendResult reports the outcome of one delivery attempt. A provider
// rejection is reported via Success=false rather than an error return,
// so batch callers can keep going.
type SendResult struct {
	Success   bool
	MessageID string
	Error     error
	SentAt    time.Time
}

// BatchSendResult aggregates per-recipient outcomes of a batch send.
type BatchSendResult struct {
	Accepted int
	Rejected int
	Results  []SendResult
}

// EmailSender delivers rendered emails through a provider.
type EmailSender interface {
	Send(ctx context.Context, msg *EmailMessage) (*SendResult, error)
	SendBatch(ctx context.Context, messages []EmailMessage) (*BatchSendResult, error)
}
