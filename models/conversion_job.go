package models

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusReceived   Status = "received"
	StatusQueued     Status = "queued"
	StatusConverting Status = "converting"
	StatusUploading  Status = "uploading"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions follow.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// OutputExtension is the extension of every converted file.
const OutputExtension = ".pdf"

var ErrInvalidName = errors.New("invalid file name")

// MessageRef addresses one chat message.
type MessageRef struct {
	ChatID    int64 `json:"chatId"`
	MessageID int   `json:"messageId"`
}

type Document struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}

// Inbound is a message received from the chat transport. Document is nil for
// plain-text messages.
type Inbound struct {
	Ref        MessageRef `json:"ref"`
	SenderID   int64      `json:"senderId"`
	SenderName string     `json:"senderName"`
	Text       string     `json:"text,omitempty"`
	Document   *Document  `json:"document,omitempty"`
}

type ConversionJob struct {
	ID               string      `json:"id"`
	RequesterID      int64       `json:"requesterId"`
	RequesterName    string      `json:"requesterName"`
	ObserverID       int64       `json:"observerId"`
	OriginalFilename string      `json:"originalFilename"`
	FileID           string      `json:"fileId"`
	InputPath        string      `json:"inputPath"`
	OutputPath       string      `json:"outputPath"`
	Source           MessageRef  `json:"source"`
	StatusRef        *MessageRef `json:"statusRef,omitempty"`
	Status           Status      `json:"status"`
	Error            string      `json:"error,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// NewConversionJob builds a received job from an inbound document message.
func NewConversionJob(msg Inbound, observerID int64) *ConversionJob {
	now := time.Now()
	job := &ConversionJob{
		ID:            uuid.NewString(),
		RequesterID:   msg.SenderID,
		RequesterName: msg.SenderName,
		ObserverID:    observerID,
		Source:        msg.Ref,
		Status:        StatusReceived,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if msg.Document != nil {
		job.OriginalFilename = msg.Document.FileName
		job.FileID = msg.Document.FileID
	}
	return job
}

// ResultFilename is the name the requester sees on the delivered file: the
// original name with its extension replaced.
func (j *ConversionJob) ResultFilename() string {
	name := filepath.Base(j.OriginalFilename)
	return strings.TrimSuffix(name, filepath.Ext(name)) + OutputExtension
}

type ConversionResult struct {
	Success    bool
	OutputPath string
	Stderr     string
	TimedOut   bool
	Err        error
}

type FailureReason string

const (
	ReasonTransport         FailureReason = "transport"
	ReasonConversionTimeout FailureReason = "conversion_timeout"
	ReasonConversion        FailureReason = "conversion"
	ReasonInvalidName       FailureReason = "invalid_name"
	ReasonCanceled          FailureReason = "canceled"
	ReasonInternal          FailureReason = "internal"
)

// JobError is the failure variant returned by every pipeline step.
type JobError struct {
	Reason FailureReason
	Err    error
}

func (e *JobError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Err.Error()
}

func (e *JobError) Unwrap() error { return e.Err }

func Fail(reason FailureReason, err error) *JobError {
	return &JobError{Reason: reason, Err: err}
}
