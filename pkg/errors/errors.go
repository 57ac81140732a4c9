// Package errors provides structured error handling for the application.
// It defines AppError type with error codes for consistent API responses.
package errors

import (
	"errors"
	"fmt"
)

// Error codes organized by category
const (
	// General errors (1000-1099)
	CodeSuccess       = 0
	CodeUnknown       = 1000
	CodeInvalidParams = 1001
	CodeNotFound      = 1002
	CodeCanceled      = 1003
	CodeQueueFull     = 1004

	// Acquisition errors (1100-1199)
	CodeAcquisition       = 1100
	CodeAudioExtract      = 1101
	CodeUnsupportedSource = 1102
	CodeCookiesExpired    = 1103

	// Transcription errors (1200-1299)
	CodeTranscribeTransient = 1200
	CodeTranscribeFatal     = 1201
	CodeModelNotFound       = 1202

	// Oracle errors (1300-1399)
	CodeOracle                  = 1300
	CodeMalformedOracleResponse = 1301

	// Storage errors (1500-1599)
	CodeDBError        = 1500
	CodeFileNotFound   = 1501
	CodeFileWriteError = 1502

	// Clip pipeline errors (1600-1699)
	CodeNoValidClips = 1600
	CodeAssembly     = 1601
	CodeChunkPlan    = 1602
)

// AppError represents a structured application error
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Stage   string `json:"stage,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := e.Message
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, msg)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code int, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithDetail wraps an error with additional detail
func WrapWithDetail(code int, message string, detail string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Detail:  detail,
		Cause:   cause,
	}
}

// WithStage annotates err with the pipeline stage it escaped from. The error
// kind is preserved; an already annotated error keeps its innermost stage.
// Plain errors become CodeUnknown.
func WithStage(err error, stage string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Stage != "" {
			return err
		}
		annotated := *appErr
		annotated.Stage = stage
		return &annotated
	}
	return &AppError{Code: CodeUnknown, Message: err.Error(), Stage: stage, Cause: err}
}

// Is checks if the target error is an AppError with the specified code
func Is(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsTransient reports whether err is a retryable transcription failure.
func IsTransient(err error) bool {
	return Is(err, CodeTranscribeTransient)
}

// Retryable reports whether a whole analysis run may succeed when repeated:
// oracle request failures and transient transcription failures.
func Retryable(err error) bool {
	return Is(err, CodeOracle) || IsTransient(err)
}

// GetCode extracts error code from error, returns CodeUnknown if not AppError
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetMessage extracts message from error
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// GetStage returns the stage annotation, or "" when there is none.
func GetStage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Stage
	}
	return ""
}

// Kind names the error class reported to callers.
func Kind(err error) string {
	switch GetCode(err) {
	case CodeAcquisition, CodeAudioExtract, CodeUnsupportedSource, CodeCookiesExpired:
		return "AcquisitionError"
	case CodeTranscribeTransient:
		return "TranscriptionError.transient"
	case CodeTranscribeFatal, CodeModelNotFound:
		return "TranscriptionError.fatal"
	case CodeOracle:
		return "OracleError"
	case CodeMalformedOracleResponse:
		return "MalformedOracleResponse"
	case CodeNoValidClips:
		return "NoValidClipsError"
	case CodeAssembly, CodeChunkPlan:
		return "PipelineContractError"
	case CodeCanceled:
		return "Canceled"
	case CodeInvalidParams:
		return "InvalidParams"
	case CodeNotFound:
		return "NotFound"
	default:
		return "InternalError"
	}
}

// Predefined common errors
var (
	ErrInvalidParams = New(CodeInvalidParams, "Invalid parameters")
	ErrNotFound      = New(CodeNotFound, "Resource not found")
	ErrCanceled      = New(CodeCanceled, "Run canceled")
	ErrQueueFull     = New(CodeQueueFull, "Job queue is full")

	// Acquisition
	ErrAcquisition    = New(CodeAcquisition, "Source acquisition failed")
	ErrAudioExtract   = New(CodeAudioExtract, "Audio extraction failed")
	ErrCookiesExpired = New(CodeCookiesExpired, "Cookies expired")

	// Transcription
	ErrTranscribeTransient = New(CodeTranscribeTransient, "Transcription temporarily failed")
	ErrTranscribeFatal     = New(CodeTranscribeFatal, "Transcription failed")

	// Oracle
	ErrOracle                  = New(CodeOracle, "Judgment oracle request failed")
	ErrMalformedOracleResponse = New(CodeMalformedOracleResponse, "Malformed oracle response")

	// Storage
	ErrDBError      = New(CodeDBError, "Database error")
	ErrFileNotFound = New(CodeFileNotFound, "File not found")

	// Clip pipeline
	ErrNoValidClips = New(CodeNoValidClips, "No candidate survived validation")
	ErrAssembly     = New(CodeAssembly, "Transcript assembly contract violated")
)
