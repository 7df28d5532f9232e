package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v80/github"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeConfig       ErrCode = "CONFIG"
	ErrCodeNotFound     ErrCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrCode = "FORBIDDEN"
	ErrCodeRateLimited  ErrCode = "RATE_LIMITED"
	ErrCodeTransport    ErrCode = "TRANSPORT"
	ErrCodeRepository   ErrCode = "REPOSITORY"
	ErrCodeOutput       ErrCode = "OUTPUT"
	ErrCodeBadRequest   ErrCode = "BAD_REQUEST"
	ErrCodeInternal     ErrCode = "INTERNAL_ERROR"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// RepositoryError marks a failure while processing a single repository
type RepositoryError struct {
	Repo string
	Err  error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Repo, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

// NewOutputError creates an error for failures writing the report
func NewOutputError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeOutput,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// FromGitHub classifies an error returned by the GitHub client.
// op describes the failed operation and becomes the message.
func FromGitHub(op string, err error) error {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &AppError{Code: ErrCodeRateLimited, Message: op, Err: err}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &AppError{Code: ErrCodeRateLimited, Message: op, Err: err}
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return &AppError{Code: codeForStatus(respErr.Response.StatusCode), Message: op, Err: err}
	}

	return &AppError{Code: ErrCodeTransport, Message: op, Err: err}
}

func codeForStatus(status int) ErrCode {
	switch status {
	case http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case http.StatusForbidden:
		return ErrCodeForbidden
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusTooManyRequests:
		return ErrCodeRateLimited
	default:
		return ErrCodeTransport
	}
}

// Code returns the code of the first AppError in the chain, or ErrCodeInternal
func Code(err error) ErrCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return err != nil && Code(err) == ErrCodeNotFound
}

// IsRateLimited checks if the error is a rate limited error
func IsRateLimited(err error) bool {
	return err != nil && Code(err) == ErrCodeRateLimited
}

// IsUnauthorized checks if the error is an authentication failure
func IsUnauthorized(err error) bool {
	return err != nil && Code(err) == ErrCodeUnauthorized
}

// IsRepositoryError checks if the error came from processing a single repository
func IsRepositoryError(err error) bool {
	var repoErr *RepositoryError
	return errors.As(err, &repoErr)
}
