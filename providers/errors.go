package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// The error taxonomy below is the only error vocabulary that crosses the
// provider boundary. Each protocol client translates its native failures
// into one of these types; nothing above this layer needs protocol-specific
// error knowledge.

// ConnectionError is a transient transport failure. The user may retry.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// FolderNotFoundError means the remote folder diverged from the local
// mirror. It is not auto-retried; a resync is required.
type FolderNotFoundError struct {
	Folder string
}

func (e *FolderNotFoundError) Error() string {
	return fmt.Sprintf("folder %q does not exist on remote server", e.Folder)
}

// MessageNotFoundError means the remote message no longer exists, typically
// because it was deleted upstream between page load and submit.
type MessageNotFoundError struct {
	RemoteID string
}

func (e *MessageNotFoundError) Error() string {
	return fmt.Sprintf("message %q does not exist on remote server", e.RemoteID)
}

// EmptyRefreshTokenError means authentication has expired and re-running the
// authorization flow is required. It nudges the account toward STOPPED.
type EmptyRefreshTokenError struct {
	Email string
}

func (e *EmptyRefreshTokenError) Error() string {
	return fmt.Sprintf("refresh token for %s is empty or revoked, re-authentication required", e.Email)
}

// ValidationError reports malformed request input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// UnexpectedError wraps anything unclassified. It is logged upstream and
// never silently swallowed.
type UnexpectedError struct {
	Err error
}

func (e *UnexpectedError) Error() string { return fmt.Sprintf("unexpected error: %v", e.Err) }

func (e *UnexpectedError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err (or its chain) is a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsFolderNotFound reports whether err is a FolderNotFoundError.
func IsFolderNotFound(err error) bool {
	var fe *FolderNotFoundError
	return errors.As(err, &fe)
}

// IsMessageNotFound reports whether err is a MessageNotFoundError.
func IsMessageNotFound(err error) bool {
	var me *MessageNotFoundError
	return errors.As(err, &me)
}

// IsEmptyRefreshToken reports whether err is an EmptyRefreshTokenError.
func IsEmptyRefreshToken(err error) bool {
	var te *EmptyRefreshTokenError
	return errors.As(err, &te)
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// connErr classifies dial/IO failures, including timeouts, as
// ConnectionError. Clients must never hang indefinitely: every transport
// applies connect and read timeouts, and a timeout surfaces here.
func connErr(op string, err error) error {
	return &ConnectionError{Op: op, Err: err}
}

// isNetworkErr reports whether err looks like a transport-level failure. A
// connection dropped mid-command surfaces as EOF, which counts.
func isNetworkErr(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// isServerBusyErr matches server responses declaring temporary trouble, the
// way IMAP and SMTP servers phrase NO/4xx replies during overload.
func isServerBusyErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unavailable") ||
		strings.Contains(s, "try again") ||
		strings.Contains(s, "temporar") ||
		strings.Contains(s, "too many connections")
}

// loginErr separates a credential rejection from a transport failure during
// authentication. Only a real rejection maps to EmptyRefreshTokenError,
// which callers treat as unrecoverable; everything transient stays a
// ConnectionError so the next sync pass retries.
func loginErr(email string, err error) error {
	if isNetworkErr(err) || isServerBusyErr(err) {
		return connErr("login", err)
	}
	return &EmptyRefreshTokenError{Email: email}
}
