package rpc

import (
	"context"
	"errors"
	"fmt"
)

// Caller invokes a remote method with JSON-encodable args and decodes the
// returned message into out. out may be nil when the result is ignored.
type Caller interface {
	Call(ctx context.Context, method string, args any, out any) error
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, method string, args any, out any) error

func (f CallerFunc) Call(ctx context.Context, method string, args any, out any) error {
	return f(ctx, method, args, out)
}

var (
	// ErrUnknownMethod is returned when the remote side has no such method.
	ErrUnknownMethod = errors.New("rpc: unknown method")
	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("rpc: document not found")
)

// ExcDoesNotExist is the exception Frappe raises for a missing document.
const ExcDoesNotExist = "DoesNotExistError"

// RemoteError is an exception raised by the remote method.
type RemoteError struct {
	Method     string
	StatusCode int
	ExcType    string
	Message    string
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "remote call failed"
	}
	if e.ExcType != "" {
		return fmt.Sprintf("%s: %s: %s", e.Method, e.ExcType, msg)
	}
	return fmt.Sprintf("%s: %s", e.Method, msg)
}

// Unwrap maps missing documents onto ErrNotFound and other 404s onto
// ErrUnknownMethod.
func (e *RemoteError) Unwrap() error {
	switch {
	case e.ExcType == ExcDoesNotExist:
		return ErrNotFound
	case e.StatusCode == 404:
		return ErrUnknownMethod
	}
	return nil
}

// UserMessage returns the text suitable for showing to the user.
func UserMessage(err error, fallback string) string {
	var re *RemoteError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	return fallback
}
