package printserver

import (
	"errors"
	"fmt"
)

// TransportError reports that the print server could not be reached.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError is an unsuccessful response from the print server.
type ServerError struct {
	StatusCode int
	// Name is the server-provided error type, empty when the server sent none.
	Name    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind(), e.Message)
}

// Kind is the error name shown to the user.
func (e *ServerError) Kind() string {
	if e.Name == "" {
		return "Error"
	}
	return e.Name
}

// Describe returns the kind and user-facing message for errors raised by the
// client. ok is false when err carries neither a ServerError nor a TransportError.
func Describe(err error) (kind, message string, ok bool) {
	var (
		serverError    *ServerError
		transportError *TransportError
	)
	switch {
	case errors.As(err, &serverError):
		return serverError.Kind(), serverError.Message, true
	case errors.As(err, &transportError):
		return "TransportError", "could not reach the print server", true
	}
	return "", "", false
}
