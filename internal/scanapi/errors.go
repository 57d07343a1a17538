package scanapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an API failure for display and policy decisions
type Kind string

const (
	KindNetwork    Kind = "network"
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindUnknown    Kind = "unknown"
)

// NetworkError is a transport failure or timeout
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError carries the field-level messages returned by the server
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return "validation failed"
	}
	return strings.Join(e.Messages, ", ")
}

// NotFoundError means the server has no such scan
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return "scan not found"
	}
	return fmt.Sprintf("scan %s not found", e.ID)
}

// UnknownError is anything not classified above
type UnknownError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *UnknownError) Error() string {
	switch {
	case e.Err != nil:
		return e.Err.Error()
	case e.Detail != "":
		return fmt.Sprintf("scan api returned %d: %s", e.StatusCode, e.Detail)
	default:
		return fmt.Sprintf("scan api returned %d", e.StatusCode)
	}
}

func (e *UnknownError) Unwrap() error { return e.Err }

// Classify maps any error to its Kind
func Classify(err error) Kind {
	var (
		netErr *NetworkError
		valErr *ValidationError
		nfErr  *NotFoundError
	)
	switch {
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.As(err, &valErr):
		return KindValidation
	case errors.As(err, &nfErr):
		return KindNotFound
	default:
		return KindUnknown
	}
}

// IsNotFound reports whether err is, or wraps, a NotFoundError
func IsNotFound(err error) bool {
	var nfErr *NotFoundError
	return errors.As(err, &nfErr)
}

// Message summarizes err for an inline status line
func Message(err error) string {
	if err == nil {
		return ""
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr.Error()
	}
	return err.Error()
}

// parseDetail extracts messages from the server's "detail" field, which may be a string,
// a list of {msg: ...} objects, or an object with a "message" key.
func parseDetail(body []byte) []string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return []string{s}
	}

	var list []json.RawMessage
	if err := json.Unmarshal(envelope.Detail, &list); err == nil {
		msgs := make([]string, 0, len(list))
		for _, item := range list {
			var d struct {
				Msg string `json:"msg"`
			}
			if err := json.Unmarshal(item, &d); err == nil && d.Msg != "" {
				msgs = append(msgs, d.Msg)
				continue
			}
			msgs = append(msgs, string(item))
		}
		return msgs
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Detail, &obj); err == nil && obj.Message != "" {
		return []string{obj.Message}
	}
	return []string{string(envelope.Detail)}
}
