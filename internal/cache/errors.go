package cache

import (
	"errors"
	"fmt"
)

// Error codes carried by CacheError
const (
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeUnavailable   = "UNAVAILABLE"
	CodeEncoding      = "ENCODING"
	CodeBackend       = "BACKEND"
)

// CacheError describes a failed cache operation. Two CacheErrors match with
// errors.Is when their codes are equal.
type CacheError struct {
	Code string
	Op   string
	Err  error
}

func (e *CacheError) Error() string {
	msg := "cache " + e.Op
	if e.Op == "" {
		msg = "cache"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failed [%s]: %v", msg, e.Code, e.Err)
	}
	return fmt.Sprintf("%s failed [%s]", msg, e.Code)
}

func (e *CacheError) Unwrap() error { return e.Err }

func (e *CacheError) Is(target error) bool {
	t, ok := target.(*CacheError)
	return ok && t.Code == e.Code
}

func newError(code, op string, err error) *CacheError {
	return &CacheError{Code: code, Op: op, Err: err}
}

// ErrInvalidConfig reports a configuration problem
func ErrInvalidConfig(msg string) *CacheError {
	return newError(CodeInvalidConfig, "config", errors.New(msg))
}

// ErrConnectionFailed reports an unreachable backend
func ErrConnectionFailed(err error) *CacheError {
	return newError(CodeUnavailable, "connect", err)
}

// ErrSerializationFailed reports a decision that could not be encoded
func ErrSerializationFailed(err error) *CacheError {
	return newError(CodeEncoding, "encode", err)
}

// ErrDeserializationFailed reports a stored value that could not be decoded
func ErrDeserializationFailed(err error) *CacheError {
	return newError(CodeEncoding, "decode", err)
}

func ErrOperationFailed(op string, err error) *CacheError {
	return newError(CodeBackend, op, err)
}
