// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// New creates a PartdError for a known code with optional details
func New(code ErrorCode, details string) *PartdError {
	def, ok := errorDefinitions[code]
	if !ok {
		def = errorDefinitions[PartdMisc]
	}
	return &PartdError{
		Code:     code,
		Domain:   def.domain,
		Message:  def.message,
		Details:  details,
		GRPCCode: def.grpcCode,
		Metadata: make(map[string]string),
	}
}

// Wrap converts an arbitrary error into a PartdError with the given code.
// Metadata of a wrapped PartdError is carried over.
func Wrap(err error, code ErrorCode) *PartdError {
	if err == nil {
		return nil
	}

	perr := New(code, err.Error())
	perr.cause = err

	var inner *PartdError
	if stderrors.As(err, &inner) {
		for k, v := range inner.Metadata {
			perr.Metadata[k] = v
		}
	}
	return perr
}

// Errorf wraps a formatted message into a PartdError
func Errorf(code ErrorCode, format string, args ...interface{}) *PartdError {
	return New(code, fmt.Sprintf(format, args...))
}

// WithMetadata attaches a key/value pair and returns the error for chaining
func (e *PartdError) WithMetadata(key, value string) *PartdError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

func (e *PartdError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s-%d] %s", e.Domain, e.Code, e.Message)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	return b.String()
}

// Unwrap exposes the wrapped cause, if any
func (e *PartdError) Unwrap() error {
	return e.cause
}

// Is matches another PartdError by code so errors.Is works against the
// sentinel values returned by New.
func (e *PartdError) Is(target error) bool {
	t, ok := target.(*PartdError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// GRPCStatus lets grpc-go translate a PartdError returned from a handler
// into a status with a meaningful code.
func (e *PartdError) GRPCStatus() *status.Status {
	return status.New(e.GRPCCode, e.Error())
}

// IsCode reports whether err is, or wraps, a PartdError with the given code
func IsCode(err error, code ErrorCode) bool {
	var perr *PartdError
	if !stderrors.As(err, &perr) {
		return false
	}
	for perr != nil {
		if perr.Code == code {
			return true
		}
		var next *PartdError
		if perr.cause == nil || !stderrors.As(perr.cause, &next) {
			return false
		}
		perr = next
	}
	return false
}

// FromGRPC maps an error returned by a gRPC call back into the taxonomy
func FromGRPC(err error) *PartdError {
	if err == nil {
		return nil
	}
	var perr *PartdError
	if stderrors.As(err, &perr) {
		return perr
	}

	st, ok := status.FromError(err)
	if !ok {
		return Wrap(err, TransportUnavailable)
	}

	var code ErrorCode
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		code = AuthenticationFailure
	case codes.NotFound:
		code = ExecutableNotFound
	case codes.InvalidArgument:
		code = CommandInvalidInput
	case codes.Unavailable, codes.Canceled, codes.DeadlineExceeded:
		code = TransportUnavailable
	default:
		code = ProcessFailure
	}

	perr = New(code, st.Message())
	perr.cause = err
	return perr
}

// As is errors.As from the standard library, re-exported so callers that
// import this package under the name errors keep access to it
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Is is errors.Is from the standard library
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
