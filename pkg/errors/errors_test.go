// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestNewAndWrap(t *testing.T) {
	err := New(ConflictingTargets, "partition /dev/sda1").
		WithMetadata("operation", "op-1")

	assert.Equal(t, DomainOperation, err.Domain)
	assert.Equal(t, "op-1", err.Metadata["operation"])
	assert.Contains(t, err.Error(), "OP-2102")
	assert.Contains(t, err.Error(), "/dev/sda1")

	wrapped := Wrap(err, OperationFailure)
	assert.True(t, IsCode(wrapped, OperationFailure))
	assert.True(t, IsCode(wrapped, ConflictingTargets))
	assert.False(t, IsCode(wrapped, NotReversible))
	assert.Equal(t, "op-1", wrapped.Metadata["operation"])

	assert.True(t, stderrors.Is(fmt.Errorf("ctx: %w", wrapped), New(OperationFailure, "")))
	assert.Nil(t, Wrap(nil, JobFailure))
}

func TestUnknownCodeFallsBackToMisc(t *testing.T) {
	err := New(ErrorCode(9999), "boom")
	assert.Equal(t, DomainMisc, err.Domain)
	assert.Equal(t, ErrorCode(9999), err.Code)
}

func TestGRPCRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
		grpc codes.Code
	}{
		{"auth", AuthenticationFailure, codes.Unauthenticated},
		{"not_found", ExecutableNotFound, codes.NotFound},
		{"unavailable", TransportUnavailable, codes.Unavailable},
		{"invalid", CommandInvalidInput, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ok := status.FromError(New(tt.code, "x"))
			assert.True(t, ok)
			assert.Equal(t, tt.grpc, st.Code())

			back := FromGRPC(st.Err())
			assert.Equal(t, tt.code, back.Code)
		})
	}

	assert.Equal(t, ErrorCode(TransportUnavailable), FromGRPC(stderrors.New("dial")).Code)
	assert.Nil(t, FromGRPC(nil))
}
