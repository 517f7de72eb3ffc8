// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stratastor/partd/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestStartDigestCoversEveryField(t *testing.T) {
	base := StartRequest{
		Counter: 7,
		Program: "/usr/sbin/mkfs.ext4",
		Args:    []string{"-qF", "/dev/sda1"},
		Input:   []byte("y\n"),
		Mode:    1,
	}
	want := StartDigest(&base)
	assert.Len(t, want, 64)

	tests := []struct {
		name   string
		mutate func(r *StartRequest)
	}{
		{"counter", func(r *StartRequest) { r.Counter = 8 }},
		{"program", func(r *StartRequest) { r.Program = "/usr/sbin/mkfs.xfs" }},
		{"args", func(r *StartRequest) { r.Args = []string{"-qF", "/dev/sdb1"} }},
		{"input", func(r *StartRequest) { r.Input = nil }},
		{"mode", func(r *StartRequest) { r.Mode = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			r.Args = append([]string(nil), base.Args...)
			tt.mutate(&r)
			assert.NotEqual(t, want, StartDigest(&r))
		})
	}

	// Signature is not part of the digest
	signed := base
	signed.Signature = []byte("sig")
	assert.Equal(t, want, StartDigest(&signed))
}

func TestCopyBlocksDigestCoversEveryField(t *testing.T) {
	base := CopyBlocksRequest{
		Counter:      1,
		SourcePath:   "/dev/sda",
		SourceOffset: 0,
		Length:       100 << 20,
		TargetPath:   "/dev/sdb",
		TargetOffset: 4096,
		ChunkSize:    10 << 20,
	}
	want := CopyBlocksDigest(&base)

	mutations := []func(r *CopyBlocksRequest){
		func(r *CopyBlocksRequest) { r.Counter++ },
		func(r *CopyBlocksRequest) { r.SourcePath = "/dev/sdc" },
		func(r *CopyBlocksRequest) { r.SourceOffset = 512 },
		func(r *CopyBlocksRequest) { r.Length = 1 },
		func(r *CopyBlocksRequest) { r.TargetPath = "/dev/sdd" },
		func(r *CopyBlocksRequest) { r.TargetOffset = 0 },
		func(r *CopyBlocksRequest) { r.ChunkSize = 1 << 20 },
	}
	for _, m := range mutations {
		r := base
		m(&r)
		assert.NotEqual(t, want, CopyBlocksDigest(&r))
	}
}

func TestSignVerify(t *testing.T) {
	key := testKey(t)
	other := testKey(t)

	req := &StartRequest{Counter: 1, Program: "/bin/true"}
	sig, err := Sign(key, StartDigest(req))
	require.NoError(t, err)

	assert.NoError(t, Verify(&key.PublicKey, StartDigest(req), sig))

	err = Verify(&other.PublicKey, StartDigest(req), sig)
	assert.True(t, errors.IsCode(err, errors.AuthenticationFailure))

	req.Args = []string{"extra"}
	err = Verify(&key.PublicKey, StartDigest(req), sig)
	assert.True(t, errors.IsCode(err, errors.AuthenticationFailure))

	err = Verify(&key.PublicKey, ExitDigest(&ExitRequest{Counter: 1}), nil)
	assert.True(t, errors.IsCode(err, errors.AuthenticationFailure))

	err = Verify(nil, ExitDigest(&ExitRequest{Counter: 1}), sig)
	assert.True(t, errors.IsCode(err, errors.AuthenticationFailure))
}

func TestPublicKeyEncoding(t *testing.T) {
	key := testKey(t)

	enc, err := EncodePublicKey(&key.PublicKey)
	require.NoError(t, err)

	pub, err := DecodePublicKey(enc + "\n")
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pub))

	_, err = DecodePublicKey("not base64!")
	assert.True(t, errors.IsCode(err, errors.AuthenticationFailure))
}

func TestJSONCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	require.NotNil(t, codec)

	data, err := codec.Marshal(Completed(&Result{Output: []byte("ok"), ExitCode: 3, Success: true}))
	require.NoError(t, err)

	var ev Event
	require.NoError(t, codec.Unmarshal(data, &ev))
	assert.Equal(t, EventCompleted, ev.Kind)
	require.NotNil(t, ev.Result)
	assert.Equal(t, 3, ev.Result.ExitCode)
	assert.Equal(t, []byte("ok"), ev.Result.Output)
}
