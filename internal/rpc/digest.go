// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/stratastor/partd/pkg/errors"
)

// StartDigest is SHA-512 over the counter, program, arguments, input and mode
func StartDigest(r *StartRequest) []byte {
	h := sha512.New()
	h.Write([]byte(strconv.FormatUint(r.Counter, 10)))
	h.Write([]byte(r.Program))
	for _, arg := range r.Args {
		h.Write([]byte(arg))
	}
	h.Write(r.Input)
	h.Write([]byte{r.Mode})
	return h.Sum(nil)
}

// CopyBlocksDigest is SHA-512 over the counter and every range field
func CopyBlocksDigest(r *CopyBlocksRequest) []byte {
	h := sha512.New()
	h.Write([]byte(strconv.FormatUint(r.Counter, 10)))
	h.Write([]byte(r.SourcePath))
	h.Write([]byte(strconv.FormatInt(r.SourceOffset, 10)))
	h.Write([]byte(strconv.FormatInt(r.Length, 10)))
	h.Write([]byte(r.TargetPath))
	h.Write([]byte(strconv.FormatInt(r.TargetOffset, 10)))
	h.Write([]byte(strconv.FormatInt(r.ChunkSize, 10)))
	return h.Sum(nil)
}

func ExitDigest(r *ExitRequest) []byte {
	sum := sha512.Sum512([]byte(strconv.FormatUint(r.Counter, 10)))
	return sum[:]
}

// Sign produces a PKCS#1 v1.5 signature over the raw digest
func Sign(priv *rsa.PrivateKey, digest []byte) ([]byte, error) {
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.Hash(0), digest)
	if err != nil {
		return nil, errors.Wrap(err, errors.AuthenticationFailure)
	}
	return sig, nil
}

// Verify checks sig against digest with pub
func Verify(pub *rsa.PublicKey, digest, sig []byte) error {
	if pub == nil {
		return errors.New(errors.AuthenticationFailure, "no public key registered")
	}
	if len(sig) == 0 {
		return errors.New(errors.AuthenticationFailure, "missing signature")
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.Hash(0), digest, sig); err != nil {
		return errors.New(errors.AuthenticationFailure, "signature mismatch")
	}
	return nil
}

// EncodePublicKey renders pub as base64 PKIX DER, the form written to the
// helper's stdin
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", errors.Wrap(err, errors.KeyGenerationFailed)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// DecodePublicKey parses the output of EncodePublicKey
func DecodePublicKey(s string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrap(err, errors.AuthenticationFailure).
			WithMetadata("stage", "decode")
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errors.Wrap(err, errors.AuthenticationFailure).
			WithMetadata("stage", "parse")
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New(errors.AuthenticationFailure, "public key is not RSA")
	}
	return pub, nil
}
