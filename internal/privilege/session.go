// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package privilege

import (
	"crypto/rand"
	"crypto/rsa"
	"strconv"
	"sync"

	"github.com/stratastor/partd/pkg/errors"
)

const DefaultKeyBits = 4096

// Session holds the caller-side state of the privilege bridge: the signing
// key, the request counter and whether a helper is running. It is owned by
// one Bridge and torn down with Close.
type Session struct {
	mu      sync.Mutex
	bits    int
	key     *rsa.PrivateKey
	counter uint64
	running bool
}

// NewSession creates a session whose key will have the given size. A size
// of zero means DefaultKeyBits.
func NewSession(bits int) *Session {
	if bits <= 0 {
		bits = DefaultKeyBits
	}
	return &Session{bits: bits}
}

// Key returns the signing key, generating it on first use
func (s *Session) Key() (*rsa.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		return s.key, nil
	}
	key, err := rsa.GenerateKey(rand.Reader, s.bits)
	if err != nil {
		return nil, errors.Wrap(err, errors.KeyGenerationFailed).
			WithMetadata("bits", strconv.Itoa(s.bits))
	}
	s.key = key
	return key, nil
}

// HasKey reports whether key material is currently held
func (s *Session) HasKey() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key != nil
}

// Next returns the next request counter. Counters never repeat within a
// process, including across helper restarts.
func (s *Session) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return s.counter
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Session) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

// Close releases the key material and marks the helper stopped
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		s.key.D.SetInt64(0)
		for _, p := range s.key.Primes {
			p.SetInt64(0)
		}
	}
	s.key = nil
	s.running = false
}
