package crypto

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashSaltsEveryCall(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	first, err := h.Hash("pw1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := h.Hash("pw1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Fatalf("expected distinct hashes for the same plaintext")
	}
	if !h.Verify("pw1", first) || !h.Verify("pw1", second) {
		t.Fatalf("expected both hashes to verify")
	}
}

func TestVerifyRejectsOtherPlaintexts(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("Secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	for _, candidate := range []string{"secret", "Secret ", "", "Secre"} {
		if h.Verify(candidate, hash) {
			t.Fatalf("expected %q not to verify", candidate)
		}
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	for _, stored := range [][]byte{nil, []byte("plaintext"), []byte("$2a$10$short")} {
		if h.Verify("plaintext", stored) {
			t.Fatalf("expected malformed hash %q to fail verification", stored)
		}
	}
}

func TestHashRejectsLongPasswords(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	if _, err := h.Hash(strings.Repeat("a", 73)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestNewHasherClampsCost(t *testing.T) {
	if got := NewHasher(0).Cost(); got != DefaultCost {
		t.Fatalf("expected default cost, got %d", got)
	}
	if got := NewHasher(99).Cost(); got != bcrypt.MaxCost {
		t.Fatalf("expected max cost, got %d", got)
	}
	if got := (Hasher{}).Cost(); got != DefaultCost {
		t.Fatalf("expected zero value to use default cost, got %d", got)
	}
}
