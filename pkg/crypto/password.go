// Package crypto wraps the one-way password hashing used for stored credentials.
package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost matches the work factor existing accounts were hashed with.
const DefaultCost = 10

// ErrPasswordTooLong is returned for plaintexts bcrypt would silently truncate.
var ErrPasswordTooLong = errors.New("crypto: password exceeds 72 bytes")

// Hasher produces and checks salted bcrypt hashes.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher using cost, clamped to bcrypt's accepted range.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost {
		cost = DefaultCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return Hasher{cost: cost}
}

// Cost reports the work factor new hashes are generated with.
func (h Hasher) Cost() int {
	if h.cost == 0 {
		return DefaultCost
	}
	return h.cost
}

// Hash hashes plaintext with a fresh random salt. Two calls with the same
// input never return the same output; compare with Verify only.
func (h Hasher) Hash(plain string) ([]byte, error) {
	if len(plain) > 72 {
		return nil, ErrPasswordTooLong
	}
	return bcrypt.GenerateFromPassword([]byte(plain), h.Cost())
}

// Verify reports whether plain produced hash. Malformed hashes yield false.
func (h Hasher) Verify(plain string, hash []byte) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(plain)) == nil
}
