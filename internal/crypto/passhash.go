package crypto

import (
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for dev-server account passwords.
const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 19 * 1024
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	saltLen = 16
)

// PasswordHash is a salted Argon2id digest.
type PasswordHash struct {
	Salt []byte
	Hash []byte
}

// HashPassword derives a fresh salted hash for password.
func HashPassword(password string) (PasswordHash, error) {
	salt, err := RandBytes(saltLen)
	if err != nil {
		return PasswordHash{}, err
	}
	return PasswordHash{Salt: salt, Hash: argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)}, nil
}

// Verify reports whether password matches in constant time.
func (p PasswordHash) Verify(password string) bool {
	if len(p.Salt) == 0 || len(p.Hash) == 0 {
		return false
	}
	got := argon2.IDKey([]byte(password), p.Salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(got, p.Hash) == 1
}
