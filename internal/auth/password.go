package auth

import "crypto/subtle"

// ConstantTimeVerifier compares an already-hashed password against the
// stored hash using constant-time comparison, the same defense the
// teacher's ValidateAPIKey applies to static API keys. It is the default
// PasswordVerifier; callers wanting a real hashing scheme (bcrypt, argon2,
// …) supply their own — the scheme itself is out of scope here.
type ConstantTimeVerifier struct{}

func (ConstantTimeVerifier) Verify(storedHash, attempt string) bool {
	if storedHash == "" || attempt == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(attempt)) == 1
}
