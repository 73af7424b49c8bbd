package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword derives a bcrypt hash for an operator credential. The hashpw
// tool uses it to produce the OPERATOR_PASSWORD_HASH value; the server
// itself never hashes, it only verifies.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches the stored bcrypt hash.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
