package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Password Hashing (Bcrypt)
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword verifies password against stored. Rows written before
// hashing was introduced hold the plaintext; those compare in constant time.
func CheckPassword(password, stored string) bool {
	if IsHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1
}

func IsHash(stored string) bool {
	_, err := bcrypt.Cost([]byte(stored))
	return err == nil
}

const (
	keyAlphabet   = "abcdefghijklmnopqrstuvwxyz0123456789"
	keyRandomPart = 15
)

// GenerateKey returns "<prefix>_<length>_<15 random [a-z0-9]>".
func GenerateKey(prefix string, length int) (string, error) {
	var sb strings.Builder
	sb.Grow(len(prefix) + keyRandomPart + 6)
	fmt.Fprintf(&sb, "%s_%d_", prefix, length)

	max := big.NewInt(int64(len(keyAlphabet)))
	for i := 0; i < keyRandomPart; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(keyAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
