package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// VerifyPassword verifies a password against a hash
func VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateRandomBytes generates random bytes
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// GenerateRandomString generates a URL-safe random string
func GenerateRandomString(n int) (string, error) {
	bytes, err := GenerateRandomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

const (
	passwordUpper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	passwordDigits  = "0123456789"
	passwordSpecial = "!@#$%^&*(),.?:{}|<>"
	passwordAll     = passwordUpper + "abcdefghijklmnopqrstuvwxyz" + passwordDigits + passwordSpecial
)

// GeneratePassword generates a random 16-character password containing at
// least one uppercase letter, one digit and one special character.
func GeneratePassword() (string, error) {
	pick := func(set string) (byte, error) {
		i, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
		if err != nil {
			return 0, err
		}
		return set[i.Int64()], nil
	}

	buf := make([]byte, 16)
	var err error
	if buf[0], err = pick(passwordUpper); err != nil {
		return "", err
	}
	if buf[1], err = pick(passwordDigits); err != nil {
		return "", err
	}
	if buf[2], err = pick(passwordSpecial); err != nil {
		return "", err
	}
	for i := 3; i < len(buf); i++ {
		if buf[i], err = pick(passwordAll); err != nil {
			return "", err
		}
	}

	// Shuffle so the mandatory characters are not positional.
	for i := len(buf) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		buf[i], buf[j.Int64()] = buf[j.Int64()], buf[i]
	}

	return string(buf), nil
}
