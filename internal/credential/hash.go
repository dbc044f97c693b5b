package credential

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// DefaultRounds matches the work factor the legacy password KDF used.
const DefaultRounds = 40000

const (
	saltLength = 16
	keyLength  = 64

	pbkdf2Prefix = "$pbkdf2-sha512$"
)

var errMalformedHash = errors.New("credential: malformed password hash")

// HashPassword derives a one-way hash of the password using PBKDF2-SHA512
// with the given number of rounds. Rounds <= 0 falls back to DefaultRounds.
func HashPassword(password string, rounds int) (string, error) {
	if password == "" {
		return "", errors.New("credential: password is empty")
	}
	if rounds <= 0 {
		rounds = DefaultRounds
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, rounds, keyLength, sha512.New)
	return fmt.Sprintf("%s%d$%s$%s",
		pbkdf2Prefix,
		rounds,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword compares a plaintext password against a stored hash in
// constant time. Both PBKDF2-SHA512 and legacy bcrypt hashes are accepted.
func VerifyPassword(hash, password string) bool {
	if hash == "" || password == "" {
		return false
	}
	if strings.HasPrefix(hash, pbkdf2Prefix) {
		ok, err := verifyPBKDF2(hash, password)
		return err == nil && ok
	}
	if strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	return false
}

func verifyPBKDF2(hash, password string) (bool, error) {
	rest := strings.TrimPrefix(hash, pbkdf2Prefix)
	parts := strings.Split(rest, "$")
	if len(parts) != 3 {
		return false, errMalformedHash
	}
	rounds, err := strconv.Atoi(parts[0])
	if err != nil || rounds <= 0 {
		return false, errMalformedHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, errMalformedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return false, errMalformedHash
	}
	got := pbkdf2.Key([]byte(password), salt, rounds, len(want), sha512.New)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
