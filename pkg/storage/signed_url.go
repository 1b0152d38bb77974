package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token errors returned by Parse.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// SignedURLSigner creates and validates time-limited object tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a token granting read access to bucket/key until the returned time.
func (s *SignedURLSigner) Generate(bucket, key string) (string, time.Time, error) {
	if bucket == "" || key == "" {
		return "", time.Time{}, fmt.Errorf("bucket and key required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl)
	encodedKey := base64.RawURLEncoding.EncodeToString([]byte(key))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	token := strings.Join([]string{bucket, ts, encodedKey, s.sign(bucket, ts, encodedKey)}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the object it grants.
func (s *SignedURLSigner) Parse(token string) (bucket, key string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, ErrTokenInvalid
	}
	bucket, ts, encodedKey, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(bucket, ts, encodedKey)), []byte(signature)) {
		return "", "", time.Time{}, ErrTokenInvalid
	}
	rawKey, err := base64.RawURLEncoding.DecodeString(encodedKey)
	if err != nil {
		return "", "", time.Time{}, ErrTokenInvalid
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", time.Time{}, ErrTokenInvalid
	}
	expiresAt = time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return "", "", time.Time{}, ErrTokenExpired
	}
	return bucket, string(rawKey), expiresAt, nil
}

func (s *SignedURLSigner) sign(bucket, ts, encodedKey string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(bucket + "|" + ts + "|" + encodedKey))
	return hex.EncodeToString(mac.Sum(nil))
}
