package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("download token is malformed or forged")
	ErrTokenExpired = errors.New("download token has expired")
)

type downloadClaims struct {
	Key       string `json:"k"`
	ExpiresAt int64  `json:"e"`
}

// DownloadSigner mints short-lived HMAC-SHA256 tokens that name a stored
// object. Tokens have the form base64url(claims) "." base64url(mac).
type DownloadSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewDownloadSigner(secret string, ttl time.Duration) *DownloadSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DownloadSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for key and the instant it stops being accepted.
func (s *DownloadSigner) Sign(key string) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("download signing secret not configured")
	}
	if key == "" {
		return "", time.Time{}, errors.New("empty storage key")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	raw, err := json.Marshal(downloadClaims{Key: key, ExpiresAt: expiresAt.Unix()})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("encode download claims: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(raw)
	return body + "." + base64.RawURLEncoding.EncodeToString(s.mac(body)), expiresAt, nil
}

// Verify checks the signature before the expiry and returns the signed key.
func (s *DownloadSigner) Verify(token string) (string, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", ErrInvalidToken
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(got, s.mac(body)) {
		return "", ErrInvalidToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return "", ErrInvalidToken
	}
	var claims downloadClaims
	if err := json.Unmarshal(raw, &claims); err != nil || claims.Key == "" {
		return "", ErrInvalidToken
	}
	if !s.now().Before(time.Unix(claims.ExpiresAt, 0)) {
		return "", ErrTokenExpired
	}
	return claims.Key, nil
}

func (s *DownloadSigner) mac(body string) []byte {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(body))
	return m.Sum(nil)
}
