// Package signing implements the HMAC request envelope shared by the
// controller's host clients and the agent's HTTP surface. A request is
// signed over METHOD + normalized path + body bytes + unix timestamp; the
// signature travels in X-Signature and the timestamp in X-Timestamp.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// HeaderTimestamp carries the unix-seconds timestamp of the request.
	HeaderTimestamp = "X-Timestamp"
	// HeaderSignature carries the base64 HMAC-SHA256 of the request envelope.
	HeaderSignature = "X-Signature"
)

var (
	// ErrExpired is returned when the timestamp is outside the accepted skew.
	ErrExpired = errors.New("signature lifetime expired")
	// ErrInvalid is returned when the signature does not match.
	ErrInvalid = errors.New("invalid signature")
	// ErrMissingTimestamp is returned when X-Timestamp is absent or malformed.
	ErrMissingTimestamp = errors.New("missing or malformed timestamp")
)

// Headers returns the signature headers for a request. When secret is empty
// only the timestamp header is produced; the peer must then accept unsigned
// requests.
func Headers(secret, method, path string, body []byte, now time.Time) map[string]string {
	ts := now.Unix()
	headers := map[string]string{
		HeaderTimestamp: strconv.FormatInt(ts, 10),
	}
	if secret == "" {
		return headers
	}
	headers[HeaderSignature] = compute(secret, method, path, body, ts)
	return headers
}

// Verify checks the signature headers of an incoming request.
// The timestamp must be within ttl of now regardless of whether a secret is
// configured. When secret is empty the signature header is ignored.
func Verify(secret string, ttl time.Duration, method, path string, body []byte, tsHeader, sigHeader string, now time.Time) error {
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil || tsHeader == "" {
		return ErrMissingTimestamp
	}

	age := now.Unix() - ts
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > ttl {
		return fmt.Errorf("%w (age=%ds)", ErrExpired, age)
	}

	if secret == "" {
		return nil
	}

	expected := compute(secret, method, path, body, ts)
	if !hmac.Equal([]byte(expected), []byte(sigHeader)) {
		return ErrInvalid
	}
	return nil
}

// compute builds the canonical envelope and returns its base64 HMAC-SHA256.
func compute(secret, method, path string, body []byte, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.ToUpper(method)))
	mac.Write([]byte(normalizePath(path)))
	mac.Write(body)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// normalizePath guarantees exactly one leading slash.
func normalizePath(path string) string {
	return "/" + strings.TrimLeft(path, "/")
}
