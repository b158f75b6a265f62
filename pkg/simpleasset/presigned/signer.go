// Package presigned mints and checks HMAC-signed, expiring URLs for backends
// that have no native presigning, such as the filesystem store.
package presigned

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoSecretKey       = errors.New("presigned: no secret key configured")
	ErrMissingSignature  = errors.New("presigned: missing signature parameter")
	ErrMissingExpiration = errors.New("presigned: missing expires parameter")
	ErrInvalidExpiration = errors.New("presigned: invalid expires parameter")
	ErrExpired           = errors.New("presigned: URL has expired")
	ErrInvalidSignature  = errors.New("presigned: invalid signature")
)

// IsAuthError reports whether err came from validating a request
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrMissingExpiration) ||
		errors.Is(err, ErrInvalidExpiration) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrInvalidSignature)
}

// Signer signs object keys under a fixed route prefix, e.g. "/files/".
type Signer struct {
	secretKey []byte
	prefix    string
	now       func() time.Time
}

// Option configures a Signer
type Option func(*Signer)

// WithPrefix sets the route prefix object keys are served under.
func WithPrefix(prefix string) Option {
	return func(s *Signer) {
		s.prefix = prefix
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// New creates a Signer. The secret must be non-empty.
func New(secret string, opts ...Option) (*Signer, error) {
	if secret == "" {
		return nil, ErrNoSecretKey
	}
	s := &Signer{
		secretKey: []byte(secret),
		prefix:    "/files/",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !strings.HasSuffix(s.prefix, "/") {
		s.prefix += "/"
	}
	return s, nil
}

// Prefix returns the route prefix keys are served under
func (s *Signer) Prefix() string {
	return s.prefix
}

// Sign returns the path and query for a GET of objectKey valid for expiresIn.
//
//	/files/user/42/beach.jpg?expires=1696789012&signature=abc123...
func (s *Signer) Sign(objectKey string, expiresIn time.Duration) (string, error) {
	if expiresIn <= 0 {
		return "", fmt.Errorf("presigned: invalid expiration %s", expiresIn)
	}
	path := s.prefix + strings.TrimPrefix(objectKey, "/")
	expiresAt := s.now().Add(expiresIn).Unix()

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expiresAt, 10))
	q.Set("signature", s.signature(http.MethodGet, path, expiresAt))
	return (&url.URL{Path: path, RawQuery: q.Encode()}).String(), nil
}

// Verify checks the signature and expiry of r and returns the object key it
// grants access to.
func (s *Signer) Verify(r *http.Request) (string, error) {
	query := r.URL.Query()
	signature := query.Get("signature")
	if signature == "" {
		return "", ErrMissingSignature
	}
	expiresStr := query.Get("expires")
	if expiresStr == "" {
		return "", ErrMissingExpiration
	}
	expiresAt, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidExpiration, err)
	}
	if s.now().Unix() > expiresAt {
		return "", ErrExpired
	}

	method := r.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	expected := s.signature(method, r.URL.Path, expiresAt)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", ErrInvalidSignature
	}

	key := strings.TrimPrefix(r.URL.Path, s.prefix)
	if key == r.URL.Path || key == "" {
		return "", ErrInvalidSignature
	}
	return key, nil
}

// payload format: METHOD|PATH|EXPIRES
func (s *Signer) signature(method, path string, expiresAt int64) string {
	h := hmac.New(sha256.New, s.secretKey)
	fmt.Fprintf(h, "%s|%s|%d", method, path, expiresAt)
	return hex.EncodeToString(h.Sum(nil))
}
