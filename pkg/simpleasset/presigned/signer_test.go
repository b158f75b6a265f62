package presigned_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-asset/pkg/simpleasset/presigned"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := presigned.New("")
	assert.ErrorIs(t, err, presigned.ErrNoSecretKey)
}

func TestSignAndVerify(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s, err := presigned.New("test-secret", presigned.WithClock(fixedClock(now)))
	require.NoError(t, err)
	assert.Equal(t, "/files/", s.Prefix())

	signed, err := s.Sign("user/42/beach.jpg", time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "/files/user/42/beach.jpg", u.Path)
	assert.Equal(t, "1700000060", u.Query().Get("expires"))

	key, err := s.Verify(httptest.NewRequest(http.MethodGet, signed, nil))
	require.NoError(t, err)
	assert.Equal(t, "user/42/beach.jpg", key)

	key, err = s.Verify(httptest.NewRequest(http.MethodHead, signed, nil))
	require.NoError(t, err)
	assert.Equal(t, "user/42/beach.jpg", key)
}

func TestSign_InvalidExpiration(t *testing.T) {
	s, err := presigned.New("test-secret")
	require.NoError(t, err)

	_, err = s.Sign("a.jpg", 0)
	assert.Error(t, err)
}

func TestVerify_Rejections(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s, err := presigned.New("test-secret", presigned.WithPrefix("/blobs"), presigned.WithClock(fixedClock(now)))
	require.NoError(t, err)

	signed, err := s.Sign("user/1/a.jpg", time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)
	require.Equal(t, "/blobs/user/1/a.jpg", u.Path)

	other, err := presigned.New("other-secret", presigned.WithPrefix("/blobs"), presigned.WithClock(fixedClock(now)))
	require.NoError(t, err)
	later, err := presigned.New("test-secret", presigned.WithPrefix("/blobs"), presigned.WithClock(fixedClock(now.Add(2*time.Minute))))
	require.NoError(t, err)

	tampered := *u
	tampered.Path = "/blobs/user/2/a.jpg"

	tests := []struct {
		name   string
		signer *presigned.Signer
		method string
		target string
		want   error
	}{
		{"missing signature", s, http.MethodGet, "/blobs/user/1/a.jpg?expires=1700000060", presigned.ErrMissingSignature},
		{"missing expires", s, http.MethodGet, "/blobs/user/1/a.jpg?signature=abc", presigned.ErrMissingExpiration},
		{"bad expires", s, http.MethodGet, "/blobs/user/1/a.jpg?signature=abc&expires=soon", presigned.ErrInvalidExpiration},
		{"expired", later, http.MethodGet, signed, presigned.ErrExpired},
		{"wrong secret", other, http.MethodGet, signed, presigned.ErrInvalidSignature},
		{"other key", s, http.MethodGet, tampered.String(), presigned.ErrInvalidSignature},
		{"other method", s, http.MethodDelete, signed, presigned.ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.signer.Verify(httptest.NewRequest(tt.method, tt.target, nil))
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, presigned.IsAuthError(err))
		})
	}
}
