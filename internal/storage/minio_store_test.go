package storage

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sua-org/cam-guard/internal/config"
)

func TestObjectURL(t *testing.T) {
	s := &MinioStore{bucket: "cam-guard-incidents", endpoint: "minio.local:9000"}
	assert.Equal(t, "http://minio.local:9000/cam-guard-incidents/dev-1/2024/01/02/x.jpg", s.objectURL("dev-1/2024/01/02/x.jpg"))

	s.useSSL = true
	assert.Equal(t, "https://minio.local:9000/cam-guard-incidents/a.jpg", s.objectURL("a.jpg"))

	for _, base := range []string{"https://cdn.example.com", "https://cdn.example.com/", "https://cdn.example.com/media/"} {
		u, err := url.Parse(base)
		require.NoError(t, err)
		s.baseURL = u
		got := s.objectURL("a.jpg")
		assert.Contains(t, got, "https://cdn.example.com/")
		assert.Regexp(t, `[^/]/a\.jpg$`, got)
	}
}

func TestNewMinioStoreWithoutCredentials(t *testing.T) {
	cfg := config.Default().Minio
	_, err := NewMinioStore(cfg)
	assert.ErrorIs(t, err, ErrNotConfigured)

	cfg.AccessKey = "ak"
	_, err = NewMinioStore(cfg)
	assert.ErrorIs(t, err, ErrNotConfigured, "secret key is also required")
}
