// internal/storage/minio_store.go
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sua-org/cam-guard/internal/config"
)

// ErrNotConfigured indica que as credenciais do MinIO não foram definidas;
// o modo online segue sem snapshot.
var ErrNotConfigured = errors.New("minio credentials not configured")

type ImageStore interface {
	SaveSnapshot(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type MinioStore struct {
	client   *minio.Client
	bucket   string
	endpoint string
	baseURL  *url.URL
	useSSL   bool
}

// NewMinioStore conecta ao MinIO e garante o bucket. Sem credenciais
// devolve ErrNotConfigured.
func NewMinioStore(cfg config.MinioConfig) (*MinioStore, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	endpoint, bucket, useSSL := cfg.Endpoint, cfg.Bucket, cfg.UseSSL
	accessKey, secretKey, base := cfg.AccessKey, cfg.SecretKey, cfg.PublicBaseURL

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("erro criando cliente MinIO: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Cria bucket se não existir
	if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		exists, errBucketExists := cli.BucketExists(ctx, bucket)
		if errBucketExists != nil || !exists {
			return nil, fmt.Errorf("erro criando/verificando bucket %s: %w", bucket, err)
		}
	}

	var u *url.URL
	if base != "" {
		u, err = url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("minio.public_base_url inválida: %w", err)
		}
	}

	log.Printf("[minio] conectado ao endpoint %s, bucket=%s", endpoint, bucket)

	return &MinioStore{
		client:   cli,
		bucket:   bucket,
		endpoint: cli.EndpointURL().Host,
		baseURL:  u,
		useSSL:   useSSL,
	}, nil
}

func (s *MinioStore) SaveSnapshot(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}

	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return "", fmt.Errorf("erro ao enviar objeto pro MinIO: %w", err)
	}
	return s.objectURL(key), nil
}

// objectURL usa public_base_url se configurada; senão a URL bruta do
// endpoint S3.
func (s *MinioStore) objectURL(key string) string {
	if s.baseURL != nil {
		u := *s.baseURL
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + key
		return u.String()
	}

	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.bucket, key)
}
