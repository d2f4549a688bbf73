package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig configures the MinIO/S3 object store.
type MinioConfig struct {
	EndpointURL     string `yaml:"endpointUrl"`
	Region          string `yaml:"region"`
	UseSSL          bool   `yaml:"useSSL"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
}

// MinioStore implements ObjectStore with the minio-go SDK.
type MinioStore struct {
	client *minio.Client
	region string
}

// NewMinioStore creates a MinIO/S3 client from cfg.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	if cfg.EndpointURL == "" {
		return nil, wrapError(CodeUnreachable, false, fmt.Errorf("endpointUrl is required"))
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, wrapError(CodeAuthInvalid, false, fmt.Errorf("credentials are required"))
	}

	// Accept both "host:port" and "scheme://host:port".
	u, err := url.Parse(cfg.EndpointURL)
	if err != nil {
		return nil, wrapError(CodeUnreachable, false, fmt.Errorf("invalid endpoint URL: %w", err))
	}
	host := u.Host
	if host == "" {
		host = cfg.EndpointURL
	}
	useSSL := cfg.UseSSL || u.Scheme == "https"

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, wrapError(CodeUnreachable, true, fmt.Errorf("create minio client: %w", err))
	}
	return &MinioStore{client: client, region: cfg.Region}, nil
}

func (s *MinioStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return classifyMinioError(err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return classifyMinioError(err)
	}
	return nil
}

func (s *MinioStore) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if key == "" {
		return wrapError(CodeWriteFailed, false, fmt.Errorf("object key is required"))
	}
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return classifyMinioError(err)
	}
	return nil
}

// classifyMinioError converts minio-go errors to *Error.
func classifyMinioError(err error) *Error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchBucket":
			return wrapError(CodeBucketNotFound, false, err)
		case "AccessDenied":
			return wrapError(CodePermissionDenied, false, err)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return wrapError(CodeAuthInvalid, false, err)
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return wrapError(CodeTimeout, true, err)
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		return wrapError(CodeUnreachable, true, err)
	}
	return wrapError(CodeWriteFailed, true, err)
}
