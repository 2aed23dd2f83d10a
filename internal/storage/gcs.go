package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const signSlack = 500 * time.Millisecond

// GCSConfig holds the service account triple and target bucket.
type GCSConfig struct {
	Bucket          string
	ClientEmail     string
	PrivateKey      string
	CredentialsJSON []byte
}

// GCSStore writes objects to Google Cloud Storage and signs V4 read URLs.
type GCSStore struct {
	client      *gcs.Client
	bucket      string
	clientEmail string
	privateKey  []byte
}

// NewGCSStore builds a client from explicit service account credentials.
func NewGCSStore(ctx context.Context, cfg GCSConfig, opts ...option.ClientOption) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("missing GCS bucket name")
	}
	if len(cfg.CredentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &GCSStore{
		client:      client,
		bucket:      cfg.Bucket,
		clientEmail: cfg.ClientEmail,
		privateKey:  []byte(cfg.PrivateKey),
	}, nil
}

func (s *GCSStore) Scheme() string { return SchemeGCS }

func (s *GCSStore) Bucket() string { return s.bucket }

// Put uploads data as a single non-resumable write.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (Ref, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	w.ChunkSize = 0

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return Ref{}, fmt.Errorf("write gcs object: %w", err)
	}
	if err := w.Close(); err != nil {
		return Ref{}, fmt.Errorf("finalize gcs object: %w", err)
	}
	return Ref{Scheme: SchemeGCS, Bucket: s.bucket, Key: key}, nil
}

// SignedURL returns a V4 signed GET URL valid for ttl.
func (s *GCSStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	opts := &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		// X-Goog-Expires is the whole seconds left at signing time, so pad
		// by half a second to keep it at exactly ttl.
		Expires: time.Now().Add(ttl + signSlack),
	}
	if s.clientEmail != "" && len(s.privateKey) > 0 {
		opts.GoogleAccessID = s.clientEmail
		opts.PrivateKey = s.privateKey
	}

	url, err := s.client.Bucket(s.bucket).SignedURL(key, opts)
	if err != nil {
		return "", fmt.Errorf("sign gcs url: %w", err)
	}
	return url, nil
}

// Delete removes key. A missing object is not an error.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("delete gcs object: %w", err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
