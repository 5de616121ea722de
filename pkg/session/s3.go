package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// expiresMetadata is the object metadata key holding the session expiry.
const expiresMetadata = "session-expires-at"

// S3Store keeps one object per session in an S3 bucket. Expiry is recorded
// in object metadata and checked on Load; pair it with a bucket lifecycle
// rule to delete stale objects.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	closed bool
}

// S3StoreOption configures S3Store behavior.
type S3StoreOption func(*S3Store)

// WithS3Prefix sets the key prefix. Default: "sessions/".
func WithS3Prefix(prefix string) S3StoreOption {
	return func(s *S3Store) {
		s.prefix = prefix
	}
}

// NewS3Store creates a store writing to bucket.
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := session.NewS3Store(s3.NewFromConfig(cfg), "my-bucket")
func NewS3Store(client S3API, bucket string, opts ...S3StoreOption) *S3Store {
	s := &S3Store{client: client, bucket: bucket, prefix: "sessions/"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *S3Store) key(sessionID string) string {
	return s.prefix + sessionID + ".json"
}

// Save writes the session object.
func (s *S3Store) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	if s.closed {
		return ErrStoreClosed{}
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(sessionID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			expiresMetadata: expiresAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return fmt.Errorf("session: s3 put %s: %w", sessionID, err)
	}
	return nil
}

// Load reads the session object. Missing and expired objects return nil.
func (s *S3Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	data, expiresAt, err := s.get(ctx, sessionID)
	if err != nil || data == nil {
		return nil, err
	}
	if !expiresAt.IsZero() && time.Now().After(expiresAt) {
		return nil, nil
	}
	return data, nil
}

func (s *S3Store) get(ctx context.Context, sessionID string) ([]byte, time.Time, error) {
	if s.closed {
		return nil, time.Time{}, ErrStoreClosed{}
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sessionID)),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("session: s3 get %s: %w", sessionID, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, time.Time{}, err
	}
	var expiresAt time.Time
	if v, ok := out.Metadata[expiresMetadata]; ok {
		expiresAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	return data, expiresAt, nil
}

// Delete removes the session object.
func (s *S3Store) Delete(ctx context.Context, sessionID string) error {
	if s.closed {
		return ErrStoreClosed{}
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sessionID)),
	})
	if err != nil {
		return fmt.Errorf("session: s3 delete %s: %w", sessionID, err)
	}
	return nil
}

// Touch rewrites the object with a new expiry. S3 metadata cannot be changed
// in place.
func (s *S3Store) Touch(ctx context.Context, sessionID string, expiresAt time.Time) error {
	data, _, err := s.get(ctx, sessionID)
	if err != nil || data == nil {
		return err
	}
	return s.Save(ctx, sessionID, data, expiresAt)
}

// Close marks the store as closed.
func (s *S3Store) Close() error {
	s.closed = true
	return nil
}
