package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"stdimage/internal/logging"
)

// S3 keeps files in an S3 bucket. Every key is prefixed with Prefix so one
// bucket can serve several stores.
type S3 struct {
	svc     s3iface.S3API
	Bucket  string
	Prefix  string
	BaseURL string
	log     logging.Logger
}

var _ Backend = (*S3)(nil)

// NewS3 creates an S3 store using the credentials of awsSession.
func NewS3(bucket, prefix, baseURL string, awsSession *session.Session) *S3 {
	return NewS3WithClient(s3.New(awsSession), bucket, prefix, baseURL)
}

func NewS3WithClient(svc s3iface.S3API, bucket, prefix, baseURL string) *S3 {
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, prefix)
	}
	return &S3{
		svc:     svc,
		Bucket:  bucket,
		Prefix:  prefix,
		BaseURL: baseURL,
		log:     logging.GetLogger("filestore.s3").With(logging.Group("repo", "bucket", bucket, "prefix", prefix)),
	}
}

// Save buffers r because PutObject needs a seekable body.
func (s *S3) Save(ctx context.Context, key string, r io.Reader) (string, error) {
	const op = "filestore.S3.Save"

	key, err := CleanKey(key)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		s.log.ErrorContext(ctx, "put object failed", "key", key, "error", err)
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return key, nil
}

func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	const op = "filestore.S3.Open"

	out, err := s.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w: %s", op, ErrNotFound, key)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out.Body, nil
}

// Delete relies on DeleteObject succeeding for missing keys.
func (s *S3) Delete(ctx context.Context, key string) error {
	const op = "filestore.S3.Delete"

	_, err := s.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	const op = "filestore.S3.Exists"

	_, err := s.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

func (s *S3) Path(string) string { return "" }

func (s *S3) URL(key string) string { return joinURL(s.BaseURL, key) }

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}
