// Package objectstore provides the core.ObjectStore implementations.
package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const audioContentType = "audio/mpeg"

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store implements the core.ObjectStore interface using Amazon S3.
type S3Store struct {
	client S3API
}

// NewS3 creates a new S3Store.
func NewS3(client S3API) *S3Store {
	return &S3Store{client: client}
}

// Download streams the object at bucket/key into dst.
func (s *S3Store) Download(ctx context.Context, bucket, key string, dst io.Writer) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, bucket, err)
	}

	_, copyErr := io.Copy(dst, out.Body)
	closeErr := out.Body.Close()

	if copyErr != nil {
		return fmt.Errorf("failed to read object '%s': %w", key, copyErr)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return nil
}

// Upload writes src to bucket/key as MPEG audio. src should be seekable
// (an *os.File) so the SDK can compute the payload checksum.
func (s *S3Store) Upload(ctx context.Context, bucket, key string, src io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        src,
		ContentType: aws.String(audioContentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, bucket, err)
	}

	return nil
}

// Locator returns the s3:// URI of an object.
func (s *S3Store) Locator(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
