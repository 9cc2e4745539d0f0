package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// LocalSource reads templates from a directory.
type LocalSource struct {
	Dir string
}

func (l LocalSource) Load(_ context.Context, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(l.Dir, filepath.Base(name)))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrTemplateNotFound
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads templates from an S3 bucket under an optional prefix.
type S3Source struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Source creates an S3-backed template source.
func NewS3Source(client S3API, bucket, prefix string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Source) Load(ctx context.Context, name string) (string, error) {
	key := path.Join(s.prefix, name)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", ErrTemplateNotFound
		}
		return "", fmt.Errorf("S3 GetObject %s/%s: %w", s.bucket, key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading S3 object body: %w", err)
	}
	return string(body), nil
}
