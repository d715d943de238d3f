package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ragstack/ragserve/pkg/domain"
)

// S3DocStore persists originals and extracted text in an object bucket,
// mirroring the local layout: <prefix>/<id>/raw and <prefix>/<id>/text.txt.
type S3DocStore struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ domain.DocumentStore = (*S3DocStore)(nil)

func NewS3DocStore(ctx context.Context, bucket, region, prefix string) (*S3DocStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket not configured", domain.ErrConfig)
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", domain.ErrConfig, err)
	}

	return &S3DocStore{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (s *S3DocStore) key(documentID, name string) string {
	if s.prefix == "" {
		return path.Join(documentID, name)
	}
	return path.Join(s.prefix, documentID, name)
}

func (s *S3DocStore) Store(ctx context.Context, documentID string, raw []byte, text string) (string, error) {
	if err := s.put(ctx, s.key(documentID, rawFileName), raw); err != nil {
		return "", err
	}
	if err := s.put(ctx, s.key(documentID, textFileName), []byte(text)); err != nil {
		return "", err
	}
	return s.URI(documentID), nil
}

func (s *S3DocStore) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("%w: put s3 object %s: %v", domain.ErrIO, key, err)
	}
	return nil
}

func (s *S3DocStore) get(ctx context.Context, documentID, name string) ([]byte, error) {
	key := s.key(documentID, name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, documentID)
		}
		return nil, fmt.Errorf("%w: get s3 object %s: %v", domain.ErrIO, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read s3 object %s: %v", domain.ErrIO, key, err)
	}
	return data, nil
}

func (s *S3DocStore) GetRaw(ctx context.Context, documentID string) ([]byte, error) {
	return s.get(ctx, documentID, rawFileName)
}

func (s *S3DocStore) GetText(ctx context.Context, documentID string) (string, error) {
	data, err := s.get(ctx, documentID, textFileName)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *S3DocStore) Exists(ctx context.Context, documentID string) (bool, error) {
	key := s.key(documentID, rawFileName)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: head s3 object %s: %v", domain.ErrIO, key, err)
	}
	return true, nil
}

func (s *S3DocStore) Delete(ctx context.Context, documentID string) error {
	for _, name := range []string{rawFileName, textFileName} {
		key := s.key(documentID, name)
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: &s.bucket,
			Key:    &key,
		})
		if err != nil {
			return fmt.Errorf("%w: delete s3 object %s: %v", domain.ErrIO, key, err)
		}
	}
	return nil
}

func (s *S3DocStore) List(ctx context.Context) ([]string, error) {
	prefix := ""
	if s.prefix != "" {
		prefix = s.prefix + "/"
	}
	delimiter := "/"

	var ids []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    &s.bucket,
		Prefix:    &prefix,
		Delimiter: &delimiter,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list s3 objects: %v", domain.ErrIO, err)
		}
		for _, cp := range page.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			id := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, prefix), "/")
			if id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func (s *S3DocStore) URI(documentID string) string {
	if s.prefix == "" {
		return fmt.Sprintf("s3://%s/%s", s.bucket, documentID)
	}
	return fmt.Sprintf("s3://%s/%s/%s", s.bucket, s.prefix, documentID)
}
