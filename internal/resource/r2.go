package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/parsey/docpreview/internal/config"
)

// R2Store implements Store on Cloudflare R2. Handle URLs are presigned GETs.
type R2Store struct {
	s3Client   *s3.Client
	presigner  *s3.PresignClient
	bucketName string
	urlExpiry  time.Duration
}

// NewR2Store creates a new R2-backed store
func NewR2Store(cfg *config.R2Config) (*R2Store, error) {
	if cfg.AccountID == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("R2 configuration incomplete")
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)

	r2Resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: endpoint,
		}, nil
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithEndpointResolverWithOptions(r2Resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)

	return &R2Store{
		s3Client:   s3Client,
		presigner:  s3.NewPresignClient(s3Client),
		bucketName: cfg.BucketName,
		urlExpiry:  time.Duration(cfg.URLExpiryMin) * time.Minute,
	}, nil
}

func (s *R2Store) Put(ctx context.Context, data []byte, contentType string) (Handle, error) {
	id := NewHandleID(data)

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(r2Key(id)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return Handle{}, fmt.Errorf("failed to upload to R2: %w", err)
	}

	presigned, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(r2Key(id)),
	}, s3.WithPresignExpires(ttlOrDefault(s.urlExpiry)))
	if err != nil {
		return Handle{}, fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return Handle{
		ID:          id,
		URL:         presigned.URL,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (s *R2Store) Get(ctx context.Context, id string) (*Object, error) {
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(r2Key(id)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read from R2: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read R2 body: %w", err)
	}
	return &Object{Data: data, ContentType: aws.ToString(out.ContentType)}, nil
}

// Revoke deletes the object. R2 deletes are idempotent, so existence is
// checked first to surface double revocation.
func (s *R2Store) Revoke(ctx context.Context, id string) error {
	_, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(r2Key(id)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return ErrHandleRevoked
		}
		return fmt.Errorf("failed to stat R2 object: %w", err)
	}

	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(r2Key(id)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from R2: %w", err)
	}
	return nil
}

func r2Key(id string) string {
	return fmt.Sprintf("previews/%s", id)
}
