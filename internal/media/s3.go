// internal/media/s3.go
// Package media provides S3-compatible storage for user-supplied poster
// images. It handles presigned URL generation so uploads never stream through
// the service.
package media

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"
)

// uploadURLTTL bounds how long a presigned poster upload stays usable.
const uploadURLTTL = 15 * time.Minute

// extensionFor maps the allowed poster MIME types to file extensions.
var extensionFor = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// PosterStore wraps an S3-compatible client for poster operations.
type PosterStore struct {
	client *s3.Client
	bucket string
}

// NewPosterStore creates a poster store against an S3-compatible endpoint.
// It supports both AWS S3 and services like MinIO.
func NewPosterStore(endpoint, region, bucket, accessKey, secretKey string) (*PosterStore, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     accessKey,
					SecretAccessKey: secretKey,
				}, nil
			})),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true // Required for MinIO and other S3-compatible services
	})

	return &PosterStore{
		client: client,
		bucket: bucket,
	}, nil
}

// AllowedMimeType reports whether the poster MIME type is accepted.
func AllowedMimeType(mimeType string) bool {
	_, ok := extensionFor[mimeType]
	return ok
}

// InitUpload allocates an object key for a poster owned by the given account
// and returns a presigned PUT URL for the direct client upload.
func (p *PosterStore) InitUpload(ctx context.Context, ownerID, mimeType string) (posterPath, uploadURL string, expiresAt time.Time, err error) {
	ext, ok := extensionFor[mimeType]
	if !ok {
		return "", "", time.Time{}, fmt.Errorf("unsupported poster type %q", mimeType)
	}

	key := path.Join("posters", ownerID, ulid.Make().String()+ext)

	presignClient := s3.NewPresignClient(p.client)
	presignResult, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(mimeType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = uploadURLTTL
	})
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return "/" + key, presignResult.URL, time.Now().UTC().Add(uploadURLTTL), nil
}

// VerifyObject checks that a poster object exists and returns its size.
// Record updates that point at a poster path can confirm the upload landed.
func (p *PosterStore) VerifyObject(ctx context.Context, key string) (int64, error) {
	result, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get object metadata: %w", err)
	}
	return aws.ToInt64(result.ContentLength), nil
}
