package clients

import (
	"agentdms/lib/config"
	"agentdms/lib/constants"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3ClientInterface defines the interface for document blob operations
type S3ClientInterface interface {
	GenerateUploadURL(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	GenerateDownloadURL(ctx context.Context, key, fileName string, expiry time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
	ObjectExists(ctx context.Context, key string) (bool, error)
}

// S3Client wraps the AWS S3 client with our custom methods
type S3Client struct {
	svc           *s3.Client
	presignClient *s3.PresignClient
	bucket        string
}

// NewS3Client creates a new S3 client instance for the document bucket
func NewS3Client(cfg *config.Config, bucket string) S3ClientInterface {
	svc := s3.NewFromConfig(loadAWSConfig(cfg), func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &S3Client{
		svc:           svc,
		presignClient: s3.NewPresignClient(svc),
		bucket:        bucket,
	}
}

// DocumentBucket returns the bucket named by the DOCUMENT_BUCKET environment variable,
// falling back to the SSM parameter of the same name
func DocumentBucket(cfg *config.Config, ssmParams map[string]string) (string, error) {
	if cfg.DocumentBucket != "" {
		return cfg.DocumentBucket, nil
	}
	if bucket := ssmParams[constants.DOCUMENT_BUCKET]; bucket != "" {
		return bucket, nil
	}
	return "", fmt.Errorf("document bucket is not configured")
}

// GenerateUploadURL creates a presigned URL for uploading a document to S3
func (client *S3Client) GenerateUploadURL(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(client.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	presignResult, err := client.presignClient.PresignPutObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", err
	}

	return presignResult.URL, nil
}

// GenerateDownloadURL creates a presigned URL for downloading a document from S3.
// The original file name is restored through the content disposition header.
func (client *S3Client) GenerateDownloadURL(ctx context.Context, key, fileName string, expiry time.Duration) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(client.bucket),
		Key:    aws.String(key),
	}
	if fileName != "" {
		input.ResponseContentDisposition = aws.String(`attachment; filename="` + fileName + `"`)
	}

	presignResult, err := client.presignClient.PresignGetObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", err
	}

	return presignResult.URL, nil
}

// DeleteObject deletes an object from S3
func (client *S3Client) DeleteObject(ctx context.Context, key string) error {
	_, err := client.svc.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(client.bucket),
		Key:    aws.String(key),
	})

	return err
}

// ObjectExists checks if an object exists in S3. A missing object is not an error.
func (client *S3Client) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := client.svc.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(client.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}
