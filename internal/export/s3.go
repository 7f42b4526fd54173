package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Destination writes snapshots to an S3-compatible bucket.
type S3Destination struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Destination creates an S3 destination. If endpoint is non-empty,
// path-style addressing is enabled (for MinIO and similar).
func NewS3Destination(ctx context.Context, bucket, key, region, endpoint string) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &S3Destination{
		client: s3.NewFromConfig(cfg, s3Options(endpoint)...),
		bucket: bucket,
		key:    key,
	}, nil
}

func s3Options(endpoint string) []func(*s3.Options) {
	if endpoint == "" {
		return nil
	}
	return []func(*s3.Options){func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}}
}

// Name identifies the destination in logs.
func (d *S3Destination) Name() string {
	return "s3://" + d.bucket + "/" + d.key
}

// Write uploads data as the configured object key.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(d.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}
