// Package blobstore provides optional S3 access for asset blobs addressed
// by an s3://bucket/key URL, supplementing the plain HTTP blob download
// path in internal/apiclient.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds the configuration needed to reach an S3 bucket.
type Config struct {
	Region          string
	AccessKeyID     string // Optional: static credentials
	SecretAccessKey string // Optional: static credentials
}

// Client downloads objects from S3 by bucket/key.
type Client struct {
	s3 *s3.Client
}

// NewClient builds an S3 client using static credentials when provided,
// falling back to the default credential chain otherwise.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("blobstore: load AWS config: %w", err)
	}

	return &Client{s3: s3.NewFromConfig(awsCfg)}, nil
}

// ParseURL splits an "s3://bucket/key" URL into its bucket and key parts.
// Returns false if url does not use the s3 scheme.
func ParseURL(url string) (bucket, key string, ok bool) {
	const prefix = "s3://"
	if !strings.HasPrefix(url, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(url, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Download fetches the full contents of bucket/key.
func (c *Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: get object %s/%s: %w", bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read object %s/%s: %w", bucket, key, err)
	}
	return data, nil
}
