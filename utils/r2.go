package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the slice of the S3 client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2Archiver writes JSON documents to a Cloudflare R2 bucket.
type R2Archiver struct {
	client  ObjectPutter
	bucket  string
	baseURL string
}

// R2Options carries the bucket coordinates and credentials.
type R2Options struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	PublicBaseURL   string
}

func NewR2Archiver(ctx context.Context, opts R2Options) (*R2Archiver, error) {
	if opts.Bucket == "" || opts.AccountID == "" {
		return nil, fmt.Errorf("R2 bucket and account id are required")
	}
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", opts.AccountID)

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID, opts.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	baseURL := opts.PublicBaseURL
	if baseURL == "" {
		baseURL = endpoint + "/" + opts.Bucket
	}
	return NewR2ArchiverWithClient(client, opts.Bucket, baseURL), nil
}

// NewR2ArchiverWithClient wires an existing client, e.g. a test double.
func NewR2ArchiverWithClient(client ObjectPutter, bucket, baseURL string) *R2Archiver {
	return &R2Archiver{client: client, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}
}

// PutJSON uploads v encoded as JSON under key and returns its public URL.
func (a *R2Archiver) PutJSON(ctx context.Context, key string, v interface{}) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", key, err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}
	return fmt.Sprintf("%s/%s", a.baseURL, key), nil
}
