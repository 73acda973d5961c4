// Package storage re-hosts inbound photos on S3-compatible storage so
// vision providers receive a stable public URL instead of a short-lived
// Telegram file link.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

type Options struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
	UsePathStyle  bool
	Prefix        string
}

type Uploader struct {
	opts   Options
	client *s3.Client
}

func NewUploader(opts Options) (*Uploader, error) {
	switch {
	case opts.Bucket == "":
		return nil, fmt.Errorf("s3 bucket is required")
	case opts.Region == "":
		return nil, fmt.Errorf("s3 region is required")
	case opts.AccessKey == "" || opts.SecretKey == "":
		return nil, fmt.Errorf("s3 credentials are required")
	case opts.PublicBaseURL == "":
		return nil, fmt.Errorf("s3 public base url is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = "photos"
	}

	clientOpts := s3.Options{
		Region:       opts.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		UsePathStyle: opts.UsePathStyle,
	}
	if opts.Endpoint != "" {
		clientOpts.BaseEndpoint = aws.String(opts.Endpoint)
	}

	return &Uploader{opts: opts, client: s3.New(clientOpts)}, nil
}

// Upload stores data under a date-partitioned random key and returns the
// public URL.
func (u *Uploader) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no data to upload")
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}

	now := time.Now().UTC()
	key := path.Join(
		strings.Trim(u.opts.Prefix, "/"),
		now.Format("2006/01/02"),
		uuid.NewString()+extension(contentType),
	)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	return strings.TrimRight(u.opts.PublicBaseURL, "/") + "/" + key, nil
}

func extension(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
