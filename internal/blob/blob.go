// Package blob mirrors archive snapshots and invoices to object storage.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	ContentTypeCSV = "text/csv"
	ContentTypePDF = "application/pdf"
)

// Store uploads immutable objects.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Nop discards every object. Used when no bucket is configured.
type Nop struct{}

func (Nop) Put(context.Context, string, []byte, string) error { return nil }

// Config describes an S3 compatible bucket.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
	AccessKey string
	SecretKey string
	// UsePathStyle is required by most self-hosted S3 implementations.
	UsePathStyle bool
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes objects under an optional key prefix.
type S3Store struct {
	client putObjectAPI
	bucket string
	prefix string
}

var _ Store = (*S3Store)(nil)

// NewS3 builds a client from cfg. Without static keys the default AWS
// credential chain applies.
func NewS3(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("blob bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3Store(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Store(client putObjectAPI, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	full := key
	if s.prefix != "" {
		full = s.prefix + "/" + key
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(full),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", full, err)
	}
	return nil
}

// ArchiveKey is where a table snapshot is mirrored.
func ArchiveKey(table, id string) string {
	return path.Join("archives", table, id+".csv")
}

// InvoiceKey is where a rendered invoice is mirrored.
func InvoiceKey(filename string) string {
	return path.Join("invoices", filename)
}
