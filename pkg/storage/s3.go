package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cyclopcam/logs"
)

// S3Config selects an S3 (or MinIO) bucket.
// If AccessKeyID is empty, the default AWS credential chain is used.
type S3Config struct {
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	PathStyle       bool   `json:"pathStyle"`
	AccessKeyID     string `json:"accessKeyID"`
	SecretAccessKey string `json:"secretAccessKey"`
}

// StorageS3 is an S3-based blob store
type StorageS3 struct {
	client *s3.Client
	cfg    S3Config
	log    logs.Log
	ctx    context.Context
}

func NewStorageS3(ctx context.Context, log logs.Log, cfg S3Config) (*StorageS3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("Failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &StorageS3{
		client: client,
		cfg:    cfg,
		log:    log,
		ctx:    ctx,
	}, nil
}

// s3Writer buffers the object in memory, and uploads it on Close
type s3Writer struct {
	s   *StorageS3
	key string
	buf bytes.Buffer
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	_, err := w.s.client.PutObject(w.s.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.s.cfg.Bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("Failed to upload %v: %w", w.key, err)
	}
	return nil
}

func (s *StorageS3) WriteFile(name string) (io.WriteCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	key := joinKey(s.cfg.Prefix, name)
	s.log.Debugf("Writing s3://%v/%v", s.cfg.Bucket, key)
	return &s3Writer{s: s, key: key}, nil
}

func (s *StorageS3) ReadFile(name string) (*File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(s.ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(joinKey(s.cfg.Prefix, name)),
	})
	if err != nil {
		return nil, err
	}
	f := &File{
		Reader:     out.Body,
		Size:       aws.ToInt64(out.ContentLength),
		ModifiedAt: aws.ToTime(out.LastModified),
	}
	if f.ModifiedAt.IsZero() {
		f.ModifiedAt = time.Now()
	}
	return f, nil
}

func (s *StorageS3) DeleteFile(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(s.ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(joinKey(s.cfg.Prefix, name)),
	})
	return err
}

func (s *StorageS3) Describe(name string) string {
	return "s3://" + s.cfg.Bucket + "/" + joinKey(s.cfg.Prefix, name)
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name
}
