// Package blobstore stages Parquet batch files in S3 and exposes the
// prefix listing the destination's bulk-ingest directive loads from.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store uploads and lists objects in a single S3 bucket/prefix pair
// used to stage one migration job's Parquet output.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// Config carries the connection details for a job's staging location.
type Config struct {
	Bucket          string
	KeyPrefix       string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// New constructs a Store, loading AWS credentials from the config's
// explicit key pair when present and falling back to the default
// credential chain (IAM role, shared profile, env vars) otherwise —
// the same fallback the teacher's storage client uses for its profile
// argument.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blobstore: loading AWS config: %w", err)
	}

	return &Store{
		client:    s3.NewFromConfig(awsCfg),
		bucket:    cfg.Bucket,
		keyPrefix: strings.Trim(cfg.KeyPrefix, "/"),
	}, nil
}

// BatchKey returns the object key a given job/table/batch writes to:
// {key_prefix}/{job_id}/{table}_{batch_index}.parquet
func (s *Store) BatchKey(jobID, table string, batchIndex int) string {
	name := fmt.Sprintf("%s_%d.parquet", table, batchIndex)
	if s.keyPrefix == "" {
		return fmt.Sprintf("%s/%s", jobID, name)
	}
	return fmt.Sprintf("%s/%s/%s", s.keyPrefix, jobID, name)
}

// JobPrefix returns the S3 prefix all of a job's batch files share,
// the path the destination's bulk-ingest directive loads from.
func (s *Store) JobPrefix(jobID string) string {
	if s.keyPrefix == "" {
		return jobID + "/"
	}
	return fmt.Sprintf("%s/%s/", s.keyPrefix, jobID)
}

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string { return s.bucket }

// UploadFile uploads a local Parquet file to the given key. A
// PutObject call in S3 is atomically visible — readers never observe a
// partially-written object — which is what lets the destination's bulk
// ingest start reading the moment the job prefix is fully uploaded.
func (s *Store) UploadFile(ctx context.Context, key, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("blobstore: read local file %s: %w", localPath, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("blobstore: put object %s: %w", key, err)
	}
	return nil
}

// DeleteObject removes a single uploaded object.
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("blobstore: delete object %s: %w", key, err)
	}
	return nil
}

// ListKeysUnderPrefix paginates through every object under prefix and
// returns their keys. DeletePrefix uses it to find the objects it
// removes.
func (s *Store) ListKeysUnderPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("blobstore: list objects under %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	return keys, nil
}

// DeletePrefix removes every object under prefix. The Coordinator's
// cleanup does not call it: a failed job's uploaded objects stay in the
// bucket whatever delete_on_failure is set to.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := s.ListKeysUnderPrefix(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.DeleteObject(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
