// Package storage archives batch run reports to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/infrastructure/config"
	"github.com/ams/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ObjectClient is the subset of the S3 API the archiver uses
type ObjectClient interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Report is the archived document of one batch run
type Report struct {
	Run    *processing.JobRun  `json:"run"`
	Result *appsub.BatchResult `json:"result"`
}

// S3ReportArchiver writes run reports as JSON objects keyed
// {prefix}/{job_type}/{as_of}/{run_id}.json
type S3ReportArchiver struct {
	client ObjectClient
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3ReportArchiver builds an archiver from configuration. It works with
// any S3-compatible endpoint (AWS, MinIO, RustFS).
func NewS3ReportArchiver(ctx context.Context, cfg *config.StorageConfig, logger *zap.Logger) (*S3ReportArchiver, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
				endpoint = "https://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewS3ReportArchiverWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewS3ReportArchiverWithClient wraps an existing client
func NewS3ReportArchiverWithClient(client ObjectClient, bucket, prefix string, logger *zap.Logger) *S3ReportArchiver {
	if prefix == "" {
		prefix = "job-runs"
	}
	return &S3ReportArchiver{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), logger: logger}
}

// EnsureBucket creates the bucket when it does not exist
func (a *S3ReportArchiver) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	a.logger.Info("Creating report bucket", zap.String("bucket", a.bucket))
	if _, err := a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Key returns the object key of a run's report
func (a *S3ReportArchiver) Key(run *processing.JobRun) string {
	return ReportKey(a.prefix, run)
}

// Archive implements appsub.ReportArchiver
func (a *S3ReportArchiver) Archive(ctx context.Context, run *processing.JobRun, result *appsub.BatchResult) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "storage.archive_report",
		telemetry.AttrRunID, run.ID.String(),
		telemetry.AttrJobType, run.JobType.String(),
	)
	defer span.End()

	body, err := json.Marshal(Report{Run: run, Result: result})
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	key := a.Key(run)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"job-type": run.JobType.String(),
			"as-of":    shared.FormatDate(run.AsOf),
		},
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return "", fmt.Errorf("failed to upload report: %w", err)
	}

	a.logger.Debug("Run report archived",
		zap.String("run_id", run.ID.String()),
		zap.String("key", key),
		zap.Int("bytes", len(body)),
	)
	return key, nil
}

// Fetch reads an archived report back
func (a *S3ReportArchiver) Fetch(ctx context.Context, key string) (*Report, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to download report: %w", err)
	}
	defer out.Body.Close()

	var report Report
	if err := json.NewDecoder(out.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

// ReportKey builds the object key for a run under prefix
func ReportKey(prefix string, run *processing.JobRun) string {
	return path.Join(prefix, run.JobType.String(), shared.FormatDate(run.AsOf), run.ID.String()+".json")
}

var _ appsub.ReportArchiver = (*S3ReportArchiver)(nil)
