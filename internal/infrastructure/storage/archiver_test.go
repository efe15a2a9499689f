package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeObjectClient struct {
	mu        sync.Mutex
	objects   map[string][]byte
	metadata  map[string]map[string]string
	bucketErr error
	created   bool
}

func newFakeObjectClient() *fakeObjectClient {
	return &fakeObjectClient{objects: map[string][]byte{}, metadata: map[string]map[string]string{}}
}

func (f *fakeObjectClient) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.metadata[aws.ToString(in.Key)] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectClient) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjectClient) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.bucketErr != nil {
		return nil, f.bucketErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeObjectClient) CreateBucket(context.Context, *s3.CreateBucketInput, ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created = true
	return &s3.CreateBucketOutput{}, nil
}

func testRun() (*processing.JobRun, *appsub.BatchResult) {
	asOf := shared.Date(2024, 1, 31)
	run := processing.NewJobRun(processing.JobRecognition, asOf, appsub.TriggerManual, time.Date(2024, 1, 31, 2, 0, 0, 0, time.UTC))
	result := &appsub.BatchResult{JobType: processing.JobRecognition, AsOf: asOf, Total: 3, Processed: 2, Failed: 1}
	return run, result
}

func TestS3ReportArchiver_ArchiveAndFetch(t *testing.T) {
	client := newFakeObjectClient()
	archiver := NewS3ReportArchiverWithClient(client, "reports", "/ams/runs/", zap.NewNop())
	run, result := testRun()

	key, err := archiver.Archive(context.Background(), run, result)
	require.NoError(t, err)

	assert.Equal(t, "ams/runs/recognition/2024-01-31/"+run.ID.String()+".json", key)
	assert.Equal(t, "2024-01-31", client.metadata[key]["as-of"])

	report, err := archiver.Fetch(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, run.ID, report.Run.ID)
	assert.Equal(t, 2, report.Result.Processed)
	assert.Equal(t, 1, report.Result.Failed)

	_, err = archiver.Fetch(context.Background(), "missing.json")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestS3ReportArchiver_DefaultPrefix(t *testing.T) {
	archiver := NewS3ReportArchiverWithClient(newFakeObjectClient(), "reports", "", zap.NewNop())
	run, _ := testRun()
	assert.Equal(t, "job-runs/recognition/2024-01-31/"+run.ID.String()+".json", archiver.Key(run))
}

func TestS3ReportArchiver_EnsureBucket(t *testing.T) {
	client := newFakeObjectClient()
	archiver := NewS3ReportArchiverWithClient(client, "reports", "", zap.NewNop())

	require.NoError(t, archiver.EnsureBucket(context.Background()))
	assert.False(t, client.created)

	client.bucketErr = &types.NotFound{}
	require.NoError(t, archiver.EnsureBucket(context.Background()))
	assert.True(t, client.created)

	client.bucketErr = errors.New("access denied")
	assert.Error(t, archiver.EnsureBucket(context.Background()))
}

func TestNewS3ReportArchiver_Validation(t *testing.T) {
	_, err := NewS3ReportArchiver(context.Background(), nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewS3ReportArchiver(context.Background(), &config.StorageConfig{}, zap.NewNop())
	assert.ErrorContains(t, err, "bucket is required")

	archiver, err := NewS3ReportArchiver(context.Background(), &config.StorageConfig{
		Bucket:          "reports",
		Endpoint:        "localhost:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "job-runs", archiver.prefix)
}

func TestMemoryArchiver(t *testing.T) {
	archiver := NewMemoryArchiver()
	run, result := testRun()

	key, err := archiver.Archive(context.Background(), run, result)
	require.NoError(t, err)
	assert.Equal(t, 1, archiver.Len())

	report, err := archiver.Fetch(context.Background(), key)
	require.NoError(t, err)
	assert.Same(t, result, report.Result)

	_, err = archiver.Fetch(context.Background(), "nope")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
