package evidence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const minioSetupTimeout = 10 * time.Second

// FileStore stages accepted evidence PDFs in object storage. Objects are
// keyed by the owning record's uuid so the original filename never has to
// be unique.
type FileStore struct {
	client *minio.Client
	bucket string
}

func NewFileStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*FileStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), minioSetupTimeout)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	return &FileStore{client: client, bucket: bucket}, nil
}

// Stage stores one evidence document under the record's uuid and returns
// the generated file id. Staged objects are never deleted by the ingest
// path, even when a later row aborts the batch.
func (s *FileStore) Stage(ctx context.Context, antibodyUUID, filename string, data []byte) (string, error) {
	fileID := uuid.NewString()
	key := objectKey(antibodyUUID, fileID, filename)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return "", fmt.Errorf("stage evidence %s: %w", filename, err)
	}
	return fileID, nil
}

// Fetch retrieves a staged evidence document, for offline auditing.
func (s *FileStore) Fetch(ctx context.Context, antibodyUUID, fileID, filename string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(antibodyUUID, fileID, filename), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch evidence %s: %w", filename, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read evidence %s: %w", filename, err)
	}
	return data, nil
}

func objectKey(antibodyUUID, fileID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", antibodyUUID, fileID, filename)
}
