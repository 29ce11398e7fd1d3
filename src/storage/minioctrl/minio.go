package minioctrl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"smartassist/src/core/rag"
)

const DocumentsBucket = "documents"

// BlobService stores uploaded document files in MinIO. Blob URLs are
// "bucket/objectName", the same form the document records carry.
type BlobService struct {
	client *minio.Client
}

var _ rag.BlobStore = (*BlobService)(nil)

func NewBlobService(endpoint, accessKeyID, secretAccessKey string, useSSL bool) (*BlobService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %v", err)
	}

	return &BlobService{
		client: client,
	}, nil
}

func (s *BlobService) EnsureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := s.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %v", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %v", err)
		}
	}

	return nil
}

// Put stores data and returns the blob URL referencing it.
func (s *BlobService) Put(ctx context.Context, bucketName, objectName, contentType string, data []byte) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, bucketName, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object: %v", err)
	}

	return fmt.Sprintf("%s/%s", bucketName, objectName), nil
}

// Get fetches the bytes a blob URL points at.
func (s *BlobService) Get(ctx context.Context, blobURL string) ([]byte, error) {
	bucketName, objectName, err := splitBlobURL(blobURL)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %v", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object data: %v", err)
	}

	return data, nil
}

func (s *BlobService) Delete(ctx context.Context, blobURL string) error {
	bucketName, objectName, err := splitBlobURL(blobURL)
	if err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, bucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %v", err)
	}

	return nil
}

// Healthy reports whether the MinIO endpoint is reachable.
func (s *BlobService) Healthy(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, DocumentsBucket); err != nil {
		return fmt.Errorf("failed to reach minio: %v", err)
	}
	return nil
}

func splitBlobURL(blobURL string) (bucket, object string, err error) {
	parts := strings.SplitN(blobURL, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid blob URL %q, expected bucket/object", blobURL)
	}
	return parts[0], parts[1], nil
}
