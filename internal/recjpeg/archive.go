package recjpeg

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Archiver keeps an off-site copy of backup files.
type Archiver interface {
	// Archive uploads the file at backupPath unless an identical copy is
	// already stored.
	Archive(ctx context.Context, backupPath string) error
}

// S3Client is the subset of the S3 API used by the archiver.
type S3Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Archiver implements the Archiver interface
type s3Archiver struct {
	client S3Client
	bucket string
	prefix string
	log    *slog.Logger
}

// NewS3Archiver creates an Archiver using the default AWS configuration
// chain (environment, shared config, instance role).
func NewS3Archiver(ctx context.Context, bucket, prefix string, log *slog.Logger) (Archiver, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3ArchiverWithClient(s3.NewFromConfig(cfg), bucket, prefix, log), nil
}

// NewS3ArchiverWithClient creates an Archiver with a custom S3 client.
func NewS3ArchiverWithClient(client S3Client, bucket, prefix string, log *slog.Logger) Archiver {
	return &s3Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		log:    log,
	}
}

// Archive uploads backupPath keyed by its absolute path. An object with the
// same key and MD5 is left alone; a different one is an error, since backups
// are never expected to change.
func (a *s3Archiver) Archive(ctx context.Context, backupPath string) error {
	key, err := a.objectKey(backupPath)
	if err != nil {
		return err
	}

	localHash, err := calculateMD5(backupPath)
	if err != nil {
		return fmt.Errorf("failed to calculate MD5: %w", err)
	}

	head, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		remoteETag := extractETag(head.ETag)
		if remoteETag == localHash {
			a.log.Debug("Backup already archived", "path", backupPath, "key", key)
			return nil
		}
		return fmt.Errorf("hash mismatch for %q: object exists with different content (local: %s, remote: %s)", key, localHash, remoteETag)
	} else if !isNotFoundError(err) {
		return fmt.Errorf("failed to check object existence: %w", err)
	}

	file, err := os.Open(backupPath)
	if err != nil {
		return err
	}
	defer file.Close()

	a.log.Debug("Uploading backup", "path", backupPath, "bucket", a.bucket, "key", key)
	if _, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   file,
	}); err != nil {
		return fmt.Errorf("failed to upload %s: %w", backupPath, err)
	}
	return nil
}

func (a *s3Archiver) objectKey(backupPath string) (string, error) {
	abs, err := filepath.Abs(backupPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", backupPath, err)
	}
	rel := strings.TrimPrefix(filepath.ToSlash(abs), "/")
	if vol := filepath.VolumeName(abs); vol != "" {
		rel = strings.TrimPrefix(strings.TrimPrefix(rel, filepath.ToSlash(vol)), "/")
	}
	return path.Join(a.prefix, rel), nil
}

func calculateMD5(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// extractETag strips the quotes S3 puts around ETags.
func extractETag(etag *string) string {
	if etag == nil {
		return ""
	}
	return strings.Trim(*etag, `"`)
}

// isNotFoundError checks if the error is a NotFound error
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
