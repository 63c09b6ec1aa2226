// Package storage snapshots a shard's on-disk data directory to durable
// storage once DatabasePool.SwitchDB has handed a shard's readers over
// to a freshly built replacement (spec.md §4.6.2, §6.4's "uploaded").
// Grounded on the teacher's indexer/storage.go: the same
// IndexSegmentStorage interface shape, the same S3Storage built on
// aws-sdk-go's s3manager, and the same LocalFileStorage fallback for
// local development. Unlike the teacher, UploadSegment is keyed by the
// shard's endpoint set rather than the snapshot directory's base name:
// spec.md §4.6 lets several endpoint aliases route to the same shard,
// so the uploaded prefix names every alias instead of one filesystem
// path that happens to be in scope at snapshot time.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/puer99miss/Xapiand/internal/xlog"
)

const (
	maxUploadRetries = 3
	initialBackoff   = 1 * time.Second
	maxBackoff       = 8 * time.Second
)

var log = xlog.New("storage")

// SegmentStorage snapshots a shard directory to durable storage after a
// switch_db handover. In a real cluster this ships the segment to S3,
// GCS or a peer node. endpoints is the full alias set SwitchDB was
// called with (spec.md §4.6.2); implementations use it to derive the
// uploaded key instead of segmentPath's own base name.
type SegmentStorage interface {
	UploadSegment(segmentPath string, endpoints []string) error
}

// segmentPrefix derives the upload key prefix shared by S3Storage and
// LocalFileStorage: every endpoint alias, sanitised and joined, falling
// back to segmentPath's base name if no endpoint was given (e.g. the
// development switch CLI's single-endpoint case already folds the
// endpoint into the directory name).
func segmentPrefix(segmentPath string, endpoints []string) string {
	if len(endpoints) == 0 {
		return filepath.Base(segmentPath)
	}
	cleaned := make([]string, len(endpoints))
	for i, ep := range endpoints {
		cleaned[i] = strings.NewReplacer("/", "_", ":", "_", " ", "_").Replace(ep)
	}
	return strings.Join(cleaned, "+")
}

// S3Storage implements SegmentStorage against AWS S3.
type S3Storage struct {
	uploader *s3manager.Uploader
	bucket   string
}

// NewS3Storage builds an S3Storage for bucketName. Credentials and
// region come from the environment or an IAM role, not from
// Configuration, matching the teacher's NewS3Storage.
func NewS3Storage(bucketName string) (*S3Storage, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(os.Getenv("AWS_REGION")),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: creating AWS session: %w", err)
	}
	log.Infof("initialized S3Storage for bucket %s", bucketName)
	return &S3Storage{uploader: s3manager.NewUploader(sess), bucket: bucketName}, nil
}

// UploadSegment walks segmentPath (a shard data directory) and uploads
// every file under a prefix naming endpoints and a timestamp, retrying
// each file independently with exponential backoff.
func (s *S3Storage) UploadSegment(segmentPath string, endpoints []string) error {
	info, err := os.Stat(segmentPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("storage: segment path %s does not exist", segmentPath)
		}
		return fmt.Errorf("storage: stat %s: %w", segmentPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage: segment path %s is not a directory", segmentPath)
	}

	prefix := fmt.Sprintf("%s_%s/", segmentPrefix(segmentPath, endpoints), time.Now().UTC().Format("20060102T150405Z"))

	log.Infof("uploading shard segment %s to s3://%s/%s", segmentPath, s.bucket, prefix)

	err = filepath.WalkDir(segmentPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(segmentPath, path)
		if err != nil {
			return fmt.Errorf("storage: relative path for %s: %w", path, err)
		}
		key := filepath.ToSlash(filepath.Join(prefix, relPath))

		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("storage: open %s: %w", path, err)
		}
		defer file.Close()

		var uploadErr error
		for attempt := 0; attempt < maxUploadRetries; attempt++ {
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("storage: seek %s for retry: %w", path, err)
			}
			_, uploadErr = s.uploader.Upload(&s3manager.UploadInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
				Body:   file,
			})
			if uploadErr == nil {
				break
			}
			log.Warnf("attempt %d/%d uploading %s failed: %v", attempt+1, maxUploadRetries, path, uploadErr)
			if attempt < maxUploadRetries-1 {
				backoff := time.Duration(1<<attempt) * initialBackoff
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				time.Sleep(backoff)
			}
		}
		if uploadErr != nil {
			return fmt.Errorf("storage: upload %s after %d attempts: %w", path, maxUploadRetries, uploadErr)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: segment upload failed: %w", err)
	}
	log.Infof("uploaded shard segment %s to s3://%s/%s", segmentPath, s.bucket, prefix)
	return nil
}

// LocalFileStorage implements SegmentStorage by copying into a local
// directory, the development-time stand-in for S3Storage.
type LocalFileStorage struct {
	storageDir string
}

// NewLocalFileStorage creates dir (if missing) and returns a
// LocalFileStorage rooted there.
func NewLocalFileStorage(dir string) (*LocalFileStorage, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("storage: stat %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("storage: creating %s: %w", dir, err)
		}
		return &LocalFileStorage{storageDir: dir}, nil
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: %s exists but is not a directory", dir)
	}
	return &LocalFileStorage{storageDir: dir}, nil
}

// UploadSegment copies segmentPath into a subdirectory of storageDir
// named after endpoints plus a timestamp, so repeated snapshots of the
// same shard don't clobber each other.
func (s *LocalFileStorage) UploadSegment(segmentPath string, endpoints []string) error {
	info, err := os.Stat(segmentPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("storage: segment path %s does not exist", segmentPath)
		}
		return fmt.Errorf("storage: stat %s: %w", segmentPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage: segment path %s is not a directory", segmentPath)
	}

	destDir := filepath.Join(s.storageDir, fmt.Sprintf("%s_%s", segmentPrefix(segmentPath, endpoints), time.Now().UTC().Format("20060102T150405.000000000Z")))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("storage: creating %s: %w", destDir, err)
	}

	log.Infof("copying shard segment %s to %s", segmentPath, destDir)

	err = filepath.WalkDir(segmentPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == segmentPath {
			return nil
		}
		relPath, err := filepath.Rel(segmentPath, path)
		if err != nil {
			return fmt.Errorf("storage: relative path for %s: %w", path, err)
		}
		destPath := filepath.Join(destDir, relPath)
		if d.IsDir() {
			return os.MkdirAll(destPath, 0755)
		}
		return copyFile(path, destPath)
	})
	if err != nil {
		return fmt.Errorf("storage: local segment copy failed: %w", err)
	}
	log.Infof("copied shard segment %s to %s", segmentPath, destDir)
	return nil
}

func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("storage: open %s: %w", src, err)
	}
	defer sourceFile.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("storage: creating %s: %w", filepath.Dir(dst), err)
	}
	destFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("storage: create %s: %w", dst, err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return fmt.Errorf("storage: copy %s to %s: %w", src, dst, err)
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("storage: stat %s for permissions: %w", src, err)
	}
	return os.Chmod(dst, srcInfo.Mode())
}
