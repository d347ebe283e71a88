package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/rs/zerolog/log"
)

// Storage keeps captured artifacts and returns where they ended up.
type Storage interface {
	SaveFile(ctx context.Context, src io.Reader, filename string) (string, error)
}

type LocalStorage struct {
	dir string
	now func() time.Time
}

type SpacesStorage struct {
	uploader *s3manager.Uploader
	bucket   string
	cdnURL   string
	prefix   string
	now      func() time.Time
}

func NewLocalStorage(dir string) *LocalStorage {
	return &LocalStorage{dir: dir, now: time.Now}
}

// SpacesConfig describes a DigitalOcean Spaces (S3 compatible) bucket.
type SpacesConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	CDNURL    string
	AccessKey string
	SecretKey string
	Prefix    string
}

func NewSpacesStorage(cfg SpacesConfig) (*SpacesStorage, error) {
	awsCfg := &aws.Config{
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		Endpoint:         aws.String(cfg.Endpoint),
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(false),
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "screenshots"
	}
	return &SpacesStorage{
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.Bucket,
		cdnURL:   cfg.CDNURL,
		prefix:   prefix,
		now:      time.Now,
	}, nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// normalizeFilename strips unsafe characters and stamps the name so
// repeated captures never overwrite each other.
func normalizeFilename(original string, at time.Time) string {
	ext := strings.ToLower(filepath.Ext(original))
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	base = strings.ReplaceAll(base, " ", "_")
	base = unsafeChars.ReplaceAllString(base, "")
	if base == "" {
		base = "file"
	}
	return fmt.Sprintf("%s_%s%s", base, at.Format("20060102_150405"), ext)
}

func (ls *LocalStorage) SaveFile(ctx context.Context, src io.Reader, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := normalizeFilename(filename, ls.now())
	if err := os.MkdirAll(ls.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	target := filepath.Join(ls.dir, name)
	dst, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	log.Debug().Str("original", filename).Str("path", target).Msg("stored file locally")
	return target, nil
}

func (ss *SpacesStorage) SaveFile(ctx context.Context, src io.Reader, filename string) (string, error) {
	name := normalizeFilename(filename, ss.now())
	key := ss.prefix + "/" + name

	_, err := ss.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(ss.bucket),
		Key:         aws.String(key),
		Body:        src,
		ContentType: aws.String(contentType(name)),
		ACL:         aws.String("public-read"),
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to upload file to Spaces")
		return "", fmt.Errorf("failed to upload to Spaces: %w", err)
	}

	return fmt.Sprintf("%s/%s", strings.TrimSuffix(ss.cdnURL, "/"), key), nil
}

func contentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
