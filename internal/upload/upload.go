// Package upload stores user media and returns its public URL.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"threads/internal/config"
	"threads/internal/middleware"
	"threads/internal/models"
	"threads/internal/observability"

	"github.com/google/uuid"
)

// PolicyMedia is the only upload policy: profile and post images.
const PolicyMedia = "media"

// File is one file handed to the uploader.
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

// Result describes a stored file.
type Result struct {
	URL  string `json:"url"`
	Key  string `json:"key"`
	Size int    `json:"size"`
}

// Uploader turns files into public URLs.
type Uploader interface {
	Upload(ctx context.Context, policy string, files []File) ([]Result, error)
}

// Store persists one object and returns the URL it is served from.
type Store interface {
	Name() string
	Put(ctx context.Context, key string, content []byte, contentType string) (string, error)
}

// Service normalizes images and writes them to a Store.
type Service struct {
	store    Store
	maxBytes int
	timeout  time.Duration
}

// NewService returns an Uploader backed by store. Files larger than
// maxBytes are rejected; every call is bounded by timeout.
func NewService(store Store, maxBytes int, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{store: store, maxBytes: maxBytes, timeout: timeout}
}

// Upload stores files under policy. It fails as a whole on the first file
// that cannot be stored.
func (s *Service) Upload(ctx context.Context, policy string, files []File) (results []Result, err error) {
	if policy != PolicyMedia {
		return nil, models.NewValidationError(fmt.Sprintf("unknown upload policy %q", policy))
	}
	if len(files) == 0 {
		return nil, models.NewValidationError("no files to upload")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := observability.GetTraceLayer().TraceUpload(ctx, s.store.Name(), policy, len(files))
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "failed"
		}
		observability.Uploads.WithLabelValues(s.store.Name(), outcome).Inc()
		observability.EndSpan(span, err)
	}()

	results = make([]Result, 0, len(files))
	for _, f := range files {
		if s.maxBytes > 0 && len(f.Content) > s.maxBytes {
			return nil, models.NewValidationError(fmt.Sprintf("%s exceeds the %d MB upload limit", displayName(f), s.maxBytes>>20))
		}

		encoded, err := Normalize(f.Content, AvatarMaxSide)
		if errors.Is(err, ErrTooManyPixels) {
			return nil, models.NewValidationError(fmt.Sprintf("%s exceeds the %d megapixel limit", displayName(f), MaxPixels/1_000_000))
		}
		if err != nil {
			return nil, models.NewValidationError(fmt.Sprintf("%s is not a supported image", displayName(f)))
		}

		key := policy + "/" + uuid.NewString() + ".webp"
		url, err := s.store.Put(ctx, key, encoded, "image/webp")
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, models.NewTimeoutError("upload", err)
			}
			middleware.Logger.ErrorContext(ctx, "Upload failed",
				slog.String("backend", s.store.Name()), slog.String("error", err.Error()))
			return nil, models.NewUploadError("upload failed", err)
		}
		if url == "" {
			return nil, models.NewUploadError("upload returned no URL", nil)
		}

		observability.UploadBytes.Observe(float64(len(encoded)))
		results = append(results, Result{URL: url, Key: key, Size: len(encoded)})
	}
	return results, nil
}

func displayName(f File) string {
	if f.Name == "" {
		return "file"
	}
	return f.Name
}

// NewFromConfig builds the uploader selected by UPLOAD_BACKEND.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Service, Store, error) {
	var store Store
	switch cfg.UploadBackend {
	case "s3":
		s3Store, err := NewS3Store(ctx, S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			AccessKeySecret: cfg.S3SecretAccessKey,
			PublicURL:       cfg.UploadPublicURL,
		})
		if err != nil {
			return nil, nil, models.NewConfigurationError(err.Error())
		}
		store = s3Store
	case "disk", "":
		store = NewDiskStore(cfg.UploadDir, cfg.UploadPublicURL)
	default:
		return nil, nil, models.NewConfigurationError(fmt.Sprintf("unknown UPLOAD_BACKEND %q", cfg.UploadBackend))
	}
	return NewService(store, cfg.UploadMaxMB<<20, cfg.UploadTimeout), store, nil
}
