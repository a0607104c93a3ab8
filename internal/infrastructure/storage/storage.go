package storage

import (
	"context"
	"fmt"
	"strings"

	"coursecert-backend/internal/application/certificates"
	"coursecert-backend/internal/config"
)

// New builds the object store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (certificates.ObjectStore, error) {
	switch cfg.Driver {
	case "", "local":
		return &LocalStore{Dir: cfg.LocalDir, URLPrefix: cfg.LocalURLPrefix}, nil
	case "supabase":
		return &SupabaseStore{
			BaseURL:   cfg.SupabaseURL,
			SecretKey: cfg.SupabaseSecretKey,
			Bucket:    cfg.SupabaseBucket,
		}, nil
	case "gcs":
		return NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCDNDomain, cfg.GCSCredentialsFile)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

// contentTypeFor picks the upload content type from the kind and key extension.
func contentTypeFor(key string, kind certificates.ResourceKind) string {
	s := strings.ToLower(key)
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	}
	if kind == certificates.ResourceImage {
		return "image/png"
	}
	return "application/octet-stream"
}
