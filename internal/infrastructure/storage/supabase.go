package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"coursecert-backend/internal/application/certificates"
)

// SupabaseStore uploads to Supabase Storage over its REST API and returns public URLs.
type SupabaseStore struct {
	BaseURL   string
	SecretKey string // service_role key
	Bucket    string
	Client    *http.Client
}

func (s *SupabaseStore) Upload(ctx context.Context, key string, kind certificates.ResourceKind, localPath string) (string, error) {
	if s.BaseURL == "" {
		return "", fmt.Errorf("supabase: SUPABASE_URL is not set")
	}
	if s.SecretKey == "" {
		return "", fmt.Errorf("supabase: SUPABASE_SECRET_KEY is not set")
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("supabase: open %s: %w", localPath, err)
	}
	defer f.Close()

	base := strings.TrimRight(s.BaseURL, "/")
	path := strings.TrimLeft(key, "/")
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", base, s.Bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, f)
	if err != nil {
		return "", err
	}
	// Match @supabase/supabase-js: both apikey and Authorization Bearer (same key)
	req.Header.Set("apikey", s.SecretKey)
	req.Header.Set("Authorization", "Bearer "+s.SecretKey)
	req.Header.Set("Content-Type", contentTypeFor(key, kind))
	// Deterministic keys: re-renders overwrite the previous object.
	req.Header.Set("x-upsert", "true")
	req.Header.Set("Cache-Control", "max-age=300")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("supabase request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		bodyStr := string(body)
		if resp.StatusCode == 400 || resp.StatusCode == 403 {
			if strings.Contains(bodyStr, "Invalid Compact JWS") || strings.Contains(bodyStr, "Unauthorized") {
				return "", fmt.Errorf("supabase storage requires the service_role key (secret), not the anon key (raw body: %s)", bodyStr)
			}
		}
		return "", fmt.Errorf("supabase error: status %d body: %s", resp.StatusCode, bodyStr)
	}
	return s.PublicURL(key), nil
}

// PublicURL is the public object URL for key in the configured bucket.
func (s *SupabaseStore) PublicURL(key string) string {
	base := strings.TrimRight(s.BaseURL, "/")
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", base, s.Bucket, strings.TrimLeft(key, "/"))
}
