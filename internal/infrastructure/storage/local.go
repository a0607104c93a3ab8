package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"coursecert-backend/internal/application/certificates"
)

// LocalStore keeps artifacts on local disk, served by the HTTP layer under URLPrefix.
// Its URLs are not remote, so their validity depends on the file still existing.
type LocalStore struct {
	Dir       string
	URLPrefix string
}

func (s *LocalStore) Upload(ctx context.Context, key string, kind certificates.ResourceKind, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := filepath.Join(s.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("local storage: %w", err)
	}
	if err := copyFile(localPath, dst); err != nil {
		return "", fmt.Errorf("local storage: %w", err)
	}
	return s.URLPrefix + "/" + strings.TrimLeft(key, "/"), nil
}

// Exists maps an asset URL produced by this store back to its file.
// Other non-remote URLs are treated as plain filesystem paths.
func (s *LocalStore) Exists(assetURL string) bool {
	if s.URLPrefix != "" && strings.HasPrefix(assetURL, s.URLPrefix+"/") {
		rel := strings.TrimPrefix(assetURL, s.URLPrefix+"/")
		return certificates.FileExists(filepath.Join(s.Dir, filepath.FromSlash(rel)))
	}
	return certificates.FileExists(assetURL)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
