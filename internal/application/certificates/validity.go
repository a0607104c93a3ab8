package certificates

import (
	"net/url"
	"os"

	"coursecert-backend/internal/domain"
)

// LocalExistsFunc reports whether a non-remote asset URL still has its file on disk.
type LocalExistsFunc func(assetURL string) bool

// IsRemoteURL treats absolute http(s) URLs as durably stored.
func IsRemoteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// FileExists treats the URL as a filesystem path.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// AssetsUsable is true only when both URLs are present and either both are remote
// or both local files still exist. Everything else is stale and must be regenerated.
func AssetsUsable(pdfURL, imageURL *string, exists LocalExistsFunc) bool {
	if pdfURL == nil || imageURL == nil || *pdfURL == "" || *imageURL == "" {
		return false
	}
	if IsRemoteURL(*pdfURL) && IsRemoteURL(*imageURL) {
		return true
	}
	if exists == nil {
		exists = FileExists
	}
	return exists(*pdfURL) && exists(*imageURL)
}

// CertificateAssetsUsable applies AssetsUsable to a stored certificate.
func CertificateAssetsUsable(c *domain.Certificate, exists LocalExistsFunc) bool {
	return AssetsUsable(c.PdfURL, c.ImageURL, exists)
}
