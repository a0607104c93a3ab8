package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DATABASE_URL_TEST", "postgres://localhost/coursecert_test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "postgres://localhost/coursecert_test", cfg.DatabaseURL)
	assert.Equal(t, "8888", cfg.Port)
	assert.Equal(t, 5, cfg.Certificates.NonVideoLessonMinutes)
	assert.Equal(t, 90*time.Second, cfg.Certificates.IssueTimeout)
	assert.Equal(t, 30*time.Second, cfg.Certificates.NotifyTimeout)
	assert.Equal(t, "certificates", cfg.Certificates.StorageFolder)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, "/static/certificates", cfg.Storage.LocalURLPrefix)
	assert.Equal(t, 2, cfg.Renderer.MaxInstances)
	assert.True(t, cfg.Worker.Enabled)
	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CERT_VERIFY_BASE_URL", "https://verify.example.com/")
	t.Setenv("CERT_STORAGE_FOLDER", "/certs/")
	t.Setenv("CERT_NON_VIDEO_LESSON_MINUTES", "8")
	t.Setenv("STORAGE_DRIVER", "GCS")
	t.Setenv("RENDERER_SETTLE_DELAY", "1s")
	t.Setenv("REGEN_WORKER_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://verify.example.com", cfg.Certificates.VerifyBaseURL)
	assert.Equal(t, "certs", cfg.Certificates.StorageFolder)
	assert.Equal(t, 8, cfg.Certificates.NonVideoLessonMinutes)
	assert.Equal(t, "gcs", cfg.Storage.Driver)
	assert.Equal(t, time.Second, cfg.Renderer.SettleDelay)
	assert.False(t, cfg.Worker.Enabled)
}
