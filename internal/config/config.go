package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	SessionSecret       string // marketplace express-session secret; empty skips signature checks
	DatabaseURL         string
	RedisURL            string
	FrontendURLEndsWith string
	DevPassword         string
	HealthAdminKey      string
	InternalAPIKeyHash  string // bcrypt hash of the key the marketplace sends on completion events
	AppBaseURL          string

	Certificates CertificateConfig
	Renderer     RendererConfig
	Storage      StorageConfig
	Mail         MailConfig
	Worker       WorkerConfig
}

// CertificateConfig drives issuance, templating and the asset pipeline.
type CertificateConfig struct {
	VerifyBaseURL         string
	PlatformName          string // fallback partner name when a course has no instructor/org
	LogoPath              string
	ScratchDir            string
	StorageFolder         string
	NonVideoLessonMinutes int
	IssueTimeout          time.Duration
	NotifyTimeout         time.Duration
	UploadTimeout         time.Duration
}

// RendererConfig bounds the headless Chrome engine.
type RendererConfig struct {
	ChromePath    string
	MaxInstances  int
	LaunchTimeout time.Duration
	LoadTimeout   time.Duration
	SettleDelay   time.Duration
}

// StorageConfig selects and configures the object storage driver.
type StorageConfig struct {
	Driver             string // local | supabase | gcs
	LocalDir           string
	LocalURLPrefix     string
	SupabaseURL        string
	SupabaseSecretKey  string // must be service_role key, not anon key
	SupabaseBucket     string
	GCSBucket          string
	GCSCDNDomain       string
	GCSCredentialsFile string
}

// MailConfig is used by the Brevo e-mail notifier. Empty APIKey disables e-mail.
type MailConfig struct {
	SendinblueAPIKey string
	MailFrom         string
}

// WorkerConfig controls the background regeneration worker.
type WorkerConfig struct {
	Enabled     bool
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL_DEV")
	}

	return &Config{
		Env:                 env,
		Port:                viper.GetString("PORT"),
		SessionSecret:       viper.GetString("SESSION_SECRET"),
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		InternalAPIKeyHash:  viper.GetString("INTERNAL_API_KEY_HASH"),
		AppBaseURL:          strings.TrimRight(viper.GetString("APP_BASE_URL"), "/"),
		Certificates: CertificateConfig{
			VerifyBaseURL:         strings.TrimRight(viper.GetString("CERT_VERIFY_BASE_URL"), "/"),
			PlatformName:          viper.GetString("CERT_PLATFORM_NAME"),
			LogoPath:              viper.GetString("CERT_LOGO_PATH"),
			ScratchDir:            viper.GetString("CERT_SCRATCH_DIR"),
			StorageFolder:         strings.Trim(viper.GetString("CERT_STORAGE_FOLDER"), "/"),
			NonVideoLessonMinutes: viper.GetInt("CERT_NON_VIDEO_LESSON_MINUTES"),
			IssueTimeout:          viper.GetDuration("CERT_ISSUE_TIMEOUT"),
			NotifyTimeout:         viper.GetDuration("CERT_NOTIFY_TIMEOUT"),
			UploadTimeout:         viper.GetDuration("CERT_UPLOAD_TIMEOUT"),
		},
		Renderer: RendererConfig{
			ChromePath:    viper.GetString("RENDERER_CHROME_PATH"),
			MaxInstances:  viper.GetInt("RENDERER_MAX_INSTANCES"),
			LaunchTimeout: viper.GetDuration("RENDERER_LAUNCH_TIMEOUT"),
			LoadTimeout:   viper.GetDuration("RENDERER_LOAD_TIMEOUT"),
			SettleDelay:   viper.GetDuration("RENDERER_SETTLE_DELAY"),
		},
		Storage: StorageConfig{
			Driver:             strings.ToLower(viper.GetString("STORAGE_DRIVER")),
			LocalDir:           viper.GetString("STORAGE_LOCAL_DIR"),
			LocalURLPrefix:     strings.TrimRight(viper.GetString("STORAGE_LOCAL_URL_PREFIX"), "/"),
			SupabaseURL:        viper.GetString("SUPABASE_URL"),
			SupabaseSecretKey:  viper.GetString("SUPABASE_SECRET_KEY"),
			SupabaseBucket:     viper.GetString("SUPABASE_BUCKET"),
			GCSBucket:          viper.GetString("GCS_BUCKET"),
			GCSCDNDomain:       viper.GetString("GCS_CDN_DOMAIN"),
			GCSCredentialsFile: viper.GetString("GCS_CREDENTIALS_FILE"),
		},
		Mail: MailConfig{
			SendinblueAPIKey: viper.GetString("SENDINBLUE_API_KEY"),
			MailFrom:         viper.GetString("MAIL_FROM"),
		},
		Worker: WorkerConfig{
			Enabled:     viper.GetBool("REGEN_WORKER_ENABLED"),
			Interval:    viper.GetDuration("REGEN_WORKER_INTERVAL"),
			BatchSize:   viper.GetInt("REGEN_WORKER_BATCH"),
			MaxAttempts: viper.GetInt("REGEN_MAX_ATTEMPTS"),
		},
	}, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8888")
	viper.SetDefault("CERT_VERIFY_BASE_URL", "https://app.coursely.io/verify")
	viper.SetDefault("CERT_PLATFORM_NAME", "Coursely")
	viper.SetDefault("CERT_SCRATCH_DIR", filepath.Join(os.TempDir(), "certificates"))
	viper.SetDefault("CERT_STORAGE_FOLDER", "certificates")
	viper.SetDefault("CERT_NON_VIDEO_LESSON_MINUTES", 5)
	viper.SetDefault("CERT_ISSUE_TIMEOUT", 90*time.Second)
	viper.SetDefault("CERT_NOTIFY_TIMEOUT", 30*time.Second)
	viper.SetDefault("CERT_UPLOAD_TIMEOUT", 60*time.Second)
	viper.SetDefault("RENDERER_MAX_INSTANCES", 2)
	viper.SetDefault("RENDERER_LAUNCH_TIMEOUT", 20*time.Second)
	viper.SetDefault("RENDERER_LOAD_TIMEOUT", 20*time.Second)
	viper.SetDefault("RENDERER_SETTLE_DELAY", 500*time.Millisecond)
	viper.SetDefault("STORAGE_DRIVER", "local")
	viper.SetDefault("STORAGE_LOCAL_DIR", "./public/certificates")
	viper.SetDefault("STORAGE_LOCAL_URL_PREFIX", "/static/certificates")
	viper.SetDefault("SUPABASE_BUCKET", "certificates")
	viper.SetDefault("MAIL_FROM", "noreply@coursely.io")
	viper.SetDefault("APP_BASE_URL", "https://app.coursely.io")
	viper.SetDefault("REGEN_WORKER_ENABLED", true)
	viper.SetDefault("REGEN_WORKER_INTERVAL", 30*time.Second)
	viper.SetDefault("REGEN_WORKER_BATCH", 10)
	viper.SetDefault("REGEN_MAX_ATTEMPTS", 3)
}
