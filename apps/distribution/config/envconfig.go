package config

import (
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"

	"github.com/quatton/expodist/apps/distribution/utils"
	"github.com/quatton/expodist/pkg/db"
	"github.com/quatton/expodist/pkg/dlog"
	"github.com/quatton/expodist/pkg/kv"
	"github.com/quatton/expodist/pkg/objectstore"
)

// EnvPrefix prefixes every environment variable, e.g. DIST_RETENTION_DAYS.
const EnvPrefix = "DIST"

const (
	BackendMinio  = "minio"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

type ObjectStoreConfig struct {
	Backend   string `envconfig:"BACKEND" default:"minio" mapstructure:"backend"`
	Endpoint  string `envconfig:"ENDPOINT" default:"localhost:9000" mapstructure:"endpoint"`
	Region    string `envconfig:"REGION" default:"eu-central-1" mapstructure:"region"`
	AccessKey string `envconfig:"ACCESS_KEY" mapstructure:"access_key"`
	SecretKey string `envconfig:"SECRET_KEY" mapstructure:"secret_key"`
	Bucket    string `envconfig:"BUCKET" default:"cwa" mapstructure:"bucket"`
	UseSSL    bool   `envconfig:"USE_SSL" default:"false" mapstructure:"use_ssl"`

	RetryAttempts       int           `envconfig:"RETRY_ATTEMPTS" default:"3" mapstructure:"retry_attempts"`
	RetryBackoff        string        `envconfig:"RETRY_BACKOFF" default:"exponential" mapstructure:"retry_backoff"`
	RetryBaseDelay      time.Duration `envconfig:"RETRY_BASE_DELAY" default:"200ms" mapstructure:"retry_base_delay"`
	RetryMaxDelay       time.Duration `envconfig:"RETRY_MAX_DELAY" default:"5s" mapstructure:"retry_max_delay"`
	OperationTimeout    time.Duration `envconfig:"OPERATION_TIMEOUT" default:"30s" mapstructure:"operation_timeout"`
	MaxFailedOperations int           `envconfig:"MAX_FAILED_OPERATIONS" default:"5" mapstructure:"max_failed_operations"`
	MaxThreads          int           `envconfig:"MAX_THREADS" default:"8" mapstructure:"max_threads"`
	PublicRead          bool          `envconfig:"PUBLIC_READ" default:"false" mapstructure:"public_read"`
	ForceUpdateKeyFiles bool          `envconfig:"FORCE_UPDATE_KEYFILES" default:"false" mapstructure:"force_update_keyfiles"`
	CacheMaxAge         int           `envconfig:"CACHE_MAX_AGE" default:"300" mapstructure:"cache_max_age"`
}

type TestDataConfig struct {
	Seed                uint64  `envconfig:"SEED" default:"123456" mapstructure:"seed"`
	ExposuresPerHour    float64 `envconfig:"EXPOSURES_PER_HOUR" default:"100" mapstructure:"exposures_per_hour"`
	ConsentToFederation bool    `envconfig:"CONSENT_TO_FEDERATION" default:"false" mapstructure:"consent_to_federation"`
}

type EnvConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development" mapstructure:"environment"`
	Port        string `envconfig:"PORT" default:"8080" mapstructure:"port"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" mapstructure:"log_level"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"text" mapstructure:"log_format"`

	OutputDir  string `envconfig:"OUTPUT_DIR" default:"out" mapstructure:"output_dir"`
	RootPrefix string `envconfig:"ROOT_PREFIX" default:"version" mapstructure:"root_prefix"`

	SupportedCountries           []string `envconfig:"SUPPORTED_COUNTRIES" default:"DE" mapstructure:"supported_countries"`
	OriginCountry                string   `envconfig:"ORIGIN_COUNTRY" default:"DE" mapstructure:"origin_country"`
	EUPackageName                string   `envconfig:"EU_PACKAGE_NAME" default:"EUR" mapstructure:"eu_package_name"`
	RetentionDays                int      `envconfig:"RETENTION_DAYS" default:"14" mapstructure:"retention_days"`
	HourFileRetentionDays        int      `envconfig:"HOUR_FILE_RETENTION_DAYS" default:"2" mapstructure:"hour_file_retention_days"`
	ExpiryPolicyMinutes          int      `envconfig:"EXPIRY_POLICY_MINUTES" default:"120" mapstructure:"expiry_policy_minutes"`
	ShiftingPolicyThreshold      int      `envconfig:"SHIFTING_POLICY_THRESHOLD" default:"140" mapstructure:"shifting_policy_threshold"`
	MaxRecordsPerBucket          int      `envconfig:"MAX_RECORDS_PER_BUCKET" default:"600000" mapstructure:"max_records_per_bucket"`
	StrictBundleLimit            bool     `envconfig:"STRICT_BUNDLE_LIMIT" default:"false" mapstructure:"strict_bundle_limit"`
	IncludeIncompleteDays        bool     `envconfig:"INCLUDE_INCOMPLETE_DAYS" default:"false" mapstructure:"include_incomplete_days"`
	ApplyPoliciesForAllCountries bool     `envconfig:"APPLY_POLICIES_FOR_ALL_COUNTRIES" default:"false" mapstructure:"apply_policies_for_all_countries"`

	FileHeader             string `envconfig:"FILE_HEADER" default:"EK Export v1" mapstructure:"file_header"`
	FileHeaderWidth        int    `envconfig:"FILE_HEADER_WIDTH" default:"16" mapstructure:"file_header_width"`
	ArchiveName            string `envconfig:"ARCHIVE_NAME" default:"index" mapstructure:"archive_name"`
	PayloadName            string `envconfig:"PAYLOAD_NAME" default:"export.bin" mapstructure:"payload_name"`
	SignatureName          string `envconfig:"SIGNATURE_NAME" default:"export.sig" mapstructure:"signature_name"`
	VerificationKeyVersion string `envconfig:"VERIFICATION_KEY_VERSION" default:"v1" mapstructure:"verification_key_version"`
	VerificationKeyID      string `envconfig:"VERIFICATION_KEY_ID" default:"262" mapstructure:"verification_key_id"`
	PrivateKeyPath         string `envconfig:"PRIVATE_KEY_PATH" mapstructure:"private_key_path"`

	LockKey  string        `envconfig:"LOCK_KEY" default:"expodist:distribution" mapstructure:"lock_key"`
	LockTTL  time.Duration `envconfig:"LOCK_TTL" default:"30m" mapstructure:"lock_ttl"`
	Schedule string        `envconfig:"SCHEDULE" default:"5 * * * *" mapstructure:"schedule"`

	ObjectStore ObjectStoreConfig `envconfig:"OBJECTSTORE" mapstructure:"object_store"`
	TestData    TestDataConfig    `envconfig:"TESTDATA" mapstructure:"test_data"`
	DB          db.Config         `envconfig:"DB" mapstructure:"-"`
	Valkey      kv.ValkeyConfig   `envconfig:"VALKEY" mapstructure:"-"`
}

// Load reads the environment and, when file is set, the YAML file on top of
// it, then validates the result.
func Load(file string) (*EnvConfig, error) {
	if utils.IsDev() {
		if err := godotenv.Load(); err != nil {
			log.Println("ℹ No .env file found")
		} else {
			log.Println("✓ Loaded .env file")
		}
	}

	var cfg EnvConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if file != "" {
		if err := LoadFile(file, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *EnvConfig) Validate() error {
	var errors []string

	if c.RootPrefix == "" || strings.Contains(c.RootPrefix, "/") {
		errors = append(errors, "  ❌ ROOT_PREFIX must be a single folder name")
	}
	if c.OutputDir == "" {
		errors = append(errors, "  ❌ OUTPUT_DIR must not be empty")
	}
	if len(c.SupportedCountries) == 0 {
		errors = append(errors, "  ❌ SUPPORTED_COUNTRIES must not be empty")
	}
	if !slices.Contains(c.SupportedCountries, c.OriginCountry) {
		errors = append(errors, fmt.Sprintf("  ❌ ORIGIN_COUNTRY %q must be one of SUPPORTED_COUNTRIES", c.OriginCountry))
	}
	if c.RetentionDays < 1 {
		errors = append(errors, "  ❌ RETENTION_DAYS must be at least 1")
	}
	if c.HourFileRetentionDays < 0 || c.HourFileRetentionDays > c.RetentionDays {
		errors = append(errors, "  ❌ HOUR_FILE_RETENTION_DAYS must be between 0 and RETENTION_DAYS")
	}
	if c.ShiftingPolicyThreshold < 1 {
		errors = append(errors, "  ❌ SHIFTING_POLICY_THRESHOLD must be at least 1")
	}
	if c.MaxRecordsPerBucket < 0 {
		errors = append(errors, "  ❌ MAX_RECORDS_PER_BUCKET must not be negative")
	}
	if c.FileHeaderWidth < len(c.FileHeader) {
		errors = append(errors, "  ❌ FILE_HEADER_WIDTH must fit FILE_HEADER")
	}
	if c.PayloadName == c.SignatureName {
		errors = append(errors, "  ❌ PAYLOAD_NAME and SIGNATURE_NAME must differ")
	}
	if _, err := dlog.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, "  ❌ LOG_LEVEL must be one of debug, info, warn, error")
	}
	if c.LogFormat != dlog.FormatText && c.LogFormat != dlog.FormatJSON {
		errors = append(errors, "  ❌ LOG_FORMAT must be text or json")
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		errors = append(errors, fmt.Sprintf("  ❌ SCHEDULE is not a valid cron spec: %v", err))
	}

	store := c.ObjectStore
	switch store.Backend {
	case BackendMinio, BackendS3:
		if store.Bucket == "" {
			errors = append(errors, "  ❌ OBJECTSTORE_BUCKET is required")
		}
	case BackendMemory:
	default:
		errors = append(errors, "  ❌ OBJECTSTORE_BACKEND must be minio, s3 or memory")
	}
	if store.Backend == BackendMinio && store.Endpoint == "" {
		errors = append(errors, "  ❌ OBJECTSTORE_ENDPOINT is required for minio")
	}
	if store.RetryBackoff != objectstore.BackoffFixed && store.RetryBackoff != objectstore.BackoffExponential {
		errors = append(errors, "  ❌ OBJECTSTORE_RETRY_BACKOFF must be fixed or exponential")
	}
	if store.RetryAttempts < 1 {
		errors = append(errors, "  ❌ OBJECTSTORE_RETRY_ATTEMPTS must be at least 1")
	}
	if store.MaxThreads < 1 {
		errors = append(errors, "  ❌ OBJECTSTORE_MAX_THREADS must be at least 1")
	}

	if len(errors) > 0 {
		return fmt.Errorf("environment validation failed:\n%s", strings.Join(errors, "\n"))
	}
	return nil
}

func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func (c *EnvConfig) Print(fmtr func(string, ...interface{})) {
	fmtr("📋 Configuration:\n")
	fmtr("  Environment: %s\n", c.Environment)
	fmtr("  Output: %s (prefix %s)\n", c.OutputDir, c.RootPrefix)
	fmtr("  Countries: %s (origin %s, EU package %s)\n", strings.Join(c.SupportedCountries, ","), c.OriginCountry, c.EUPackageName)
	fmtr("  Retention: %d days, hour files %d days\n", c.RetentionDays, c.HourFileRetentionDays)
	fmtr("  Bundle limit: %d per bucket (strict: %t)\n", c.MaxRecordsPerBucket, c.StrictBundleLimit)
	fmtr("  Signing key: %s (id %s, version %s)\n", c.PrivateKeyPath, c.VerificationKeyID, c.VerificationKeyVersion)
	fmtr("  Object store: %s %s/%s\n", c.ObjectStore.Backend, c.ObjectStore.Endpoint, c.ObjectStore.Bucket)
	fmtr("    Access Key: %s\n", MaskSecret(c.ObjectStore.AccessKey))
	fmtr("    Secret Key: %s\n", MaskSecret(c.ObjectStore.SecretKey))
	fmtr("  Database: %s@%s:%d/%s\n", c.DB.User, c.DB.Host, c.DB.Port, c.DB.Database)
	fmtr("    Password: %s\n", MaskSecret(c.DB.Password))
	fmtr("  Valkey: %s\n", c.Valkey.Addr)
}
