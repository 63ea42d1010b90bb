// Package config provides application configuration through environment variables.
package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/allisson/go-env"
	validation "github.com/jellydator/validation"
	"github.com/joho/godotenv"

	cryptoDomain "github.com/allisson/topogate/internal/crypto/domain"
	"github.com/allisson/topogate/internal/master"
	customValidation "github.com/allisson/topogate/internal/validation"
)

// MasterSecretService variants.
const (
	MasterProviderCLI = "cli"
	MasterProviderKMS = "kms"
)

// Keystore backends.
const (
	KeystoreBackendFile     = "file"
	KeystoreBackendPostgres = "postgres"
	KeystoreBackendMySQL    = "mysql"
)

var gatewayPathRegex = regexp.MustCompile(`^/?[A-Za-z0-9_-]+(/[A-Za-z0-9_-]+)*/?$`)

// Config holds all application configuration.
type Config struct {
	// GatewayHome is the base directory the other directories default under.
	GatewayHome string
	// TopologyDir is the directory watched for topology descriptors.
	TopologyDir string
	// DeploymentDir is the directory deployment versions are written to.
	DeploymentDir string
	// SecurityDir holds the master file and the file keystores.
	SecurityDir string

	// TopologyPollInterval is the descriptor discovery interval.
	TopologyPollInterval time.Duration
	// DeployIOMaxRetries bounds retries of transient artifact write failures.
	DeployIOMaxRetries int

	// MasterProvider selects the MasterSecretService: "cli" or "kms".
	MasterProvider string
	// MasterSecret is an explicit master secret. Never logged.
	MasterSecret string
	// PersistMaster writes the master file when the secret did not come from it.
	PersistMaster bool
	// MasterGenerate allows the cli variant to generate a random master secret.
	MasterGenerate bool
	// MasterFilePassphrase protects the master file when no KMS key URI is set. Never logged.
	MasterFilePassphrase string
	// MasterKMSKeyURI is the gocloud secrets URI of the KMS key.
	MasterKMSKeyURI string
	// MasterSecretCiphertext is the base64 KMS-wrapped master secret.
	MasterSecretCiphertext string

	// KeystoreBackend is "file", "postgres" or "mysql".
	KeystoreBackend string
	// DBDriver is the database driver of the SQL keystore backends.
	DBDriver string
	// DBConnectionString is the connection string for the database.
	DBConnectionString string
	// DBMaxOpenConnections is the maximum number of open connections to the database.
	DBMaxOpenConnections int
	// DBMaxIdleConnections is the maximum number of idle connections in the database pool.
	DBMaxIdleConnections int
	// DBConnMaxLifetime is the maximum amount of time a connection may be reused.
	DBConnMaxLifetime time.Duration

	// CryptoAlgorithm is the AEAD used for keystore entries and crypto keys.
	CryptoAlgorithm string

	// GatewayPath is the URL prefix of the proxy runtime.
	GatewayPath string
	// ServerHost is the host address the proxy runtime binds to.
	ServerHost string
	// ServerPort is the port number the proxy runtime listens on.
	ServerPort int
	// AdminHost is the host address the admin API binds to.
	AdminHost string
	// AdminPort is the port number the admin API listens on.
	AdminPort int

	// LogLevel is the logging level (e.g., "debug", "info", "warn", "error").
	LogLevel string

	// RateLimitEnabled indicates whether admin API rate limiting is enabled.
	RateLimitEnabled bool
	// RateLimitRequestsPerSec is the number of requests allowed per second per client IP.
	RateLimitRequestsPerSec float64
	// RateLimitBurst is the burst size of the admin API rate limit.
	RateLimitBurst int

	// CORSEnabled indicates whether CORS is enabled on the admin API.
	CORSEnabled bool
	// CORSAllowOrigins is a comma-separated list of allowed origins for CORS.
	CORSAllowOrigins string

	// MetricsEnabled indicates whether metrics collection is enabled.
	MetricsEnabled bool
	// MetricsNamespace is the namespace for the application metrics.
	MetricsNamespace string
	// MetricsPort is the port number for the metrics server.
	MetricsPort int
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	loadDotEnv()

	home := env.GetString("GATEWAY_HOME", "./gateway-home")
	backend := env.GetString("KEYSTORE_BACKEND", KeystoreBackendFile)

	return &Config{
		// Directories
		GatewayHome:   home,
		TopologyDir:   env.GetString("TOPOLOGY_DIR", filepath.Join(home, "conf", "topologies")),
		DeploymentDir: env.GetString("DEPLOYMENT_DIR", filepath.Join(home, "data", "deployments")),
		SecurityDir:   env.GetString("SECURITY_DIR", filepath.Join(home, "data", "security")),

		// Deployment
		TopologyPollInterval: env.GetDuration("TOPOLOGY_POLL_INTERVAL_MS", 500, time.Millisecond),
		DeployIOMaxRetries:   env.GetInt("DEPLOY_IO_MAX_RETRIES", 3),

		// Master secret
		MasterProvider:         env.GetString("MASTER_PROVIDER", MasterProviderCLI),
		MasterSecret:           env.GetString("MASTER_SECRET", ""),
		PersistMaster:          env.GetBool("PERSIST_MASTER", false),
		MasterGenerate:         env.GetBool("MASTER_GENERATE", true),
		MasterFilePassphrase:   env.GetString("MASTER_FILE_PASSPHRASE", ""),
		MasterKMSKeyURI:        env.GetString("MASTER_KMS_KEY_URI", ""),
		MasterSecretCiphertext: env.GetString("MASTER_SECRET_CIPHERTEXT", ""),

		// Keystore
		KeystoreBackend:      backend,
		DBDriver:             env.GetString("DB_DRIVER", defaultDBDriver(backend)),
		DBConnectionString:   env.GetString("DB_CONNECTION_STRING", ""),
		DBMaxOpenConnections: env.GetInt("DB_MAX_OPEN_CONNECTIONS", 25),
		DBMaxIdleConnections: env.GetInt("DB_MAX_IDLE_CONNECTIONS", 5),
		DBConnMaxLifetime:    env.GetDuration("DB_CONN_MAX_LIFETIME", 5, time.Minute),

		CryptoAlgorithm: env.GetString("CRYPTO_ALGORITHM", string(cryptoDomain.AESGCM)),

		// Servers
		GatewayPath: env.GetString("GATEWAY_PATH", "gateway"),
		ServerHost:  env.GetString("SERVER_HOST", "0.0.0.0"),
		ServerPort:  env.GetInt("SERVER_PORT", 8443),
		AdminHost:   env.GetString("ADMIN_HOST", "127.0.0.1"),
		AdminPort:   env.GetInt("ADMIN_PORT", 8444),

		// Logging
		LogLevel: env.GetString("LOG_LEVEL", "info"),

		// Rate Limiting (admin API)
		RateLimitEnabled:        env.GetBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequestsPerSec: env.GetFloat64("RATE_LIMIT_REQUESTS_PER_SEC", 10.0),
		RateLimitBurst:          env.GetInt("RATE_LIMIT_BURST", 20),

		// CORS
		CORSEnabled:      env.GetBool("CORS_ENABLED", false),
		CORSAllowOrigins: env.GetString("CORS_ALLOW_ORIGINS", ""),

		// Metrics
		MetricsEnabled:   env.GetBool("METRICS_ENABLED", true),
		MetricsNamespace: env.GetString("METRICS_NAMESPACE", "topogate"),
		MetricsPort:      env.GetInt("METRICS_PORT", 8081),
	}
}

// Validate checks the configuration before any service is constructed.
func (c *Config) Validate() error {
	isKMS := c.MasterProvider == MasterProviderKMS
	isSQL := c.KeystoreBackend != KeystoreBackendFile
	persistsLocally := c.MasterProvider == MasterProviderCLI && c.PersistMaster && c.MasterKMSKeyURI == ""

	return validation.ValidateStruct(c,
		validation.Field(&c.TopologyDir, validation.Required),
		validation.Field(&c.DeploymentDir, validation.Required),
		validation.Field(&c.SecurityDir, validation.Required),
		validation.Field(&c.TopologyPollInterval, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.DeployIOMaxRetries, validation.Min(0)),
		validation.Field(&c.MasterProvider, validation.In(MasterProviderCLI, MasterProviderKMS)),
		validation.Field(&c.MasterKMSKeyURI, validation.When(isKMS, validation.Required)),
		validation.Field(&c.MasterFilePassphrase, validation.When(persistsLocally, validation.Required)),
		validation.Field(&c.MasterSecretCiphertext,
			validation.When(isKMS, validation.Required),
			customValidation.Base64,
		),
		validation.Field(&c.KeystoreBackend,
			validation.In(KeystoreBackendFile, KeystoreBackendPostgres, KeystoreBackendMySQL),
		),
		validation.Field(&c.DBDriver, validation.When(isSQL, validation.In(c.KeystoreBackend))),
		validation.Field(&c.DBConnectionString, validation.When(isSQL, validation.Required)),
		validation.Field(&c.CryptoAlgorithm,
			validation.In(string(cryptoDomain.AESGCM), string(cryptoDomain.ChaCha20)),
		),
		validation.Field(&c.GatewayPath, validation.Required, validation.Match(gatewayPathRegex)),
		validation.Field(&c.ServerPort, validation.Required, validation.Max(65535)),
		validation.Field(&c.AdminPort, validation.Required, validation.Max(65535)),
		validation.Field(&c.MetricsPort, validation.When(c.MetricsEnabled, validation.Required, validation.Max(65535))),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
	)
}

// Algorithm returns the parsed crypto algorithm.
func (c *Config) Algorithm() (cryptoDomain.Algorithm, error) {
	return cryptoDomain.ParseAlgorithm(c.CryptoAlgorithm)
}

// RegistryOptions renders the options map passed to the service registry.
func (c *Config) RegistryOptions() map[string]string {
	options := map[string]string{
		master.OptionPersistMaster: strconv.FormatBool(c.PersistMaster),
	}
	if c.MasterSecret != "" {
		options[master.OptionMaster] = c.MasterSecret
	}
	return options
}

// GetGinMode returns the appropriate Gin mode based on log level.
func (c *Config) GetGinMode() string {
	if c.LogLevel == "debug" {
		return "debug"
	}
	return "release"
}

func defaultDBDriver(backend string) string {
	if backend == KeystoreBackendMySQL {
		return "mysql"
	}
	return "postgres"
}

// loadDotEnv searches for a .env file from the current directory up to the root
// and loads the first one found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
