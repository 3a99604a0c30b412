package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/layer-3/dropgate/core"
)

var ErrMissingEnv = errors.New("missing required environment variable")

// ServerConfig configures `dropgate serve`
type ServerConfig struct {
	Env                 string
	ListenAddr          string
	DatabaseURL         string
	RedisURL            string
	Domain              string
	URI                 string
	ChainID             int64
	PublicAPIKey        string
	ServiceKey          string
	JWTSigningKey       string
	AdminPasswordHashes []string
	ChallengeTTL        time.Duration
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
}

// ClientConfig configures `dropgate connect`
type ClientConfig struct {
	Env          string
	BackendURL   string
	PublicAPIKey string
	ChainID      int64
	Origin       string
	MarkerDB     string
}

// LoadServer reads the server configuration from the environment
func LoadServer() (*ServerConfig, error) {
	serviceKey, err := mustGetEnv("BACKEND_SERVICE_KEY")
	if err != nil {
		return nil, err
	}

	chainID, err := getEnvAsInt64("CHAIN_ID", 1)
	if err != nil {
		return nil, err
	}

	cfg := &ServerConfig{
		Env:           getEnv("DROPGATE_ENV", "production"),
		ListenAddr:    getEnv("DROPGATE_LISTEN_ADDR", ":9000"),
		DatabaseURL:   getEnv("DATABASE_URL", "dropgate.db"),
		RedisURL:      os.Getenv("REDIS_URL"),
		URI:           getEnv("SIWE_URI", "http://localhost:3000"),
		ChainID:       chainID,
		PublicAPIKey:  os.Getenv("BACKEND_PUBLIC_KEY"),
		ServiceKey:    serviceKey,
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
	}
	cfg.Domain = getEnv("SIWE_DOMAIN", core.HostFromOrigin(cfg.URI))

	for _, h := range strings.Split(os.Getenv("ADMIN_PASSWORD_HASHES"), ",") {
		if h = strings.TrimSpace(h); h != "" {
			cfg.AdminPasswordHashes = append(cfg.AdminPasswordHashes, h)
		}
	}

	if cfg.ChallengeTTL, err = getEnvAsDuration("CHALLENGE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.AccessTTL, err = getEnvAsDuration("ACCESS_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshTTL, err = getEnvAsDuration("REFRESH_TTL", 5*24*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadClient reads the client configuration from the environment
func LoadClient() (*ClientConfig, error) {
	chainID, err := getEnvAsInt64("CHAIN_ID", 1)
	if err != nil {
		return nil, err
	}

	return &ClientConfig{
		Env:          getEnv("DROPGATE_ENV", "production"),
		BackendURL:   strings.TrimSuffix(getEnv("BACKEND_URL", "http://localhost:9000"), "/"),
		PublicAPIKey: os.Getenv("BACKEND_PUBLIC_KEY"),
		ChainID:      chainID,
		Origin:       getEnv("DROPGATE_ORIGIN", "http://localhost:3000"),
		MarkerDB:     getEnv("DROPGATE_MARKER_DB", "dropgate-marker.db"),
	}, nil
}

// UsesPostgres reports whether DatabaseURL points at Postgres rather than a SQLite file
func (c *ServerConfig) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// SigningKey decodes JWT_SIGNING_KEY (hex SEC 1 DER). Without one an ephemeral
// key is generated and sessions do not survive a restart.
func (c *ServerConfig) SigningKey() (key *ecdsa.PrivateKey, ephemeral bool, err error) {
	if c.JWTSigningKey == "" {
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		return key, true, err
	}

	der, err := hex.DecodeString(strings.TrimPrefix(c.JWTSigningKey, "0x"))
	if err != nil {
		return nil, false, fmt.Errorf("JWT_SIGNING_KEY is not hex: %w", err)
	}
	key, err = x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, false, fmt.Errorf("JWT_SIGNING_KEY: %w", err)
	}

	return key, false, nil
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func mustGetEnv(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrMissingEnv, key)
}

func getEnvAsInt64(key string, defaultVal int64) (int64, error) {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal, nil
	}
	val, err := strconv.ParseInt(valStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return val, nil
}

func getEnvAsDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal, nil
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return val, nil
}
