// Package config handles jvspatial-go configuration via environment
// variables, with an optional YAML file consulted first.
//
// This mirrors nornicdb/pkg/config: a Config struct assembled from
// section structs, loaded with LoadFromEnv() and checked with
// Validate() before use.
//
// Example:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
// Environment variables:
//
//   - JVSPATIAL_CONFIG_FILE  path to an optional jvspatial.yaml, consulted
//     before environment variables (env vars still win)
//   - DB_TYPE                "file", "docstore", or "memory" (default "file")
//   - FILE_DB_PATH           root directory for the file-backed backend
//   - FILE_DB_ENCRYPTION_KEY passphrase enabling AES-GCM at-rest encryption
//   - DOCSTORE_URI           Badger data directory ("" selects in-memory)
//   - DOCSTORE_DB_NAME       logical database name, informational only
//   - WALKER_PROTECTION_ENABLED, WALKER_MAX_STEPS, WALKER_MAX_VISITS_PER_NODE,
//     WALKER_MAX_EXECUTION_TIME, WALKER_MAX_QUEUE_SIZE
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all jvspatial-go configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Walker   WalkerConfig   `yaml:"walker"`
	Server   ServerConfig   `yaml:"server"`
}

// DatabaseConfig selects and configures the persistence backend.
type DatabaseConfig struct {
	// Type selects the backend factory: "file", "docstore", or "memory".
	Type string `yaml:"type" validate:"oneof=file docstore memory"`
	// FilePath is the root directory for the file-backed backend.
	FilePath string `yaml:"file_path" validate:"required_if=Type file"`
	// FileEncryptionKey, if set, enables AES-GCM at-rest encryption.
	FileEncryptionKey string `yaml:"file_encryption_key"`
	// DocstoreURI is the Badger data directory; empty selects in-memory.
	DocstoreURI string `yaml:"docstore_uri"`
	// DocstoreDBName is a descriptive name, not consumed by the backend.
	DocstoreDBName string `yaml:"docstore_db_name"`
}

// WalkerConfig bounds traversal so a misbehaving walker cannot run away.
type WalkerConfig struct {
	// ProtectionEnabled is the master switch for every limit below.
	ProtectionEnabled bool `yaml:"protection_enabled"`
	// MaxSteps caps total visit-queue pops per walker.
	MaxSteps int `yaml:"max_steps" validate:"gt=0"`
	// MaxVisitsPerNode caps revisits of the same node by one walker.
	MaxVisitsPerNode int `yaml:"max_visits_per_node" validate:"gt=0"`
	// MaxExecutionTime bounds wall-clock spent inside Spawn.
	MaxExecutionTime time.Duration `yaml:"max_execution_time" validate:"gt=0"`
	// MaxQueueSize rejects further enqueues once reached.
	MaxQueueSize int `yaml:"max_queue_size" validate:"gt=0"`
}

// ServerConfig holds the "server" section of the config file; no
// command in this module starts a server or reads these values.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port" validate:"gte=0,lte=65535"`
}

var validate = validator.New()

// LoadFromEnv builds a Config from an optional YAML file
// (JVSPATIAL_CONFIG_FILE) overlaid with environment variables, which
// always win over file values.
func LoadFromEnv() *Config {
	cfg := &Config{
		Database: DatabaseConfig{
			Type:     "file",
			FilePath: "./data",
		},
		Walker: WalkerConfig{
			ProtectionEnabled: true,
			MaxSteps:          10000,
			MaxVisitsPerNode:  100,
			MaxExecutionTime:  300 * time.Second,
			MaxQueueSize:      1000,
		},
		Server: ServerConfig{
			Address: "0.0.0.0",
			Port:    0,
		},
	}

	if path := getEnv("JVSPATIAL_CONFIG_FILE", ""); path != "" {
		if err := loadYAMLFile(path, cfg); err != nil {
			jvlogFallback(fmt.Sprintf("config: failed to load %s: %v", path, err))
		}
	}

	cfg.Database.Type = getEnv("DB_TYPE", cfg.Database.Type)
	cfg.Database.FilePath = getEnv("FILE_DB_PATH", cfg.Database.FilePath)
	cfg.Database.FileEncryptionKey = getEnv("FILE_DB_ENCRYPTION_KEY", cfg.Database.FileEncryptionKey)
	cfg.Database.DocstoreURI = getEnv("DOCSTORE_URI", cfg.Database.DocstoreURI)
	cfg.Database.DocstoreDBName = getEnv("DOCSTORE_DB_NAME", cfg.Database.DocstoreDBName)

	cfg.Walker.ProtectionEnabled = getEnvBool("WALKER_PROTECTION_ENABLED", cfg.Walker.ProtectionEnabled)
	cfg.Walker.MaxSteps = getEnvInt("WALKER_MAX_STEPS", cfg.Walker.MaxSteps)
	cfg.Walker.MaxVisitsPerNode = getEnvInt("WALKER_MAX_VISITS_PER_NODE", cfg.Walker.MaxVisitsPerNode)
	cfg.Walker.MaxExecutionTime = time.Duration(getEnvInt("WALKER_MAX_EXECUTION_TIME", int(cfg.Walker.MaxExecutionTime/time.Second))) * time.Second
	cfg.Walker.MaxQueueSize = getEnvInt("WALKER_MAX_QUEUE_SIZE", cfg.Walker.MaxQueueSize)

	return cfg
}

// Validate checks struct tags via validator/v10 and the few
// cross-field rules struct tags can't express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Database.Type == "docstore" && c.Database.DocstoreURI == "" {
		// DocstoreURI empty is valid (selects in-memory); nothing to check here
		// beyond what validator already enforced. Kept as an explicit branch so
		// future cross-field rules have a home.
		return nil
	}
	return nil
}

// String returns a log-safe representation (no encryption key).
func (c *Config) String() string {
	return fmt.Sprintf("Config{DB: %s, FilePath: %s, Docstore: %s, WalkerMaxSteps: %d}",
		c.Database.Type, c.Database.FilePath, c.Database.DocstoreURI, c.Walker.MaxSteps)
}

func loadYAMLFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, cfg)
}

// jvlogFallback avoids an import cycle with internal/jvlog (config is
// loaded before most loggers exist) while still surfacing load errors.
func jvlogFallback(msg string) {
	os.Stderr.WriteString("[jvspatial:config] " + msg + "\n")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
