package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// fileName is the config file base name searched for in standard locations.
const fileName = "socketgate"

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for socketgate.yaml/.yml in standard locations.
// The search requires an explicit YAML extension so the binary itself never
// matches.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName(fileName)
		viper.SetConfigType("yaml")
	}

	// Environment variable support: SOCKETGATE_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("SOCKETGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a socketgate config file.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".socketgate"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "socketgate"))
		}
	} else {
		paths = append(paths, "/etc/socketgate")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for socketgate.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, fileName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment variable support.
// Example: SOCKETGATE_UPSTREAM_URL overrides upstream.url
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.socket_path")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.tls_cert")
	_ = viper.BindEnv("server.tls_key")
	_ = viper.BindEnv("server.read_limit")
	// Note: server.allowed_origins, connection.sticky and connection.strip
	// are lists; set them in the config file.

	_ = viper.BindEnv("connection.cookies")
	_ = viper.BindEnv("connection.cookie_uri")
	_ = viper.BindEnv("connection.request_rate")
	_ = viper.BindEnv("connection.request_burst")
	_ = viper.BindEnv("connection.connect_rate")

	_ = viper.BindEnv("upstream.url")
	_ = viper.BindEnv("upstream.timeout")

	_ = viper.BindEnv("rate_limit.cleanup_interval")
	_ = viper.BindEnv("rate_limit.max_ttl")

	_ = viper.BindEnv("admin.enabled")
	_ = viper.BindEnv("admin.token")
	_ = viper.BindEnv("admin.token_hash")

	_ = viper.BindEnv("telemetry.traces")
	_ = viper.BindEnv("telemetry.metrics")
	_ = viper.BindEnv("telemetry.metrics_interval")

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and validates the result.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT apply dev defaults or validate.
// Use this when CLI flags may override DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
