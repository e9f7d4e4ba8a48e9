// Package config – loader.go reads YAML configuration with secure
// credential handling: .env files are loaded first, ${VAR} patterns are
// expanded before parsing, and the gateway token falls back to the OS
// keyring and environment when the file leaves it empty.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}`)

// configFileNames are tried in order during auto-discovery.
var configFileNames = []string{
	"wawebapi.yaml",
	"wawebapi.yml",
	"config.yaml",
}

// LoadFromFile reads and parses a YAML configuration file. .env files are
// loaded first (never overwriting real environment variables) and ${VAR}
// patterns are expanded before parsing; a ${VAR:?message} with the
// variable unset is an error.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	resolveSecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// FindConfigFile auto-discovers a config file in the working directory
// and the user config directory. Returns "" when none exists.
func FindConfigFile() string {
	for _, name := range configFileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	if home, err := os.UserConfigDir(); err == nil {
		for _, name := range configFileNames {
			path := filepath.Join(home, "wawebapi", name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// loadEnvFiles loads .env files without overwriting existing variables.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// expandEnvVars substitutes ${VAR} patterns in raw YAML text.
func expandEnvVars(text string) (string, error) {
	var missing []string
	out := envVarPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, modifier, fallback := groups[1], groups[2], groups[3]

		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		switch modifier {
		case "-":
			return fallback
		case "?":
			missing = append(missing, fmt.Sprintf("%s (%s)", name, fallback))
			return ""
		}
		return ""
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("required environment variables unset: %v", missing)
	}
	return out, nil
}

// resolveSecrets fills empty secrets from keyring and environment, in
// that order of preference.
func resolveSecrets(cfg *Config) {
	if cfg.Gateway.AuthToken == "" {
		if tok := GetKeyring(keyringGatewayToken); tok != "" {
			cfg.Gateway.AuthToken = tok
		} else if tok := os.Getenv("WAWEBAPI_AUTH_TOKEN"); tok != "" {
			cfg.Gateway.AuthToken = tok
		}
	}
	if cfg.Webhook.Token == "" {
		if tok := os.Getenv("WAWEBAPI_WEBHOOK_TOKEN"); tok != "" {
			cfg.Webhook.Token = tok
		}
	}
}
