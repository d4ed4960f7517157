package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Environment variables consulted when neither flags nor the config file
// provide the account credentials.
const (
	EnvEmail    = "PACKT_EMAIL"
	EnvPassword = "PACKT_PASSWORD"
)

// ApplyEnvironment fills empty credentials from PACKT_EMAIL and
// PACKT_PASSWORD. It reports where the password came from, or "" when the
// environment was not used.
func ApplyEnvironment(cfg *Config) string {
	if cfg.Email == "" {
		cfg.Email = strings.TrimSpace(os.Getenv(EnvEmail))
	}
	if cfg.Password == "" {
		if pass := os.Getenv(EnvPassword); pass != "" {
			cfg.Password = pass
			return "environment"
		}
	}
	return ""
}

// ReadSecretFile reads a password from path. The first line is used and
// surrounding whitespace dropped. insecure is set when the file is readable
// by group or others (Unix only).
func ReadSecretFile(path string) (secret string, insecure bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", false, fmt.Errorf("failed to stat password file: %w", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0077 != 0 {
		insecure = true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", insecure, fmt.Errorf("failed to read password file: %w", err)
	}
	secret, _, _ = strings.Cut(string(data), "\n")
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", insecure, fmt.Errorf("password file %s is empty", path)
	}
	return secret, insecure, nil
}
