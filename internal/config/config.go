// Package config provides configuration management for packt-dl.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/packtdl/packt-dl/internal/constants"
	"github.com/packtdl/packt-dl/internal/pathutil"
)

// FormatAll selects every format a product offers.
const FormatAll = "all"

// Config holds everything a run needs. Values come from defaults, then the
// optional INI file, then command-line flags.
//
// INI format:
//
//	[packt]
//	email = me@example.com
//	password = secret
//	api_url = https://services.packtpub.com
//
//	[download]
//	directory = ~/Books/packt
//	formats = pdf,epub,code
//	separate = true
//	page_size = 25
//	refresh_after_minutes = 14
//	retries = 3
//	skip_titles = Skill Up
//
//	[proxy]
//	mode = basic
//	host = proxy.corp
//	port = 8080
//	user = me
//	password = secret
//	no_proxy = localhost,10.0.0.0/8
//
//	[titles]
//	Second Edition = 2nd Edition
//
//	[logging]
//	file = ~/.config/packt-dl/logs/packt-dl.log
//
//	[notifications]
//	enabled = true
type Config struct {
	// Storefront account
	Email      string
	Password   string
	APIBaseURL string

	// Output
	Directory string
	Formats   []string
	Separate  bool
	DryRun    bool

	// Console verbosity
	Verbose bool
	Quiet   bool

	// Catalog and session behaviour
	PageSize     int
	RefreshAfter time.Duration
	Retries      int
	SkipTitles   []string

	// TitleReplacements are applied in order to normalized product names.
	TitleReplacements [][2]string

	// Proxy
	ProxyMode     string // no-proxy, system, basic, ntlm
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string
	ProxyWarmup   bool

	// Ambient
	LogFile string
	Notify  bool
}

// Validation errors
var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrVerboseAndQuiet    = errors.New("verbose and quiet cannot be used together")
	ErrNoFormats          = errors.New("at least one book format is required")
	ErrInvalidPageSize    = fmt.Errorf("page size must be between 1 and %d", constants.MaxPageSize)
	ErrInvalidRetries     = errors.New("retries must be between 0 and 10")
	ErrInvalidRefresh     = errors.New("refresh interval must be at least one minute")
	ErrMissingAPIBaseURL  = errors.New("API base URL is empty")
	ErrInvalidProxyMode   = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingDirectory   = errors.New("output directory is required")
)

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		APIBaseURL:        constants.DefaultAPIBaseURL,
		Directory:         "media",
		Formats:           slices.Clone(constants.DefaultFormats),
		PageSize:          constants.DefaultPageSize,
		RefreshAfter:      constants.TokenRefreshAfter,
		Retries:           constants.DefaultRetries,
		SkipTitles:        slices.Clone(constants.DefaultSkipTitles),
		TitleReplacements: DefaultTitleReplacements(),
		ProxyMode:         "system",
	}
}

// DefaultTitleReplacements returns the cosmetic fixes applied to product
// names: dash variants and spelled-out edition labels.
func DefaultTitleReplacements() [][2]string {
	return [][2]string{
		{"–", "-"}, // en dash
		{"—", "-"}, // em dash
		{"‑", "-"}, // non-breaking hyphen
		{"Second Edition", "2nd Edition"},
		{"Third Edition", "3rd Edition"},
		{"Fourth Edition", "4th Edition"},
		{"Fifth Edition", "5th Edition"},
		{"Sixth Edition", "6th Edition"},
		{"Seventh Edition", "7th Edition"},
		{"Eighth Edition", "8th Edition"},
		{"Ninth Edition", "9th Edition"},
		{"Tenth Edition", "10th Edition"},
	}
}

// LoadFile merges an INI config file into cfg. An empty path means the
// default location; a missing default file is not an error, a missing
// explicit file is.
func LoadFile(cfg *Config, path string) error {
	explicit := path != ""
	if !explicit {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return nil // No home directory, nothing to load
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return fmt.Errorf("config file not found: %s", path)
		}
		return nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// [packt]
	packt := iniFile.Section("packt")
	cfg.Email = packt.Key("email").MustString(cfg.Email)
	cfg.Password = packt.Key("password").MustString(cfg.Password)
	cfg.APIBaseURL = packt.Key("api_url").MustString(cfg.APIBaseURL)

	// [download]
	dl := iniFile.Section("download")
	cfg.Directory = dl.Key("directory").MustString(cfg.Directory)
	if dl.HasKey("formats") {
		cfg.Formats = ParseFormats(dl.Key("formats").String())
	}
	cfg.Separate = dl.Key("separate").MustBool(cfg.Separate)
	cfg.PageSize = dl.Key("page_size").MustInt(cfg.PageSize)
	if dl.HasKey("refresh_after_minutes") {
		cfg.RefreshAfter = time.Duration(dl.Key("refresh_after_minutes").MustInt(14)) * time.Minute
	}
	cfg.Retries = dl.Key("retries").MustInt(cfg.Retries)
	if dl.HasKey("skip_titles") {
		cfg.SkipTitles = splitList(dl.Key("skip_titles").String())
	}

	// [proxy]
	proxy := iniFile.Section("proxy")
	cfg.ProxyMode = proxy.Key("mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = proxy.Key("host").MustString(cfg.ProxyHost)
	cfg.ProxyPort = proxy.Key("port").MustInt(cfg.ProxyPort)
	cfg.ProxyUser = proxy.Key("user").MustString(cfg.ProxyUser)
	cfg.ProxyPassword = proxy.Key("password").MustString(cfg.ProxyPassword)
	cfg.NoProxy = proxy.Key("no_proxy").MustString(cfg.NoProxy)
	cfg.ProxyWarmup = proxy.Key("warmup").MustBool(cfg.ProxyWarmup)

	// [titles] extends the built-in replacements; file entries run last so
	// they can rewrite the output of the defaults.
	for _, key := range iniFile.Section("titles").Keys() {
		cfg.TitleReplacements = append(cfg.TitleReplacements, [2]string{key.Name(), key.Value()})
	}

	cfg.LogFile = iniFile.Section("logging").Key("file").MustString(cfg.LogFile)
	cfg.Notify = iniFile.Section("notifications").Key("enabled").MustBool(cfg.Notify)

	return nil
}

// SaveFile writes the persistent settings of cfg to path in the format
// LoadFile reads. The account password is written only when withPassword is
// set; the file is created with owner-only permissions.
func SaveFile(cfg *Config, path string, withPassword bool) error {
	f := ini.Empty()

	packt := f.Section("packt")
	packt.Key("email").SetValue(cfg.Email)
	if withPassword && cfg.Password != "" {
		packt.Key("password").SetValue(cfg.Password)
	}
	if cfg.APIBaseURL != constants.DefaultAPIBaseURL {
		packt.Key("api_url").SetValue(cfg.APIBaseURL)
	}

	dl := f.Section("download")
	dl.Key("directory").SetValue(cfg.Directory)
	dl.Key("formats").SetValue(strings.Join(cfg.Formats, ","))
	dl.Key("separate").SetValue(fmt.Sprint(cfg.Separate))
	dl.Key("page_size").SetValue(fmt.Sprint(cfg.PageSize))
	dl.Key("retries").SetValue(fmt.Sprint(cfg.Retries))
	dl.Key("skip_titles").SetValue(strings.Join(cfg.SkipTitles, ","))

	if cfg.ProxyMode != "" {
		proxy := f.Section("proxy")
		proxy.Key("mode").SetValue(cfg.ProxyMode)
		if cfg.ProxyHost != "" {
			proxy.Key("host").SetValue(cfg.ProxyHost)
			proxy.Key("port").SetValue(fmt.Sprint(cfg.ProxyPort))
		}
		if cfg.ProxyUser != "" {
			proxy.Key("user").SetValue(cfg.ProxyUser)
		}
		if cfg.NoProxy != "" {
			proxy.Key("no_proxy").SetValue(cfg.NoProxy)
		}
	}

	if cfg.Notify {
		f.Section("notifications").Key("enabled").SetValue("true")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if _, err := f.WriteTo(out); err != nil {
		out.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return out.Close()
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Email) == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	if c.Verbose && c.Quiet {
		return ErrVerboseAndQuiet
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return ErrMissingAPIBaseURL
	}
	if strings.TrimSpace(c.Directory) == "" {
		return ErrMissingDirectory
	}
	if len(c.Formats) == 0 {
		return ErrNoFormats
	}
	if c.PageSize < 1 || c.PageSize > constants.MaxPageSize {
		return ErrInvalidPageSize
	}
	if c.Retries < 0 || c.Retries > 10 {
		return ErrInvalidRetries
	}
	if c.RefreshAfter < time.Minute {
		return ErrInvalidRefresh
	}
	switch strings.ToLower(c.ProxyMode) {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return ErrInvalidProxyMode
	}
	return nil
}

// WantsFormat reports whether the user asked for format f.
func (c *Config) WantsFormat(f string) bool {
	f = strings.ToLower(f)
	for _, want := range c.Formats {
		if want == FormatAll || want == f {
			return true
		}
	}
	return false
}

// ParseFormats splits a comma-separated --books value. Entries are trimmed,
// lowercased and de-duplicated; "all" anywhere collapses the list to "all".
func ParseFormats(s string) []string {
	var formats []string
	for _, f := range splitList(s) {
		f = strings.ToLower(f)
		if f == FormatAll {
			return []string{FormatAll}
		}
		if !slices.Contains(formats, f) {
			formats = append(formats, f)
		}
	}
	return formats
}

// ExpandDirectory resolves "~" to the home directory and makes the result
// absolute, following symlinks in the part of the path that exists.
func ExpandDirectory(dir string) (string, error) {
	abs, err := pathutil.ResolveAbsolutePath(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory %s: %w", dir, err)
	}
	return abs, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
