// Package cli provides the command-line interface for packt-dl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/packtdl/packt-dl/internal/config"
	"github.com/packtdl/packt-dl/internal/http"
	"github.com/packtdl/packt-dl/internal/logging"
	"github.com/packtdl/packt-dl/internal/version"
)

// rootFlags holds the raw flag values. Only flags the user actually set
// override the config file.
type rootFlags struct {
	configFile   string
	email        string
	password     string
	passwordFile string
	directory    string
	books        string
	separate     bool
	verbose      bool
	quiet        bool
	dryRun       bool
	notify       bool
	apiURL       string
	pageSize     int
	refreshAfter time.Duration
	retries      int
	skipTitles   []string
	proxyMode    string
	proxyHost    string
	proxyPort    int
	noProxy      string
	logFile      string
}

// NewRootCmd creates the packt-dl command.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "packt-dl",
		Short: "Download every e-book, code archive and video you own on Packt",
		Long: `packt-dl ` + version.Version + `
Mirrors the products of a Packt account into a local directory.

Every owned product is downloaded in the requested formats. Files that are
already present are skipped, so repeated runs only fetch what is new.

Settings are read from ~/.config/packt-dl/config (INI) and overridden by flags.`,
		Example: `  packt-dl -e me@example.com -p secret -d ~/Books/packt
  packt-dl -b pdf,code -s
  packt-dl --dry-run -b all`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return usageError(err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runDownload(cmd.Context(), cfg)
		},
	}

	f := rootCmd.Flags()
	f.StringVarP(&flags.email, "email", "e", "", "Packt account email")
	f.StringVarP(&flags.password, "pass", "p", "", "Packt account password")
	f.StringVar(&flags.passwordFile, "password-file", "", "Read the account password from this file")
	f.StringVarP(&flags.directory, "directory", "d", "media", "Output directory")
	f.StringVarP(&flags.books, "books", "b", "pdf,mobi,epub,code,video", "Formats to download (comma list or 'all')")
	f.BoolVarP(&flags.separate, "separate", "s", false, "Put each product in its own folder")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "Show requests and skipped files")
	f.BoolVarP(&flags.quiet, "quiet", "q", false, "Only show warnings and errors")
	f.BoolVar(&flags.dryRun, "dry-run", false, "List what would be downloaded without fetching files")
	f.BoolVar(&flags.notify, "notify", false, "Send a desktop notification when the run ends")
	f.StringVar(&flags.apiURL, "api-url", "", "Storefront API base URL")
	f.IntVar(&flags.pageSize, "page-size", 0, "Catalog page size (1-100)")
	f.DurationVar(&flags.refreshAfter, "refresh-after", 0, "Refresh the session token after this long")
	f.IntVar(&flags.retries, "retries", 0, "Retries for failed requests and transfers (0-10)")
	f.StringSliceVar(&flags.skipTitles, "skip-title", nil, "Skip products whose name contains this text (repeatable)")
	f.StringVar(&flags.proxyMode, "proxy-mode", "", "Proxy mode: no-proxy, system, basic, ntlm")
	f.StringVar(&flags.proxyHost, "proxy-host", "", "Proxy host")
	f.IntVar(&flags.proxyPort, "proxy-port", 0, "Proxy port")
	f.StringVar(&flags.noProxy, "no-proxy", "", "Comma-separated hosts that bypass the proxy")
	f.StringVar(&flags.logFile, "log-file", "", "Also write JSON logs to this file (rotated)")
	rootCmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Configuration file path")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"
	rootCmd.AddCommand(newConfigCmd(flags))

	return rootCmd
}

// loadConfig merges defaults, the INI file and the flags the user set, then
// fills in secrets from the terminal when they are missing.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	cfg := config.NewConfig()
	if err := config.LoadFile(cfg, flags.configFile); err != nil {
		return nil, usageError(err)
	}
	applyFlags(cmd, flags, cfg)

	if flags.passwordFile != "" && !cmd.Flags().Changed("pass") {
		secret, insecure, err := config.ReadSecretFile(flags.passwordFile)
		if err != nil {
			return nil, usageError(err)
		}
		if insecure {
			fmt.Fprintf(os.Stderr, "Warning: password file %s is readable by other users. Consider using 'chmod 600 %s'\n",
				flags.passwordFile, flags.passwordFile)
		}
		cfg.Password = secret
	}
	config.ApplyEnvironment(cfg)

	if cfg.Email != "" && cfg.Password == "" && stdinIsTerminal() {
		pass, err := promptSecret(fmt.Sprintf("Packt password for %s: ", cfg.Email))
		if err != nil {
			return nil, usageErrorf("failed to read password: %w", err)
		}
		cfg.Password = pass
	}
	if http.NeedsProxyPassword(cfg) && stdinIsTerminal() {
		pass, err := promptSecret(fmt.Sprintf("Proxy password for %s@%s: ", cfg.ProxyUser, cfg.ProxyHost))
		if err != nil {
			return nil, usageErrorf("failed to read proxy password: %w", err)
		}
		cfg.ProxyPassword = pass
	}

	if err := cfg.Validate(); err != nil {
		return nil, usageError(err)
	}

	dir, err := config.ExpandDirectory(cfg.Directory)
	if err != nil {
		return nil, usageError(err)
	}
	cfg.Directory = dir

	if cfg.LogFile, err = config.ResolveLogFile(cfg.LogFile); err != nil {
		return nil, usageError(err)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, flags *rootFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("email") {
		cfg.Email = flags.email
	}
	if changed("pass") {
		cfg.Password = flags.password
	}
	if changed("directory") {
		cfg.Directory = flags.directory
	}
	if changed("books") {
		cfg.Formats = config.ParseFormats(flags.books)
	}
	if changed("separate") {
		cfg.Separate = flags.separate
	}
	if changed("api-url") {
		cfg.APIBaseURL = strings.TrimSpace(flags.apiURL)
	}
	if changed("page-size") {
		cfg.PageSize = flags.pageSize
	}
	if changed("refresh-after") {
		cfg.RefreshAfter = flags.refreshAfter
	}
	if changed("retries") {
		cfg.Retries = flags.retries
	}
	if changed("skip-title") {
		cfg.SkipTitles = flags.skipTitles
	}
	if changed("proxy-mode") {
		cfg.ProxyMode = flags.proxyMode
	}
	if changed("proxy-host") {
		cfg.ProxyHost = flags.proxyHost
	}
	if changed("proxy-port") {
		cfg.ProxyPort = flags.proxyPort
	}
	if changed("no-proxy") {
		cfg.NoProxy = flags.noProxy
	}
	if changed("log-file") {
		cfg.LogFile = flags.logFile
	}
	if changed("notify") {
		cfg.Notify = flags.notify
	}

	cfg.Verbose = flags.verbose
	cfg.Quiet = flags.quiet
	cfg.DryRun = flags.dryRun
}

func runDownload(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.NewLogger(logging.Options{
		Verbose: cfg.Verbose,
		Quiet:   cfg.Quiet,
		LogFile: cfg.LogFile,
	})
	if err != nil {
		return usageErrorf("failed to open log file: %w", err)
	}
	defer logger.Close()
	if cfg.LogFile != "" {
		logger.Debug().Str("run", logger.RunID()).Str("path", cfg.LogFile).Msg("Writing log file")
	}

	_, err = Run(ctx, cfg, logger)
	return err
}

// Execute runs the root command with a context cancelled by Ctrl+C.
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Loop so a second Ctrl+C while cleaning up does not kill the process
	// before .part files are removed.
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, cancelling...\n", sig)
				cancel()
			}
		}
	}()

	err := NewRootCmd().ExecuteContext(ctx)

	signal.Stop(sigChan)
	close(sigChan)

	return err
}
