package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/packtdl/packt-dl/internal/api"
	"github.com/packtdl/packt-dl/internal/config"
	"github.com/packtdl/packt-dl/internal/logging"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd(flags *rootFlags) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage packt-dl configuration",
		Long: `Configuration management commands for packt-dl.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Log in with the configured account
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd(flags))
	configCmd.AddCommand(newConfigShowCmd(flags))
	configCmd.AddCommand(newConfigTestCmd(flags))
	configCmd.AddCommand(newConfigPathCmd(flags))

	return configCmd
}

// configPath is --config or the default location.
func configPath(flags *rootFlags) (string, error) {
	if flags.configFile != "" {
		return flags.configFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd(flags *rootFlags) *cobra.Command {
	var force, savePassword bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for packt-dl.

The configuration is saved to ~/.config/packt-dl/config unless --config is
given. The password is only stored with --save-password; otherwise it is
asked for at the start of every run.

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(flags)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg := config.NewConfig()
			if err := runConfigWizard(bufio.NewReader(cmd.InOrStdin()), out, cfg); err != nil {
				return err
			}
			if savePassword && stdinIsTerminal() {
				if cfg.Password, err = promptSecret("Packt password: "); err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
			}

			if err := config.SaveFile(cfg, path, savePassword); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nConfiguration saved to: %s\n", path)
			fmt.Fprintln(out, "Test your configuration with: packt-dl config test")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&savePassword, "save-password", false, "Store the account password in the config file")

	return cmd
}

// runConfigWizard fills cfg from answers read from reader.
func runConfigWizard(reader *bufio.Reader, out io.Writer, cfg *config.Config) error {
	fmt.Fprintln(out, "packt-dl Configuration Setup")
	fmt.Fprintln(out, "============================")
	fmt.Fprintln(out)

	var err error
	for cfg.Email == "" {
		if cfg.Email, err = promptLine(reader, out, "Packt account email (required)", ""); err != nil {
			return err
		}
		if cfg.Email == "" {
			fmt.Fprintln(out, "  Error: email is required")
		}
	}

	if cfg.Directory, err = promptLine(reader, out, "Output directory", cfg.Directory); err != nil {
		return err
	}

	formats, err := promptLine(reader, out, "Formats (comma list or 'all')", strings.Join(cfg.Formats, ","))
	if err != nil {
		return err
	}
	if parsed := config.ParseFormats(formats); len(parsed) > 0 {
		cfg.Formats = parsed
	}

	if cfg.Separate, err = promptYesNo(reader, out, "One folder per product?", cfg.Separate); err != nil {
		return err
	}

	fmt.Fprintln(out)
	useProxy, err := promptYesNo(reader, out, "Configure proxy?", false)
	if err != nil {
		return err
	}
	if useProxy {
		fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
		if cfg.ProxyMode, err = promptLine(reader, out, "Proxy mode", "system"); err != nil {
			return err
		}
		if cfg.ProxyMode == "basic" || cfg.ProxyMode == "ntlm" {
			if cfg.ProxyHost, err = promptLine(reader, out, "Proxy host", ""); err != nil {
				return err
			}
			port, err := promptLine(reader, out, "Proxy port", "8080")
			if err != nil {
				return err
			}
			if v, err := strconv.Atoi(port); err == nil && v > 0 {
				cfg.ProxyPort = v
			}
			if cfg.ProxyUser, err = promptLine(reader, out, "Proxy user (optional)", ""); err != nil {
				return err
			}
		}
	}

	if cfg.Notify, err = promptYesNo(reader, out, "Desktop notification when a run ends?", false); err != nil {
		return err
	}
	return nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the configuration file merged over the defaults.

PACKT_EMAIL and PACKT_PASSWORD fill credentials the file leaves empty.
Download flags such as --directory apply to a single run and are not shown.

Priority: config file > environment > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.NewConfig()
			if err := config.LoadFile(cfg, flags.configFile); err != nil {
				return err
			}
			source := config.ApplyEnvironment(cfg)
			printConfig(cmd.OutOrStdout(), cfg, source)
			return nil
		},
	}
}

// printConfig writes cfg with the password masked. passwordSource names
// where the password came from when it was not the config file.
func printConfig(out io.Writer, cfg *config.Config, passwordSource string) {
	fmt.Fprintln(out, "Current Configuration")
	fmt.Fprintln(out, "=====================")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Account:")
	fmt.Fprintf(out, "  API Base URL: %s\n", cfg.APIBaseURL)
	fmt.Fprintf(out, "  Email:        %s\n", valueOrUnset(cfg.Email))
	switch {
	case cfg.Password != "" && passwordSource != "":
		fmt.Fprintf(out, "  Password:     <set> (%s)\n", passwordSource)
	case cfg.Password != "":
		fmt.Fprintln(out, "  Password:     <set>")
	default:
		fmt.Fprintln(out, "  Password:     <not set>")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Downloads:")
	fmt.Fprintf(out, "  Directory:   %s\n", cfg.Directory)
	fmt.Fprintf(out, "  Formats:     %s\n", strings.Join(cfg.Formats, ", "))
	fmt.Fprintf(out, "  Separate:    %t\n", cfg.Separate)
	fmt.Fprintf(out, "  Page Size:   %d\n", cfg.PageSize)
	fmt.Fprintf(out, "  Retries:     %d\n", cfg.Retries)
	fmt.Fprintf(out, "  Refresh:     %s\n", cfg.RefreshAfter)
	if len(cfg.SkipTitles) > 0 {
		fmt.Fprintf(out, "  Skip Titles: %s\n", strings.Join(cfg.SkipTitles, ", "))
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Proxy Settings:")
	fmt.Fprintf(out, "  Proxy Mode: %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(out, "  Proxy Host: %s\n", cfg.ProxyHost)
		fmt.Fprintf(out, "  Proxy Port: %d\n", cfg.ProxyPort)
	}
	if cfg.NoProxy != "" {
		fmt.Fprintf(out, "  No Proxy:   %s\n", cfg.NoProxy)
	}
}

func valueOrUnset(s string) string {
	if s == "" {
		return "<not set>"
	}
	return s
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Log in with the configured account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.NewConfig()
			if err := config.LoadFile(cfg, flags.configFile); err != nil {
				return err
			}
			config.ApplyEnvironment(cfg)
			if cfg.Password == "" && cfg.Email != "" && stdinIsTerminal() {
				pass, err := promptSecret(fmt.Sprintf("Packt password for %s: ", cfg.Email))
				if err != nil {
					return err
				}
				cfg.Password = pass
			}
			if err := cfg.Validate(); err != nil {
				return usageError(err)
			}

			client, err := api.NewClient(cfg, logging.NewDefaultCLILogger())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Logging in to %s as %s...\n", cfg.APIBaseURL, cfg.Email)
			if err := client.Session().Login(cmd.Context()); err != nil {
				return usageError(err)
			}
			fmt.Fprintln(out, "Login successful")
			if exp := client.Session().ExpiresAt(); !exp.IsZero() {
				fmt.Fprintf(out, "Token expires at %s\n", exp.Local().Format("15:04:05"))
			}
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(flags)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
