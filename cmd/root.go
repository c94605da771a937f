// Package cmd is the browseragent CLI: a thin cobra front door over
// internal/facade, grounded in the teacher's cmd/root.go (Viper-backed
// PersistentPreRunE, BROWSERAGENT_ env prefix, --config flag).
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cdpscope/browseragent/internal/config"
	"github.com/cdpscope/browseragent/internal/facade"
	"github.com/cdpscope/browseragent/internal/observability"
)

// Version is set by the linker at build time; "dev" otherwise.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "browseragent",
	Short:   "Drives a headless-capable Chromium over the Chrome DevTools Protocol.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(); err != nil {
			return fmt.Errorf("initializing configuration: %w", err)
		}

		var cfg config.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "browseragent"})
			return fmt.Errorf("unmarshaling config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			observability.InitializeLogger(cfg.Logger)
			return fmt.Errorf("invalid configuration: %w", err)
		}
		config.Set(&cfg)

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("browseragent starting", zap.String("version", Version))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./browseragent.yaml)")

	rootCmd.AddCommand(newStateCmd())
	rootCmd.AddCommand(newClickCmd())
	rootCmd.AddCommand(newTypeCmd())
	rootCmd.AddCommand(newSelectCmd())
	rootCmd.AddCommand(newScrollCmd())
	rootCmd.AddCommand(newKeyCmd())
	rootCmd.AddCommand(newNavigateCmd())
	rootCmd.AddCommand(newScreenshotCmd())
	rootCmd.AddCommand(newBackCmd())
	rootCmd.AddCommand(newForwardCmd())
	rootCmd.AddCommand(newRefreshCmd())
}

// Execute runs the root command, returning an exit-code-appropriate error.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			if ctx.Err() == nil {
				logger.Error("command execution failed", zap.Error(err))
			}
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

func initializeConfig() error {
	SetDefaultsAndBind(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("browseragent")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BROWSERAGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	return nil
}

// SetDefaultsAndBind applies config.SetDefaults to v; split out from
// initializeConfig so other entry points (tests) can reuse it without
// touching the package-level viper singleton.
func SetDefaultsAndBind(v *viper.Viper) {
	config.SetDefaults(v)
}

// newBrowser builds a facade.Browser from the loaded config and starts it,
// returning a cleanup func that must be deferred.
func newBrowser(ctx context.Context) (*facade.Browser, func(), error) {
	cfg := config.Get()
	logger := observability.GetLogger()

	b := facade.New(facade.BrowserConfig{
		Headless:          cfg.Browser.Headless,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		Host:              cfg.Browser.Host,
		Port:              cfg.Browser.Port,
		PageLoadTimeout:   cfg.Browser.PageLoadTimeout,
		ActionTimeout:     cfg.Browser.ActionTimeout,
		NetworkIdleWindow: cfg.Browser.NetworkIdleWindow,
		ScreenshotQuality: cfg.Browser.ScreenshotQuality,
		ScreenshotFormat:  cfg.Browser.ScreenshotFormat,
		UserDataDir:       cfg.Browser.UserDataDir,
		ScreenshotDir:     cfg.Browser.ScreenshotDir,
		Debug:             cfg.Browser.Debug,
	}, logger)

	if err := b.Start(ctx); err != nil {
		return nil, func() {}, err
	}
	return b, func() { _ = b.Stop() }, nil
}

// printActionResult renders an ActionResult the way every verb command
// reports its outcome, and returns a non-nil error when it failed so RunE
// can propagate a non-zero exit code.
func printActionResult(r facade.ActionResult) error {
	if r.Success {
		msg := fmt.Sprintf("OK %s", r.ActionType)
		if r.ElementIndex != nil {
			msg += fmt.Sprintf(" [%d]", *r.ElementIndex)
		}
		if r.ExtractedContent != "" {
			msg += ": " + r.ExtractedContent
		}
		if r.ScreenshotRef != "" {
			msg += " -> " + r.ScreenshotRef
		}
		fmt.Println(msg)
		return nil
	}

	msg := fmt.Sprintf("FAILED %s", r.ActionType)
	if r.ElementIndex != nil {
		msg += fmt.Sprintf(" [%d]", *r.ElementIndex)
	}
	msg += fmt.Sprintf(": %s (%s)", r.ErrorMessage, r.ErrorKind)
	fmt.Fprintln(os.Stderr, msg)
	return fmt.Errorf("%s", r.ErrorMessage)
}

// ExitCodeFor maps a command's outcome to an exit code: 0 success, 130 when
// ctx was cancelled (interrupted), 1 for every other error. Usage and
// configuration errors are not told apart and also map to 1; no outcome
// yields 2.
func ExitCodeFor(ctx context.Context, err error) int {
	if err == nil {
		return 0
	}
	if ctx.Err() == context.Canceled {
		return 130
	}
	return 1
}
