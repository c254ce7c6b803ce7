package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/promecieus/internal/config"
	"github.com/danmuck/promecieus/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

type options struct {
	configPath  string
	server      string
	logLevel    string
	metricsAddr string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "feedctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "feedctl",
		Short:         "Terminal client for the PromeCIeus live status feed",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.CompletionOptions.HiddenDefaultCmd = true

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a feedctl TOML config")
	cmd.PersistentFlags().StringVar(&opts.server, "server", "", "job service base URL (http, https, ws or wss)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: trace|debug|info|warn|error|off")
	cmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	cmd.AddCommand(
		newWatchCmd(opts),
		newSubmitCmd(opts),
		newInitConfigCmd(),
		newVersionCmd(),
	)
	return cmd
}

// resolve merges defaults, the optional config file and flags, then
// configures logging.
func (o *options) resolve() (clientConfig, error) {
	cfg := defaultClientConfig()
	if o.configPath != "" {
		loaded, err := loadClientConfig(o.configPath)
		if err != nil {
			return clientConfig{}, err
		}
		cfg = loaded
	}
	if o.server != "" {
		cfg.Server = o.server
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.metricsAddr != "" {
		cfg.MetricsAddr = o.metricsAddr
	}

	logging.ConfigureRuntime()
	if os.Getenv(logging.EnvLogLevel) == "" {
		lvl, ok := logging.ParseLevel(cfg.LogLevel)
		if !ok && cfg.LogLevel != "" {
			return clientConfig{}, fmt.Errorf("unknown log level %q", cfg.LogLevel)
		}
		if ok {
			zerolog.SetGlobalLevel(lvl)
		}
	}
	return cfg, nil
}

func newInitConfigCmd() *cobra.Command {
	var output string
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a feedctl config template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteTemplate(output, config.KindClient, force); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", config.KindClient, output)
			return err
		},
	}
	cmd.Flags().StringVar(&output, "output", "feedctl.toml", "output path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}
