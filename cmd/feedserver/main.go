package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/promecieus/internal/config"
	"github.com/danmuck/promecieus/internal/jobservice"
	"github.com/danmuck/promecieus/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	shutdownTimeout = 5 * time.Second
	envPrefix       = "FEEDSERVER"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "feedserver: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	v := newOverrides()

	cmd := &cobra.Command{
		Use:           "feedserver",
		Short:         "Stub job service speaking the /ws/status feed protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       jobservice.Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(configPath, v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a feedserver TOML config")
	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().Int64("quota-hard", 0, "number of apps allowed at once")
	cmd.Flags().String("step-delay", "", "delay between pipeline steps, e.g. 500ms")
	for _, name := range []string{"addr", "quota-hard", "step-delay"} {
		_ = v.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	cmd.AddCommand(newInitConfigCmd())
	cmd.CompletionOptions.HiddenDefaultCmd = true
	return cmd
}

// newOverrides layers FEEDSERVER_* env vars over flags.
func newOverrides() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func newInitConfigCmd() *cobra.Command {
	var output string
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a feedserver config template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteTemplate(output, config.KindService, force); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", config.KindService, output)
			return err
		},
	}
	cmd.Flags().StringVar(&output, "output", "feedserver.toml", "output path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// resolveConfig loads the optional file, applies flag and env overrides
// and validates the result.
func resolveConfig(path string, v *viper.Viper) (config.ServiceConfig, error) {
	cfg := config.DefaultServiceConfig()
	if path != "" {
		loaded, err := config.LoadServiceConfig(path)
		if err != nil {
			return config.ServiceConfig{}, err
		}
		cfg = loaded
	}
	if v.IsSet("addr") {
		cfg.Addr = strings.TrimSpace(v.GetString("addr"))
	}
	if v.IsSet("quota-hard") {
		cfg.QuotaHard = v.GetInt64("quota-hard")
	}
	if v.IsSet("step-delay") {
		cfg.StepDelay = strings.TrimSpace(v.GetString("step-delay"))
	}
	if err := config.ValidateServiceConfig(cfg); err != nil {
		return config.ServiceConfig{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.ServiceConfig) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.ConfigureRuntime()
	log := logging.Component("feedserver")
	gin.SetMode(gin.ReleaseMode)

	svc := jobservice.New(cfg)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info().
		Str("addr", cfg.Addr).
		Int64("quota_hard", cfg.QuotaHard).
		Dur("step", cfg.Step()).
		Msg("feedserver listening")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		svc.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("feedserver listen: %w", err)
	}

	log.Info().Msg("feedserver shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	svc.Close()
	return err
}
