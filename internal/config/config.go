package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const DefaultProwPrefix = "https://prow.svc.ci.openshift.org/view"

// ServiceConfig configures the stub job service behind feedserver.
type ServiceConfig struct {
	Name         string   `toml:"name"`
	Addr         string   `toml:"addr"`
	CorsOrigins  []string `toml:"cors_origins"`
	QuotaHard    int64    `toml:"quota_hard"`
	StepDelay    string   `toml:"step_delay"`
	ProwPrefixes []string `toml:"prow_prefixes"`
	AppDomain    string   `toml:"app_domain"`
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:         "promecieus",
		Addr:         ":8080",
		CorsOrigins:  []string{"http://localhost:3000"},
		QuotaHard:    5,
		StepDelay:    "500ms",
		ProwPrefixes: []string{DefaultProwPrefix},
		AppDomain:    "apps.promecieus.local",
	}
}

// WithDefaults fills zero-valued fields from DefaultServiceConfig.
func (c ServiceConfig) WithDefaults() ServiceConfig {
	def := DefaultServiceConfig()
	if strings.TrimSpace(c.Name) == "" {
		c.Name = def.Name
	}
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = def.Addr
	}
	if c.QuotaHard == 0 {
		c.QuotaHard = def.QuotaHard
	}
	if strings.TrimSpace(c.StepDelay) == "" {
		c.StepDelay = def.StepDelay
	}
	if len(c.ProwPrefixes) == 0 {
		c.ProwPrefixes = def.ProwPrefixes
	}
	if strings.TrimSpace(c.AppDomain) == "" {
		c.AppDomain = def.AppDomain
	}
	return c
}

// Step parses StepDelay; call after ValidateServiceConfig.
func (c ServiceConfig) Step() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.StepDelay))
	if err != nil {
		return 0
	}
	return d
}

func LoadServiceConfig(path string) (ServiceConfig, error) {
	var cfg ServiceConfig
	if err := loadToml(path, &cfg); err != nil {
		return ServiceConfig{}, err
	}
	cfg = cfg.WithDefaults()
	if err := ValidateServiceConfig(cfg); err != nil {
		return ServiceConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateServiceConfig(cfg ServiceConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("service config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("service config missing addr")
	}
	if cfg.QuotaHard < 0 {
		return fmt.Errorf("service config quota_hard must be >= 0, got %d", cfg.QuotaHard)
	}
	d, err := time.ParseDuration(strings.TrimSpace(cfg.StepDelay))
	if err != nil {
		return fmt.Errorf("service config step_delay invalid: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("service config step_delay must be >= 0")
	}
	for i, origin := range cfg.CorsOrigins {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("cors_origins[%d] must be an http(s) origin: %q", i, origin)
		}
	}
	for i, prefix := range cfg.ProwPrefixes {
		if strings.TrimSpace(prefix) == "" {
			return fmt.Errorf("prow_prefixes[%d] is empty", i)
		}
	}
	return nil
}
