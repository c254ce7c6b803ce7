package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	KindService = "feedserver"
	KindClient  = "feedctl"
)

func Template(kind string) (string, error) {
	switch kind {
	case KindService:
		return serviceTemplate, nil
	case KindClient:
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, force bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serviceTemplate = `name = "promecieus"
addr = ":8080"
cors_origins = ["http://localhost:3000"]
quota_hard = 5
step_delay = "500ms"
prow_prefixes = ["https://prow.svc.ci.openshift.org/view"]
app_domain = "apps.promecieus.local"
`

const clientTemplate = `server = "http://localhost:8080"
security_mode = "development"
connect_timeout = "5s"
ping_interval = "15s"
pong_wait = "45s"
backoff_initial = "250ms"
backoff_max = "10s"
backoff_multiplier = 2.0
log_level = "info"
metrics_addr = ""
`
