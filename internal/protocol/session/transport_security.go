package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSecurityMode     = errors.New("session: invalid security mode")
	ErrTLSRequired             = errors.New("session: tls required")
	ErrTLSInsecureSkipNotAllow = errors.New("session: insecure skip verify not allowed")
	ErrTLSOptionsWithoutTLS    = errors.New("session: tls options set for plain ws endpoint")
)

func NormalizeSecurityMode(mode SecurityMode) SecurityMode {
	if strings.TrimSpace(string(mode)) == "" {
		return SecurityModeDevelopment
	}
	return SecurityMode(strings.ToLower(strings.TrimSpace(string(mode))))
}

// ValidateClientTransport checks the TLS settings against the endpoint
// scheme ("ws" or "wss").
func (c Config) ValidateClientTransport(scheme string) error {
	mode := NormalizeSecurityMode(c.SecurityMode)
	switch mode {
	case SecurityModeDevelopment, SecurityModeProduction:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSecurityMode, c.SecurityMode)
	}

	secure := strings.EqualFold(strings.TrimSpace(scheme), "wss")
	if mode == SecurityModeProduction {
		if !secure {
			return ErrTLSRequired
		}
		if c.TLS.InsecureSkipVerify {
			return ErrTLSInsecureSkipNotAllow
		}
	}
	if !secure && (strings.TrimSpace(c.TLS.CAFile) != "" || c.TLS.InsecureSkipVerify) {
		return ErrTLSOptionsWithoutTLS
	}
	return nil
}
