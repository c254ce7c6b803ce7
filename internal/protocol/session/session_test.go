package session

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/promecieus/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultBackoff()
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 9, nil); got != 10*time.Second {
		t.Fatalf("attempt9 got=%v", got)
	}
}

func TestNextMatchesClosedForm(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultBackoff()
	delay := cfg.InitialDelay
	for n := 0; n < 20; n++ {
		want := 250 * time.Millisecond
		for i := 0; i < n && want < 10*time.Second; i++ {
			want *= 2
		}
		if want > 10*time.Second {
			want = 10 * time.Second
		}
		if delay != want {
			t.Fatalf("n=%d delay=%v want=%v", n, delay, want)
		}
		if NextBackoffDelay(cfg, n+1, nil) != want {
			t.Fatalf("n=%d attempt form=%v want=%v", n, NextBackoffDelay(cfg, n+1, nil), want)
		}
		delay = Next(cfg, delay)
	}
}

func TestNextMonotonicUntilCap(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultBackoff()
	prev := time.Duration(0)
	delay := Next(cfg, prev)
	for i := 0; i < 32; i++ {
		if delay < prev {
			t.Fatalf("delay decreased prev=%v delay=%v", prev, delay)
		}
		prev, delay = delay, Next(cfg, delay)
	}
	if got := Next(cfg, cfg.MaxDelay); got != cfg.MaxDelay {
		t.Fatalf("Next(cap)=%v want %v", got, cfg.MaxDelay)
	}
}

func TestNextRestartsAtInitialDelay(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultBackoff()
	if got := Next(cfg, 0); got != 250*time.Millisecond {
		t.Fatalf("Next(0)=%v", got)
	}
	if got := Next(cfg, -time.Second); got != 250*time.Millisecond {
		t.Fatalf("Next(-1s)=%v", got)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{PingInterval: 30 * time.Second}.WithDefaults()
	if cfg.Backoff.InitialDelay != 250*time.Millisecond || cfg.Backoff.MaxDelay != 10*time.Second {
		t.Fatalf("unexpected backoff defaults: %+v", cfg.Backoff)
	}
	if cfg.PongWait <= cfg.PingInterval {
		t.Fatalf("pong wait must exceed ping interval: %+v", cfg)
	}
	if cfg.SecurityMode != SecurityModeDevelopment {
		t.Fatalf("unexpected security mode: %q", cfg.SecurityMode)
	}
}

func TestValidateClientTransport(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	if err := cfg.ValidateClientTransport("ws"); err != nil {
		t.Fatalf("development ws: %v", err)
	}

	cfg.SecurityMode = SecurityModeProduction
	if err := cfg.ValidateClientTransport("ws"); !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}
	cfg.TLS.InsecureSkipVerify = true
	if err := cfg.ValidateClientTransport("wss"); !errors.Is(err, ErrTLSInsecureSkipNotAllow) {
		t.Fatalf("expected ErrTLSInsecureSkipNotAllow, got %v", err)
	}

	cfg.SecurityMode = SecurityModeDevelopment
	if err := cfg.ValidateClientTransport("ws"); !errors.Is(err, ErrTLSOptionsWithoutTLS) {
		t.Fatalf("expected ErrTLSOptionsWithoutTLS, got %v", err)
	}

	cfg.SecurityMode = "staging"
	if err := cfg.ValidateClientTransport("wss"); !errors.Is(err, ErrInvalidSecurityMode) {
		t.Fatalf("expected ErrInvalidSecurityMode, got %v", err)
	}
}
