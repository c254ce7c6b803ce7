package conn

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/danmuck/promecieus/internal/protocol/session"
	"github.com/danmuck/promecieus/internal/protocol/wire"
	"github.com/gorilla/websocket"
)

var (
	ErrEndpointRequired  = errors.New("conn: endpoint required")
	ErrUnsupportedScheme = errors.New("conn: unsupported endpoint scheme")
)

// Transport is one connection instance. ReadFrame blocks until a frame
// arrives or the instance fails. Close may be called concurrently with
// ReadFrame; WriteFrame and Ping are only called from one goroutine.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Ping() error
	Close() error
}

// Dialer creates a new Transport per attempt; instances are never reused.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// StatusEndpoint derives the websocket status URL from a service base URL.
// http and https map to ws and wss; the /ws/status path is appended unless
// already present.
func StatusEndpoint(base string) (string, error) {
	raw := strings.TrimSpace(base)
	if raw == "" {
		return "", ErrEndpointRequired
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("conn: parse endpoint %q: %w", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("conn: endpoint %q missing host", raw)
	}
	if !strings.HasSuffix(u.Path, wire.StatusPath) {
		u.Path = strings.TrimRight(u.Path, "/") + wire.StatusPath
	}
	return u.String(), nil
}

// WebsocketDialer dials the status endpoint with gorilla/websocket.
type WebsocketDialer struct {
	endpoint string
	cfg      session.Config
	header   http.Header
	dialer   websocket.Dialer
}

func NewWebsocketDialer(endpoint string, cfg session.Config) (*WebsocketDialer, error) {
	cfg = cfg.WithDefaults()
	target, err := StatusEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	u, _ := url.Parse(target)
	if err := cfg.ValidateClientTransport(u.Scheme); err != nil {
		return nil, err
	}

	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	if u.Scheme == "wss" {
		tlsCfg, err := clientTLSConfig(cfg.TLS, u.Hostname())
		if err != nil {
			return nil, err
		}
		d.TLSClientConfig = tlsCfg
	}
	return &WebsocketDialer{
		endpoint: target,
		cfg:      cfg,
		header:   http.Header{},
		dialer:   d,
	}, nil
}

func (d *WebsocketDialer) Endpoint() string {
	return d.endpoint
}

func (d *WebsocketDialer) Dial(ctx context.Context) (Transport, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.cfg.ConnectTimeout)
	defer cancel()
	conn, resp, err := d.dialer.DialContext(dialCtx, d.endpoint, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("conn: dial %s status=%s: %w", d.endpoint, resp.Status, err)
		}
		return nil, fmt.Errorf("conn: dial %s: %w", d.endpoint, err)
	}
	return newWSTransport(conn, d.cfg), nil
}

func clientTLSConfig(cfg session.TLSConfig, host string) (*tls.Config, error) {
	out := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		ServerName:         host,
	}
	if name := strings.TrimSpace(cfg.ServerName); name != "" {
		out.ServerName = name
	}
	if caPath := strings.TrimSpace(cfg.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("conn: parse tls ca bundle: %s", caPath)
		}
		out.RootCAs = pool
	}
	return out, nil
}

type wsTransport struct {
	conn *websocket.Conn
	cfg  session.Config
}

func newWSTransport(conn *websocket.Conn, cfg session.Config) *wsTransport {
	conn.SetReadLimit(cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})
	return &wsTransport{conn: conn, cfg: cfg}
}

func (t *wsTransport) ReadFrame() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	return data, nil
}

func (t *wsTransport) WriteFrame(data []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.cfg.WriteTimeout))
}

func (t *wsTransport) Close() error {
	_ = t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return t.conn.Close()
}
