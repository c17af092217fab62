// ABOUTME: Callback listener on plain TCP or on the tailnet via tsnet
// ABOUTME: Funnel exposes the callback publicly over HTTPS

package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"tailscale.com/tsnet"
)

// TailscaleOptions configures the tsnet node serving the callback.
type TailscaleOptions struct {
	Enabled   bool
	Hostname  string
	AuthKey   string
	StateDir  string
	Ephemeral bool
	Funnel    bool
}

// Listener is the callback listener and the tsnet node behind it, if any.
type Listener struct {
	net.Listener
	// PublicURL is the tailnet base URL when listening through tsnet.
	PublicURL string
	ts        *tsnet.Server
}

// Close closes the listener and stops the tsnet node.
func (l *Listener) Close() error {
	err := l.Listener.Close()
	if l.ts != nil {
		err = errors.Join(err, l.ts.Close())
	}
	return err
}

// Listen opens the callback listener: addr over TCP, or the tailnet when
// ts.Enabled.
func Listen(ctx context.Context, addr string, ts TailscaleOptions, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !ts.Enabled {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", addr, err)
		}
		return &Listener{Listener: ln}, nil
	}

	stateDir, err := resolveStateDir(ts.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	authKey := ts.AuthKey
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return nil, errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}

	srv := &tsnet.Server{
		Hostname:  ts.Hostname,
		Dir:       stateDir,
		Ephemeral: ts.Ephemeral,
		AuthKey:   authKey,
	}
	logger.Info("starting tailscale node", "hostname", ts.Hostname, "state_dir", stateDir, "ephemeral", ts.Ephemeral)
	status, err := srv.Up(ctx)
	if err != nil {
		_ = srv.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	var dnsName string
	if status.Self != nil {
		dnsName = strings.TrimSuffix(status.Self.DNSName, ".")
	}

	var ln net.Listener
	scheme := "http://"
	if ts.Funnel {
		logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err = srv.ListenFunnel("tcp", ":443")
		scheme = "https://"
	} else {
		ln, err = srv.Listen("tcp", ":80")
	}
	if err != nil {
		_ = srv.Close()
		return nil, fmt.Errorf("listening on tailnet: %w", err)
	}

	l := &Listener{Listener: ln, ts: srv}
	if dnsName != "" {
		l.PublicURL = scheme + dnsName
	}
	logger.Info("tailscale node ready", "hostname", ts.Hostname, "dns_name", dnsName)
	return l, nil
}

func resolveStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "coven-bot", "tailscale"), nil
}
