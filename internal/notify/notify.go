// Package notify implements the best-effort cache flush call made to a
// puppet server after an environment has been republished. Failure to
// notify never rolls back a deployment; the flush is freshness, not part of
// the consistency contract.
package notify

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultPort is the puppet server admin API port, used when the configured
// server does not name one.
const DefaultPort = "8140"

const requestTimeout = 30 * time.Second

// Notifier flushes a puppet server's cached view of served environments
// over mutual TLS.
type Notifier struct {
	server string
	client *http.Client
	logger *slog.Logger
}

// New creates a notifier for the given server using the client TLS identity.
func New(server, certFile, keyFile, caFile string, logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caData, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caData) {
		return nil, fmt.Errorf("no certificates found in CA file %s", caFile)
	}

	if !strings.Contains(server, ":") {
		server += ":" + DefaultPort
	}

	client := &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				RootCAs:      pool,
			},
		},
	}

	return &Notifier{
		server: server,
		client: client,
		logger: logger,
	}, nil
}

// FlushEnvironmentCache asks the puppet server to drop its cached view of
// the named environment's code.
func (n *Notifier) FlushEnvironmentCache(ctx context.Context, environment string) error {
	target := FlushURL(n.server, environment)
	n.logger.Debug("flushing environment cache", "environment", environment, "url", target)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build cache flush request: %w", err)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("cache flush request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("cache flush for %s returned %s: %s",
			environment, resp.Status, strings.TrimSpace(string(body)))
	}

	n.logger.Info("flushed environment cache", "environment", environment, "server", n.server)
	return nil
}

// FlushURL builds the admin API endpoint for flushing one environment.
func FlushURL(server, environment string) string {
	return fmt.Sprintf("https://%s/puppet-admin-api/v1/environment-cache?environment=%s",
		server, url.QueryEscape(environment))
}
