// Package debuginfod implements a small ordered-server-list, bounded-timeout
// HTTP probe/fetch client: on a miss it tries the next server rather than
// retrying the one that just failed. Written directly against net/http,
// since there is no widely adopted debuginfod client library to build on.
package debuginfod

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/19h/symwalker/internal/config"
	"github.com/19h/symwalker/internal/scanerr"
	"github.com/rs/zerolog"
)

// Client probes and fetches debug artifacts from an ordered list of
// debuginfod servers.
type Client struct {
	servers        []string
	httpClient     *http.Client
	requestTimeout time.Duration
	maxBytes       int64
	logger         zerolog.Logger
}

// New builds a Client on a plain http.Client; the given per-request timeout
// is applied to each request via its context, and maxBytes caps Download.
func New(servers []string, requestTimeout time.Duration, maxBytes int64, logger zerolog.Logger) *Client {
	return &Client{
		servers:        servers,
		httpClient:     &http.Client{},
		requestTimeout: requestTimeout,
		maxBytes:       maxBytes,
		logger:         logger.With().Str("component", "debuginfod").Logger(),
	}
}

// ResolveServerList applies §4.6's precedence: --debuginfod-urls flag,
// then DEBUGINFOD_URLS (whitespace-separated), then the built-in default.
func ResolveServerList(flagValue, envValue string) []string {
	if flagValue != "" {
		var out []string
		for _, s := range strings.Split(flagValue, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	if envValue != "" {
		out := strings.Fields(envValue)
		if len(out) > 0 {
			return out
		}
	}
	return config.DefaultDebuginfodURLs
}

// Probe queries each server in order for <server>/buildid/<id>/debuginfo,
// returning the URL of the first server to respond with 2xx. A 404
// continues to the next server; a 5xx or network error is logged and
// skipped (§4.6).
func (c *Client) Probe(ctx context.Context, buildID string) (url string, found bool) {
	for _, server := range c.servers {
		u := fmt.Sprintf("%s/buildid/%s/debuginfo", strings.TrimRight(server, "/"), buildID)

		reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, u, nil)
		if err != nil {
			cancel()
			continue
		}
		resp, err := c.httpClient.Do(req)
		cancel()
		if err != nil {
			c.logger.Debug().Err(err).Str("server", server).Msg("debuginfod probe failed")
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return u, true
		case resp.StatusCode == http.StatusNotFound:
			continue
		default:
			c.logger.Debug().Int("status", resp.StatusCode).Str("server", server).Msg("debuginfod server error")
			continue
		}
	}
	return "", false
}

// Download fetches the debuginfo body from url, streaming it atomically
// (temp file + rename) into <outputDir>/<basename>.debug. Payloads larger
// than the configured cap are rejected.
func (c *Client) Download(ctx context.Context, url, outputDir, basename string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", &scanerr.NetworkTransient{URL: url, Detail: err.Error()}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &scanerr.NetworkTransient{URL: url, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &scanerr.NetworkTransient{URL: url, Detail: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	finalPath := filepath.Join(outputDir, basename+".debug")
	tmp, err := os.CreateTemp(outputDir, ".symwalker-download-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	limited := io.LimitReader(resp.Body, c.maxBytes+1)
	n, err := io.Copy(tmp, limited)
	closeErr := tmp.Close()
	if err != nil {
		return "", err
	}
	if closeErr != nil {
		return "", closeErr
	}
	if n > c.maxBytes {
		return "", fmt.Errorf("debuginfod payload exceeds %d byte cap", c.maxBytes)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", err
	}
	return finalPath, nil
}
