// Package http builds the HTTP clients packt-dl talks through: proxy-aware
// API clients, long-lived transfer clients, and the retry loop used around
// file streams.
package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http/httpproxy"

	"github.com/packtdl/packt-dl/internal/config"
	"github.com/packtdl/packt-dl/internal/constants"
	"github.com/packtdl/packt-dl/internal/logging"
)

// Proxy modes accepted in config and on the command line.
const (
	ProxyModeNone   = "no-proxy"
	ProxyModeSystem = "system"
	ProxyModeBasic  = "basic"
	ProxyModeNTLM   = "ntlm"
)

// apiClientTimeout bounds a single API round trip. File transfers clear it.
const apiClientTimeout = 5 * time.Minute

// ConfigureHTTPClient returns a client whose transport honours the configured
// proxy mode. A nil logger discards proxy diagnostics.
func ConfigureHTTPClient(cfg *config.Config, logger *logging.Logger) (*nethttp.Client, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	transport := newTransport()
	mode := strings.ToLower(cfg.ProxyMode)

	var rt nethttp.RoundTripper = transport
	switch mode {
	case ProxyModeNone, "":
		transport.Proxy = nil

	case ProxyModeSystem:
		transport.Proxy = nethttp.ProxyFromEnvironment

	case ProxyModeBasic, ProxyModeNTLM:
		if cfg.ProxyHost == "" {
			logger.Warn().Str("mode", mode).Msg("proxy host missing, connecting directly")
			transport.Proxy = nil
			break
		}
		if NeedsProxyPassword(cfg) {
			logger.Warn().Str("user", cfg.ProxyUser).Msg("proxy password missing, proxy auth disabled")
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(cfg), cfg.NoProxy, logger)
		if mode == ProxyModeNTLM {
			rt = ntlmssp.Negotiator{RoundTripper: transport}
		}

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", cfg.ProxyMode)
	}

	client := &nethttp.Client{
		Transport: rt,
		Timeout:   apiClientTimeout,
	}

	if cfg.ProxyWarmup && mode != ProxyModeNone && mode != "" && !NeedsProxyPassword(cfg) {
		if err := warmupProxy(client, cfg.APIBaseURL); err != nil {
			return nil, fmt.Errorf("proxy warmup failed: %w", err)
		}
		logger.Debug().Str("mode", mode).Msg("proxy warmup succeeded")
	}

	return client, nil
}

func newTransport() *nethttp.Transport {
	return &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}
}

// buildProxyURL constructs the proxy URL. Credentials are embedded only when
// both user and password are present.
func buildProxyURL(cfg *config.Config) *url.URL {
	port := cfg.ProxyPort
	if port == 0 {
		port = 8080
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(cfg.ProxyHost, fmt.Sprint(port)),
	}
	if cfg.ProxyUser != "" && cfg.ProxyPassword != "" {
		proxyURL.User = url.UserPassword(cfg.ProxyUser, cfg.ProxyPassword)
	}
	return proxyURL
}

// warmupProxy makes one cheap request so NTLM handshakes happen before the
// first real call.
func warmupProxy(client *nethttp.Client, baseURL string) error {
	if baseURL == "" {
		baseURL = constants.DefaultAPIBaseURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodHead, baseURL, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("warmup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("warmup request returned server error: %d", resp.StatusCode)
	}
	return nil
}

// proxyFuncWithBypass routes everything through proxyURL except hosts matched
// by noProxy (domains, wildcards and CIDRs, as understood by httpproxy).
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string, logger *logging.Logger) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	proxyFunc := (&httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}).ProxyFunc()

	return func(req *nethttp.Request) (*url.URL, error) {
		result, err := proxyFunc(req.URL)
		if result == nil {
			logger.Debug().Str("host", req.URL.Host).Msg("proxy bypass")
		}
		return result, err
	}
}

// NeedsProxyPassword reports whether an authenticating proxy mode has a user
// but no password. The CLI prompts for it when stdin is a terminal.
func NeedsProxyPassword(cfg *config.Config) bool {
	mode := strings.ToLower(cfg.ProxyMode)
	if mode != ProxyModeBasic && mode != ProxyModeNTLM {
		return false
	}
	return cfg.ProxyUser != "" && cfg.ProxyPassword == ""
}
