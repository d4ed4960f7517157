package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"
	"strings"

	"golang.org/x/net/http2"

	"github.com/packtdl/packt-dl/internal/config"
	"github.com/packtdl/packt-dl/internal/logging"
)

// CreateOptimizedClient creates the client used to stream book files from the
// signed CDN URLs.
//
// Compared with the API client it has no overall timeout (transfers are bounded
// per file through the context), disables compression since every format is
// already compressed, and prefers HTTP/2 unless a proxy is in the way.
//
// Set DISABLE_HTTP2=true to force HTTP/1.1; FORCE_HTTP2=true keeps HTTP/2 even
// through a proxy.
func CreateOptimizedClient(cfg *config.Config, logger *logging.Logger) (*nethttp.Client, error) {
	var baseClient *nethttp.Client
	if cfg != nil {
		var err error
		baseClient, err = ConfigureHTTPClient(cfg, logger)
		if err != nil {
			return nil, err
		}
	} else {
		baseClient = &nethttp.Client{Transport: newTransport()}
	}

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport; leave it alone.
		baseClient.Timeout = 0
		return baseClient, nil
	}

	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" || (proxyActive(cfg) && os.Getenv("FORCE_HTTP2") != "true") {
		// Proxies tend to break multiplexed streams mid-transfer.
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	baseClient.Transport = tr
	baseClient.Timeout = 0
	return baseClient, nil
}

func proxyActive(cfg *config.Config) bool {
	mode := ProxyModeSystem
	if cfg != nil {
		mode = strings.ToLower(cfg.ProxyMode)
	}
	switch mode {
	case ProxyModeNone, "":
		return false
	case ProxyModeSystem:
		for _, k := range []string{"HTTP_PROXY", "HTTPS_PROXY", "http_proxy", "https_proxy"} {
			if os.Getenv(k) != "" {
				return true
			}
		}
		return false
	default:
		return cfg.ProxyHost != ""
	}
}
