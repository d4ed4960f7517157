package http

import (
	"net/http"
	"net/url"
	"testing"

	ntlmssp "github.com/Azure/go-ntlmssp"

	"github.com/packtdl/packt-dl/internal/config"
	"github.com/packtdl/packt-dl/internal/logging"
)

func TestProxyFuncWithBypass_EmptyNoProxy(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "", logging.NewNopLogger())

	req, _ := http.NewRequest("GET", "https://services.packtpub.com/auth-v1/users/tokens", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.Host != "proxy.corp:8080" {
		t.Fatalf("expected proxy.corp:8080, got %v", result)
	}
}

func TestProxyFuncWithBypass_Patterns(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "*.example.com, 192.168.0.0/16, internal.corp", logging.NewNopLogger())

	tests := []struct {
		name       string
		url        string
		wantBypass bool
	}{
		{"wildcard match", "https://cdn.example.com/book.pdf", true},
		{"cidr match", "http://192.168.1.100/api", true},
		{"exact domain match", "https://internal.corp/status", true},
		{"subdomain of exact domain", "https://api.internal.corp/status", true},
		{"non-match", "https://services.packtpub.com/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", tt.url, nil)
			result, err := proxyFunc(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantBypass && result != nil {
				t.Errorf("expected bypass (nil) for %s, got %v", tt.url, result)
			}
			if !tt.wantBypass && result == nil {
				t.Errorf("expected proxy for %s, got nil (bypass)", tt.url)
			}
		})
	}
}

func TestBuildProxyURL(t *testing.T) {
	cfg := config.NewConfig()
	cfg.ProxyHost = "proxy.corp"

	u := buildProxyURL(cfg)
	if u.Host != "proxy.corp:8080" {
		t.Errorf("expected default port 8080, got %s", u.Host)
	}
	if u.User != nil {
		t.Errorf("expected no credentials, got %v", u.User)
	}

	cfg.ProxyPort = 3128
	cfg.ProxyUser = "me"
	u = buildProxyURL(cfg)
	if u.User != nil {
		t.Error("credentials must not be embedded without a password")
	}

	cfg.ProxyPassword = "secret"
	u = buildProxyURL(cfg)
	if u.Host != "proxy.corp:3128" || u.User.Username() != "me" {
		t.Errorf("unexpected proxy URL %s", u.Redacted())
	}
}

func TestConfigureHTTPClient_Modes(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		host     string
		wantNTLM bool
		wantErr  bool
	}{
		{"no proxy", "no-proxy", "", false, false},
		{"system", "system", "", false, false},
		{"basic", "basic", "proxy.corp", false, false},
		{"basic without host", "basic", "", false, false},
		{"ntlm", "ntlm", "proxy.corp", true, false},
		{"unknown", "socks", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig()
			cfg.ProxyMode = tt.mode
			cfg.ProxyHost = tt.host

			client, err := ConfigureHTTPClient(cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			_, isNTLM := client.Transport.(ntlmssp.Negotiator)
			if isNTLM != tt.wantNTLM {
				t.Errorf("NTLM transport = %v, want %v", isNTLM, tt.wantNTLM)
			}
		})
	}
}

func TestNeedsProxyPassword(t *testing.T) {
	cfg := config.NewConfig()
	cfg.ProxyMode = "basic"
	cfg.ProxyUser = "me"
	if !NeedsProxyPassword(cfg) {
		t.Error("expected password prompt for basic with user and no password")
	}

	cfg.ProxyPassword = "x"
	if NeedsProxyPassword(cfg) {
		t.Error("no prompt needed once password is set")
	}

	cfg.ProxyMode = "system"
	cfg.ProxyPassword = ""
	if NeedsProxyPassword(cfg) {
		t.Error("system mode never needs a proxy password")
	}
}

func TestCreateOptimizedClient(t *testing.T) {
	t.Setenv("DISABLE_HTTP2", "true")

	cfg := config.NewConfig()
	cfg.ProxyMode = "no-proxy"

	client, err := CreateOptimizedClient(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Timeout != 0 {
		t.Errorf("transfer client must not have an overall timeout, got %v", client.Timeout)
	}
	tr, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", client.Transport)
	}
	if !tr.DisableCompression {
		t.Error("expected compression disabled")
	}
	if tr.ForceAttemptHTTP2 {
		t.Error("DISABLE_HTTP2 should turn HTTP/2 off")
	}
}
