package search

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/citewatch/citewatch/internal/model"
)

// newHTTPClient builds the outbound HTTP client shared by search and
// evidence probes: bounded timeout, capped redirects, proxy support.
func newHTTPClient(cfg model.HTTPConfig) *http.Client {
	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy: proxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy),
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("stopped after 3 redirects")
			}
			return nil
		},
	}
}

// proxyFunc resolves the proxy for a request from explicit configuration,
// falling back to the environment when none is set.
func proxyFunc(httpProxy, httpsProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}
	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}

// clientTimeout returns a usable timeout even when the config left it zero
func clientTimeout(cfg model.HTTPConfig) time.Duration {
	if cfg.Timeout <= 0 {
		return 10 * time.Second
	}
	return cfg.Timeout
}
