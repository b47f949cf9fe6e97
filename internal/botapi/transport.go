package botapi

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpproxy"
	"golang.org/x/net/proxy"

	"github.com/vincentruan/telegram-spring-bot/internal/config"
)

// NewTransport returns an HTTP transport routed through the configured proxy.
// Without an enabled proxy it returns a clone of the default transport with
// environment proxies disabled.
func NewTransport(p config.ProxyConfig) (*http.Transport, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = nil
	if !p.Enabled() {
		return t, nil
	}

	addr := net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	switch p.Type {
	case config.ProxyTypeHTTP, "":
		proxyFn, err := httpProxyFunc(p, addr)
		if err != nil {
			return nil, err
		}
		t.Proxy = func(req *http.Request) (*url.URL, error) {
			return proxyFn(req.URL)
		}
	case config.ProxyTypeSOCKS5:
		dialer, err := socksDialer(p, addr)
		if err != nil {
			return nil, err
		}
		t.DialContext = dialer.DialContext
	default:
		return nil, fmt.Errorf("unsupported proxy type %q", p.Type)
	}
	return t, nil
}

func httpProxyFunc(p config.ProxyConfig, addr string) (func(*url.URL) (*url.URL, error), error) {
	u := &url.URL{Scheme: "http", Host: addr}
	if p.HasCredentials() {
		u.User = url.UserPassword(p.Principal, p.Password)
	}

	noProxy := make([]string, 0, len(p.NonProxyHosts))
	for _, h := range p.NonProxyHosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		// "*.example.com" and ".example.com" both mean every subdomain.
		noProxy = append(noProxy, strings.TrimPrefix(h, "*"))
	}

	cfg := httpproxy.Config{
		HTTPProxy:  u.String(),
		HTTPSProxy: u.String(),
		NoProxy:    strings.Join(noProxy, ","),
	}
	return cfg.ProxyFunc(), nil
}

func socksDialer(p config.ProxyConfig, addr string) (*proxy.PerHost, error) {
	var auth *proxy.Auth
	if p.HasCredentials() {
		auth = &proxy.Auth{User: p.Principal, Password: p.Password}
	}

	direct := &net.Dialer{}
	socks, err := proxy.SOCKS5("tcp", addr, auth, direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy %s: %w", addr, err)
	}

	perHost := proxy.NewPerHost(socks, direct)
	perHost.AddFromString(strings.Join(p.NonProxyHosts, ","))
	return perHost, nil
}
