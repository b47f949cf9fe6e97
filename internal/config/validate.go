package config

import (
	"fmt"
	"strings"
	"time"
)

var (
	proxyTypes  = []string{ProxyTypeHTTP, "SOCKS_V4", ProxyTypeSOCKS5}
	authSchemes = []string{AuthSchemeBasic, "DIGEST", "NTLM", "SPNEGO", "KERBEROS"}
)

// Validate checks the configuration and normalizes case-insensitive enums.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	c.Service.LogLevel = strings.ToLower(c.Service.LogLevel)
	if !validLogLevels[c.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", c.Service.LogLevel)
	}
	c.Service.LogFormat = strings.ToLower(c.Service.LogFormat)
	if c.Service.LogFormat != "json" && c.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", c.Service.LogFormat)
	}

	if t := c.Service.Tracing; t.SampleRatio < 0 || t.SampleRatio > 1 {
		return fmt.Errorf("service.tracing.sample_ratio must be within [0, 1] (got %g)", t.SampleRatio)
	}

	if err := c.Sender.Validate(); err != nil {
		return err
	}
	if err := c.BotAPI.validate(); err != nil {
		return err
	}

	if c.Journal.Enabled {
		if c.Journal.Path == "" {
			return fmt.Errorf("journal.path is required when journal is enabled")
		}
		if c.Journal.Retention < 0 {
			return fmt.Errorf("journal.retention must be >= 0")
		}
	}

	if c.API.Enabled {
		if c.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api is enabled")
		}
		if c.API.APIKey == "" {
			return fmt.Errorf("api.api_key is required when api is enabled")
		}
		if err := unresolved("api.api_key", c.API.APIKey); err != nil {
			return err
		}
		if c.API.MaxWait < 0 {
			return fmt.Errorf("api.max_wait must be >= 0")
		}
	}
	return nil
}

// Validate checks queue, timing and pool settings.
func (s SenderConfig) Validate() error {
	if s.QueueSize < 1 {
		return fmt.Errorf("sender.queue_size must be >= 1 (got %d)", s.QueueSize)
	}
	durations := []struct {
		key string
		d   time.Duration
	}{
		{"sender.enqueue_timeout", s.EnqueueTimeout},
		{"sender.poll_interval", s.PollInterval},
		{"sender.shutdown_timeout", s.ShutdownTimeout},
	}
	for _, v := range durations {
		if v.d <= 0 {
			return fmt.Errorf("%s must be positive (got %s)", v.key, v.d)
		}
	}
	if err := s.Executor.validate("sender.executor"); err != nil {
		return err
	}
	return s.Callback.validate("sender.callback")
}

func (p PoolConfig) validate(key string) error {
	if p.CoreSize < 0 {
		return fmt.Errorf("%s.core_size must be >= 0 (got %d)", key, p.CoreSize)
	}
	if p.MaxSize < 1 {
		return fmt.Errorf("%s.max_size must be >= 1 (got %d)", key, p.MaxSize)
	}
	if p.MaxSize < p.CoreSize {
		return fmt.Errorf("%s.max_size (%d) must be >= core_size (%d)", key, p.MaxSize, p.CoreSize)
	}
	if p.KeepAlive < 0 {
		return fmt.Errorf("%s.keep_alive must be >= 0", key)
	}
	if p.QueueCapacity < 0 {
		return fmt.Errorf("%s.queue_capacity must be >= 0 (0 selects rendezvous hand-off)", key)
	}
	return nil
}

func (b *BotAPIConfig) validate() error {
	if b.BaseURL == "" {
		return fmt.Errorf("botapi.base_url is required")
	}
	if b.Timeout <= 0 {
		return fmt.Errorf("botapi.timeout must be positive")
	}
	if err := unresolved("botapi.token", b.Token); err != nil {
		return err
	}
	return b.Proxy.normalize()
}

// normalize resolves Type and AuthScheme case-insensitively.
func (p *ProxyConfig) normalize() error {
	if p.Type == "" {
		p.Type = ProxyTypeHTTP
	}
	typ, ok := matchFold(p.Type, proxyTypes)
	if !ok && strings.EqualFold(p.Type, "socks5") {
		typ, ok = ProxyTypeSOCKS5, true
	}
	if !ok {
		return fmt.Errorf("botapi.proxy.type must be in [%s], case insensitive (got %q)", strings.Join(proxyTypes, ","), p.Type)
	}
	p.Type = typ

	if p.AuthScheme != "" {
		scheme, ok := matchFold(p.AuthScheme, authSchemes)
		if !ok {
			return fmt.Errorf("botapi.proxy.auth_scheme must be in [%s], case insensitive (got %q)", strings.Join(authSchemes, ","), p.AuthScheme)
		}
		p.AuthScheme = scheme
	}

	if !p.Enabled() {
		return nil
	}
	if p.Port > 65535 {
		return fmt.Errorf("botapi.proxy.port out of range: %d", p.Port)
	}
	if p.Type == "SOCKS_V4" {
		return fmt.Errorf("botapi.proxy.type SOCKS_V4 is not supported, use %s or %s", ProxyTypeHTTP, ProxyTypeSOCKS5)
	}
	if p.HasCredentials() {
		if p.AuthScheme == "" {
			p.AuthScheme = AuthSchemeBasic
		}
		if p.AuthScheme != AuthSchemeBasic {
			return fmt.Errorf("botapi.proxy.auth_scheme %s is not supported, only %s", p.AuthScheme, AuthSchemeBasic)
		}
	}
	return nil
}

func matchFold(v string, options []string) (string, bool) {
	for _, o := range options {
		if strings.EqualFold(v, o) {
			return o, true
		}
	}
	return "", false
}

func unresolved(key, v string) error {
	if m := envVarPattern.FindStringSubmatch(v); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", key, m[1])
	}
	return nil
}
