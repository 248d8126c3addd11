// Package config loads gateway configuration from flags and
// environment variables, per spec.md's ambient configuration stack
// (SPEC_FULL.md §10.2).
package config

import (
	"errors"
	"flag"
	"io"
	"os"
	"strings"
	"time"
)

// Config holds every configuration option the gateway's components
// need: listen address and ambient paths, backend origin resolution,
// per-service enablement defaults, override directives, upstream HTTP
// client settings, and AWS self-registration.
type Config struct {
	ListenAddr  string
	LogLevel    string
	MetricsPath string
	HealthPath  string

	PrivacyMode bool

	// Backend origin resolution, per spec.md §4.5.
	Origin         string
	HTTPSOnly      bool
	AllowEmptyPath bool

	// EnabledUploadPackDefault / EnabledReceivePackDefault feed
	// backend.Config.EnabledDefaults: the answer checkIfEnabled gives
	// when a local repo's git config is silent on the service.
	EnabledUploadPackDefault  bool
	EnabledReceivePackDefault bool

	// OverrideHeaderAllowList names the inbound request headers
	// middleware is permitted to honour as checkForAuth/checkIfEnabled/
	// checkIfExists override directives (e.g. a trusted reverse proxy
	// setting "X-Gateway-Auth: ok"). Headers not on this list are
	// ignored by the override middleware, so an untrusted client can't
	// forge its way past a probe by guessing a header name.
	OverrideHeaderAllowList []string

	UpstreamTimeout time.Duration
	UserAgent       string

	AWSCloudMapServiceID string
	Route53HostedZoneID  string
	Route53RecordName    string
}

// Load builds a Config from os.Args and the environment.
func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs builds a Config from an explicit argument list, for tests.
func LoadArgs(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("smart-git-gateway", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ListenAddr, "listen-addr", envOrDefault("LISTEN_ADDR", ":8080"), "HTTP listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "log level: debug,info,warn,error")
	fs.StringVar(&cfg.MetricsPath, "metrics-path", envOrDefault("METRICS_PATH", "/metrics"), "path for Prometheus metrics")
	fs.StringVar(&cfg.HealthPath, "health-path", envOrDefault("HEALTH_PATH", "/healthz"), "path for health checks")
	fs.BoolVar(&cfg.PrivacyMode, "privacy-mode", envOrDefaultBool("PRIVACY_MODE", false), "coerce 401/403 rejections to 404 so protected repos aren't disclosed")

	fs.StringVar(&cfg.Origin, "origin", envOrDefault("ORIGIN", ""), "absolute local path or http(s) URL backing every request path, or empty to require an absolute local request path")
	fs.BoolVar(&cfg.HTTPSOnly, "https-only", envOrDefaultBool("HTTPS_ONLY", true), "restrict remote origin matching to https://")
	fs.BoolVar(&cfg.AllowEmptyPath, "allow-empty-path", envOrDefaultBool("ALLOW_EMPTY_PATH", false), "allow an empty request path to resolve against origin")

	fs.BoolVar(&cfg.EnabledUploadPackDefault, "enabled-upload-pack-default", envOrDefaultBool("ENABLED_UPLOAD_PACK_DEFAULT", true), "checkIfEnabled default for upload-pack when repo config is silent")
	fs.BoolVar(&cfg.EnabledReceivePackDefault, "enabled-receive-pack-default", envOrDefaultBool("ENABLED_RECEIVE_PACK_DEFAULT", false), "checkIfEnabled default for receive-pack when repo config is silent")

	overrideHeadersStr := fs.String("override-header-allow-list", envOrDefault("OVERRIDE_HEADER_ALLOW_LIST", ""), "comma-separated request headers middleware may honour as probe override directives")

	fs.DurationVar(&cfg.UpstreamTimeout, "upstream-timeout", envOrDefaultDuration("UPSTREAM_TIMEOUT", 30*time.Second), "timeout for remote origin HTTP calls")
	fs.StringVar(&cfg.UserAgent, "user-agent", envOrDefault("USER_AGENT", "smart-git-gateway/1.0"), "User-Agent sent to remote origins")

	fs.StringVar(&cfg.AWSCloudMapServiceID, "aws-cloud-map-service-id", envOrDefault("AWS_CLOUD_MAP_SERVICE_ID", ""), "AWS Cloud Map service ID for self-registration and health heartbeat")
	fs.StringVar(&cfg.Route53HostedZoneID, "route53-hosted-zone-id", envOrDefault("ROUTE53_HOSTED_ZONE_ID", ""), "Route53 hosted zone ID for self-registration")
	fs.StringVar(&cfg.Route53RecordName, "route53-record-name", envOrDefault("ROUTE53_RECORD_NAME", ""), "Route53 record name (e.g. git-gateway.example.com)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	for _, h := range strings.Split(*overrideHeadersStr, ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			cfg.OverrideHeaderAllowList = append(cfg.OverrideHeaderAllowList, h)
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Route53HostedZoneID != "" && cfg.Route53RecordName == "" {
		return errors.New("route53-hosted-zone-id requires route53-record-name")
	}
	if cfg.Route53RecordName != "" && cfg.Route53HostedZoneID == "" {
		return errors.New("route53-record-name requires route53-hosted-zone-id")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}
