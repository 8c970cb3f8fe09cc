package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultDataDir = "./data"
	defaultIdentityFile = "identity.key"
	defaultQueueMaxBytes = 256 << 20 // 256 MiB per topic before writes are refused
)

var defaultIdentityPath = filepath.Join(defaultDataDir, defaultIdentityFile)

// Config is the fully-resolved set of knobs a node runs with, assembled
// once at startup from flags and environment variables, parsed once into
// this struct rather than threaded around as loose parameters.
type Config struct {
	DataDir string
	APIAddr string
	HealthAddr string
	DNSAddr string
	DNSDomain string
	DNSUpstream []string
	WireguardIface string

	TrustedOperatorKeys []string

	JWKSURL string
	JWTIssuer string
	JWTAudience string
	JWTLeeway time.Duration

	QueueMaxBytes uint64
}

// loadConfig resolves cfg from cmd's flags, falling back to environment
// variables for values that are also settable that way.
func loadConfig(flags configFlags) Config {
	cfg := Config{
		DataDir: flags.dataDir,
		APIAddr: flags.apiAddr,
		HealthAddr: flags.healthAddr,
		DNSAddr: flags.dnsAddr,
		DNSDomain: flags.dnsDomain,
		WireguardIface: flags.wireguardIface,
		JWTLeeway: 60 * time.Second,
		QueueMaxBytes: defaultQueueMaxBytes,
	}

	if v := os.Getenv("TRUSTED_OPERATOR_KEYS"); v != "" {
		cfg.TrustedOperatorKeys = splitAndTrim(v)
	}
	if v := os.Getenv("DYNAMIC_JWKS_URL"); v != "" {
		cfg.JWKSURL = v
	}
	if v := os.Getenv("DYNAMIC_JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("DYNAMIC_JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if flags.dnsUpstream != "" {
		cfg.DNSUpstream = splitAndTrim(flags.dnsUpstream)
	}
	if flags.queueMaxBytes > 0 {
		cfg.QueueMaxBytes = flags.queueMaxBytes
	}

	return cfg
}

// configFlags mirrors Config's fields that are also settable via CLI flag,
// kept separate so loadConfig can be unit-tested without cobra in scope.
type configFlags struct {
	dataDir string
	apiAddr string
	healthAddr string
	dnsAddr string
	dnsDomain string
	dnsUpstream string
	wireguardIface string
	queueMaxBytes uint64
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
