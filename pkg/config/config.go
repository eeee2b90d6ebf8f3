// Package config loads autopeerd's process configuration from the
// environment. Env var names are case-insensitive; required keys missing
// at startup fail fast rather than deep inside a request handler.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the fully resolved process configuration.
type Config struct {
	// JWTSecret signs and validates bearer tokens.
	JWTSecret string
	// GitUsername and GitToken are HTTP basic credentials for the registry
	// mirror clone.
	GitUsername string
	GitToken    string
	// MyASN is the operator's own ASN, recorded in every peering record.
	MyASN uint32
	// BindAddress is the host:port the HTTP API listens on.
	BindAddress string
	// PendingDir and VerifiedDir are the record store's two bucket roots.
	PendingDir  string
	VerifiedDir string
	// RegistryURL and RegistryPath are the registry mirror's source and
	// local working-copy path.
	RegistryURL  string
	RegistryPath string
	// TunnelConfigDir and DaemonConfigDir are the deployer's two config
	// roots; TunnelTool and DaemonTool name the external binaries it
	// invokes against them.
	TunnelConfigDir string
	DaemonConfigDir string
	TunnelTool      string
	DaemonTool      string
	// CookieDomain is set on the autopeer_token cookie the HTTP API
	// issues after verify; empty means the browser's default host
	// scoping applies.
	CookieDomain string
	// LogLevel and UnstructuredLogs mirror pkg/logger's own env vars;
	// pkg/logger reads them from the environment itself.
	LogLevel         string
	UnstructuredLogs bool
	// PendingTTL bounds how long an unverified pending record may live
	// before the gc sweep removes it.
	PendingTTL string
}

const (
	keyJWTSecret        = "jwt_secret"
	keyGitUsername      = "dn42_git_username"
	keyGitToken         = "dn42_git_token"
	keyMyASN            = "my_asn"
	keyBindAddress      = "bind_address"
	keyPendingDir       = "data_pending_dir"
	keyVerifiedDir      = "data_verified_dir"
	keyRegistryURL      = "dn42_registry_url"
	keyRegistryPath     = "dn42_registry_path"
	keyTunnelConfigDir  = "tunnel_config_dir"
	keyDaemonConfigDir  = "daemon_config_dir"
	keyTunnelTool       = "tunnel_tool"
	keyDaemonTool       = "daemon_tool"
	keyCookieDomain     = "cookie_domain"
	keyLogLevel         = "log_level"
	keyUnstructuredLogs = "unstructured_logs"
	keyPendingTTL       = "pending_ttl"
)

// defaultMyASN is the vendor-install default local ASN.
const defaultMyASN = 4242420000

// New reads configuration from the environment. Env var names are
// case-insensitive: viper's AutomaticEnv reads the upper-case spelling,
// and any other spelling is bound explicitly when the upper-case one is
// unset.
func New() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, kv := range os.Environ() {
		name, value, _ := strings.Cut(kv, "=")
		if upper := strings.ToUpper(name); name != upper {
			if _, set := os.LookupEnv(upper); !set {
				v.Set(strings.ToLower(name), value)
			}
		}
	}

	v.SetDefault(keyBindAddress, "0.0.0.0:8080")
	v.SetDefault(keyPendingDir, "/var/lib/autopeerd/pending")
	v.SetDefault(keyVerifiedDir, "/var/lib/autopeerd/verified")
	v.SetDefault(keyRegistryPath, "/var/lib/autopeerd/registry")
	v.SetDefault(keyTunnelConfigDir, "/etc/wireguard")
	v.SetDefault(keyDaemonConfigDir, "/etc/bird")
	v.SetDefault(keyTunnelTool, "wg-quick")
	v.SetDefault(keyDaemonTool, "birdc")
	v.SetDefault(keyMyASN, defaultMyASN)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyUnstructuredLogs, false)
	v.SetDefault(keyPendingTTL, "1h")

	cfg := &Config{
		JWTSecret:        v.GetString(keyJWTSecret),
		GitUsername:      v.GetString(keyGitUsername),
		GitToken:         v.GetString(keyGitToken),
		MyASN:            uint32(v.GetUint(keyMyASN)), // #nosec G115 -- ASNs fit in 32 bits by definition
		BindAddress:      v.GetString(keyBindAddress),
		PendingDir:       v.GetString(keyPendingDir),
		VerifiedDir:      v.GetString(keyVerifiedDir),
		RegistryURL:      v.GetString(keyRegistryURL),
		RegistryPath:     v.GetString(keyRegistryPath),
		TunnelConfigDir:  v.GetString(keyTunnelConfigDir),
		DaemonConfigDir:  v.GetString(keyDaemonConfigDir),
		TunnelTool:       v.GetString(keyTunnelTool),
		DaemonTool:       v.GetString(keyDaemonTool),
		CookieDomain:     v.GetString(keyCookieDomain),
		LogLevel:         v.GetString(keyLogLevel),
		UnstructuredLogs: v.GetBool(keyUnstructuredLogs),
		PendingTTL:       v.GetString(keyPendingTTL),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.GitUsername == "" {
		missing = append(missing, "DN42_GIT_USERNAME")
	}
	if c.GitToken == "" {
		missing = append(missing, "DN42_GIT_TOKEN")
	}
	if c.RegistryURL == "" {
		missing = append(missing, "DN42_REGISTRY_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
