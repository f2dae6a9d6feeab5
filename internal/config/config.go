package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// Reserved subdomains are owned by the host process and can never be registered by users.
const (
	StatusSubdomain   = "status"
	RegisterSubdomain = "register"
	AuthSubdomain     = "auth"
	AppSubdomain      = "app"
)

var ReservedSubdomains = []string{StatusSubdomain, RegisterSubdomain, AuthSubdomain, AppSubdomain}

func IsReserved(label string) bool {
	for _, r := range ReservedSubdomains {
		if r == label {
			return true
		}
	}
	return false
}

type Configuration struct {
	// BaseDomain is the apex every site lives under, such as example.io. Sites are served at {label}.{BaseDomain}.
	BaseDomain string
	Port       uint16
	// SSLPort is only listened on when a certificate pair exists in SSLCertsDir.
	SSLPort     uint16
	SitesDir    string
	RoutesDir   string
	ConfigDir   string
	BackupsDir  string
	SSLCertsDir string
	UploadsDir  string
	MediaDir    string
	// AppDir holds the static files served on the app. subdomain.
	AppDir        string
	MigrationsDir string
	// DbPath is the path to the sqlite database file.
	DbPath string
	// SessionSecret seeds the session cookie signing. It must be set in production.
	SessionSecret string
	// JWTSecret signs the HS256 tokens accepted by routes in jwt mode.
	JWTSecret    string
	JWTExpiresIn time.Duration
	// AdminUsername and AdminPassword describe the account created on first start if no admin exists.
	AdminUsername string
	AdminPassword string
	AdminEmail    string
	// OAuthIssuer is the issuer identifier advertised in the discovery document and in id tokens.
	OAuthIssuer string
	// JWKSPath is where the public key set is stored. The private key lives next to it, with a .pem extension.
	JWKSPath string
	// StatusPollingInterval is how often every site's health endpoint is probed.
	StatusPollingInterval time.Duration

	FederationEnabled bool
	// FederationWhitelist, if not empty, is the only set of hosts deliveries may go to.
	FederationWhitelist []string
	// FederationBlacklist hosts never receive deliveries.
	FederationBlacklist    []string
	FederationPollInterval time.Duration
	FederationMaxAttempts  int
	FederationBatchSize    int
	// FederationTimeout bounds every outbound delivery attempt.
	FederationTimeout time.Duration

	// NodeBin is the runtime started for sites that ship a server.js.
	NodeBin  string
	LogLevel string
	Env      string
	// RsaKeySize specifies the size of the RSA keys used to sign outgoing activities and id tokens.
	RsaKeySize int
	// Https decides the scheme of every generated URL.
	Https bool
	// Url is the instance's root url, built from BaseDomain.
	Url *url.URL
}

func (c *Configuration) IsProduction() bool {
	return c.Env == Production
}

func (c *Configuration) Scheme() string {
	if c.Https {
		return "https"
	}
	return "http"
}

// SiteURL returns the root url of the site served at {label}.{BaseDomain}.
func (c *Configuration) SiteURL(label string) *url.URL {
	return &url.URL{Scheme: c.Scheme(), Host: label + "." + c.BaseDomain, Path: "/"}
}

// UserSiteURL returns the root url of a user's site: their subdomain if they have one, their username otherwise.
func (c *Configuration) UserSiteURL(subdomain, username string) *url.URL {
	if subdomain == "" {
		subdomain = strings.ToLower(username)
	}
	return c.SiteURL(subdomain)
}

// ProfileURL is the html profile page of a local user.
func (c *Configuration) ProfileURL(subdomain, username string) *url.URL {
	return c.UserSiteURL(subdomain, username).JoinPath("@" + username)
}

func (c *Configuration) SitesFile() string {
	return filepath.Join(c.ConfigDir, "sites.json")
}

func (c *Configuration) CertFiles() (cert, key string) {
	return filepath.Join(c.SSLCertsDir, "fullchain.pem"), filepath.Join(c.SSLCertsDir, "privkey.pem")
}

func defaults(v *viper.Viper) {
	v.SetDefault("BASE_DOMAIN", "example.io")
	v.SetDefault("PORT", 3000)
	v.SetDefault("SSL_PORT", 3443)
	v.SetDefault("SITES_DIR", "sites")
	v.SetDefault("ROUTES_DIR", "routes")
	v.SetDefault("CONFIG_DIR", "config")
	v.SetDefault("BACKUPS_DIR", "backups")
	v.SetDefault("SSL_CERTS_DIR", "ssl")
	v.SetDefault("UPLOADS_DIR", "uploads")
	v.SetDefault("MEDIA_DIR", "media")
	v.SetDefault("APP_DIR", "app")
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("DB_PATH", "data/fedhost.db")
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_EXPIRES_IN", "24h")
	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("OAUTH_ISSUER", "")
	v.SetDefault("JWKS_PATH", "")
	v.SetDefault("STATUS_POLLING_INTERVAL", "30s")
	v.SetDefault("FEDERATION_ENABLED", true)
	v.SetDefault("FEDERATION_WHITELIST", "")
	v.SetDefault("FEDERATION_BLACKLIST", "")
	v.SetDefault("FEDERATION_POLL_INTERVAL", "30s")
	v.SetDefault("FEDERATION_MAX_ATTEMPTS", 5)
	v.SetDefault("FEDERATION_BATCH_SIZE", 10)
	v.SetDefault("FEDERATION_TIMEOUT", "10s")
	v.SetDefault("NODE_BIN", "node")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("NODE_ENV", Development)
	v.SetDefault("RSA_KEY_SIZE", 2048)
	v.SetDefault("HTTPS", true)
}

// ReadConfig builds the configuration from the environment, optionally overridden by CONFIG_DIR/config.toml.
func ReadConfig() (Configuration, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(v.GetString("CONFIG_DIR"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Configuration{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return FromViper(v)
}

func FromViper(v *viper.Viper) (cfg Configuration, err error) {
	cfg = Configuration{
		BaseDomain:    strings.ToLower(strings.TrimSpace(v.GetString("BASE_DOMAIN"))),
		Port:          v.GetUint16("PORT"),
		SSLPort:       v.GetUint16("SSL_PORT"),
		SitesDir:      v.GetString("SITES_DIR"),
		RoutesDir:     v.GetString("ROUTES_DIR"),
		ConfigDir:     v.GetString("CONFIG_DIR"),
		BackupsDir:    v.GetString("BACKUPS_DIR"),
		SSLCertsDir:   v.GetString("SSL_CERTS_DIR"),
		UploadsDir:    v.GetString("UPLOADS_DIR"),
		MediaDir:      v.GetString("MEDIA_DIR"),
		AppDir:        v.GetString("APP_DIR"),
		MigrationsDir: v.GetString("MIGRATIONS_DIR"),
		DbPath:        v.GetString("DB_PATH"),
		SessionSecret: v.GetString("SESSION_SECRET"),
		JWTSecret:     v.GetString("JWT_SECRET"),
		AdminUsername: v.GetString("ADMIN_USERNAME"),
		AdminPassword: v.GetString("ADMIN_PASSWORD"),
		AdminEmail:    v.GetString("ADMIN_EMAIL"),
		OAuthIssuer:   v.GetString("OAUTH_ISSUER"),
		JWKSPath:      v.GetString("JWKS_PATH"),

		FederationEnabled:     v.GetBool("FEDERATION_ENABLED"),
		FederationWhitelist:   splitList(v.GetString("FEDERATION_WHITELIST")),
		FederationBlacklist:   splitList(v.GetString("FEDERATION_BLACKLIST")),
		FederationMaxAttempts: v.GetInt("FEDERATION_MAX_ATTEMPTS"),
		FederationBatchSize:   v.GetInt("FEDERATION_BATCH_SIZE"),

		NodeBin:    v.GetString("NODE_BIN"),
		LogLevel:   v.GetString("LOG_LEVEL"),
		Env:        v.GetString("NODE_ENV"),
		RsaKeySize: v.GetInt("RSA_KEY_SIZE"),
		Https:      v.GetBool("HTTPS"),
	}

	if cfg.BaseDomain == "" {
		return cfg, errors.New("BASE_DOMAIN must not be empty")
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"JWT_EXPIRES_IN", &cfg.JWTExpiresIn},
		{"STATUS_POLLING_INTERVAL", &cfg.StatusPollingInterval},
		{"FEDERATION_POLL_INTERVAL", &cfg.FederationPollInterval},
		{"FEDERATION_TIMEOUT", &cfg.FederationTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = ParseDuration(v.GetString(d.key)); err != nil {
			return cfg, fmt.Errorf("%s: %w", d.key, err)
		}
	}

	if cfg.FederationMaxAttempts < 1 {
		return cfg, errors.New("FEDERATION_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.FederationBatchSize < 1 {
		cfg.FederationBatchSize = 1
	}

	if cfg.OAuthIssuer == "" {
		cfg.OAuthIssuer = cfg.Scheme() + "://" + AuthSubdomain + "." + cfg.BaseDomain
	}
	cfg.OAuthIssuer = strings.TrimSuffix(cfg.OAuthIssuer, "/")

	if cfg.JWKSPath == "" {
		cfg.JWKSPath = filepath.Join(cfg.ConfigDir, "jwks.json")
	}

	cfg.Url = &url.URL{Scheme: cfg.Scheme(), Host: cfg.BaseDomain, Path: "/"}
	return cfg, nil
}

// ParseDuration accepts Go duration strings ("30s") and plain integers, which are read as milliseconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			list = append(list, item)
		}
	}
	return list
}
