package auth_server_config

import (
	"time"

	"github.com/ateliero/configurator/internal/obs"
	kafkarepo "github.com/ateliero/configurator/internal/repository/kafka"
	pg "github.com/ateliero/configurator/internal/repository/postgres"
	redisrepo "github.com/ateliero/configurator/internal/repository/redis"
	"github.com/ateliero/configurator/internal/services/auth"
	"github.com/ateliero/configurator/internal/token"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig() obs.OTELConfig {
	return obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (lc *Log) AsLoggerConfig(app App) obs.LogConfig {
	return obs.LogConfig{
		Level:  lc.Level,
		Pretty: lc.Pretty,
		App:    app.Name,
		Env:    app.Env,
		Ver:    app.Version,
	}
}

type Auth struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	ResetSecret   string        `mapstructure:"reset_secret"`
	CookieSecret  string        `mapstructure:"cookie_secret"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	ResetTTL      time.Duration `mapstructure:"reset_ttl"`
	Issuer        string        `mapstructure:"issuer"`
	BcryptCost    int           `mapstructure:"bcrypt_cost"`

	// TrustProxyHeaders lets X-Forwarded-For identify the client for rate
	// limiting and session metadata. Enable only behind a proxy that
	// overwrites the header.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`

	AccessCookie  string `mapstructure:"access_cookie"`
	RefreshCookie string `mapstructure:"refresh_cookie"`
	CookieDomain  string `mapstructure:"cookie_domain"`
	CookiePath    string `mapstructure:"cookie_path"`
	CookieSecure  bool   `mapstructure:"cookie_secure"`
}

func (ac *Auth) AsTokenConfig() token.Config {
	return token.Config{
		AccessSecret:  []byte(ac.AccessSecret),
		RefreshSecret: []byte(ac.RefreshSecret),
		ResetSecret:   []byte(ac.ResetSecret),
		AccessTTL:     ac.AccessTTL,
		RefreshTTL:    ac.RefreshTTL,
		ResetTTL:      ac.ResetTTL,
		Issuer:        ac.Issuer,
	}
}

func (ac *Auth) AsCookieConfig() auth.CookieConfig {
	return auth.CookieConfig{
		AccessName:  ac.AccessCookie,
		RefreshName: ac.RefreshCookie,
		Domain:      ac.CookieDomain,
		AuthPath:    ac.CookiePath,
		Secure:      ac.CookieSecure,
		Secret:      []byte(ac.CookieSecret),
	}
}

type Config struct {
	App    App              `mapstructure:"app"`
	Server Server           `mapstructure:"server"`
	DB     pg.Config        `mapstructure:"db"`
	Redis  redisrepo.Config `mapstructure:"redis"`
	Kafka  kafkarepo.Config `mapstructure:"kafka"`
	OTEL   OTEL             `mapstructure:"otel"`
	Log    Log              `mapstructure:"log"`
	Auth   Auth             `mapstructure:"auth"`
}
