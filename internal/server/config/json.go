package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/dmitrijs2005/gophauth/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept "15m"
// style strings or integer nanoseconds; pointer fields distinguish "absent"
// from the zero value.
type JsonConfig struct {
	EndpointAddrGRPC            string           `json:"endpoint_addr_grpc"`
	DatabaseDSN                 string           `json:"database_dsn"`
	SecretKey                   string           `json:"secret_key"`
	SigningMethod               string           `json:"signing_method"`
	Issuer                      string           `json:"issuer"`
	AccessTokenValidityDuration *timex.Duration  `json:"access_token_validity_duration"`
	BcryptCost                  int              `json:"bcrypt_cost"`
	DefaultRole                 string           `json:"default_role"`
	StrictRefreshRotation       *bool            `json:"strict_refresh_rotation"`
	SweepInterval               *timex.Duration  `json:"sweep_interval"`
	LogLevel                    string           `json:"log_level"`
	TraceStdout                 *bool            `json:"trace_stdout"`
	Google                      *GoogleConfig    `json:"google"`
	OIDC                        *OIDCConfig      `json:"oidc"`
	Bootstrap                   *BootstrapConfig `json:"bootstrap_admin"`
}

// parseJSON overlays the file named by -c/-config in args, if any.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}

	c.apply(cfg)
	return nil
}

func (c *JsonConfig) apply(cfg *Config) {
	setString(&cfg.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&cfg.DatabaseDSN, c.DatabaseDSN)
	setString(&cfg.SecretKey, c.SecretKey)
	setString(&cfg.SigningMethod, c.SigningMethod)
	setString(&cfg.Issuer, c.Issuer)
	setString(&cfg.DefaultRole, c.DefaultRole)
	setString(&cfg.LogLevel, c.LogLevel)

	if c.AccessTokenValidityDuration != nil {
		cfg.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.SweepInterval != nil {
		cfg.SweepInterval = c.SweepInterval.Duration
	}
	if c.BcryptCost != 0 {
		cfg.BcryptCost = c.BcryptCost
	}
	if c.StrictRefreshRotation != nil {
		cfg.StrictRefreshRotation = *c.StrictRefreshRotation
	}
	if c.TraceStdout != nil {
		cfg.TraceStdout = *c.TraceStdout
	}
	if c.Google != nil {
		setString(&cfg.Google.ClientID, c.Google.ClientID)
		setString(&cfg.Google.ClientSecret, c.Google.ClientSecret)
		setString(&cfg.Google.RedirectURL, c.Google.RedirectURL)
	}
	if c.OIDC != nil {
		setString(&cfg.OIDC.Name, c.OIDC.Name)
		setString(&cfg.OIDC.Issuer, c.OIDC.Issuer)
		setString(&cfg.OIDC.JWKSURL, c.OIDC.JWKSURL)
		setString(&cfg.OIDC.Audience, c.OIDC.Audience)
	}
	if c.Bootstrap != nil {
		setString(&cfg.Bootstrap.Username, c.Bootstrap.Username)
		setString(&cfg.Bootstrap.Email, c.Bootstrap.Email)
		setString(&cfg.Bootstrap.Password, c.Bootstrap.Password)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
