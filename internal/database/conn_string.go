package database

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/wslink/internal/config"
)

// BuildConnString builds a PostgreSQL connection URL from config.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

// Redacted returns the connection URL with the password masked, for logging.
func Redacted(cfg config.DBConfig) string {
	u, err := url.Parse(BuildConnString(cfg))
	if err != nil {
		return fmt.Sprintf("postgres://%s@%s/%s", cfg.User, cfg.Host, cfg.Name)
	}
	return u.Redacted()
}
