package database

import (
	"fmt"
	"net/url"

	"github.com/rickgao/streamwatch/internal/config"
)

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.DatabaseConfig) string {
	user := url.UserPassword(cfg.User, cfg.Password)
	if cfg.Password == "" {
		user = url.User(cfg.User)
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     user,
		Host:     fmt.Sprintf("%s:%d", cfg.Host, port),
		Path:     "/" + cfg.Name,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}
