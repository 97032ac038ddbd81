package pgstore

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/domino14/curvestock/pkg/config"
)

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.DBConfig) string {
	// URL-encode password to handle special characters
	escapedPassword := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		escapedPassword,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)
}

// migrateURL rewrites a postgres:// URL to the scheme the migrate pgx/v5
// driver registers.
func migrateURL(connStr string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(connStr, prefix) {
			return "pgx5://" + strings.TrimPrefix(connStr, prefix)
		}
	}
	return connStr
}
