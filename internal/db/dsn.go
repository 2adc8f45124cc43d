package db

import (
	"fmt"
	"net/url"
	"strings"
)

// Supported engine kinds. The engine governs driver selection, dialect
// phrasing, and schema reflection queries.
const (
	EnginePostgreSQL = "postgresql"
	EngineMySQL      = "mysql"
	EngineSQLite     = "sqlite"
)

// DetectEngine classifies a connection string by its scheme or shape.
func DetectEngine(connString string) (string, error) {
	s := strings.TrimSpace(connString)
	switch {
	case s == "":
		return "", fmt.Errorf("empty connection string")
	case strings.HasPrefix(s, "postgres://"), strings.HasPrefix(s, "postgresql://"):
		return EnginePostgreSQL, nil
	case strings.HasPrefix(s, "mysql://"), strings.Contains(s, "@tcp("):
		return EngineMySQL, nil
	case strings.HasPrefix(s, "sqlite://"), strings.HasPrefix(s, "sqlite3://"),
		strings.HasPrefix(s, "file:"),
		strings.HasSuffix(s, ".db"), strings.HasSuffix(s, ".sqlite"), strings.HasSuffix(s, ".sqlite3"):
		return EngineSQLite, nil
	default:
		return "", fmt.Errorf("unrecognized connection string %q: expected a postgres://, mysql:// or sqlite path", connString)
	}
}

// driverFor maps an engine kind to its registered database/sql driver name.
func driverFor(engine string) (string, error) {
	switch engine {
	case EnginePostgreSQL:
		return "pgx", nil
	case EngineMySQL:
		return "mysql", nil
	case EngineSQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported database engine: %s", engine)
	}
}

// normalizeDSN rewrites a connection string into the form the engine's
// driver expects. Postgres URLs pass through; mysql:// URLs are rewritten
// into the go-sql-driver DSN form; sqlite scheme prefixes are stripped down
// to the file path.
func normalizeDSN(connString, engine string) (string, error) {
	switch engine {
	case EnginePostgreSQL:
		return connString, nil

	case EngineMySQL:
		if !strings.HasPrefix(connString, "mysql://") {
			return connString, nil // already in user:pass@tcp(host)/db form
		}
		u, err := url.Parse(connString)
		if err != nil {
			return "", fmt.Errorf("invalid mysql connection URL: %w", err)
		}
		host := u.Host
		if u.Port() == "" {
			host += ":3306"
		}
		cred := ""
		if u.User != nil {
			cred = u.User.Username()
			if pw, ok := u.User.Password(); ok {
				cred += ":" + pw
			}
			cred += "@"
		}
		dsn := fmt.Sprintf("%stcp(%s)/%s", cred, host, strings.TrimPrefix(u.Path, "/"))
		if u.RawQuery != "" {
			dsn += "?" + u.RawQuery
		}
		return dsn, nil

	case EngineSQLite:
		s := strings.TrimPrefix(connString, "sqlite3://")
		s = strings.TrimPrefix(s, "sqlite://")
		return s, nil

	default:
		return "", fmt.Errorf("unsupported database engine: %s", engine)
	}
}
