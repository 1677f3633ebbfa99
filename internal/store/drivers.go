package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql" // mysql:// DSNs
	_ "github.com/jackc/pgx/v5/stdlib" // postgres:// DSNs
	_ "modernc.org/sqlite"             // sqlite:// DSNs (pure-Go, no cgo)
)

// Dialect captures the placeholder style and driver name for a DSN
// scheme, so the same query text can target Postgres, MySQL, or SQLite
// without a query builder dependency.
type Dialect struct {
	Driver      string
	Placeholder func(n int) string
}

var postgresDialect = Dialect{Driver: "pgx", Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) }}
var dollarlessDialect = Dialect{Driver: "", Placeholder: func(int) string { return "?" }}

// OpenSQL opens the metadata store for a DSN of the form
// "postgres://...", "mysql://...", or "sqlite://path/to/file.db",
// registering whichever of the three pack drivers the scheme selects.
func OpenSQL(dsn string) (*sql.DB, Dialect, error) {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return nil, Dialect{}, fmt.Errorf("store: dsn %q has no scheme", dsn)
	}
	var driver string
	var dialect Dialect
	switch scheme {
	case "postgres", "postgresql":
		driver, dialect = "pgx", postgresDialect
	case "mysql":
		// The mysql driver takes a bare "user:pass@tcp(host)/db" DSN, no
		// scheme prefix.
		driver, dialect = "mysql", dollarlessDialect
		dialect.Driver = "mysql"
		dsn = rest
	case "sqlite", "sqlite3":
		driver, dialect = "sqlite", dollarlessDialect
		dialect.Driver = "sqlite"
		dsn = rest
	default:
		return nil, Dialect{}, fmt.Errorf("store: unsupported dsn scheme %q", scheme)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("store: open %s: %w", driver, err)
	}
	return db, dialect, nil
}
