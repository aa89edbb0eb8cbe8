package dbclient

import (
	"fmt"

	_ "github.com/lib/pq"
)

var postgresDialect = dialect{
	driver:      "postgres",
	quote:       doubleQuote,
	placeholder: func(i int) string { return fmt.Sprintf("$%d", i) },
	listTables: `SELECT table_name FROM information_schema.tables
		 WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		 ORDER BY table_name`,
	maxConns: 5,
}

// postgresDSN turns a postgres:// URL into a key/value connection string;
// anything else passes through.
func postgresDSN(dsn string) string {
	conn, ok := parseConnURL(dsn, "postgres", "postgresql")
	if !ok {
		return dsn
	}
	port := conn.Port
	if port == 0 {
		port = 5432
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		conn.Host, port, conn.Username, conn.Password, conn.Database, sslMode,
	)
}
