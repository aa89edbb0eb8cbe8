package dbclient

import (
	"strings"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	driver:      "sqlite",
	quote:       doubleQuote,
	placeholder: questionMark,
	listTables:  `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
	maxConns:    1,
}

// sqliteDSN opens an external SQLite file in WAL mode with a busy timeout.
func sqliteDSN(path string) string {
	path = strings.TrimPrefix(path, "sqlite://")
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}
