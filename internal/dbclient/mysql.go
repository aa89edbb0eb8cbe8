package dbclient

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

var mysqlDialect = dialect{
	driver:      "mysql",
	quote:       func(name string) string { return "`" + strings.ReplaceAll(name, "`", "``") + "`" },
	placeholder: questionMark,
	listTables: `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
		 ORDER BY TABLE_NAME`,
	maxConns: 5,
}

// mysqlDSN turns a mysql:// URL into a driver DSN; anything else passes through.
func mysqlDSN(dsn string) string {
	conn, ok := parseConnURL(dsn, "mysql")
	if !ok {
		return dsn
	}
	port := conn.Port
	if port == 0 {
		port = 3306
	}
	// Format: user:password@tcp(host:port)/dbname?parseTime=true
	out := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		conn.Username, conn.Password, conn.Host, port, conn.Database,
	)
	if conn.SSLMode == "require" {
		out += "&tls=true"
	}
	return out
}
