package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"sheetlocator/internal/domain"
)

// dialect holds what differs between the SQL backends.
type dialect struct {
	driver      string
	quote       func(name string) string
	placeholder func(i int) string // 1-based
	listTables  string
	maxConns    int
}

func doubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func questionMark(int) string { return "?" }

// sqlStore is the shared implementation for MySQL, Postgres, and SQLite.
type sqlStore struct {
	d  dialect
	db *sql.DB
}

func newSQLStore(ctx context.Context, d dialect, dsn string) (*sqlStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	db.SetMaxOpenConns(d.maxConns)
	db.SetMaxIdleConns(min(d.maxConns, 2))
	db.SetConnMaxLifetime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.driver, err)
	}
	return &sqlStore{d: d, db: db}, nil
}

func (s *sqlStore) Load(ctx context.Context) (*domain.Workbook, error) {
	tables, err := s.tableNames(ctx)
	if err != nil {
		return nil, err
	}
	wb := &domain.Workbook{}
	for _, name := range tables {
		t, err := s.readTable(ctx, name)
		if err != nil {
			return nil, err
		}
		wb.Sheets = append(wb.Sheets, t)
	}
	return wb, nil
}

func (s *sqlStore) tableNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.d.listTables)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *sqlStore) readTable(ctx context.Context, name string) (*domain.Table, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+s.d.quote(name))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns %s: %w", name, err)
	}
	t := &domain.Table{Name: name, Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for j := range values {
			ptrs[j] = &values[j]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		rec := make(domain.Record, len(cols))
		for j, v := range values {
			if cell := formatValue(v); !cell.IsNull() {
				rec[cols[j]] = cell
			}
		}
		t.Rows = append(t.Rows, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", name, err)
	}
	return t, nil
}

// Save rewrites the changed tables of wb inside one transaction. Tables must
// exist; columns are written under their original names.
func (s *sqlStore) Save(ctx context.Context, wb *domain.Workbook) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, t := range wb.Changed() {
		if err := s.replaceRows(ctx, tx, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *sqlStore) replaceRows(ctx context.Context, tx *sql.Tx, t *domain.Table) error {
	table := s.d.quote(t.Name)
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", t.Name, err)
	}
	if len(t.Columns) == 0 || len(t.Rows) == 0 {
		return nil
	}

	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = s.d.quote(t.SourceName(c))
		marks[i] = s.d.placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", t.Name, err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns))
	for i, r := range t.Rows {
		for j, c := range t.Columns {
			args[j] = r[c].Any()
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", t.Name, i, err)
		}
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
