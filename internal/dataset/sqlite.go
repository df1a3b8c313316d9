package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"regexp"

	_ "modernc.org/sqlite"

	"github.com/rcliao/pksim/internal/model"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteSource reads observed tables from a SQLite database. Each table holds
// one fitting group: a time column plus observed columns.
type SQLiteSource struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens the database at path read-only.
func OpenSQLite(path string) (*SQLiteSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open observed db: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open observed db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open observed db: %w", err)
	}
	return &SQLiteSource{db: db, path: path}, nil
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// Tables lists the user tables in name order.
func (s *SQLiteSource) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Load reads table in rowid order. NULL and non-numeric cells are missing
// observations; rows without a time are skipped.
func (s *SQLiteSource) Load(ctx context.Context, table string) (*Table, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", model.ErrInvalidInput, table)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT * FROM "`+table+`" ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	b, err := newBuilder(table, cols)
	if err != nil {
		return nil, err
	}

	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	cells := make([]*float64, len(cols))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		for i, v := range raw {
			cells[i] = numeric(v)
		}
		b.add(cells)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return b.table, nil
}

// LoadAll reads every table.
func (s *SQLiteSource) LoadAll(ctx context.Context) ([]*Table, error) {
	names, err := s.Tables(ctx)
	if err != nil {
		return nil, err
	}
	tables := make([]*Table, 0, len(names))
	for _, name := range names {
		t, err := s.Load(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func numeric(v any) *float64 {
	switch x := v.(type) {
	case int64:
		f := float64(x)
		return &f
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return &x
	case string:
		return parseCell(x)
	case []byte:
		return parseCell(string(x))
	}
	return nil
}
