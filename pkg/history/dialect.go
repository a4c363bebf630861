package history

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects the database/sql driver and its SQL flavour.
type Dialect string

const (
	// DialectSQLite uses github.com/mattn/go-sqlite3.
	DialectSQLite Dialect = "sqlite3"
	// DialectPostgres uses the database/sql driver of github.com/jackc/pgx/v5.
	DialectPostgres Dialect = "pgx"
)

func (d Dialect) driver() (string, error) {
	switch d {
	case DialectSQLite, DialectPostgres:
		return string(d), nil
	}
	return "", fmt.Errorf("history: unsupported dialect %q", d)
}

// placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (d Dialect) placeholders(from, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.placeholder(from + i)
	}
	return strings.Join(parts, ", ")
}
