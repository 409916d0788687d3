package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"phoenix/internal/records"
)

const (
	sqlCreate = `CREATE TABLE harmonized (
	rid      INTEGER PRIMARY KEY,
	metadata TEXT
)`
	sqlInsert = `INSERT INTO harmonized (rid, metadata) VALUES (?, ?)`

	// Each filter adds one EXISTS over the row's metadata object. json_each
	// matches keys literally, so keys need no JSON-path quoting.
	sqlFilter = `EXISTS (SELECT 1 FROM json_each(harmonized.metadata) AS m WHERE m.key = ? AND m.type = 'text' AND m.value = ?)`
)

// SQL loads the rows into an in-memory SQLite database (metadata stored as
// JSON text) and filters them with a SQL query.
type SQL struct{}

// Name implements Engine.
func (SQL) Name() string { return EngineSQLite }

// Filter implements Engine.
func (SQL) Filter(ctx context.Context, rows []records.Record, filters map[string]string) ([]records.Record, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	defer db.Close()
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqlCreate); err != nil {
		return nil, errors.Wrap(err, "create table")
	}
	if err := loadRows(ctx, db, rows); err != nil {
		return nil, err
	}

	q, args := buildFilterQuery(filters)
	res, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "run filter query")
	}
	defer res.Close()

	out := make([]records.Record, 0)
	for res.Next() {
		var rid int
		if err := res.Scan(&rid); err != nil {
			return nil, errors.Wrap(err, "scan row id")
		}
		out = append(out, rows[rid])
	}
	if err := res.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate rows")
	}
	return out, nil
}

func loadRows(ctx context.Context, db *sql.DB, rows []records.Record) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, sqlInsert)
	if err != nil {
		return errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	for i, r := range rows {
		var md any // NULL
		if r.Metadata != nil {
			b, err := json.Marshal(r.Metadata)
			if err != nil {
				return errors.Wrapf(err, "encode metadata of row %d", i)
			}
			md = string(b)
		}
		if _, err := stmt.ExecContext(ctx, i, md); err != nil {
			return errors.Wrapf(err, "insert row %d", i)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

func buildFilterQuery(filters map[string]string) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT rid FROM harmonized")
	args := make([]any, 0, 2*len(filters))
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(sqlFilter)
		args = append(args, k, filters[k])
	}
	b.WriteString(" ORDER BY rid")
	return b.String(), args
}
