// Package extract reads entity rows from relational sources.
package extract

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/dalenewman/tflmirror/internal/codec"
	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
	"github.com/dalenewman/tflmirror/internal/schema"
)

// OpenSQLite opens a SQLite database for reading. An empty path opens a
// private in-memory database.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, mirrorerrors.New(mirrorerrors.ErrCodeFileNotFound,
				fmt.Sprintf("sqlite database %s not found", path), err).WithDetail("path", path)
		}
		if err := validateSQLiteIntegrity(path); err != nil {
			return nil, mirrorerrors.New(mirrorerrors.ErrCodeCorruptIndex,
				fmt.Sprintf("sqlite database %s failed its integrity check", path), err).WithDetail("path", path)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps an in-memory database alive and shared
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set pragma: %w", err)
	}
	return db, nil
}

// validateSQLiteIntegrity runs a quick integrity check on a read-only handle.
func validateSQLiteIntegrity(path string) error {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// SQLiteSource reads an entity from the table named by the entity's Name.
type SQLiteSource struct {
	db     *sql.DB
	entity *schema.Entity
	fields []schema.Field
	codecs map[string]codec.Codec
	since  any
	logger *slog.Logger
}

// NewSQLiteSource reads fields of entity from db; no fields means all of them.
func NewSQLiteSource(db *sql.DB, entity *schema.Entity, fields ...schema.Field) *SQLiteSource {
	if len(fields) == 0 {
		fields = entity.Fields
	}
	codecs := make(map[string]codec.Codec, len(fields))
	for _, f := range fields {
		codecs[f.Name] = codec.New(f, schema.SearchType{}, "")
	}
	return &SQLiteSource{
		db:     db,
		entity: entity,
		fields: fields,
		codecs: codecs,
		logger: slog.Default().With(slog.String("entity", entity.OutputName())),
	}
}

// Since returns a copy that only reads rows whose version field is greater
// than v. A nil v, or an entity without a version field, reads everything.
func (s *SQLiteSource) Since(v any) *SQLiteSource {
	cp := *s
	cp.since = v
	return &cp
}

// Query returns the SELECT statement and its arguments.
func (s *SQLiteSource) Query() (string, []any) {
	cols := make([]string, len(s.fields))
	for i, f := range s.fields {
		cols[i] = quoteIdent(f.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), quoteIdent(s.entity.Name))

	var args []any
	if s.since != nil && s.entity.Version != "" {
		fmt.Fprintf(&b, " WHERE %s > ?", quoteIdent(s.entity.Version))
		args = append(args, versionArg(s.since))
	}

	var order []string
	for _, f := range s.entity.PrimaryKey() {
		order = append(order, quoteIdent(f.Name))
	}
	if len(order) > 0 {
		fmt.Fprintf(&b, " ORDER BY %s", strings.Join(order, ", "))
	}
	return b.String(), args
}

// Read streams rows with values converted to each field's type. Each range
// runs the query again.
func (s *SQLiteSource) Read(ctx context.Context) iter.Seq2[schema.Row, error] {
	return func(yield func(schema.Row, error) bool) {
		stmt, args := s.Query()
		rows, err := s.db.QueryContext(ctx, stmt, args...)
		if err != nil {
			yield(nil, mirrorerrors.New(mirrorerrors.ErrCodeInvalidInput,
				fmt.Sprintf("failed to query %s", s.entity.Name), err).WithDetail("entity", s.entity.OutputName()))
			return
		}
		defer rows.Close()

		values := make([]any, len(s.fields))
		ptrs := make([]any, len(s.fields))
		for i := range values {
			ptrs[i] = &values[i]
		}

		n := 0
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				yield(nil, fmt.Errorf("failed to scan %s: %w", s.entity.Name, err))
				return
			}
			row, err := s.convert(values)
			if !yield(row, err) || err != nil {
				return
			}
			n++
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to read %s: %w", s.entity.Name, err))
			return
		}
		s.logger.Debug("sqlite_rows_read", slog.Int("rows", n))
	}
}

func (s *SQLiteSource) convert(values []any) (schema.Row, error) {
	row := make(schema.Row, len(s.fields))
	for i, f := range s.fields {
		v, err := s.codecs[f.Name].Coerce(values[i])
		if err != nil {
			if me, ok := err.(*mirrorerrors.MirrorError); ok {
				return nil, me.WithDetail("entity", s.entity.OutputName())
			}
			return nil, err
		}
		row[f.Name] = v
	}
	return row, nil
}

// versionArg renders times the way SQLite stores them as text so the
// comparison is lexical on equal formats.
func versionArg(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format("2006-01-02 15:04:05.000")
	}
	return v
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
