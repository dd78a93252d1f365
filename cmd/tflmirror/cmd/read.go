package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dalenewman/tflmirror/internal/config"
	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
	"github.com/dalenewman/tflmirror/internal/extract"
	"github.com/dalenewman/tflmirror/internal/mirror"
	"github.com/dalenewman/tflmirror/internal/schema"
)

func newReadCmd() *cobra.Command {
	var (
		fromSource bool
		fields     []string
		limit      int
		explain    bool
	)

	cmd := &cobra.Command{
		Use:   "read <entity>",
		Short: "Print an entity's rows as JSON lines",
		Long: `Print the active rows of an entity's mirror index, one JSON object per line,
in insertion order. Rows flagged as deleted are skipped.

With --source the entity's input is read instead: a bleve input through the
entity filter, a sqlite input in primary key order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadProcess()
			if err != nil {
				return err
			}
			return runRead(cmd, cfg, args[0], readOptions{
				source:  fromSource,
				fields:  fields,
				limit:   limit,
				explain: explain,
			})
		},
	}

	cmd.Flags().BoolVar(&fromSource, "source", false, "Read the entity's input instead of the mirror")
	cmd.Flags().StringSliceVarP(&fields, "fields", "f", nil, "Fields to print, by name or alias")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Stop after this many rows (0 = all)")
	cmd.Flags().BoolVar(&explain, "explain", false, "Print the executed filter to stderr")

	return cmd
}

type readOptions struct {
	source  bool
	fields  []string
	limit   int
	explain bool
}

func runRead(cmd *cobra.Command, cfg *config.Config, name string, opts readOptions) error {
	e, _, ok := cfg.Entity(name)
	if !ok {
		return mirrorerrors.New(mirrorerrors.ErrCodeInvalidInput, fmt.Sprintf("unknown entity %s", name), nil).
			WithSuggestion("Use an entity name or alias from the process file")
	}
	fields, err := selectFields(e, opts.fields)
	if err != nil {
		return err
	}

	src, closeFn, err := openReadSource(cfg, e, fields, opts)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	if opts.explain {
		if r, ok := src.(*mirror.Reader); ok {
			_, expr, err := r.Query()
			if err != nil {
				return err
			}
			if expr == "" {
				expr = "*"
			}
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "filter:", expr)
		}
	}

	n, err := writeRows(cmd, src, opts.limit)
	slog.Debug("read_completed", slog.String("entity", e.OutputName()), slog.Int("rows", n))
	return err
}

func openReadSource(cfg *config.Config, e *schema.Entity, fields []schema.Field, opts readOptions) (mirror.RowSource, func() error, error) {
	if !opts.source {
		c, err := mirror.NewContext(e, mirror.Options{
			Folder:      cfg.OutputFolder(),
			Side:        schema.SideMirror,
			SearchTypes: cfg.BuildSearchTypes(),
			MustExist:   true,
		})
		if err != nil {
			return nil, nil, err
		}
		return mirror.NewReader(c, fields...), c.Close, nil
	}

	conn, ok := cfg.InputOf(e.Name)
	if !ok {
		return nil, nil, mirrorerrors.ConfigError(fmt.Sprintf("entity %s has no input connection", e.Name), nil)
	}
	switch strings.ToLower(conn.Provider) {
	case config.ProviderSQLite:
		db, err := extract.OpenSQLite(cfg.ResolvePath(conn.File))
		if err != nil {
			return nil, nil, err
		}
		return extract.NewSQLiteSource(db, e, fields...), db.Close, nil
	default:
		c, err := mirror.NewContext(e, mirror.Options{
			Folder:      cfg.ResolvePath(conn.Folder),
			Side:        schema.SideSource,
			SearchTypes: cfg.BuildSearchTypes(),
			MustExist:   true,
		})
		if err != nil {
			return nil, nil, err
		}
		return mirror.NewReader(c, fields...), c.Close, nil
	}
}

// selectFields resolves names or aliases; none selects every field.
func selectFields(e *schema.Entity, names []string) ([]schema.Field, error) {
	var fields []schema.Field
	for _, name := range names {
		f, ok := e.Field(name)
		if !ok {
			for _, candidate := range e.Fields {
				if candidate.OutputName() == name {
					f, ok = candidate, true
					break
				}
			}
		}
		if !ok {
			return nil, mirrorerrors.New(mirrorerrors.ErrCodeInvalidInput,
				fmt.Sprintf("entity %s has no field %s", e.OutputName(), name), nil)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func writeRows(cmd *cobra.Command, src mirror.RowSource, limit int) (int, error) {
	enc := json.NewEncoder(cmd.OutOrStdout())
	n := 0
	for row, err := range src.Read(cmd.Context()) {
		if err != nil {
			return n, err
		}
		if err := enc.Encode(row); err != nil {
			return n, fmt.Errorf("failed to write row: %w", err)
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return n, nil
}
