package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dalenewman/tflmirror/internal/config"
	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
	"github.com/dalenewman/tflmirror/internal/extract"
	"github.com/dalenewman/tflmirror/internal/mirror"
	"github.com/dalenewman/tflmirror/internal/schema"
)

// source is an entity's input: the rows to mirror and, for delete
// detection, the primary keys of every input row.
type source struct {
	rows     mirror.RowSource
	keys     mirror.RowSource
	describe string
	close    func() error
}

// Close releases the input connection.
func (s *source) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func (r *Runner) openSource(ctx context.Context, e *schema.Entity, out *mirror.Context, mode schema.Mode) (*source, error) {
	conn, ok := r.cfg.InputOf(e.Name)
	if !ok {
		return nil, mirrorerrors.ConfigError(fmt.Sprintf("entity %s has no input connection", e.Name), nil)
	}

	switch strings.ToLower(conn.Provider) {
	case config.ProviderSQLite:
		return r.openSQLite(ctx, e, conn, out, mode)
	case config.ProviderBleve:
		return r.openBleve(e, conn)
	default:
		return nil, mirrorerrors.ConfigError(fmt.Sprintf("unsupported provider %s", conn.Provider), nil)
	}
}

// openSQLite reads rows changed since the mirror's highest version. Keys
// are always read in full.
func (r *Runner) openSQLite(ctx context.Context, e *schema.Entity, conn config.ConnectionConfig, out *mirror.Context, mode schema.Mode) (*source, error) {
	db, err := extract.OpenSQLite(r.cfg.ResolvePath(conn.File))
	if err != nil {
		return nil, err
	}

	rows := extract.NewSQLiteSource(db, e)
	describe := "full read"
	if mode != schema.ModeInit && e.Version != "" {
		since, err := out.MaxVersion(ctx)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if since != nil {
			rows = rows.Since(since)
			describe = fmt.Sprintf("%s > %v", e.Version, since)
		}
	}

	return &source{
		rows:     rows,
		keys:     extract.NewSQLiteSource(db, e, e.PrimaryKey()...),
		describe: describe,
		close:    db.Close,
	}, nil
}

// openBleve reads another index through the entity filter. The index must
// exist: an empty stand-in would flag every mirrored row as deleted.
func (r *Runner) openBleve(e *schema.Entity, conn config.ConnectionConfig) (*source, error) {
	in, err := mirror.NewContext(e, mirror.Options{
		Folder:      r.cfg.ResolvePath(conn.Folder),
		Side:        schema.SideSource,
		SearchTypes: r.searchTypes,
		MustExist:   true,
		Logger:      r.logger,
	})
	if err != nil {
		return nil, err
	}
	reader := mirror.NewReader(in)
	_, expr, err := reader.Query()
	if err != nil {
		_ = in.Close()
		return nil, err
	}
	if expr == "" {
		expr = "all documents"
	}
	return &source{
		rows:     reader,
		keys:     mirror.NewReader(in, e.PrimaryKey()...),
		describe: expr,
		close:    in.Close,
	}, nil
}
