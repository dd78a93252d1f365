package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/dalenewman/tflmirror/internal/config"
	"github.com/dalenewman/tflmirror/internal/mirror"
	"github.com/dalenewman/tflmirror/internal/schema"
	"github.com/dalenewman/tflmirror/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"stats"},
		Short:   "Show the state of each entity's mirror index",
		Long: `Show document counts, the highest surrogate key and version, size and
lock state of every entity's mirror index.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadProcess()
			if err != nil {
				return err
			}
			info := collectStatus(cmd.Context(), cfg)

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || !ui.IsTTY(cmd.OutOrStdout()))
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func collectStatus(ctx context.Context, cfg *config.Config) ui.StatusInfo {
	info := ui.StatusInfo{Process: cfg.Name, Folder: cfg.OutputFolder()}
	for _, e := range cfg.BuildEntities() {
		info.Entities = append(info.Entities, entityStatus(ctx, cfg, e))
	}
	return info
}

func entityStatus(ctx context.Context, cfg *config.Config, e *schema.Entity) ui.EntityStatus {
	st := ui.EntityStatus{
		Entity: e.OutputName(),
		Path:   filepath.Join(cfg.OutputFolder(), e.OutputName()),
	}
	fail := func(err error) ui.EntityStatus {
		st.State, st.Error = "error", err.Error()
		return st
	}

	fi, err := os.Stat(st.Path)
	if err != nil {
		st.State = "empty"
		return st
	}
	st.Modified = fi.ModTime()
	st.Size = dirSize(st.Path)

	c, err := mirror.NewContext(e, mirror.Options{
		Folder:      cfg.OutputFolder(),
		Side:        schema.SideMirror,
		SearchTypes: cfg.BuildSearchTypes(),
		MustExist:   true,
	})
	if err != nil {
		return fail(err)
	}
	defer c.Close()

	if st.Documents, err = c.Count(); err != nil {
		return fail(err)
	}
	if st.Active, err = c.ActiveCount(ctx); err != nil {
		return fail(err)
	}
	if st.MaxKey, err = c.MaxSurrogateKey(ctx); err != nil {
		return fail(err)
	}
	if v, err := c.MaxVersion(ctx); err != nil {
		return fail(err)
	} else if v != nil {
		st.MaxVersion = formatValue(v)
	}

	st.State = "ready"
	if lockHeld(c.Directory().LockPath()) {
		st.State = "locked"
	}
	return st
}

// lockHeld reports whether another writer holds the index lock.
func lockHeld(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil || !ok {
		return true
	}
	_ = l.Unlock()
	return false
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			size += fi.Size()
		}
		return nil
	})
	return size
}

func formatValue(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format("2006-01-02 15:04:05")
	}
	return fmt.Sprint(v)
}
