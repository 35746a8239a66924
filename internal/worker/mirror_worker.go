package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"ledger/internal/amqp"
	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

// MirrorWorker copies tables from the primary store to a secondary one,
// usually the Google spreadsheet. The mirror is overwritten unconditionally:
// the primary store is the source of truth.
type MirrorWorker struct {
	source ports.TableStore
	target ports.TableStore

	mu       sync.Mutex
	mirrored map[core.TableName]string
}

func NewMirrorWorker(source, target ports.TableStore) *MirrorWorker {
	return &MirrorWorker{
		source:   source,
		target:   target,
		mirrored: make(map[core.TableName]string),
	}
}

// HandleTableChanged mirrors the table named in msg. The current source
// contents are copied, so a burst of messages for one table collapses into
// whichever copy runs last.
func (w *MirrorWorker) HandleTableChanged(ctx context.Context, msg *amqp.TableChangedMessage) error {
	t, err := core.ParseTableName(msg.Table)
	if err != nil {
		slog.WarnContext(ctx, "Dropping message for unknown table", "table", msg.Table)
		return nil
	}
	slog.InfoContext(ctx, "Processing table change", "table", t, "version", msg.Version)
	return w.mirror(ctx, t)
}

// MirrorAll copies every table whose source version moved since the last
// successful copy. It is the fallback for lost messages.
func (w *MirrorWorker) MirrorAll(ctx context.Context) error {
	synced, skipped, failed := 0, 0, 0
	var firstErr error
	for _, t := range core.AllTables {
		tbl, err := w.source.Load(ctx, t)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("load %s: %w", t, err)
			}
			continue
		}
		if v, ok := w.lastMirrored(t); ok && v == tbl.Version {
			skipped++
			continue
		}
		if err := w.write(ctx, tbl); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror table", "table", t, "error", err)
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		synced++
	}
	slog.InfoContext(ctx, "Mirror pass completed", "synced", synced, "unchanged", skipped, "errors", failed)
	return firstErr
}

func (w *MirrorWorker) mirror(ctx context.Context, t core.TableName) error {
	tbl, err := w.source.Load(ctx, t)
	if err != nil {
		return fmt.Errorf("load %s from source: %w", t, err)
	}
	return w.write(ctx, tbl)
}

func (w *MirrorWorker) write(ctx context.Context, tbl core.Table) error {
	if _, err := w.target.Replace(ctx, tbl.Name, tbl.Rows, ports.AnyVersion); err != nil {
		return fmt.Errorf("write %s to mirror: %w", tbl.Name, err)
	}
	w.mu.Lock()
	w.mirrored[tbl.Name] = tbl.Version
	w.mu.Unlock()

	slog.InfoContext(ctx, "Mirrored table", "table", tbl.Name, "version", tbl.Version, "rows", tbl.Len())
	return nil
}

func (w *MirrorWorker) lastMirrored(t core.TableName) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.mirrored[t]
	return v, ok
}
