package engine

import (
	"context"
	"sort"

	"github.com/Protocol-Lattice/engram/src/engram/decay"
	"github.com/Protocol-Lattice/engram/src/engram/export"
	"github.com/Protocol-Lattice/engram/src/engram/model"
	"github.com/google/uuid"
)

// ExportJSON renders the active namespace as the lossless envelope.
func (e *Engine) ExportJSON(ctx context.Context) ([]byte, error) {
	records, err := e.liveSet(ctx, e.opts.Namespace)
	if err != nil {
		return nil, err
	}
	sortForExport(records)
	return export.JSON(records, e.opts.Namespace, e.opts.Categories, e.now())
}

// ImportJSON loads an envelope into the engine's namespace, returning
// the number of imported records. Ids are preserved; embeddings are
// recomputed when missing and an embedder is configured.
func (e *Engine) ImportJSON(ctx context.Context, data []byte) (int, error) {
	doc, err := export.ParseJSON(data)
	if err != nil {
		return 0, model.E(model.KindStore, "import.json", err)
	}
	return e.importRecords(ctx, doc.Memories)
}

// ExportMarkdown renders the active namespace for human review.
func (e *Engine) ExportMarkdown(ctx context.Context) (string, error) {
	records, err := e.liveSet(ctx, e.opts.Namespace)
	if err != nil {
		return "", err
	}
	sortForExport(records)
	return export.Markdown(records, e.opts.Namespace, e.now()), nil
}

// ImportMarkdown recovers records from a Markdown export. Content,
// category and metrics survive; ids and embeddings are rebuilt.
func (e *Engine) ImportMarkdown(ctx context.Context, text string) (int, error) {
	return e.importRecords(ctx, export.ParseMarkdown(text, e.now()))
}

// ExportCSV renders the active namespace as RFC 4180 CSV.
func (e *Engine) ExportCSV(ctx context.Context) (string, error) {
	records, err := e.liveSet(ctx, e.opts.Namespace)
	if err != nil {
		return "", err
	}
	sortForExport(records)
	return export.CSV(records)
}

// ImportCSV loads a CSV export into the engine's namespace.
func (e *Engine) ImportCSV(ctx context.Context, text string) (int, error) {
	records, err := export.ParseCSV(text)
	if err != nil {
		return 0, model.E(model.KindStore, "import.csv", err)
	}
	return e.importRecords(ctx, records)
}

func (e *Engine) importRecords(ctx context.Context, records []model.MemoryRecord) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now().UTC()
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.Namespace == "" {
			rec.Namespace = e.opts.Namespace
		}
		if rec.Category == "" {
			rec.Category = model.DefaultCategory
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		if rec.Version == 0 {
			rec.Version = 1
		}
		if rec.ExpiresAt.IsZero() {
			rec.ExpiresAt = decay.ExpiresAt(rec.CreatedAt, rec.TTL, e.opts.MaxRetentionDays)
		}
		if len(rec.Embedding) == 0 && e.embedder != nil {
			if vec, err := e.embedder.Embed(ctx, rec.Content); err == nil {
				rec.Embedding = vec
			} else {
				e.emitError(err)
			}
		}
	}
	if len(records) == 0 {
		return 0, nil
	}
	if err := e.store.PutMany(ctx, records); err != nil {
		return 0, model.E(model.KindStore, "import", err)
	}
	return len(records), nil
}

// Dump exposes the raw store contents, primarily for round-trip tests
// and backups.
func (e *Engine) Dump(ctx context.Context) ([]model.MemoryRecord, error) {
	records, err := e.store.Dump(ctx)
	if err != nil {
		return nil, model.E(model.KindStore, "dump", err)
	}
	return records, nil
}

// sortForExport keeps exports in stable creation order so they stay
// diff-friendly.
func sortForExport(records []model.MemoryRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}
