package pipeline

import (
	"context"

	"github.com/ktappdev/ytstats/model"
	"github.com/ktappdev/ytstats/sheets"
)

// Outcome counts what one target did with a batch.
type Outcome struct {
	Written int
	Skipped int
}

// Target is a persistence sink. A failing required target aborts the run; a
// failing optional target only produces a warning.
type Target interface {
	Name() string
	Required() bool
	Write(ctx context.Context, records []model.VideoRecord) (Outcome, error)
}

// Store is the keyed upsert a local target writes through.
type Store interface {
	Upsert(ctx context.Context, records []model.VideoRecord) (int, error)
}

// Exporter is the batch export a spreadsheet target writes through.
type Exporter interface {
	ExportBatch(ctx context.Context, records []model.VideoRecord) (sheets.Outcome, error)
}

// LocalTarget returns the required target backed by st.
func LocalTarget(st Store) Target {
	return localTarget{st: st}
}

// SheetTarget returns the optional target backed by e.
func SheetTarget(e Exporter) Target {
	return sheetTarget{e: e}
}

type localTarget struct {
	st Store
}

func (localTarget) Name() string   { return "local" }
func (localTarget) Required() bool { return true }

func (t localTarget) Write(ctx context.Context, records []model.VideoRecord) (Outcome, error) {
	n, err := t.st.Upsert(ctx, records)
	return Outcome{Written: n}, err
}

type sheetTarget struct {
	e Exporter
}

func (sheetTarget) Name() string   { return "spreadsheet" }
func (sheetTarget) Required() bool { return false }

func (t sheetTarget) Write(ctx context.Context, records []model.VideoRecord) (Outcome, error) {
	out, err := t.e.ExportBatch(ctx, records)
	return Outcome{Written: out.Written(), Skipped: out.Skipped}, err
}

func persistStage(t Target) Stage {
	return Stage("persist " + t.Name())
}
