package store

import (
	"context"
	"log/slog"

	"github.com/SmartInclusion/SmartInclusion/internal/models"
)

// Sink adapts a Store to the record sink used by the USSD menu. It converts a
// completed draft into its typed record and reports the outcome as a
// PersistResult, never as an error.
type Sink struct {
	st Store
}

// NewSink creates a Sink writing to st.
func NewSink(st Store) *Sink {
	return &Sink{st: st}
}

// Persist stores the draft. Each call performs exactly one insert.
func (s *Sink) Persist(ctx context.Context, d models.Draft) models.PersistResult {
	if s == nil || s.st == nil {
		return models.PersistFailed(models.ErrStoreNotConfigured.Error())
	}
	if err := d.Validate(); err != nil {
		slog.Warn("Sink.Persist: rejected draft", "kind", d.Kind, "fields", len(d.Fields), "error", err)
		return models.PersistFailed(err.Error())
	}

	var (
		id  int64
		err error
	)
	switch d.Kind {
	case models.RecordKindFarmer:
		id, err = s.st.AddFarmer(ctx, d.Farmer())
	case models.RecordKindCropReport:
		id, err = s.st.AddCropReport(ctx, d.CropReport())
	case models.RecordKindLivestockReport:
		id, err = s.st.AddLivestockReport(ctx, d.LivestockReport())
	}
	if err != nil {
		return models.PersistFailed(err.Error())
	}
	slog.Debug("Sink.Persist: stored record", "kind", d.Kind, "phone", d.Phone, "id", id)
	return models.Persisted()
}
