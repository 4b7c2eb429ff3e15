package sqlite

import (
	"context"

	"github.com/chirino/case-recorder/internal/model"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
	"gorm.io/gorm"
)

var iterationColumns = map[model.Collection][]string{
	model.CollectionDriverIterations: {"id", "counter", "iteration_coordinate", "timestamp", "success", "msg", "inputs", "outputs"},
	model.CollectionSystemIterations: {"id", "counter", "iteration_coordinate", "timestamp", "success", "msg", "inputs", "outputs", "residuals"},
}

// IterationPayloads returns the stored iterations of coll ordered by
// counter. A recording file holds a single case, so caseID is not used.
// Collections the file does not decode yield nothing.
func (f *RecordFile) IterationPayloads(ctx context.Context, coll model.Collection, _ int64) ([]model.Payload, error) {
	cols, ok := iterationColumns[coll]
	if !ok {
		return nil, nil
	}
	var rows []iterationRow
	err := f.read(ctx, func(tx *gorm.DB) error {
		return tx.Table(string(coll)).Select(cols).Order("counter").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.Payload, 0, len(rows))
	for _, r := range rows {
		p, err := r.payload()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Metadata returns the snapshot loaded by Connect.
func (f *RecordFile) Metadata(_ context.Context, _ int64) (*model.Metadata, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.db == nil {
		return nil, registrystore.ErrNotConnected
	}
	return f.meta, nil
}

// CounterAbove reports whether any iteration of coll has a counter greater
// than since.
func (f *RecordFile) CounterAbove(ctx context.Context, coll model.Collection, _ int64, since int64) (bool, error) {
	if _, ok := iterationColumns[coll]; !ok {
		return false, nil
	}
	var counters []int64
	err := f.read(ctx, func(tx *gorm.DB) error {
		return tx.Table(string(coll)).Where("counter > ?", since).Limit(1).Pluck("counter", &counters).Error
	})
	if err != nil {
		return false, err
	}
	return len(counters) > 0, nil
}

// Layout returns the stored layout, if one was saved.
func (f *RecordFile) Layout(ctx context.Context) (model.Value, bool, error) {
	var rows []layoutRow
	err := f.read(ctx, func(tx *gorm.DB) error {
		return tx.Where("id = ?", 0).Limit(1).Find(&rows).Error
	})
	if err != nil || len(rows) == 0 {
		return model.Value{}, false, err
	}
	v, err := model.ParseJSON([]byte(rows[0].Layout))
	if err != nil {
		return model.Value{}, false, err
	}
	return v, true, nil
}

// Layouts returns the stored layout as a one-element list, or an empty list
// when none was saved.
func (f *RecordFile) Layouts(ctx context.Context) ([]model.Value, error) {
	v, ok, err := f.Layout(ctx)
	if err != nil || !ok {
		return []model.Value{}, err
	}
	return []model.Value{v}, nil
}

// UpdateLayout replaces the single layout of the file.
func (f *RecordFile) UpdateLayout(ctx context.Context, layout model.Value) error {
	raw, err := layout.MarshalJSON()
	if err != nil {
		return err
	}
	return f.write(ctx, func(tx *gorm.DB) error {
		return tx.Exec("INSERT OR REPLACE INTO layouts VALUES (?, ?)", 0, string(raw)).Error
	})
}

// DriverMetadata returns the model viewer data recorded by the driver.
func (f *RecordFile) DriverMetadata(ctx context.Context) (model.Value, bool, error) {
	var rows []driverMetadataRow
	err := f.read(ctx, func(tx *gorm.DB) error {
		return tx.Table("driver_metadata").Select("model_viewer_data").Limit(1).Find(&rows).Error
	})
	if err != nil || len(rows) == 0 || rows[0].ModelViewerData == nil {
		return model.Value{}, false, err
	}
	v, err := model.ParseJSON([]byte(*rows[0].ModelViewerData))
	if err != nil {
		return model.Value{}, false, err
	}
	return v, true, nil
}

// DriverMetadataList returns [{"model_viewer_data": ...}], or an empty list
// when the driver recorded none.
func (f *RecordFile) DriverMetadataList(ctx context.Context) ([]model.Value, error) {
	v, ok, err := f.DriverMetadata(ctx)
	if err != nil || !ok {
		return []model.Value{}, err
	}
	return []model.Value{model.Object(model.Field{Key: "model_viewer_data", Value: v})}, nil
}
