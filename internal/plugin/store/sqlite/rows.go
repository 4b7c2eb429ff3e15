package sqlite

import (
	"github.com/chirino/case-recorder/internal/iteration"
	"github.com/chirino/case-recorder/internal/model"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
)

// iterationRow is a row of driver_iterations or system_iterations. Variable
// maps are JSON objects of name to encoded array.
type iterationRow struct {
	ID                  int64   `gorm:"column:id;primaryKey"`
	Counter             int64   `gorm:"column:counter"`
	IterationCoordinate string  `gorm:"column:iteration_coordinate"`
	Timestamp           float64 `gorm:"column:timestamp"`
	Success             int     `gorm:"column:success"`
	Msg                 string  `gorm:"column:msg"`
	Inputs              *string `gorm:"column:inputs"`
	Outputs             *string `gorm:"column:outputs"`
	Residuals           *string `gorm:"column:residuals"`
}

func (r iterationRow) payload() (model.Payload, error) {
	p := model.Payload{
		{Key: model.FieldIterationCoordinate, Value: model.String(r.IterationCoordinate)},
		{Key: model.FieldCounter, Value: model.Int(r.Counter)},
		{Key: iteration.FieldTimestamp, Value: model.Number(r.Timestamp)},
		{Key: iteration.FieldSuccess, Value: model.Bool(r.Success != 0)},
		{Key: iteration.FieldMsg, Value: model.String(r.Msg)},
	}
	for _, col := range []struct {
		key string
		raw *string
	}{
		{iteration.FieldInputs, r.Inputs},
		{iteration.FieldOutputs, r.Outputs},
		{iteration.FieldResiduals, r.Residuals},
	} {
		if col.raw == nil {
			continue
		}
		v, err := model.ParseJSON([]byte(*col.raw))
		if err != nil {
			return nil, &registrystore.MalformedError{Resource: "iteration", ID: r.IterationCoordinate, Reason: col.key + ": " + err.Error()}
		}
		p = append(p, model.Field{Key: col.key, Value: v})
	}
	return p, nil
}

type metadataRow struct {
	FormatVersion int     `gorm:"column:format_version"`
	Abs2Prom      *string `gorm:"column:abs2prom"`
	Prom2Abs      *string `gorm:"column:prom2abs"`
	Abs2Meta      *string `gorm:"column:abs2meta"`
}

func (r metadataRow) decode() (*model.Metadata, error) {
	p := model.Payload{{Key: "format_version", Value: model.Int(int64(r.FormatVersion))}}
	for _, col := range []struct {
		key string
		raw *string
	}{
		{"abs2prom", r.Abs2Prom},
		{"prom2abs", r.Prom2Abs},
		{"abs2meta", r.Abs2Meta},
	} {
		if col.raw == nil {
			continue
		}
		v, err := model.ParseJSON([]byte(*col.raw))
		if err != nil {
			return nil, &registrystore.MalformedError{Resource: "metadata", ID: col.key, Reason: err.Error()}
		}
		p = append(p, model.Field{Key: col.key, Value: v})
	}
	meta, err := model.DecodeMetadata(p)
	if err != nil {
		return nil, err
	}
	if meta.Abs2Meta == nil {
		meta.Abs2Meta = map[string]model.VariableMeta{}
	}
	return meta, nil
}

type layoutRow struct {
	ID     int64  `gorm:"column:id;primaryKey"`
	Layout string `gorm:"column:layout"`
}

func (layoutRow) TableName() string { return "layouts" }

type driverMetadataRow struct {
	ModelViewerData *string `gorm:"column:model_viewer_data"`
}
