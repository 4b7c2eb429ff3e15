package testrecord

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/chirino/case-recorder/internal/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var schema = []string{
	"CREATE TABLE metadata (format_version INT, abs2prom TEXT, prom2abs TEXT, abs2meta TEXT)",
	"CREATE TABLE driver_iterations (id INTEGER PRIMARY KEY, counter INT, iteration_coordinate TEXT, timestamp REAL, success INT, msg TEXT, inputs TEXT, outputs TEXT)",
	"CREATE TABLE system_iterations (id INTEGER PRIMARY KEY, counter INT, iteration_coordinate TEXT, timestamp REAL, success INT, msg TEXT, inputs TEXT, outputs TEXT, residuals TEXT)",
	"CREATE TABLE solver_iterations (id INTEGER PRIMARY KEY, counter INT, iteration_coordinate TEXT, timestamp REAL, success INT, msg TEXT, abs_err REAL, rel_err REAL, solver_output TEXT, solver_residuals TEXT)",
	"CREATE TABLE global_iterations (id INTEGER PRIMARY KEY, record_type TEXT, row_number INT, source TEXT)",
	"CREATE TABLE driver_metadata (id TEXT PRIMARY KEY, model_viewer_data TEXT)",
	"CREATE TABLE system_metadata (id TEXT PRIMARY KEY, scaling_factors TEXT, component_metadata TEXT)",
	"CREATE TABLE solver_metadata (id TEXT PRIMARY KEY, solver_options TEXT, solver_class TEXT)",
}

// Var is one recorded variable. Value is any JSON-encodable array encoding.
type Var struct {
	Name  string
	Value any
}

// Iteration is one recorded iteration row.
type Iteration struct {
	Coordinate string
	Counter    int64
	Timestamp  float64
	Success    bool
	Msg        string
	Inputs     []Var
	Outputs    []Var
	Residuals  []Var
}

// Builder writes a recording file in a test temp dir.
type Builder struct {
	tb   testing.TB
	db   *gorm.DB
	Path string
}

// New creates an empty recording file with every table.
func New(tb testing.TB) *Builder {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "cases.sql")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		tb.Fatalf("open recording file: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			tb.Fatalf("create schema: %v", err)
		}
	}
	return &Builder{tb: tb, db: db, Path: path}
}

// Metadata writes the metadata row. Tags maps absolute names to type tags;
// every tagged name is promoted to itself.
func (b *Builder) Metadata(tags map[string][]string) *Builder {
	b.tb.Helper()
	abs2prom := map[string]map[string]string{"input": {}, "output": {}}
	prom2abs := map[string]map[string][]string{"input": {}, "output": {}}
	abs2meta := map[string]map[string]any{}
	for name, t := range tags {
		io := "output"
		for _, tag := range t {
			if tag == model.TagInput {
				io = "input"
			}
		}
		abs2prom[io][name] = name
		prom2abs[io][name] = []string{name}
		abs2meta[name] = map[string]any{"type": t}
	}
	b.exec("DELETE FROM metadata")
	b.exec("INSERT INTO metadata VALUES (?, ?, ?, ?)", 1, b.json(abs2prom), b.json(prom2abs), b.json(abs2meta))
	return b
}

// RawMetadata writes the metadata row from pre-encoded JSON columns.
func (b *Builder) RawMetadata(abs2prom, prom2abs, abs2meta string) *Builder {
	b.tb.Helper()
	b.exec("DELETE FROM metadata")
	b.exec("INSERT INTO metadata VALUES (?, ?, ?, ?)", 1, abs2prom, prom2abs, abs2meta)
	return b
}

// DriverIteration appends a row to driver_iterations.
func (b *Builder) DriverIteration(it Iteration) *Builder {
	b.tb.Helper()
	b.exec("INSERT INTO driver_iterations (counter, iteration_coordinate, timestamp, success, msg, inputs, outputs) VALUES (?, ?, ?, ?, ?, ?, ?)",
		it.Counter, it.Coordinate, it.Timestamp, success(it.Success), it.Msg, b.vars(it.Inputs), b.vars(it.Outputs))
	return b
}

// SystemIteration appends a row to system_iterations.
func (b *Builder) SystemIteration(it Iteration) *Builder {
	b.tb.Helper()
	b.exec("INSERT INTO system_iterations (counter, iteration_coordinate, timestamp, success, msg, inputs, outputs, residuals) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		it.Counter, it.Coordinate, it.Timestamp, success(it.Success), it.Msg, b.vars(it.Inputs), b.vars(it.Outputs), b.vars(it.Residuals))
	return b
}

// DriverMetadata writes the model viewer data.
func (b *Builder) DriverMetadata(modelViewerData any) *Builder {
	b.tb.Helper()
	b.exec("INSERT OR REPLACE INTO driver_metadata VALUES (?, ?)", "Driver", b.json(modelViewerData))
	return b
}

func (b *Builder) exec(sql string, args ...any) {
	b.tb.Helper()
	if err := b.db.Exec(sql, args...).Error; err != nil {
		b.tb.Fatalf("recording file: %v", err)
	}
}

func (b *Builder) vars(vs []Var) string {
	b.tb.Helper()
	fields := make([]model.Field, 0, len(vs))
	for _, v := range vs {
		val, err := model.FromInterface(v.Value)
		if err != nil {
			b.tb.Fatalf("encode %s: %v", v.Name, err)
		}
		fields = append(fields, model.Field{Key: v.Name, Value: val})
	}
	raw, err := model.Object(fields...).MarshalJSON()
	if err != nil {
		b.tb.Fatalf("encode variables: %v", err)
	}
	return string(raw)
}

func (b *Builder) json(v any) string {
	b.tb.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		b.tb.Fatalf("encode: %v", err)
	}
	return string(raw)
}

func success(ok bool) int {
	if ok {
		return 1
	}
	return 0
}
