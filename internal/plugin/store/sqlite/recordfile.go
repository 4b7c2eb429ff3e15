// Package sqlite reads recording files: single-case sqlite databases written
// by the recorder while an optimization runs.
package sqlite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/case-recorder/internal/model"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Header is the magic string every sqlite database file starts with.
const Header = "SQLite format 3\x00"

// minFileSize is the size of the sqlite database header.
const minFileSize = 100

// ErrNotRecordFile is returned by Connect for files that are not sqlite
// databases.
var ErrNotRecordFile = errors.New("not a sqlite recording file")

// RecordFile owns at most one open recording file. Connect replaces it
// atomically; reads never observe a half-swapped handle.
type RecordFile struct {
	mu      sync.RWMutex
	db      *gorm.DB
	path    string
	meta    *model.Metadata
	timeout time.Duration
}

// New returns a disconnected RecordFile whose queries are bounded by timeout.
// A zero timeout leaves queries unbounded.
func New(timeout time.Duration) *RecordFile {
	return &RecordFile{timeout: timeout}
}

// ValidateHeader reports whether path names a sqlite database file.
func ValidateHeader(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotRecordFile, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrNotRecordFile, path)
	}
	if fi.Size() < minFileSize {
		return fmt.Errorf("%w: %s is too small", ErrNotRecordFile, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotRecordFile, err)
	}
	defer f.Close()
	header := make([]byte, len(Header))
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("%w: %v", ErrNotRecordFile, err)
	}
	if !bytes.Equal(header, []byte(Header)) {
		return fmt.Errorf("%w: %s has no sqlite header", ErrNotRecordFile, path)
	}
	return nil
}

// Connect opens path, loads its metadata snapshot, and makes it the current
// file. On any failure the previously connected file stays in use.
func (f *RecordFile) Connect(ctx context.Context, path string) error {
	if err := ValidateHeader(path); err != nil {
		return err
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	meta, err := prepare(ctx, db)
	if err != nil {
		sqlDB.Close()
		return fmt.Errorf("open %s: %w", path, err)
	}

	f.mu.Lock()
	prev := f.db
	f.db, f.path, f.meta = db, path, meta
	f.mu.Unlock()

	closeDB(prev)
	log.Info("Connected to recording file", "path", path, "variables", len(meta.Abs2Meta))
	return nil
}

func prepare(ctx context.Context, db *gorm.DB) (*model.Metadata, error) {
	tx := db.WithContext(ctx)
	if err := tx.Exec("CREATE TABLE IF NOT EXISTS layouts (id integer PRIMARY KEY, layout text)").Error; err != nil {
		return nil, err
	}
	var rows []metadataRow
	if err := tx.Table("metadata").Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		log.Warn("Recording file has no metadata row")
		return &model.Metadata{Abs2Meta: map[string]model.VariableMeta{}}, nil
	}
	return rows[0].decode()
}

// Disconnect closes the current file, if any.
func (f *RecordFile) Disconnect() error {
	f.mu.Lock()
	prev := f.db
	f.db, f.path, f.meta = nil, "", nil
	f.mu.Unlock()
	return closeDB(prev)
}

func closeDB(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Connected reports whether a file is open.
func (f *RecordFile) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.db != nil
}

// Path returns the connected file, or "" when disconnected.
func (f *RecordFile) Path() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.path
}

// read runs fn against the current handle while holding it shared.
func (f *RecordFile) read(ctx context.Context, fn func(tx *gorm.DB) error) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.run(ctx, fn)
}

// write runs fn against the current handle while holding it exclusively.
func (f *RecordFile) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.run(ctx, fn)
}

func (f *RecordFile) run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if f.db == nil {
		return registrystore.ErrNotConnected
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	return fn(f.db.WithContext(ctx))
}
