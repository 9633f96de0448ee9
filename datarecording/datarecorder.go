// Package datarecording stores simulation records in SQLite tables.
//
// Every table holds one flat struct type. The field names become the column
// names and the rows are buffered in memory until the batch is full or Flush
// is called.
package datarecording

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// DefaultBatchSize is the number of buffered rows that triggers a flush.
const DefaultBatchSize = 100000

// ErrUnsupportedEntry is returned when a table is created from a struct that
// has a field that cannot be stored in a column.
var ErrUnsupportedEntry = errors.New("unsupported entry")

// DataRecorder is a backend that can record and store data.
type DataRecorder interface {
	// CreateTable creates a new table whose columns are the fields of
	// sampleEntry.
	CreateTable(tableName string, sampleEntry any) error

	// InsertData buffers an entry for a table that already exists.
	InsertData(tableName string, entry any) error

	// ListTables returns the names of all the tables, sorted.
	ListTables() []string

	// Flush writes all the buffered entries into the database.
	Flush() error

	// Close flushes and closes the database.
	Close() error
}

// New creates a recorder that writes into path + ".sqlite3". An empty path
// picks a unique file name. The buffered entries are flushed when the program
// exits through atexit.
func New(path string, batchSize int) (DataRecorder, error) {
	if path == "" {
		path = "ranstack_recording_" + xid.New().String()
	}

	filename := path + ".sqlite3"

	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("recording file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}

	w := newSQLiteWriter(db, batchSize)

	atexit.Register(func() { _ = w.Flush() })

	return w, nil
}

// NewWithDB creates a recorder that writes into an opened database.
func NewWithDB(db *sql.DB, batchSize int) DataRecorder {
	return newSQLiteWriter(db, batchSize)
}

type table struct {
	structType reflect.Type
	insertSQL  string
	entries    []any
}

type sqliteWriter struct {
	sync.Mutex
	*sql.DB

	tables     map[string]*table
	batchSize  int
	entryCount int
}

func newSQLiteWriter(db *sql.DB, batchSize int) *sqliteWriter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &sqliteWriter{
		DB:        db,
		tables:    make(map[string]*table),
		batchSize: batchSize,
	}
}

func isAllowedKind(kind reflect.Kind) bool {
	switch kind {
	case
		reflect.Bool,
		reflect.Int,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Int64,
		reflect.Uint,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Uint64,
		reflect.Float32,
		reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func checkStructFields(entry any) (reflect.Type, error) {
	t := reflect.TypeOf(entry)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T is not a struct", ErrUnsupportedEntry, entry)
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if !field.IsExported() {
			return nil, fmt.Errorf("%w: field %s is not exported",
				ErrUnsupportedEntry, field.Name)
		}

		if !isAllowedKind(field.Type.Kind()) {
			return nil, fmt.Errorf("%w: field %s has kind %s",
				ErrUnsupportedEntry, field.Name, field.Type.Kind())
		}
	}

	return t, nil
}

func (w *sqliteWriter) CreateTable(tableName string, sampleEntry any) error {
	structType, err := checkStructFields(sampleEntry)
	if err != nil {
		return fmt.Errorf("creating table %s: %w", tableName, err)
	}

	w.Lock()
	defer w.Unlock()

	if _, exists := w.tables[tableName]; exists {
		return fmt.Errorf("table %s already exists", tableName)
	}

	names := structs.Names(sampleEntry)
	createSQL := "CREATE TABLE " + tableName +
		" (\n\t" + strings.Join(names, ", \n\t") + "\n);"

	if _, err := w.Exec(createSQL); err != nil {
		return fmt.Errorf("creating table %s: %w", tableName, err)
	}

	placeholders := make([]string, len(names))
	for i := range placeholders {
		placeholders[i] = "?"
	}

	w.tables[tableName] = &table{
		structType: structType,
		insertSQL: "INSERT INTO " + tableName +
			" VALUES (" + strings.Join(placeholders, ", ") + ")",
	}

	return nil
}

func (w *sqliteWriter) InsertData(tableName string, entry any) error {
	w.Lock()

	t, exists := w.tables[tableName]
	if !exists {
		w.Unlock()
		return fmt.Errorf("table %s does not exist", tableName)
	}

	if reflect.TypeOf(entry) != t.structType {
		w.Unlock()
		return fmt.Errorf("table %s stores %s, not %T",
			tableName, t.structType, entry)
	}

	t.entries = append(t.entries, entry)
	w.entryCount++
	full := w.entryCount >= w.batchSize

	w.Unlock()

	if full {
		return w.Flush()
	}

	return nil
}

func (w *sqliteWriter) ListTables() []string {
	w.Lock()
	defer w.Unlock()

	return w.tableNames()
}

func (w *sqliteWriter) tableNames() []string {
	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (w *sqliteWriter) Flush() error {
	w.Lock()
	defer w.Unlock()

	if w.entryCount == 0 {
		return nil
	}

	tx, err := w.Begin()
	if err != nil {
		return fmt.Errorf("flushing records: %w", err)
	}

	for _, name := range w.tableNames() {
		t := w.tables[name]
		if len(t.entries) == 0 {
			continue
		}

		if err := insertAll(tx, t); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("flushing table %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("flushing records: %w", err)
	}

	for _, t := range w.tables {
		t.entries = nil
	}

	w.entryCount = 0

	return nil
}

func insertAll(tx *sql.Tx, t *table) error {
	stmt, err := tx.Prepare(t.insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, entry := range t.entries {
		if _, err := stmt.Exec(structs.Values(entry)...); err != nil {
			return err
		}
	}

	return nil
}

func (w *sqliteWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}

	return w.DB.Close()
}
