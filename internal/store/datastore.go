// Package store implements the embedded spatial data store: a sqlite file
// holding tables and feature classes, with attachments kept as blobs in a
// sibling data folder, plus the catalog factories and row sources that feed
// it.
package store

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"geocat/internal/catalog"
	"geocat/internal/status"
)

const (
	// Ext is the store file extension.
	Ext = "gcdb"
	// DataDirSuffix names the sibling folder carrying blobs and overviews.
	DataDirSuffix = ".data"

	systemPrefix = "gc_"

	metaTableName   = "gc_meta"
	tablesTableName = "gc_tables"
	fieldsTableName = "gc_fields"
	attachTableName = "gc_attachments"

	versionKey = "version"
	// storeVersion is the schema this code writes and the newest it opens.
	storeVersion = 3
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// DataStore is a sqlite-backed container of tables and feature classes. It
// appears in the catalog as a single object backed by the .gcdb file.
type DataStore struct {
	catalog.BaseContainer

	db  *sql.DB
	log *zap.SugaredLogger

	// mu serializes schema changes and journal pragma flips.
	mu         sync.Mutex
	journalOff uint8
}

// pinConnection caps the pool at a single connection. SQLite allows one
// writer, and the journal pragmas SetJournal flips are per-connection; a
// second pooled connection would keep journaling in its own state.
func pinConnection(db *sql.DB) {
	db.SetMaxOpenConns(1)
}

func dsn(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Create makes a new store file at path and opens it. The file must not
// already exist.
func Create(parent catalog.Container, name, path string, log *zap.SugaredLogger) (*DataStore, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, status.Errorf(status.ErrCreateFailed, "%q already exists", path)
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, status.Errorf(status.ErrCreateFailed, "open database %q: %v", path, err)
	}
	pinConnection(db)
	s := &DataStore{
		BaseContainer: catalog.NewBaseContainer(parent, catalog.TypeStore, name, path),
		db:            db,
		log:           log,
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		os.Remove(path)
		return nil, err
	}
	if err := os.MkdirAll(s.DataDir(), 0o755); err != nil {
		db.Close()
		os.Remove(path)
		return nil, status.Errorf(status.ErrCreateFailed, "create data folder: %v", err)
	}
	catalog.Notify(s.FullName(), catalog.ChangeCreateObject)
	return s, nil
}

// Open opens an existing store file, upgrading its schema when it is older
// than this code. A store newer than this code is refused.
func Open(parent catalog.Container, name, path string, log *zap.SugaredLogger) (*DataStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "stat %q: %v", path, err)
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "open database %q: %v", path, err)
	}
	pinConnection(db)
	s := &DataStore{
		BaseContainer: catalog.NewBaseContainer(parent, catalog.TypeStore, name, path),
		db:            db,
		log:           log,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DataStore) createSchema() error {
	stmts := []string{
		`CREATE TABLE ` + metaTableName + ` (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE ` + tablesTableName + ` (
			name TEXT PRIMARY KEY,
			geometry_type INTEGER NOT NULL DEFAULT 0,
			min_zoom INTEGER NOT NULL DEFAULT 0,
			max_zoom INTEGER NOT NULL DEFAULT 18
		)`,
		`CREATE TABLE ` + fieldsTableName + ` (
			table_name TEXT NOT NULL,
			name TEXT NOT NULL,
			original_name TEXT NOT NULL,
			alias TEXT NOT NULL DEFAULT '',
			type INTEGER NOT NULL,
			PRIMARY KEY (table_name, name)
		)`,
		`CREATE TABLE ` + attachTableName + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name TEXT NOT NULL,
			fid INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			rid INTEGER NOT NULL DEFAULT -1
		)`,
		`CREATE INDEX idx_gc_attachments_feature ON ` + attachTableName + ` (table_name, fid)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return status.Errorf(status.ErrCreateFailed, "create schema: %v", err)
		}
	}
	if err := s.setMeta(versionKey, fmt.Sprint(storeVersion)); err != nil {
		return err
	}
	return nil
}

// Version reports the schema version recorded in the store.
func (s *DataStore) Version() (int, error) {
	var v int
	err := s.db.QueryRow(`SELECT value FROM `+metaTableName+` WHERE key = ?`, versionKey).Scan(&v)
	if err != nil {
		return 0, status.Errorf(status.ErrOpenFailed, "read store version: %v", err)
	}
	return v, nil
}

func (s *DataStore) setMeta(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO `+metaTableName+` (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return status.Errorf(status.ErrSaveFailed, "write meta %q: %v", key, err)
	}
	return nil
}

// Meta reads a metadata value, returning "" when the key is absent.
func (s *DataStore) Meta(key string) string {
	var v string
	if err := s.db.QueryRow(`SELECT value FROM `+metaTableName+` WHERE key = ?`, key).Scan(&v); err != nil {
		return ""
	}
	return v
}

// SetMeta writes a metadata value.
func (s *DataStore) SetMeta(key, value string) error { return s.setMeta(key, value) }

func (s *DataStore) migrate() error {
	version, err := s.Version()
	if err != nil {
		return err
	}
	if version > storeVersion {
		return status.Errorf(status.ErrOpenFailed,
			"store version %d is newer than supported version %d", version, storeVersion)
	}
	if version == storeVersion {
		return nil
	}
	s.log.Infow("upgrading store", "path", s.Path(), "from", version, "to", storeVersion)
	if version < 2 {
		_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS ` + attachTableName + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name TEXT NOT NULL,
			fid INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0
		)`)
		if err != nil {
			return status.Errorf(status.ErrOpenFailed, "upgrade to version 2: %v", err)
		}
	}
	if version < 3 {
		if _, err := s.db.Exec(`ALTER TABLE ` + attachTableName +
			` ADD COLUMN rid INTEGER NOT NULL DEFAULT -1`); err != nil {
			return status.Errorf(status.ErrOpenFailed, "upgrade to version 3: %v", err)
		}
		names, err := s.tableNames()
		if err != nil {
			return err
		}
		for _, name := range names {
			if _, err := s.db.Exec(`ALTER TABLE "` + name +
				`" ADD COLUMN gc_rid INTEGER NOT NULL DEFAULT -1`); err != nil {
				return status.Errorf(status.ErrOpenFailed, "upgrade to version 3: %v", err)
			}
		}
	}
	return s.setMeta(versionKey, fmt.Sprint(storeVersion))
}

// DataDir is the sibling folder holding attachment blobs and overview files.
func (s *DataStore) DataDir() string { return s.Path() + DataDirSuffix }

// DB exposes the underlying handle for row sources built on this store.
func (s *DataStore) DB() *sql.DB { return s.db }

// Close releases the database handle. The store object stays in the catalog
// but any further operation fails.
func (s *DataStore) Close() error { return s.db.Close() }

// IsNameValid reports whether name can be used for a new table. Reserved
// system prefixes and names already taken are refused.
func (s *DataStore) IsNameValid(name string) bool {
	if !tableNameRe.MatchString(name) {
		return false
	}
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, systemPrefix) || strings.HasPrefix(lower, Ext+"_") {
		return false
	}
	var n int
	if err := s.db.QueryRow(`SELECT count(*) FROM `+tablesTableName+` WHERE lower(name) = ?`,
		lower).Scan(&n); err != nil {
		return false
	}
	return n == 0
}

// SetJournal toggles write-ahead journaling with reference counting, so
// nested bulk operations only flip the pragmas on the outermost transition.
// Disabling more than 255 times without re-enabling is a programming error.
func (s *DataStore) SetJournal(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !on {
		if s.journalOff == math.MaxUint8 {
			panic("store: journal disable counter overflow")
		}
		s.journalOff++
		if s.journalOff == 1 {
			s.db.Exec(`PRAGMA journal_mode = OFF`)
			s.db.Exec(`PRAGMA synchronous = OFF`)
		}
		return
	}
	if s.journalOff == 0 {
		return
	}
	s.journalOff--
	if s.journalOff == 0 {
		s.db.Exec(`PRAGMA journal_mode = WAL`)
		s.db.Exec(`PRAGMA synchronous = NORMAL`)
	}
}

// JournalEnabled reports whether journaling is currently on.
func (s *DataStore) JournalEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.journalOff == 0
}

func (s *DataStore) tableNames() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM ` + tablesTableName + ` ORDER BY name`)
	if err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "list tables: %v", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, status.Errorf(status.ErrOpenFailed, "list tables: %v", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// HasChildren enumerates the registered tables on first call.
func (s *DataStore) HasChildren() bool {
	if s.ChildrenLoaded() {
		return len(s.Children()) > 0
	}
	names, err := s.tableNames()
	if err != nil {
		s.log.Warnw("store table listing failed", "path", s.Path(), "error", err)
		return false
	}
	for _, name := range names {
		obj, err := s.loadTable(name)
		if err != nil {
			s.log.Warnw("skipping table", "table", name, "error", err)
			continue
		}
		s.AddObject(obj)
	}
	s.MarkLoaded()
	return len(s.Children()) > 0
}

// GetObject resolves a catalog path relative to this store.
func (s *DataStore) GetObject(path string) catalog.Object {
	return catalog.Resolve(s, path)
}

func (s *DataStore) loadTable(name string) (catalog.Object, error) {
	var geomType int
	var minZoom, maxZoom int
	err := s.db.QueryRow(`SELECT geometry_type, min_zoom, max_zoom FROM `+tablesTableName+
		` WHERE name = ?`, name).Scan(&geomType, &minZoom, &maxZoom)
	if err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "read table %q: %v", name, err)
	}
	fields, err := s.loadFields(name)
	if err != nil {
		return nil, err
	}
	tbl := newTable(s, name, fields)
	if GeometryType(geomType) == GeometryNone {
		return tbl, nil
	}
	return newFeatureClass(tbl, GeometryType(geomType), minZoom, maxZoom), nil
}

func (s *DataStore) loadFields(table string) ([]Field, error) {
	rows, err := s.db.Query(`SELECT name, original_name, alias, type FROM `+fieldsTableName+
		` WHERE table_name = ? ORDER BY rowid`, table)
	if err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "read fields of %q: %v", table, err)
	}
	defer rows.Close()
	var fields []Field
	for rows.Next() {
		var f Field
		var typ int
		if err := rows.Scan(&f.Name, &f.OriginalName, &f.Alias, &typ); err != nil {
			return nil, status.Errorf(status.ErrOpenFailed, "read fields of %q: %v", table, err)
		}
		f.Type = FieldType(typ)
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// CreateTable makes a plain attribute table.
func (s *DataStore) CreateTable(name string, fields []Field) (*Table, error) {
	tbl, err := s.createDataset(name, fields, GeometryNone, 0, 0)
	if err != nil {
		return nil, err
	}
	return tbl, nil
}

// CreateFeatureClass makes a geometry-bearing table.
func (s *DataStore) CreateFeatureClass(name string, geomType GeometryType, fields []Field,
	minZoom, maxZoom int,
) (*FeatureClass, error) {
	if geomType == GeometryNone {
		return nil, status.Errorf(status.ErrInvalidArgument, "feature class %q needs a geometry type", name)
	}
	tbl, err := s.createDataset(name, fields, geomType, minZoom, maxZoom)
	if err != nil {
		return nil, err
	}
	fc := newFeatureClass(tbl, geomType, minZoom, maxZoom)
	if s.ChildrenLoaded() {
		s.RemoveObject(name)
		s.AddObject(fc)
	}
	return fc, nil
}

func (s *DataStore) createDataset(name string, fields []Field, geomType GeometryType,
	minZoom, maxZoom int,
) (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.IsNameValid(name) {
		return nil, status.Errorf(status.ErrInvalidArgument, "invalid or taken table name %q", name)
	}
	fields = s.normalizeFields(name, fields)

	cols := []string{
		`fid INTEGER PRIMARY KEY AUTOINCREMENT`,
		`gc_rid INTEGER NOT NULL DEFAULT -1`,
	}
	if geomType != GeometryNone {
		cols = append(cols, `geom BLOB`)
	}
	for _, f := range fields {
		cols = append(cols, fmt.Sprintf("%q %s", f.Name, f.Type.sqlType()))
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, status.Errorf(status.ErrCreateFailed, "create table %q: %v", name, err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(fmt.Sprintf("CREATE TABLE %q (%s)", name, strings.Join(cols, ", "))); err != nil {
		return nil, status.Errorf(status.ErrCreateFailed, "create table %q: %v", name, err)
	}
	if _, err := tx.Exec(`INSERT INTO `+tablesTableName+
		` (name, geometry_type, min_zoom, max_zoom) VALUES (?, ?, ?, ?)`,
		name, int(geomType), minZoom, maxZoom); err != nil {
		return nil, status.Errorf(status.ErrCreateFailed, "register table %q: %v", name, err)
	}
	for _, f := range fields {
		if _, err := tx.Exec(`INSERT INTO `+fieldsTableName+
			` (table_name, name, original_name, alias, type) VALUES (?, ?, ?, ?, ?)`,
			name, f.Name, f.OriginalName, f.Alias, int(f.Type)); err != nil {
			return nil, status.Errorf(status.ErrCreateFailed, "register fields of %q: %v", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, status.Errorf(status.ErrCreateFailed, "create table %q: %v", name, err)
	}

	tbl := newTable(s, name, fields)
	if s.ChildrenLoaded() {
		s.AddObject(tbl)
	}
	catalog.Notify(tbl.FullName(), catalog.ChangeCreateObject)
	return tbl, nil
}

// normalizeFields maps requested field names onto safe column names,
// remembering the original spelling. Renames are logged.
func (s *DataStore) normalizeFields(table string, fields []Field) []Field {
	used := map[string]bool{"fid": true, "geom": true}
	out := make([]Field, len(fields))
	for i, f := range fields {
		norm := normalizeFieldName(f.Name)
		base := norm
		for n := 1; used[norm]; n++ {
			norm = fmt.Sprintf("%s_%d", base, n)
		}
		used[norm] = true
		if norm != f.Name {
			s.log.Warnw("field renamed", "table", table, "from", f.Name, "to", norm)
		}
		out[i] = Field{Name: norm, OriginalName: f.Name, Alias: f.Alias, Type: f.Type}
		if out[i].Alias == "" {
			out[i].Alias = f.Name
		}
	}
	return out
}

func normalizeFieldName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		out = "field"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "fld_" + out
	}
	if strings.HasPrefix(out, systemPrefix) {
		out = "fld_" + out
	}
	return out
}

// DeleteTable drops a table with its registry rows, attachment rows and
// blob folder.
func (s *DataStore) DeleteTable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return status.Errorf(status.ErrDeleteFailed, "delete table %q: %v", name, err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %q", name)); err != nil {
		return status.Errorf(status.ErrDeleteFailed, "delete table %q: %v", name, err)
	}
	for _, stmt := range []string{
		`DELETE FROM ` + tablesTableName + ` WHERE name = ?`,
		`DELETE FROM ` + fieldsTableName + ` WHERE table_name = ?`,
		`DELETE FROM ` + attachTableName + ` WHERE table_name = ?`,
	} {
		if _, err := tx.Exec(stmt, name); err != nil {
			return status.Errorf(status.ErrDeleteFailed, "delete table %q: %v", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return status.Errorf(status.ErrDeleteFailed, "delete table %q: %v", name, err)
	}
	os.RemoveAll(filepath.Join(s.DataDir(), name))
	if s.ChildrenLoaded() {
		s.RemoveObject(name)
	}
	catalog.Notify(s.FullName()+catalog.Separator+name, catalog.ChangeDeleteObject)
	return nil
}

// Destroy closes the store and removes its file and data folder.
func (s *DataStore) Destroy() error {
	s.db.Close()
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return status.Errorf(status.ErrDeleteFailed, "remove store %q: %v", s.Path(), err)
	}
	os.RemoveAll(s.DataDir())
	uri := s.FullName()
	if p := s.Parent(); p != nil {
		p.RemoveObject(s.Name())
	}
	catalog.Notify(uri, catalog.ChangeDeleteObject)
	return nil
}
