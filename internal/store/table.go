package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"geocat/internal/catalog"
	"geocat/internal/progress"
	"geocat/internal/status"
)

// FieldType enumerates attribute column types.
type FieldType int

const (
	FieldInteger FieldType = iota
	FieldReal
	FieldString
	FieldDate
	FieldBlob
)

func (t FieldType) String() string {
	switch t {
	case FieldInteger:
		return "integer"
	case FieldReal:
		return "real"
	case FieldDate:
		return "date"
	case FieldBlob:
		return "blob"
	default:
		return "string"
	}
}

func (t FieldType) sqlType() string {
	switch t {
	case FieldInteger:
		return "INTEGER"
	case FieldReal:
		return "REAL"
	case FieldDate:
		return "TEXT"
	case FieldBlob:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// Field describes one attribute column. Name is the stored column name;
// OriginalName keeps the spelling requested at creation when it had to be
// normalized.
type Field struct {
	Name         string
	OriginalName string
	Alias        string
	Type         FieldType
}

// Feature is one row. Values aligns with the table's Fields; a nil entry is
// SQL NULL. RID is the identifier of the row's counterpart in a remote
// system, -1 when it has none.
type Feature struct {
	FID      int64
	RID      int64
	Values   []any
	Geometry geom.T
}

// RowSource yields features for bulk copying. Next returns io.EOF after the
// last row.
type RowSource interface {
	Fields() []Field
	Count() int
	Next() (*Feature, error)
}

// AttachmentInfo describes one file attached to a feature.
type AttachmentInfo struct {
	ID          int64
	Name        string
	Description string
	Size        int64
	RID         int64
	Path        string
}

// Table is an attribute table inside a data store.
type Table struct {
	catalog.BaseObject

	store  *DataStore
	fields []Field
}

func newTable(s *DataStore, name string, fields []Field) *Table {
	return &Table{
		BaseObject: catalog.NewBaseObject(s, catalog.TypeTable, name, s.Path()),
		store:      s,
		fields:     fields,
	}
}

// Fields returns the table's attribute schema.
func (t *Table) Fields() []Field { return t.fields }

// Store returns the owning data store.
func (t *Table) Store() *DataStore { return t.store }

// FieldIndex finds a field by stored or original name, -1 when absent.
func (t *Table) FieldIndex(name string) int {
	for i, f := range t.fields {
		if f.Name == name || strings.EqualFold(f.OriginalName, name) {
			return i
		}
	}
	return -1
}

func (t *Table) columnList() []string {
	cols := make([]string, 0, len(t.fields))
	for _, f := range t.fields {
		cols = append(cols, strconv.Quote(f.Name))
	}
	return cols
}

func encodeValue(f Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if f.Type == FieldDate {
		switch tv := v.(type) {
		case time.Time:
			return tv.UTC().Format(time.RFC3339), nil
		case string:
			return tv, nil
		default:
			return nil, status.Errorf(status.ErrInvalidArgument, "field %q wants a date, got %T", f.Name, v)
		}
	}
	return v, nil
}

func (t *Table) encodeValues(values []any) ([]any, error) {
	if len(values) != len(t.fields) {
		return nil, status.Errorf(status.ErrInvalidArgument,
			"table %q has %d fields, got %d values", t.Name(), len(t.fields), len(values))
	}
	out := make([]any, len(values))
	for i, v := range values {
		ev, err := encodeValue(t.fields[i], v)
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return out, nil
}

// CreateFeature inserts a row and returns its identifier.
func (t *Table) CreateFeature(f *Feature) (int64, error) {
	values, err := t.encodeValues(f.Values)
	if err != nil {
		return 0, err
	}
	cols := append([]string{"gc_rid"}, t.columnList()...)
	args := append([]any{f.RID}, values...)
	if f.Geometry != nil {
		blob, err := wkb.Marshal(f.Geometry, wkb.NDR)
		if err != nil {
			return 0, status.Errorf(status.ErrSaveFailed, "encode geometry: %v", err)
		}
		cols = append(cols, "geom")
		args = append(args, blob)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	res, err := t.store.db.Exec(fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		t.Name(), strings.Join(cols, ", "), marks), args...)
	if err != nil {
		return 0, status.Errorf(status.ErrSaveFailed, "insert into %q: %v", t.Name(), err)
	}
	fid, err := res.LastInsertId()
	if err != nil {
		return 0, status.Errorf(status.ErrSaveFailed, "insert into %q: %v", t.Name(), err)
	}
	f.FID = fid
	catalog.Notify(t.featureURI(fid), catalog.ChangeCreateFeature)
	return fid, nil
}

// UpdateFeature rewrites the row identified by f.FID.
func (t *Table) UpdateFeature(f *Feature) error {
	values, err := t.encodeValues(f.Values)
	if err != nil {
		return err
	}
	sets := []string{"gc_rid = ?"}
	args := []any{f.RID}
	for i, fld := range t.fields {
		sets = append(sets, fmt.Sprintf("%q = ?", fld.Name))
		args = append(args, values[i])
	}
	if t.isFeatureClass() {
		var blob any
		if f.Geometry != nil {
			b, err := wkb.Marshal(f.Geometry, wkb.NDR)
			if err != nil {
				return status.Errorf(status.ErrSaveFailed, "encode geometry: %v", err)
			}
			blob = b
		}
		sets = append(sets, "geom = ?")
		args = append(args, blob)
	}
	args = append(args, f.FID)
	res, err := t.store.db.Exec(fmt.Sprintf("UPDATE %q SET %s WHERE fid = ?",
		t.Name(), strings.Join(sets, ", ")), args...)
	if err != nil {
		return status.Errorf(status.ErrSaveFailed, "update %q: %v", t.Name(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return status.Errorf(status.ErrNotFound, "feature %d not in %q", f.FID, t.Name())
	}
	catalog.Notify(t.featureURI(f.FID), catalog.ChangeChangeFeature)
	return nil
}

// DeleteFeature removes one row. Attachments of the feature are not
// removed; use DeleteAttachments for that.
func (t *Table) DeleteFeature(fid int64) error {
	res, err := t.store.db.Exec(fmt.Sprintf("DELETE FROM %q WHERE fid = ?", t.Name()), fid)
	if err != nil {
		return status.Errorf(status.ErrDeleteFailed, "delete from %q: %v", t.Name(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return status.Errorf(status.ErrNotFound, "feature %d not in %q", fid, t.Name())
	}
	catalog.Notify(t.featureURI(fid), catalog.ChangeDeleteFeature)
	return nil
}

// DeleteFeatures removes every row.
func (t *Table) DeleteFeatures() error {
	if _, err := t.store.db.Exec(fmt.Sprintf("DELETE FROM %q", t.Name())); err != nil {
		return status.Errorf(status.ErrDeleteFailed, "clear %q: %v", t.Name(), err)
	}
	catalog.Notify(t.FullName(), catalog.ChangeChangeObject)
	return nil
}

// Count reports the number of rows.
func (t *Table) Count() (int64, error) {
	var n int64
	err := t.store.db.QueryRow(fmt.Sprintf("SELECT count(*) FROM %q", t.Name())).Scan(&n)
	if err != nil {
		return 0, status.Errorf(status.ErrOpenFailed, "count %q: %v", t.Name(), err)
	}
	return n, nil
}

func (t *Table) isFeatureClass() bool {
	var geomType int
	err := t.store.db.QueryRow(`SELECT geometry_type FROM `+tablesTableName+
		` WHERE name = ?`, t.Name()).Scan(&geomType)
	return err == nil && GeometryType(geomType) != GeometryNone
}

func (t *Table) selectColumns() string {
	cols := append([]string{"fid", "gc_rid"}, t.columnList()...)
	if t.isFeatureClass() {
		cols = append(cols, "geom")
	}
	return strings.Join(cols, ", ")
}

func (t *Table) scanFeature(scan func(dest ...any) error, withGeom bool) (*Feature, error) {
	f := &Feature{Values: make([]any, len(t.fields))}
	dest := []any{&f.FID, &f.RID}
	holders := make([]any, len(t.fields))
	for i, fld := range t.fields {
		switch fld.Type {
		case FieldInteger:
			holders[i] = new(sql.NullInt64)
		case FieldReal:
			holders[i] = new(sql.NullFloat64)
		case FieldBlob:
			holders[i] = new([]byte)
		default:
			holders[i] = new(sql.NullString)
		}
		dest = append(dest, holders[i])
	}
	var blob []byte
	if withGeom {
		dest = append(dest, &blob)
	}
	if err := scan(dest...); err != nil {
		return nil, err
	}
	for i, h := range holders {
		switch v := h.(type) {
		case *sql.NullInt64:
			if v.Valid {
				f.Values[i] = v.Int64
			}
		case *sql.NullFloat64:
			if v.Valid {
				f.Values[i] = v.Float64
			}
		case *sql.NullString:
			if v.Valid {
				f.Values[i] = v.String
			}
		case *[]byte:
			if *v != nil {
				f.Values[i] = *v
			}
		}
	}
	if len(blob) > 0 {
		g, err := wkb.Unmarshal(blob)
		if err != nil {
			return nil, status.Errorf(status.ErrOpenFailed, "decode geometry: %v", err)
		}
		f.Geometry = g
	}
	return f, nil
}

// Feature reads one row by identifier.
func (t *Table) Feature(fid int64) (*Feature, error) {
	withGeom := t.isFeatureClass()
	row := t.store.db.QueryRow(fmt.Sprintf("SELECT %s FROM %q WHERE fid = ?",
		t.selectColumns(), t.Name()), fid)
	f, err := t.scanFeature(row.Scan, withGeom)
	if err == sql.ErrNoRows {
		return nil, status.Errorf(status.ErrNotFound, "feature %d not in %q", fid, t.Name())
	}
	if err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "read feature %d of %q: %v", fid, t.Name(), err)
	}
	return f, nil
}

// FeatureByRemoteID finds the row whose remote identifier matches rid.
func (t *Table) FeatureByRemoteID(rid int64) (*Feature, error) {
	withGeom := t.isFeatureClass()
	row := t.store.db.QueryRow(fmt.Sprintf("SELECT %s FROM %q WHERE gc_rid = ?",
		t.selectColumns(), t.Name()), rid)
	f, err := t.scanFeature(row.Scan, withGeom)
	if err == sql.ErrNoRows {
		return nil, status.Errorf(status.ErrNotFound, "remote id %d not in %q", rid, t.Name())
	}
	if err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "read remote id %d of %q: %v", rid, t.Name(), err)
	}
	return f, nil
}

// SetRemoteID binds a row to its remote counterpart.
func (t *Table) SetRemoteID(fid, rid int64) error {
	res, err := t.store.db.Exec(fmt.Sprintf("UPDATE %q SET gc_rid = ? WHERE fid = ?", t.Name()), rid, fid)
	if err != nil {
		return status.Errorf(status.ErrSaveFailed, "set remote id on %q: %v", t.Name(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return status.Errorf(status.ErrNotFound, "feature %d not in %q", fid, t.Name())
	}
	return nil
}

// Features iterates every row in fid order.
func (t *Table) Features() (*FeatureReader, error) {
	withGeom := t.isFeatureClass()
	rows, err := t.store.db.Query(fmt.Sprintf("SELECT %s FROM %q ORDER BY fid",
		t.selectColumns(), t.Name()))
	if err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "read %q: %v", t.Name(), err)
	}
	return &FeatureReader{table: t, rows: rows, withGeom: withGeom}, nil
}

// FeatureReader streams rows from a table query. Close it when done.
type FeatureReader struct {
	table    *Table
	rows     *sql.Rows
	withGeom bool
}

// Next returns the following feature, or io.EOF after the last one.
func (r *FeatureReader) Next() (*Feature, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, status.Errorf(status.ErrOpenFailed, "read %q: %v", r.table.Name(), err)
		}
		return nil, io.EOF
	}
	f, err := r.table.scanFeature(r.rows.Scan, r.withGeom)
	if err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "read %q: %v", r.table.Name(), err)
	}
	return f, nil
}

// Close releases the underlying cursor.
func (r *FeatureReader) Close() error { return r.rows.Close() }

func (t *Table) featureURI(fid int64) string {
	return t.FullName() + "#" + strconv.FormatInt(fid, 10)
}

// CopyRows bulk-loads rows from src. fieldMap aligns source field indexes
// with this table's fields: fieldMap[i] is the source index feeding field i,
// or -1 to leave it NULL. Journaling is suspended for the duration. Rows
// already written stay written when the copy is canceled or fails.
func (t *Table) CopyRows(ctx context.Context, src RowSource, fieldMap []int, prog progress.Progress) error {
	if len(fieldMap) != len(t.fields) {
		return status.Errorf(status.ErrInvalidArgument,
			"field map has %d entries, table %q has %d fields", len(fieldMap), t.Name(), len(t.fields))
	}
	t.store.SetJournal(false)
	defer t.store.SetJournal(true)

	total := float64(src.Count())
	done := 0
	fraction := func() float64 {
		if total <= 0 {
			return 1
		}
		return float64(done) / total
	}
	for {
		if err := ctx.Err(); err != nil {
			prog.OnProgress(progress.Canceled, fraction(), "copy canceled")
			return status.Errorf(status.ErrCanceled, "copy into %q canceled", t.Name())
		}
		srcFeature, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return status.Errorf(status.ErrCopyFailed, "read source row: %v", err)
		}
		dst := &Feature{RID: srcFeature.RID, Geometry: srcFeature.Geometry,
			Values: make([]any, len(t.fields))}
		for i, srcIdx := range fieldMap {
			if srcIdx >= 0 && srcIdx < len(srcFeature.Values) {
				dst.Values[i] = srcFeature.Values[srcIdx]
			}
		}
		if _, err := t.CreateFeature(dst); err != nil {
			return status.Errorf(status.ErrCopyFailed, "write row %d: %v", done, err)
		}
		done++
		if !prog.OnProgress(progress.Continue, fraction(),
			fmt.Sprintf("copied %d features", done)) {
			return status.Errorf(status.ErrCanceled, "copy into %q canceled", t.Name())
		}
	}
	prog.OnProgress(progress.Finished, 1, fmt.Sprintf("copied %d features", done))
	return nil
}

// attachmentDir is where a feature's blobs live.
func (t *Table) attachmentDir(fid int64) string {
	return filepath.Join(t.store.DataDir(), t.Name(), strconv.FormatInt(fid, 10))
}

// AttachmentPath is the deterministic blob location for one attachment.
func (t *Table) AttachmentPath(fid, aid int64) string {
	return filepath.Join(t.attachmentDir(fid), strconv.FormatInt(aid, 10))
}

// AddAttachment registers a file against a feature and copies its bytes
// into the store's data folder.
func (t *Table) AddAttachment(fid int64, name, description, srcPath string) (int64, error) {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return 0, status.Errorf(status.ErrOpenFailed, "read attachment source: %v", err)
	}
	res, err := t.store.db.Exec(`INSERT INTO `+attachTableName+
		` (table_name, fid, name, description, size) VALUES (?, ?, ?, ?, ?)`,
		t.Name(), fid, name, description, len(data))
	if err != nil {
		return 0, status.Errorf(status.ErrSaveFailed, "register attachment: %v", err)
	}
	aid, err := res.LastInsertId()
	if err != nil {
		return 0, status.Errorf(status.ErrSaveFailed, "register attachment: %v", err)
	}
	if err := os.MkdirAll(t.attachmentDir(fid), 0o755); err != nil {
		return 0, status.Errorf(status.ErrSaveFailed, "create attachment folder: %v", err)
	}
	if err := os.WriteFile(t.AttachmentPath(fid, aid), data, 0o644); err != nil {
		return 0, status.Errorf(status.ErrSaveFailed, "write attachment blob: %v", err)
	}
	catalog.Notify(t.featureURI(fid), catalog.ChangeChangeFeature)
	return aid, nil
}

// Attachments lists a feature's attachments.
func (t *Table) Attachments(fid int64) ([]AttachmentInfo, error) {
	rows, err := t.store.db.Query(`SELECT id, name, description, size, rid FROM `+attachTableName+
		` WHERE table_name = ? AND fid = ? ORDER BY id`, t.Name(), fid)
	if err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "list attachments: %v", err)
	}
	defer rows.Close()
	var out []AttachmentInfo
	for rows.Next() {
		var a AttachmentInfo
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.Size, &a.RID); err != nil {
			return nil, status.Errorf(status.ErrOpenFailed, "list attachments: %v", err)
		}
		a.Path = t.AttachmentPath(fid, a.ID)
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAttachment rewrites an attachment's name and description.
func (t *Table) UpdateAttachment(aid int64, name, description string) error {
	res, err := t.store.db.Exec(`UPDATE `+attachTableName+
		` SET name = ?, description = ? WHERE table_name = ? AND id = ?`,
		name, description, t.Name(), aid)
	if err != nil {
		return status.Errorf(status.ErrSaveFailed, "update attachment: %v", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return status.Errorf(status.ErrNotFound, "attachment %d not in %q", aid, t.Name())
	}
	return nil
}

// SetAttachmentRemoteID binds an attachment to its remote counterpart.
func (t *Table) SetAttachmentRemoteID(aid, rid int64) error {
	res, err := t.store.db.Exec(`UPDATE `+attachTableName+
		` SET rid = ? WHERE table_name = ? AND id = ?`, rid, t.Name(), aid)
	if err != nil {
		return status.Errorf(status.ErrSaveFailed, "update attachment: %v", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return status.Errorf(status.ErrNotFound, "attachment %d not in %q", aid, t.Name())
	}
	return nil
}

// DeleteAttachment removes one attachment row and its blob.
func (t *Table) DeleteAttachment(fid, aid int64) error {
	res, err := t.store.db.Exec(`DELETE FROM `+attachTableName+
		` WHERE table_name = ? AND id = ?`, t.Name(), aid)
	if err != nil {
		return status.Errorf(status.ErrDeleteFailed, "delete attachment: %v", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return status.Errorf(status.ErrNotFound, "attachment %d not in %q", aid, t.Name())
	}
	if err := os.Remove(t.AttachmentPath(fid, aid)); err != nil && !os.IsNotExist(err) {
		return status.Errorf(status.ErrDeleteFailed, "remove attachment blob: %v", err)
	}
	return nil
}

// DeleteAttachments removes every attachment of a feature.
func (t *Table) DeleteAttachments(fid int64) error {
	if _, err := t.store.db.Exec(`DELETE FROM `+attachTableName+
		` WHERE table_name = ? AND fid = ?`, t.Name(), fid); err != nil {
		return status.Errorf(status.ErrDeleteFailed, "delete attachments: %v", err)
	}
	if err := os.RemoveAll(t.attachmentDir(fid)); err != nil {
		return status.Errorf(status.ErrDeleteFailed, "remove attachment folder: %v", err)
	}
	return nil
}
