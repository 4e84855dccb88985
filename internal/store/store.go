package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/equalisation/internal/fsutil"
	"github.com/banshee-data/equalisation/internal/monitoring"
)

// ErrNotFound is returned for missing datasets and attributes.
var ErrNotFound = errors.New("not found")

// File is an open store file.
type File struct {
	db   *sql.DB
	path string
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Open opens or creates the store file at path and brings its schema up to
// date.
func Open(path string) (*File, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// One connection keeps PRAGMAs and transactions on the same session.
	db.SetMaxOpenConns(1)
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store %s: %q: %w", path, pragma, err)
		}
	}
	f := &File{db: db, path: path}
	if err := f.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store %s: %w", path, err)
	}
	return f, nil
}

// OpenExisting opens a store file that must already exist.
func OpenExisting(path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store %s: %w", path, err)
	}
	return Open(path)
}

// Create removes any file at path (with its WAL side files) and opens a
// fresh store there.
func Create(path string) (*File, error) {
	return CreateWith(fsutil.OSFileSystem{}, path)
}

// CreateWith is Create with an explicit filesystem for the removal step.
func CreateWith(fs fsutil.FileSystem, path string) (*File, error) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if !fs.Exists(p) {
			continue
		}
		if err := fs.Remove(p); err != nil {
			return nil, fmt.Errorf("unable to delete result file %s: %w", p, err)
		}
	}
	return Open(path)
}

// Path returns the file path the store was opened with.
func (f *File) Path() string { return f.path }

// Close closes the underlying database.
func (f *File) Close() error { return f.db.Close() }

// WriteOption adjusts how a dataset is written.
type WriteOption func(*writeOptions)

type writeOptions struct {
	axis int
	rows int
}

// WithChunking splits the dataset along axis in blocks of rows.
func WithChunking(axis, rows int) WriteOption {
	return func(o *writeOptions) {
		o.axis = axis
		o.rows = rows
	}
}

type datasetMeta struct {
	id    int64
	dtype DType
	shape []uint64
	l     layout
}

// WriteDataset stores d as loc/name, replacing any previous dataset of that
// name together with its attributes.
func (f *File) WriteDataset(loc Location, name string, d *Dataset, opts ...WriteOption) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("write %s/%s: %w", loc, name, err)
	}
	dims := d.Dims()
	o := writeOptions{axis: 0}
	for _, opt := range opts {
		opt(&o)
	}
	if o.axis < 0 || o.axis >= len(dims) {
		return fmt.Errorf("write %s/%s: chunk axis %d outside %d dims", loc, name, o.axis, len(dims))
	}
	if o.rows <= 0 {
		l := layout{dims: dims, axis: o.axis}
		o.rows = max(1, defaultChunkElements/max(1, l.outer()*l.inner()))
	}
	l := layout{dims: dims, axis: o.axis, rows: o.rows}

	chunks, err := encodeChunks(d, l)
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", loc, name, err)
	}
	shapeJSON, err := json.Marshal(d.Shape)
	if err != nil {
		return err
	}

	tx, err := f.db.Begin()
	if err != nil {
		return fmt.Errorf("write %s/%s: begin: %w", loc, name, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM dataset_chunks WHERE dataset_id IN
		(SELECT dataset_id FROM datasets WHERE path = ? AND name = ?)`, string(loc), name); err != nil {
		return fmt.Errorf("write %s/%s: clear chunks: %w", loc, name, err)
	}
	if _, err := tx.Exec(`DELETE FROM datasets WHERE path = ? AND name = ?`, string(loc), name); err != nil {
		return fmt.Errorf("write %s/%s: clear dataset: %w", loc, name, err)
	}
	if _, err := tx.Exec(`DELETE FROM attributes WHERE path = ? AND holder = ?`, string(loc), name); err != nil {
		return fmt.Errorf("write %s/%s: clear attributes: %w", loc, name, err)
	}
	res, err := tx.Exec(`INSERT INTO datasets (path, name, dtype, shape, chunk_axis, chunk_rows, created_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(loc), name, string(d.Type), string(shapeJSON), l.axis, l.rows, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("write %s/%s: insert dataset: %w", loc, name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO dataset_chunks (dataset_id, chunk_index, data) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for k, blob := range chunks {
		if _, err := stmt.Exec(id, k, blob); err != nil {
			return fmt.Errorf("write %s/%s: chunk %d: %w", loc, name, k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write %s/%s: commit: %w", loc, name, err)
	}
	monitoring.Logf("[store] wrote %s/%s %s%v in %d chunks to %s", loc, name, d.Type, d.Shape, len(chunks), f.path)
	return nil
}

func (f *File) meta(loc Location, name string) (datasetMeta, error) {
	var (
		m         datasetMeta
		dtype     string
		shapeJSON string
		axis      int
		rows      int
	)
	err := f.db.QueryRow(`SELECT dataset_id, dtype, shape, chunk_axis, chunk_rows
		FROM datasets WHERE path = ? AND name = ?`, string(loc), name).
		Scan(&m.id, &dtype, &shapeJSON, &axis, &rows)
	if errors.Is(err, sql.ErrNoRows) {
		return m, fmt.Errorf("dataset %s/%s in %s: %w", loc, name, f.path, ErrNotFound)
	}
	if err != nil {
		return m, fmt.Errorf("dataset %s/%s in %s: %w", loc, name, f.path, err)
	}
	if err := json.Unmarshal([]byte(shapeJSON), &m.shape); err != nil {
		return m, fmt.Errorf("dataset %s/%s: bad shape %q: %w", loc, name, shapeJSON, err)
	}
	m.dtype = DType(dtype)
	dims := make([]int, len(m.shape))
	for i, s := range m.shape {
		dims[i] = int(s)
	}
	m.l = layout{dims: dims, axis: axis, rows: rows}
	return m, nil
}

// Shape returns the shape and type of loc/name without reading its data.
func (f *File) Shape(loc Location, name string) ([]uint64, DType, error) {
	m, err := f.meta(loc, name)
	if err != nil {
		return nil, "", err
	}
	return m.shape, m.dtype, nil
}

// HasDataset reports whether loc/name exists.
func (f *File) HasDataset(loc Location, name string) (bool, error) {
	_, err := f.meta(loc, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ListDatasets returns the dataset names under loc in name order.
func (f *File) ListDatasets(loc Location) ([]string, error) {
	rows, err := f.db.Query(`SELECT name FROM datasets WHERE path = ? ORDER BY name`, string(loc))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// ReadDataset reads the whole of loc/name.
func (f *File) ReadDataset(loc Location, name string) (*Dataset, error) {
	m, err := f.meta(loc, name)
	if err != nil {
		return nil, err
	}
	return f.readRange(loc, name, m, m.l.axis, 0, m.l.dims[m.l.axis])
}

// ReadRange reads indices [start, start+count) of axis. Only the chunks
// overlapping the range are fetched and they are decoded one at a time, so a
// read holds one chunk plus the result whichever axis the dataset was
// chunked on.
func (f *File) ReadRange(loc Location, name string, axis, start, count int) (*Dataset, error) {
	m, err := f.meta(loc, name)
	if err != nil {
		return nil, err
	}
	if axis < 0 || axis >= len(m.l.dims) {
		return nil, fmt.Errorf("read %s/%s: axis %d outside %d dims", loc, name, axis, len(m.l.dims))
	}
	if start < 0 || count <= 0 || start+count > m.l.dims[axis] {
		return nil, fmt.Errorf("read %s/%s: range [%d,%d) outside axis %d of length %d",
			loc, name, start, start+count, axis, m.l.dims[axis])
	}
	return f.readRange(loc, name, m, axis, start, count)
}

func subShape(shape []uint64, axis, count int) []uint64 {
	out := append([]uint64(nil), shape...)
	out[axis] = uint64(count)
	return out
}

// readRange assembles [start, start+count) of axis chunk by chunk.
func (f *File) readRange(loc Location, name string, m datasetMeta, axis, start, count int) (*Dataset, error) {
	out := &Dataset{Shape: subShape(m.shape, axis, count), Type: m.dtype}
	n := elements(out.Shape)
	if m.dtype == Int16 {
		out.Int16 = make([]int16, n)
	} else {
		out.Float64 = make([]float64, n)
	}
	if n == 0 {
		return out, nil
	}

	first, last := 0, m.l.numChunks()-1
	if axis == m.l.axis {
		first, last = start/m.l.rows, (start+count-1)/m.l.rows
	}
	rows, err := f.db.Query(`SELECT chunk_index, data FROM dataset_chunks
		WHERE dataset_id = ? AND chunk_index BETWEEN ? AND ? ORDER BY chunk_index`, m.id, first, last)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", loc, name, err)
	}
	defer rows.Close()

	dec := chunkDecoder{t: m.dtype}
	seen := 0
	for rows.Next() {
		var (
			k    int
			blob sql.RawBytes
		)
		if err := rows.Scan(&k, &blob); err != nil {
			return nil, fmt.Errorf("read %s/%s: %w", loc, name, err)
		}
		got, err := dec.decode(blob)
		if err != nil {
			return nil, fmt.Errorf("read %s/%s chunk %d: %w", loc, name, k, err)
		}
		cStart, cCount := m.l.chunkSpan(k)
		if want := m.l.outer() * cCount * m.l.inner(); got != want {
			return nil, fmt.Errorf("read %s/%s chunk %d: %d values, want %d", loc, name, k, got, want)
		}
		if m.dtype == Int16 {
			copyRegion(m.l.dims, dec.i16, m.l.axis, cStart, cCount, out.Int16, axis, start, count)
		} else {
			copyRegion(m.l.dims, dec.f64, m.l.axis, cStart, cCount, out.Float64, axis, start, count)
		}
		seen++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", loc, name, err)
	}
	if seen != last-first+1 {
		return nil, fmt.Errorf("read %s/%s: found %d of %d chunks", loc, name, seen, last-first+1)
	}
	return out, nil
}
