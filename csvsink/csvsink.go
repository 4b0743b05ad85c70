// Package csvsink writes records to semicolon separated files. AppendSink is
// the append-only, deduplicating sink used by long running archive jobs;
// Create writes a fresh report file per run.
package csvsink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

// Dialect describes the shared CSV layout: a one-rune delimiter, '"' quoting
// with doubled quotes, and minimal quoting.
type Dialect struct {
	Comma   rune
	UseCRLF bool
}

var (
	// Default is used by every report: ';' and CRLF line endings.
	Default = Dialect{Comma: ';', UseCRLF: true}
	// Thread is the thread export variant with LF line endings.
	Thread = Dialect{Comma: ';'}
)

// NewWriter returns a Writer configured for d.
func (d Dialect) NewWriter(w io.Writer) *Writer {
	out := &Writer{w: bufio.NewWriter(w), crlf: d.UseCRLF}
	out.cw = csv.NewWriter(&out.row)
	out.cw.Comma = d.Comma
	return out
}

// Writer is a csv.Writer that keeps field text byte for byte. Only the row
// terminator follows the dialect; newlines and carriage returns inside quoted
// fields are written as they are.
type Writer struct {
	w    *bufio.Writer
	cw   *csv.Writer
	row  bytes.Buffer
	crlf bool
	err  error
}

// Write writes one row to the buffered output.
func (w *Writer) Write(record []string) error {
	if w.err != nil {
		return w.err
	}
	w.row.Reset()
	if err := w.cw.Write(record); err != nil {
		return err
	}
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		return err
	}
	line := w.row.Bytes()
	if w.crlf {
		line = append(line[:len(line)-1], '\r', '\n')
	}
	_, w.err = w.w.Write(line)
	return w.err
}

// WriteAll writes rows and flushes.
func (w *Writer) WriteAll(records [][]string) error {
	for _, r := range records {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Flush writes buffered rows to the underlying writer.
func (w *Writer) Flush() {
	if w.err == nil {
		w.err = w.w.Flush()
	}
}

// Error reports any error from a previous Write or Flush.
func (w *Writer) Error() error { return w.err }

// NewReader returns a csv.Reader configured for d. Rows may have any number
// of fields.
func (d Dialect) NewReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = d.Comma
	cr.FieldsPerRecord = -1
	return cr
}

// Codec turns a record into a row. A nil Header writes no header row.
type Codec[R harvest.Record] struct {
	Header []string
	Encode func(R) []string
}

// AppendSink appends records whose id is not yet in the file. The id is the
// first column. Its watermark is kept in a "<file>.watermark" sidecar that is
// replaced only after the rows it covers are on disk.
type AppendSink[R harvest.Record] struct {
	path    string
	dialect Dialect
	codec   Codec[R]
	seen    map[string]struct{}
	file    *os.File
	w       *Writer
	log     logrus.FieldLogger
}

// Option configures an AppendSink.
type Option func(*options)

type options struct {
	log logrus.FieldLogger
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// OpenAppend opens path for appending, loading the ids already present. A
// missing file is created with the codec header.
func OpenAppend[R harvest.Record](path string, d Dialect, codec Codec[R], opts ...Option) (*AppendSink[R], error) {
	o := options{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	seen := make(map[string]struct{})
	rows, err := ReadRows(path, d)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		for i, row := range rows {
			if i == 0 && codec.Header != nil {
				continue
			}
			if len(row) > 0 {
				seen[row[0]] = struct{}{}
			}
		}
	}
	exists := err == nil

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create csv output directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file %s: %w", path, err)
	}

	s := &AppendSink[R]{
		path:    path,
		dialect: d,
		codec:   codec,
		seen:    seen,
		file:    f,
		w:       d.NewWriter(f),
		log:     o.log.WithField("file", path),
	}
	if !exists && codec.Header != nil {
		if err := s.w.Write(codec.Header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write csv header for %s: %w", path, err)
		}
		if err := s.flush(); err != nil {
			f.Close()
			return nil, err
		}
	}
	s.log.WithField("rows", len(seen)).Debug("Opened append sink")
	return s, nil
}

// Seen reports whether id is already in the file.
func (s *AppendSink[R]) Seen(id string) bool {
	_, ok := s.seen[id]
	return ok
}

// Len is the number of records in the file.
func (s *AppendSink[R]) Len() int { return len(s.seen) }

// Watermark reads the sidecar, zero if there is none.
func (s *AppendSink[R]) Watermark(ctx context.Context, key string) (harvest.Watermark, error) {
	marks, err := readSidecar(s.sidecar())
	if err != nil {
		return 0, err
	}
	return marks[key], nil
}

// Write appends the records of batch that are not in the file yet, in order,
// then advances the sidecar watermark.
func (s *AppendSink[R]) Write(ctx context.Context, key string, batch []R, mark harvest.Watermark) (int, error) {
	written := 0
	for _, r := range batch {
		id := r.RecordID()
		if s.Seen(id) {
			continue
		}
		if err := s.w.Write(s.codec.Encode(r)); err != nil {
			return written, &harvest.Error{Op: "write_csv", Err: err}
		}
		s.seen[id] = struct{}{}
		written++
	}
	if err := s.flush(); err != nil {
		return written, err
	}
	if mark <= 0 {
		return written, nil
	}

	marks, err := readSidecar(s.sidecar())
	if err != nil {
		return written, err
	}
	if mark <= marks[key] {
		return written, nil
	}
	marks[key] = mark
	return written, writeSidecar(s.sidecar(), marks)
}

// Close flushes and closes the file.
func (s *AppendSink[R]) Close() error {
	if err := s.flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

func (s *AppendSink[R]) flush() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return &harvest.Error{Op: "flush_csv", Err: err}
	}
	if err := s.file.Sync(); err != nil {
		return &harvest.Error{Op: "sync_csv", Err: err}
	}
	return nil
}

func (s *AppendSink[R]) sidecar() string { return s.path + ".watermark" }

// readSidecar parses "key mark" lines.
func readSidecar(path string) (map[string]harvest.Watermark, error) {
	marks := make(map[string]harvest.Watermark)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return marks, nil
	}
	if err != nil {
		return nil, &harvest.Error{Op: "read_watermark", Err: err}
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), " ")
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, &harvest.Error{Op: "read_watermark", Err: fmt.Errorf("%s: %w", path, err)}
		}
		marks[key] = harvest.Watermark(v)
	}
	if err := sc.Err(); err != nil {
		return nil, &harvest.Error{Op: "read_watermark", Err: err}
	}
	return marks, nil
}

// writeSidecar replaces the sidecar through a synced temp file and a rename.
func writeSidecar(path string, marks map[string]harvest.Watermark) error {
	keys := make([]string, 0, len(marks))
	for k := range marks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s %d\n", k, marks[k])
	}
	if err := replaceFile(path, []byte(b.String())); err != nil {
		return &harvest.Error{Op: "write_watermark", Err: err}
	}
	return nil
}

func replaceFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Create writes records to a new file at path, replacing any previous one.
func Create[R harvest.Record](path string, d Dialect, codec Codec[R], records []R) error {
	rows := make([][]string, 0, len(records)+1)
	if codec.Header != nil {
		rows = append(rows, codec.Header)
	}
	for _, r := range records {
		rows = append(rows, codec.Encode(r))
	}
	return WriteRows(path, d, rows)
}

// Encode renders records as CSV in memory.
func Encode[R harvest.Record](w io.Writer, d Dialect, codec Codec[R], records []R) error {
	cw := d.NewWriter(w)
	if codec.Header != nil {
		if err := cw.Write(codec.Header); err != nil {
			return err
		}
	}
	for _, r := range records {
		if err := cw.Write(codec.Encode(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRows reads every row of path.
func ReadRows(path string, d Dialect) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := d.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv file %s: %w", path, err)
	}
	return rows, nil
}

// WriteRows replaces path with rows.
func WriteRows(path string, d Dialect, rows [][]string) error {
	var b strings.Builder
	w := d.NewWriter(&b)
	if err := w.WriteAll(rows); err != nil {
		return &harvest.Error{Op: "write_csv", Err: err}
	}
	if err := replaceFile(path, []byte(b.String())); err != nil {
		return &harvest.Error{Op: "write_csv", Err: fmt.Errorf("%s: %w", path, err)}
	}
	return nil
}
