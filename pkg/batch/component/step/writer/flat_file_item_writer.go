package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/bookbatch/pkg/batch/core/tx"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// DefaultDelimiter separates the fields of a line.
const DefaultDelimiter = ";"

// FieldExtractor returns the fields of one item in output order.
type FieldExtractor[I any] func(item I) []string

// FlatFileItemWriter writes one delimited line per item, like Spring Batch's FlatFileItemWriter
// with a DelimitedLineAggregator. Fields are not quoted.
//
// Inside a transaction the lines of a chunk are staged and only reach the file when the
// transaction commits. A rollback discards them, and a database commit failing after the
// flush truncates the file back to its previous size.
type FlatFileItemWriter[I any] struct {
	fs             afero.Fs
	name           string
	path           string
	delimiter      string
	lineSeparator  string
	deleteIfExists bool
	extractor      FieldExtractor[I]

	file    afero.File
	offset  int64 // size of the committed content
	written int
	ec      model.ExecutionContext
}

// FlatFileOption configures a FlatFileItemWriter.
type FlatFileOption func(*flatFileSettings)

type flatFileSettings struct {
	delimiter      string
	lineSeparator  string
	deleteIfExists bool
}

// WithDelimiter sets the field delimiter. Empty keeps the default ";".
func WithDelimiter(d string) FlatFileOption {
	return func(s *flatFileSettings) {
		if d != "" {
			s.delimiter = d
		}
	}
}

// WithLineSeparator sets the line terminator. Empty keeps the default "\n".
func WithLineSeparator(sep string) FlatFileOption {
	return func(s *flatFileSettings) {
		if sep != "" {
			s.lineSeparator = sep
		}
	}
}

// WithDeleteIfExists makes Open remove an existing file instead of appending to it.
func WithDeleteIfExists(enabled bool) FlatFileOption {
	return func(s *flatFileSettings) { s.deleteIfExists = enabled }
}

// NewFlatFileItemWriter creates a writer of path on fs. A nil fs means the OS file system.
//
// Parameters:
//
//	fs: The file system to write to.
//	name: A unique name for this writer instance.
//	path: The output file.
//	extractor: Produces the fields of an item.
//	opts: Delimiter, line separator and delete-if-exists settings.
func NewFlatFileItemWriter[I any](fs afero.Fs, name, path string, extractor FieldExtractor[I], opts ...FlatFileOption) *FlatFileItemWriter[I] {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	s := flatFileSettings{delimiter: DefaultDelimiter, lineSeparator: "\n"}
	for _, opt := range opts {
		opt(&s)
	}
	return &FlatFileItemWriter[I]{
		fs:             fs,
		name:           name,
		path:           path,
		delimiter:      s.delimiter,
		lineSeparator:  s.lineSeparator,
		deleteIfExists: s.deleteIfExists,
		extractor:      extractor,
	}
}

// WrittenCountKey is the ExecutionContext key holding the number of committed lines.
func (w *FlatFileItemWriter[I]) WrittenCountKey() string {
	return w.name + ".written.count"
}

// Open creates the parent directory and opens the file for appending. With delete-if-exists
// an existing file is removed first, so every run starts from an empty file.
func (w *FlatFileItemWriter[I]) Open(ctx context.Context, ec model.ExecutionContext) error {
	if ec == nil {
		ec = model.NewExecutionContext()
	}
	w.ec = ec

	if dir := filepath.Dir(w.path); dir != "." && dir != "" {
		if err := w.fs.MkdirAll(dir, 0o755); err != nil {
			return exception.NewWriteError(exception.WriteErrorIo, w.path, err)
		}
	}
	if w.deleteIfExists {
		if err := w.fs.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return exception.NewWriteError(exception.WriteErrorIo, w.path, fmt.Errorf("failed to delete existing file: %w", err))
		}
	}

	file, err := w.fs.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return exception.NewWriteError(exception.WriteErrorIo, w.path, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return exception.NewWriteError(exception.WriteErrorIo, w.path, err)
	}
	if _, err := file.Seek(info.Size(), io.SeekStart); err != nil {
		_ = file.Close()
		return exception.NewWriteError(exception.WriteErrorIo, w.path, err)
	}
	w.file = file
	w.offset = info.Size()
	w.written = 0
	w.ec.Put(w.WrittenCountKey(), w.written)

	logger.Infof("FlatFileItemWriter '%s': Opened %s (delimiter %q, deleteIfExists=%t).", w.name, w.path, w.delimiter, w.deleteIfExists)
	return nil
}

// Write formats the chunk. With a transaction the lines are staged until it commits;
// without one they are flushed immediately.
func (w *FlatFileItemWriter[I]) Write(ctx context.Context, t tx.Tx, items []I) error {
	if w.file == nil {
		return exception.NewWriteError(exception.WriteErrorIo, w.path, errors.New("writer not opened"))
	}
	if len(items) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, item := range items {
		buf.WriteString(strings.Join(w.extractor(item), w.delimiter))
		buf.WriteString(w.lineSeparator)
	}

	staged := &stagedLines[I]{writer: w, data: buf.Bytes(), lines: len(items)}
	if t == nil {
		return staged.BeforeCommit(ctx)
	}
	t.RegisterSynchronization(staged)
	return nil
}

// flush appends data and syncs the file. On a short or failed write the file is restored.
func (w *FlatFileItemWriter[I]) flush(data []byte, lines int) error {
	if w.file == nil {
		return exception.NewWriteError(exception.WriteErrorIo, w.path, errors.New("writer closed before commit"))
	}
	if _, err := w.file.Write(data); err != nil {
		w.truncate(w.offset)
		return exception.NewWriteError(exception.WriteErrorIo, w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		w.truncate(w.offset)
		return exception.NewWriteError(exception.WriteErrorIo, w.path, err)
	}
	w.offset += int64(len(data))
	w.written += lines
	w.ec.Put(w.WrittenCountKey(), w.written)
	return nil
}

// truncate restores the file to size.
func (w *FlatFileItemWriter[I]) truncate(size int64) {
	if w.file == nil {
		return
	}
	if err := w.file.Truncate(size); err != nil {
		logger.Errorf("FlatFileItemWriter '%s': Failed to truncate %s to %d bytes: %v", w.name, w.path, size, err)
		return
	}
	if _, err := w.file.Seek(size, io.SeekStart); err != nil {
		logger.Errorf("FlatFileItemWriter '%s': Failed to seek %s to %d: %v", w.name, w.path, size, err)
	}
}

// Close closes the file.
func (w *FlatFileItemWriter[I]) Close(ctx context.Context) error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return exception.NewWriteError(exception.WriteErrorIo, w.path, err)
	}
	logger.Infof("FlatFileItemWriter '%s': Closed %s after %d lines.", w.name, w.path, w.written)
	return nil
}

// stagedLines is the transaction synchronization of one chunk.
type stagedLines[I any] struct {
	writer  *FlatFileItemWriter[I]
	data    []byte
	lines   int
	flushed bool
	before  int64
}

func (s *stagedLines[I]) BeforeCommit(ctx context.Context) error {
	s.before = s.writer.offset
	if err := s.writer.flush(s.data, s.lines); err != nil {
		return err
	}
	s.flushed = true
	return nil
}

func (s *stagedLines[I]) AfterCompletion(ctx context.Context, committed bool) {
	if committed || !s.flushed {
		return
	}
	// The lines reached the file but the transaction did not commit.
	logger.Warnf("FlatFileItemWriter '%s': Transaction rolled back after flush; removing %d lines.", s.writer.name, s.lines)
	s.writer.truncate(s.before)
	s.writer.offset = s.before
	s.writer.written -= s.lines
	s.writer.ec.Put(s.writer.WrittenCountKey(), s.writer.written)
}

var _ port.ItemWriter[any] = (*FlatFileItemWriter[any])(nil)
var _ tx.Synchronization = (*stagedLines[any])(nil)
