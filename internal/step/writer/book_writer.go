// Package writer builds the writers of the book step: the book table and the delimited file,
// combined into one composite writer.
package writer

import (
	"strconv"

	"github.com/spf13/afero"

	"github.com/tigerroll/bookbatch/internal/domain/entity"
	"github.com/tigerroll/bookbatch/pkg/batch/component/item"
	"github.com/tigerroll/bookbatch/pkg/batch/component/step/writer"
	config "github.com/tigerroll/bookbatch/pkg/batch/core/config"
	configbinder "github.com/tigerroll/bookbatch/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
)

const (
	// InsertBookStatement is executed once per book.
	InsertBookStatement = "INSERT INTO book(title, year) VALUES (?, ?)"
	// SQLWriterName names the relational writer.
	SQLWriterName = "jdbcWriter"
	// FileWriterName names the file writer, also the prefix of its ExecutionContext keys.
	FileWriterName = "fileWriter"
)

// FileWriterProperties are the optional settings under app.output.properties.
type FileWriterProperties struct {
	LineSeparator string `yaml:"line_separator"`
}

// BookArgs binds a book to InsertBookStatement.
func BookArgs(b entity.Book) []interface{} {
	return []interface{}{b.Title, b.Year}
}

// BookFields returns the file fields of a book: title, then year.
func BookFields(b entity.Book) []string {
	return []string{b.Title, strconv.Itoa(b.Year)}
}

// NewBookSQLWriter creates the writer of the book table.
func NewBookSQLWriter() *writer.SQLItemWriter[entity.Book] {
	return writer.NewSQLItemWriter(SQLWriterName, entity.Book{}.TableName(), InsertBookStatement, BookArgs)
}

// NewBookFileWriter creates the writer of the delimited file described by cfg.
func NewBookFileWriter(fs afero.Fs, cfg config.OutputConfig) (*writer.FlatFileItemWriter[entity.Book], error) {
	props := FileWriterProperties{}
	if err := configbinder.BindProperties(cfg.Properties, &props); err != nil {
		return nil, exception.NewBatchError(FileWriterName, "Failed to bind output properties", err, false, false)
	}
	return writer.NewFlatFileItemWriter(fs, FileWriterName, cfg.Path, BookFields,
		writer.WithDelimiter(cfg.Delimiter),
		writer.WithLineSeparator(props.LineSeparator),
		writer.WithDeleteIfExists(cfg.DeleteIfExists),
	), nil
}

// NewBookWriter combines the table writer and the file writer, in that order. The file lines
// are flushed when the chunk transaction commits, so both sinks hold the same chunks.
func NewBookWriter(fs afero.Fs, cfg config.OutputConfig) (*item.CompositeItemWriter[entity.Book], error) {
	fileWriter, err := NewBookFileWriter(fs, cfg)
	if err != nil {
		return nil, err
	}
	return item.NewCompositeItemWriter[entity.Book](NewBookSQLWriter(), fileWriter), nil
}
