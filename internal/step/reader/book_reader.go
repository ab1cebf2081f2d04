// Package reader builds the reader of book fragments.
package reader

import (
	"fmt"
	"strconv"

	"github.com/spf13/afero"

	"github.com/tigerroll/bookbatch/internal/domain/entity"
	"github.com/tigerroll/bookbatch/pkg/batch/component/step/reader"
)

// ReaderName is the name of the book reader, also the prefix of its ExecutionContext keys.
const ReaderName = "xmlReader"

// MapBook maps a <book> fragment. A missing title is an empty string; the year must be an integer.
func MapBook(f reader.Fragment) (entity.Book, error) {
	raw, ok := f["year"]
	if !ok {
		return entity.Book{}, fmt.Errorf("missing <year> element")
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return entity.Book{}, fmt.Errorf("invalid <year> %q: %w", raw, err)
	}
	return entity.Book{Title: f["title"], Year: year}, nil
}

// NewBookReader creates a reader yielding one Book per fragment element of the document at path.
func NewBookReader(fs afero.Fs, path, fragment string) *reader.XMLFragmentReader[entity.Book] {
	return reader.NewXMLFragmentReader(fs, ReaderName, path, fragment, MapBook)
}
