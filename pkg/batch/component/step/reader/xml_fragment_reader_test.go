package reader_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/bookbatch/pkg/batch/component/step/reader"
	"github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
)

type title struct {
	Name string
	Year int
}

func mapTitle(f reader.Fragment) (title, error) {
	year, err := strconv.Atoi(f["year"])
	if err != nil {
		return title{}, err
	}
	return title{Name: f["title"], Year: year}, nil
}

func newReader(t *testing.T, content string) *reader.XMLFragmentReader[title] {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/in/books.xml", []byte(content), 0o644))
	return reader.NewXMLFragmentReader[title](fs, "bookReader", "/in/books.xml", "book", mapTitle)
}

func readAll(t *testing.T, r *reader.XMLFragmentReader[title]) ([]title, error) {
	t.Helper()
	var items []title
	for {
		item, err := r.Read(context.Background())
		if errors.Is(err, port.ErrNoMoreItems) {
			return items, nil
		}
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
}

func TestXMLFragmentReader_ReadsInDocumentOrder(t *testing.T) {
	r := newReader(t, `<?xml version="1.0" encoding="UTF-8"?>
<books>
  <meta><title>ignored</title></meta>
  <book>
    <title>  The Hobbit </title>
    <year>1937</year>
  </book>
  <book><title>Dune</title><year>1965</year><notes><p>nested</p></notes></book>
  <book><year>1815</year><title>Emma</title></book>
</books>`)
	ec := model.NewExecutionContext()
	require.NoError(t, r.Open(context.Background(), ec))
	defer r.Close(context.Background())

	items, err := readAll(t, r)
	require.NoError(t, err)
	assert.Equal(t, []title{{"The Hobbit", 1937}, {"Dune", 1965}, {"Emma", 1815}}, items)

	count, ok := ec.GetInt("bookReader.read.count")
	require.True(t, ok)
	assert.Equal(t, 3, count)

	// Exhausted readers keep reporting the end.
	_, err = r.Read(context.Background())
	assert.ErrorIs(t, err, port.ErrNoMoreItems)
}

func TestXMLFragmentReader_ZeroFragments(t *testing.T) {
	for name, content := range map[string]string{
		"no fragments":   `<books></books>`,
		"empty document": ``,
	} {
		t.Run(name, func(t *testing.T) {
			r := newReader(t, content)
			require.NoError(t, r.Open(context.Background(), nil))
			_, err := r.Read(context.Background())
			assert.ErrorIs(t, err, port.ErrNoMoreItems)
		})
	}
}

func TestXMLFragmentReader_MalformedDocument(t *testing.T) {
	r := newReader(t, `<books><book><title>A</title><year>1</year></book><book><title>B</title>`)
	require.NoError(t, r.Open(context.Background(), nil))

	items, err := readAll(t, r)
	require.Error(t, err)
	assert.Len(t, items, 1)

	var readErr *exception.ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, exception.ReadErrorParse, readErr.Kind)
}

func TestXMLFragmentReader_MappingFailureIsParseError(t *testing.T) {
	r := newReader(t, `<books><book><title>A</title><year>nineteen</year></book></books>`)
	require.NoError(t, r.Open(context.Background(), nil))

	_, err := r.Read(context.Background())
	var readErr *exception.ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, exception.ReadErrorParse, readErr.Kind)
	assert.Contains(t, err.Error(), "fragment #1")
}

func TestXMLFragmentReader_MissingFile(t *testing.T) {
	r := reader.NewXMLFragmentReader[title](afero.NewMemMapFs(), "bookReader", "/nope.xml", "book", mapTitle)

	err := r.Open(context.Background(), nil)
	var readErr *exception.ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, exception.ReadErrorIo, readErr.Kind)
	assert.Equal(t, "/nope.xml", readErr.Resource)
}

func TestXMLFragmentReader_ReadBeforeOpen(t *testing.T) {
	r := newReader(t, `<books/>`)
	_, err := r.Read(context.Background())
	require.Error(t, err)
	assert.True(t, exception.IsBatchError(err))
	assert.NoError(t, r.Close(context.Background()), "closing an unopened reader is a no-op")
}
