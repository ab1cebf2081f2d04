// Package reader provides generic item readers.
package reader

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"

	"github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// Fragment holds the direct child elements of one XML fragment, keyed by local name.
// Values are the trimmed character data of each child.
type Fragment map[string]string

// FragmentMapper turns a Fragment into an item. An error is reported as a parse failure.
type FragmentMapper[O any] func(Fragment) (O, error)

// XMLFragmentReader streams an XML document and yields one item per element named fragment,
// in document order. It is the counterpart of Spring Batch's StaxEventItemReader, with an
// explicit mapping function instead of unmarshalling.
type XMLFragmentReader[O any] struct {
	fs       afero.Fs               // fs is the file system the document is opened from.
	name     string                 // name prefixes the reader's ExecutionContext keys.
	path     string                 // path is the location of the XML document.
	fragment string                 // fragment is the local name of the repeating element.
	mapper   FragmentMapper[O]      // mapper converts each fragment.
	file     afero.File             // file is the open document, nil when closed.
	decoder  *xml.Decoder           // decoder streams tokens from file.
	ec       model.ExecutionContext // ec carries the read count.
	count    int                    // count is the number of fragments read so far.
	done     bool                   // done is set once the end of the document was reached.
}

// NewXMLFragmentReader creates a reader of path on fs. A nil fs means the OS file system.
func NewXMLFragmentReader[O any](fs afero.Fs, name, path, fragment string, mapper FragmentMapper[O]) *XMLFragmentReader[O] {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &XMLFragmentReader[O]{
		fs:       fs,
		name:     name,
		path:     path,
		fragment: fragment,
		mapper:   mapper,
	}
}

// ReadCountKey is the ExecutionContext key holding the number of fragments read.
func (r *XMLFragmentReader[O]) ReadCountKey() string {
	return r.name + ".read.count"
}

// Open opens the document. A missing or unreadable file is a ReadError of kind Io.
func (r *XMLFragmentReader[O]) Open(ctx context.Context, ec model.ExecutionContext) error {
	if ec == nil {
		ec = model.NewExecutionContext()
	}
	r.ec = ec

	file, err := r.fs.Open(r.path)
	if err != nil {
		return exception.NewReadError(exception.ReadErrorIo, r.path, err)
	}
	r.file = file
	r.decoder = xml.NewDecoder(file)
	r.count = 0
	r.done = false
	r.ec.Put(r.ReadCountKey(), r.count)

	logger.Infof("XMLFragmentReader '%s': Opened %s (fragment <%s>).", r.name, r.path, r.fragment)
	return nil
}

// Read returns the next item, or port.ErrNoMoreItems once the document is exhausted.
func (r *XMLFragmentReader[O]) Read(ctx context.Context) (O, error) {
	var zero O
	if r.decoder == nil {
		return zero, exception.NewBatchError("reader", fmt.Sprintf("XMLFragmentReader '%s': Reader not opened or already closed.", r.name), errors.New("reader not initialized"), false, false)
	}
	if r.done {
		return zero, port.ErrNoMoreItems
	}

	for {
		tok, err := r.decoder.Token()
		if errors.Is(err, io.EOF) {
			r.done = true
			return zero, port.ErrNoMoreItems
		}
		if err != nil {
			return zero, r.tokenError(err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != r.fragment {
			continue
		}

		frag, err := r.collect(start)
		if err != nil {
			return zero, err
		}
		item, err := r.mapper(frag)
		if err != nil {
			return zero, exception.NewReadError(exception.ReadErrorParse, r.path, fmt.Errorf("fragment #%d: %w", r.count+1, err))
		}
		r.count++
		r.ec.Put(r.ReadCountKey(), r.count)
		return item, nil
	}
}

// collect reads the children of start up to its end element.
func (r *XMLFragmentReader[O]) collect(start xml.StartElement) (Fragment, error) {
	frag := make(Fragment)
	for {
		tok, err := r.decoder.Token()
		if err != nil {
			return nil, r.tokenError(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			text, err := r.text(t)
			if err != nil {
				return nil, err
			}
			frag[t.Name.Local] = text
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return frag, nil
			}
		}
	}
}

// text returns the character data directly inside el. Nested elements are skipped.
func (r *XMLFragmentReader[O]) text(el xml.StartElement) (string, error) {
	var sb strings.Builder
	for {
		tok, err := r.decoder.Token()
		if err != nil {
			return "", r.tokenError(err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			if err := r.decoder.Skip(); err != nil {
				return "", r.tokenError(err)
			}
		case xml.EndElement:
			return strings.TrimSpace(sb.String()), nil
		}
	}
}

// tokenError classifies decoder failures: malformed XML (including a truncated document)
// is a parse error, anything else comes from the underlying file.
func (r *XMLFragmentReader[O]) tokenError(err error) error {
	var syntaxErr *xml.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return exception.NewReadError(exception.ReadErrorParse, r.path, err)
	}
	return exception.NewReadError(exception.ReadErrorIo, r.path, err)
}

// Close releases the file. Closing an unopened reader is a no-op.
func (r *XMLFragmentReader[O]) Close(ctx context.Context) error {
	r.decoder = nil
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	if err != nil {
		return exception.NewReadError(exception.ReadErrorIo, r.path, err)
	}
	logger.Debugf("XMLFragmentReader '%s': Resources closed after %d fragments.", r.name, r.count)
	return nil
}

// GetExecutionContext returns the current ExecutionContext of the reader.
func (r *XMLFragmentReader[O]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	if r.ec == nil {
		return model.NewExecutionContext(), nil
	}
	return r.ec, nil
}

var _ port.ItemReader[any] = (*XMLFragmentReader[any])(nil)
