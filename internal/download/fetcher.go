package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/skyline93/bundlecache/internal/fs"
)

// Fetcher transfers the resource at url into w, skipping the first offset
// bytes. Implementations report resource-level failures as *ResponseError so
// the center can decide whether a partial file may be resumed.
type Fetcher interface {
	Fetch(ctx context.Context, url string, offset int64, w io.Writer) error
}

// ResponseError is a failed transfer together with the response code the
// remote side reported.
type ResponseError struct {
	URL  string
	Code int
	Err  error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("fetch %v: response code %d: %v", e.URL, e.Code, e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// Response codes used by FileFetcher.
const (
	CodeNotFound            = 404
	CodeRangeNotSatisfiable = 416
	CodeInternalServerError = 500
	CodeServiceUnavailable  = 503
)

const (
	fileURLPrefix  = "file://"
	copyBufferSize = 32 * 1024
)

// FileFetcher reads resources from a local mirror directory. URLs are plain
// paths or file:// URLs; a query suffix is ignored.
type FileFetcher struct {
	FS fs.FS
}

// Fetch implements Fetcher.
func (f FileFetcher) Fetch(ctx context.Context, url string, offset int64, w io.Writer) error {
	name := strings.TrimPrefix(url, fileURLPrefix)
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}

	in, err := f.FS.Open(name)
	if err != nil {
		code := CodeInternalServerError
		if os.IsNotExist(err) {
			code = CodeNotFound
		}
		return &ResponseError{URL: url, Code: code, Err: err}
	}
	defer func() { _ = in.Close() }()

	if offset > 0 {
		fi, err := in.Stat()
		if err != nil {
			return &ResponseError{URL: url, Code: CodeInternalServerError, Err: err}
		}
		if offset > fi.Size() {
			return &ResponseError{URL: url, Code: CodeRangeNotSatisfiable,
				Err: errors.Errorf("offset %d beyond size %d", offset, fi.Size())}
		}
		if _, err := in.Seek(offset, io.SeekStart); err != nil {
			return &ResponseError{URL: url, Code: CodeInternalServerError, Err: err}
		}
	}

	_, err = copyWithContext(ctx, w, in)
	return err
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, copyBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
