package cache

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/skyline93/bundlecache/internal/fs"
)

// The info file stores the checksum and the size of a data file:
//
//	[uint16 LE length][UTF-8 checksum][int64 LE size]
//
// The format carries no version. Changing it requires wiping the cache.
const infoScratchSize = 1024

// infoCodec writes info files through one reusable scratch buffer.
type infoCodec struct {
	mu  sync.Mutex
	buf []byte
}

func newInfoCodec() *infoCodec {
	return &infoCodec{buf: make([]byte, 0, infoScratchSize)}
}

// appendInfo encodes checksum and size to buf.
func appendInfo(buf []byte, checksum string, size int64) ([]byte, error) {
	if len(checksum) > math.MaxUint16 {
		return buf, errors.Errorf("checksum too long: %d bytes", len(checksum))
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(checksum)))
	buf = append(buf, checksum...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(size))
	return buf, nil
}

// decodeInfo parses the content of an info file.
func decodeInfo(data []byte) (checksum string, size int64, err error) {
	if len(data) < 2 {
		return "", 0, errors.New("info file truncated: missing checksum length")
	}
	n := int(binary.LittleEndian.Uint16(data))
	data = data[2:]
	if len(data) < n+8 {
		return "", 0, errors.Errorf("info file truncated: want %d bytes, got %d", n+8, len(data))
	}
	checksum = string(data[:n])
	size = int64(binary.LittleEndian.Uint64(data[n : n+8]))
	return checksum, size, nil
}

// Write stores checksum and size in a freshly truncated file at path. The
// file is synced before it is closed.
func (c *infoCodec) Write(fsys fs.FS, path string, checksum string, size int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, err := appendInfo(c.buf[:0], checksum, size)
	if err != nil {
		return err
	}
	c.buf = buf

	return fs.WriteFile(fsys, path, buf)
}

// readInfoFile returns the checksum and size stored at path.
func readInfoFile(fsys fs.FS, path string) (string, int64, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return "", 0, errors.Wrap(err, "ReadFile")
	}
	return decodeInfo(data)
}
