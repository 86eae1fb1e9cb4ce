package manifest

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/sha256-simd"
	"github.com/pkg/errors"
)

// formatZstd is the leading byte of a compressed manifest file.
const formatZstd = 2

// Codec encodes manifests as zstd-compressed JSON. It satisfies the cache's
// manifest capability.
type Codec struct {
	allocEnc sync.Once
	allocDec sync.Once
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

// NewCodec returns a ready to use Codec.
func NewCodec() *Codec {
	return &Codec{}
}

func (c *Codec) encoder() *zstd.Encoder {
	c.allocEnc.Do(func() {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			// the hash file already protects the content
			zstd.WithEncoderCRC(false),
		)
		if err != nil {
			panic(err)
		}
		c.enc = enc
	})
	return c.enc
}

func (c *Codec) decoder() *zstd.Decoder {
	c.allocDec.Do(func() {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(err)
		}
		c.dec = dec
	})
	return c.dec
}

// Encode serialises m.
func (c *Codec) Encode(m *Manifest) ([]byte, error) {
	if m.FileVersion == "" {
		m.FileVersion = FormatVersion
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "json.Marshal")
	}

	out := []byte{formatZstd}
	return c.encoder().EncodeAll(buf, out), nil
}

// DecodeManifest parses data produced by Encode. Plain JSON is accepted as
// well.
func (c *Codec) DecodeManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, errors.New("empty manifest data")
	}

	buf := data
	switch {
	case data[0] == '{':
		// raw JSON
	case data[0] == formatZstd:
		var err error
		buf, err = c.decoder().DecodeAll(data[1:], nil)
		if err != nil {
			return nil, errors.Wrap(err, "zstd.DecodeAll")
		}
	default:
		return nil, errors.Errorf("unsupported manifest format %#x", data[0])
	}

	m := &Manifest{}
	if err := json.Unmarshal(buf, m); err != nil {
		return nil, errors.Wrap(err, "json.Unmarshal")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Hash returns the hex encoded SHA-256 of a manifest file.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MatchHash compares data against the content of a hash file.
func MatchHash(data []byte, hashFile []byte) bool {
	return Hash(data) == strings.TrimSpace(string(hashFile))
}
