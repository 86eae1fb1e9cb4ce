package cache

import (
	"github.com/pkg/errors"

	"github.com/skyline93/bundlecache/internal/bundle"
	"github.com/skyline93/bundlecache/internal/fs"
)

func (c *Cache) decryptFileInfo(b bundle.Bundle) DecryptFileInfo {
	return DecryptFileInfo{
		BundleName:   b.Name,
		FileLoadCRC:  b.FileCRC,
		FileLoadPath: c.BundleFilePath(b),
	}
}

func (c *Cache) decryption() (DecryptionServices, error) {
	if c.opts.DecryptionServices == nil {
		return nil, missingCapability("DecryptionServices")
	}
	return c.opts.DecryptionServices, nil
}

// ReadBundleData returns the content of the cached copy of b, decrypted if b
// is encrypted.
func (c *Cache) ReadBundleData(b bundle.Bundle) ([]byte, error) {
	if !c.Exists(b) {
		return nil, errors.Wrapf(ErrNotFound, "bundle %v", b.GUID)
	}

	if b.Encrypted {
		svc, err := c.decryption()
		if err != nil {
			return nil, err
		}
		return svc.ReadFileData(c.decryptFileInfo(b))
	}

	return fs.ReadFile(c.fs, c.BundleFilePath(b))
}

// ReadBundleText is like ReadBundleData but returns a string.
func (c *Cache) ReadBundleText(b bundle.Bundle) (string, error) {
	if !c.Exists(b) {
		return "", errors.Wrapf(ErrNotFound, "bundle %v", b.GUID)
	}

	if b.Encrypted {
		svc, err := c.decryption()
		if err != nil {
			return "", err
		}
		return svc.ReadFileText(c.decryptFileInfo(b))
	}

	data, err := fs.ReadFile(c.fs, c.BundleFilePath(b))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LoadMode selects the decryption entry point used for encrypted bundles.
type LoadMode uint8

// Load modes of the decryption capability.
const (
	LoadSync LoadMode = iota
	LoadAsync
	LoadFallback
)

// LoadEncryptedBundle loads the encrypted bundle b through the decryption
// capability.
func (c *Cache) LoadEncryptedBundle(b bundle.Bundle, mode LoadMode) (DecryptResult, error) {
	svc, err := c.decryption()
	if err != nil {
		return DecryptResult{}, err
	}

	info := c.decryptFileInfo(b)
	switch mode {
	case LoadAsync:
		return svc.LoadBundleAsync(info)
	case LoadFallback:
		return svc.LoadBundleFallback(info)
	default:
		return svc.LoadBundle(info)
	}
}
