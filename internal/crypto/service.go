package crypto

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/bundlecache/internal/cache"
	"github.com/skyline93/bundlecache/internal/fs"
)

// Service decrypts cached bundles that were written by EncryptFile.
type Service struct {
	fs  fs.FS
	key *Key
}

var _ cache.DecryptionServices = (*Service)(nil)

// NewService returns a decryption service using key.
func NewService(fsys fs.FS, key *Key) *Service {
	return &Service{fs: fsys, key: key}
}

func (s *Service) decrypt(info cache.DecryptFileInfo) ([]byte, error) {
	data, err := fs.ReadFile(s.fs, info.FileLoadPath)
	if err != nil {
		return nil, err
	}

	plain, err := s.key.Decrypt(data)
	if err != nil {
		log.WithFields(log.Fields{
			"bundle": info.BundleName,
			"path":   info.FileLoadPath,
		}).Warnf("decrypt bundle failed: %v", err)
		return nil, errors.Wrapf(err, "decrypt %v", info.BundleName)
	}
	return plain, nil
}

// ReadFileData returns the decrypted content of the file.
func (s *Service) ReadFileData(info cache.DecryptFileInfo) ([]byte, error) {
	return s.decrypt(info)
}

// ReadFileText returns the decrypted content of the file as a string.
func (s *Service) ReadFileText(info cache.DecryptFileInfo) (string, error) {
	data, err := s.decrypt(info)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LoadBundle decrypts the bundle into memory.
func (s *Service) LoadBundle(info cache.DecryptFileInfo) (cache.DecryptResult, error) {
	data, err := s.decrypt(info)
	if err != nil {
		return cache.DecryptResult{}, err
	}
	return cache.DecryptResult{Data: data}, nil
}

// LoadBundleAsync is LoadBundle; the whole file is decrypted at once.
func (s *Service) LoadBundleAsync(info cache.DecryptFileInfo) (cache.DecryptResult, error) {
	return s.LoadBundle(info)
}

// LoadBundleFallback checks the on-disk checksum before decrypting, so a
// damaged file is reported as such rather than as an authentication failure.
func (s *Service) LoadBundleFallback(info cache.DecryptFileInfo) (cache.DecryptResult, error) {
	if info.FileLoadCRC != "" {
		crc, err := cache.FileCRC(s.fs, info.FileLoadPath)
		if err != nil {
			return cache.DecryptResult{}, err
		}
		if !strings.EqualFold(crc, info.FileLoadCRC) {
			return cache.DecryptResult{}, errors.Errorf("bundle %v: crc %v does not match %v", info.BundleName, crc, info.FileLoadCRC)
		}
	}
	return s.LoadBundle(info)
}

// EncryptFile encrypts src with key and writes the result to dst. It returns
// the size and CRC of the encrypted file, which is what a manifest records
// for an encrypted bundle.
func EncryptFile(fsys fs.FS, key *Key, src, dst string) (size int64, crc string, err error) {
	plain, err := fs.ReadFile(fsys, src)
	if err != nil {
		return 0, "", err
	}

	data := key.Encrypt(plain)
	if err := fs.CreateFileDirectory(fsys, dst); err != nil {
		return 0, "", err
	}
	if err := fs.WriteFile(fsys, dst, data); err != nil {
		return 0, "", err
	}

	return int64(len(data)), cache.CRC(data), nil
}
