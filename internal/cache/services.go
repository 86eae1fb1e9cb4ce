package cache

import (
	"github.com/skyline93/bundlecache/internal/download"
	"github.com/skyline93/bundlecache/internal/manifest"
)

// RemoteServices resolves the remote locations of package files.
type RemoteServices interface {
	RemoteMainURL(fileName string) string
	RemoteFallbackURL(fileName string) string
}

// DecryptFileInfo describes an encrypted cached file.
type DecryptFileInfo struct {
	BundleName   string
	FileLoadCRC  string
	FileLoadPath string
}

// DecryptResult is the outcome of loading an encrypted bundle.
type DecryptResult struct {
	Data []byte
}

// DecryptionServices reads encrypted bundles.
type DecryptionServices interface {
	ReadFileData(info DecryptFileInfo) ([]byte, error)
	ReadFileText(info DecryptFileInfo) (string, error)
	LoadBundle(info DecryptFileInfo) (DecryptResult, error)
	LoadBundleAsync(info DecryptFileInfo) (DecryptResult, error)
	LoadBundleFallback(info DecryptFileInfo) (DecryptResult, error)
}

// ManifestServices decodes manifest files.
type ManifestServices interface {
	DecodeManifest(data []byte) (*manifest.Manifest, error)
}

// CopyLocalFileInfo describes a file shipped with the application that is
// copied into the staging area.
type CopyLocalFileInfo struct {
	BundleGUID string
	SourcePath string
	TargetPath string
}

// CopyLocalFileServices copies application shipped files.
type CopyLocalFileServices interface {
	CopyLocalFile(info CopyLocalFileInfo) error
}

// DownloadCenter is the transport collaborator. download.Center implements
// it.
type DownloadCenter interface {
	DownloadAsync(req download.Request) *download.Job
	Update()
	AbortAll()
}
