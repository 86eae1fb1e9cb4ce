package cache

import (
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/skyline93/bundlecache/internal/download"
)

// VerifyLevel selects how thoroughly a cached file is checked.
type VerifyLevel uint8

// Higher levels include every check of the lower ones.
const (
	VerifyNone VerifyLevel = iota
	VerifyLow
	VerifyMiddle
	VerifyHigh
)

var verifyLevelNames = []string{"none", "low", "middle", "high"}

func (l VerifyLevel) String() string {
	if int(l) < len(verifyLevelNames) {
		return verifyLevelNames[l]
	}
	return "invalid"
}

// ParseVerifyLevel parses the lower-case name of a verify level.
func ParseVerifyLevel(s string) (VerifyLevel, error) {
	for i, name := range verifyLevelNames {
		if strings.EqualFold(s, name) {
			return VerifyLevel(i), nil
		}
	}
	return 0, errors.Errorf("invalid verify level %q", s)
}

// InstallClearMode selects what is removed when the cache is opened by a
// different application version.
type InstallClearMode uint8

// Install clear modes.
const (
	InstallClearNone InstallClearMode = iota
	InstallClearAllCacheFiles
	InstallClearAllBundleFiles
	InstallClearAllManifestFiles
)

var installClearModeNames = []string{"None", "ClearAllCacheFiles", "ClearAllBundleFiles", "ClearAllManifestFiles"}

func (m InstallClearMode) String() string {
	if int(m) < len(installClearModeNames) {
		return installClearModeNames[m]
	}
	return "invalid"
}

// ParseInstallClearMode parses the name of an install clear mode.
func ParseInstallClearMode(s string) (InstallClearMode, error) {
	for i, name := range installClearModeNames {
		if strings.EqualFold(s, name) {
			return InstallClearMode(i), nil
		}
	}
	return 0, errors.Errorf("invalid install clear mode %q", s)
}

// Options configures a Cache. It is fixed once the cache is created.
type Options struct {
	// AppVersion is compared against the stored footprint on initialization.
	AppVersion string

	VerifyLevel         VerifyLevel
	InstallClearMode    InstallClearMode
	AppendFileExtension bool

	// Transfer limits handed to the default download center.
	MaxConcurrency      int
	MaxRequestsPerTick  int
	ResumeMinimumSize   int64
	ResumeResponseCodes []int

	// ScanPerTick bounds the bundle folders inspected per tick during
	// initialization, DeletePerTick the records removed per tick by clears.
	ScanPerTick   int
	DeletePerTick int

	RemoteServices        RemoteServices
	DecryptionServices    DecryptionServices
	ManifestServices      ManifestServices
	CopyLocalFileServices CopyLocalFileServices
}

// NewOptions returns the default options.
func NewOptions() Options {
	return Options{
		VerifyLevel:        VerifyMiddle,
		InstallClearMode:   InstallClearAllManifestFiles,
		MaxConcurrency:     math.MaxInt32,
		MaxRequestsPerTick: math.MaxInt32,
		ResumeMinimumSize:  math.MaxInt64,
		ScanPerTick:        64,
		DeletePerTick:      32,
	}
}

// Validate checks the options once before the cache is created.
func (o Options) Validate() error {
	if o.VerifyLevel > VerifyHigh {
		return errors.Errorf("invalid verify level %d", o.VerifyLevel)
	}
	if o.InstallClearMode > InstallClearAllManifestFiles {
		return errors.Errorf("invalid install clear mode %d", o.InstallClearMode)
	}
	if o.MaxConcurrency <= 0 {
		return errors.Errorf("max concurrency must be positive, got %d", o.MaxConcurrency)
	}
	if o.MaxRequestsPerTick <= 0 {
		return errors.Errorf("max requests per tick must be positive, got %d", o.MaxRequestsPerTick)
	}
	if o.ResumeMinimumSize < 0 {
		return errors.Errorf("resume minimum size must not be negative, got %d", o.ResumeMinimumSize)
	}
	for _, code := range o.ResumeResponseCodes {
		if code < 100 || code > 599 {
			return errors.Errorf("invalid resume response code %d", code)
		}
	}
	if o.ScanPerTick <= 0 || o.DeletePerTick <= 0 {
		return errors.New("per tick limits must be positive")
	}
	return nil
}

// DownloadOptions returns the transfer options of the download center.
func (o Options) DownloadOptions() download.Options {
	opts := download.NewOptions()
	opts.MaxConcurrency = o.MaxConcurrency
	opts.MaxRequestsPerTick = o.MaxRequestsPerTick
	opts.ResumeMinimumSize = o.ResumeMinimumSize
	opts.ResumeResponseCodes = append([]int(nil), o.ResumeResponseCodes...)
	return opts
}
