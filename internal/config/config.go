// Package config loads the bundle cache configuration file.
package config

import (
	"strings"

	"github.com/skyline93/bundlecache/internal/cache"
)

// Config is the content of a configuration file.
type Config struct {
	Root    string `mapstructure:"Root"`
	Package string `mapstructure:"Package"`

	AppVersion          string                 `mapstructure:"AppVersion"`
	VerifyLevel         cache.VerifyLevel      `mapstructure:"VerifyLevel"`
	InstallClearMode    cache.InstallClearMode `mapstructure:"InstallClearMode"`
	AppendFileExtension bool                   `mapstructure:"AppendFileExtension"`

	MaxConcurrency      int   `mapstructure:"MaxConcurrency"`
	MaxRequestsPerTick  int   `mapstructure:"MaxRequestsPerTick"`
	ResumeMinimumSize   int64 `mapstructure:"ResumeMinimumSize"`
	ResumeResponseCodes []int `mapstructure:"ResumeResponseCodes"`
	ScanPerTick         int   `mapstructure:"ScanPerTick"`
	DeletePerTick       int   `mapstructure:"DeletePerTick"`

	Remote  Remote `mapstructure:"Remote"`
	KeyFile string `mapstructure:"KeyFile"`
	Log     Log    `mapstructure:"Log"`
	Listen  string `mapstructure:"Listen"`
}

// Log configures the process logger.
type Log struct {
	Level      string `mapstructure:"Level"`
	Format     string `mapstructure:"Format"`
	File       string `mapstructure:"File"`
	MaxSize    int    `mapstructure:"MaxSize"`
	MaxBackups int    `mapstructure:"MaxBackups"`
	Compress   bool   `mapstructure:"Compress"`
}

// Remote locates the mirror package files are downloaded from. It implements
// cache.RemoteServices.
type Remote struct {
	MainURL     string `mapstructure:"MainURL"`
	FallbackURL string `mapstructure:"FallbackURL"`
}

var _ cache.RemoteServices = Remote{}

func joinURL(base, name string) string {
	if base == "" {
		return ""
	}
	return strings.TrimSuffix(base, "/") + "/" + name
}

// RemoteMainURL implements cache.RemoteServices.
func (r Remote) RemoteMainURL(fileName string) string {
	return joinURL(r.MainURL, fileName)
}

// RemoteFallbackURL implements cache.RemoteServices. Without a fallback
// mirror the main one is used.
func (r Remote) RemoteFallbackURL(fileName string) string {
	if r.FallbackURL == "" {
		return r.RemoteMainURL(fileName)
	}
	return joinURL(r.FallbackURL, fileName)
}

// Configured reports whether a mirror is set.
func (r Remote) Configured() bool {
	return r.MainURL != ""
}

// CacheOptions returns the cache options described by the configuration.
// Services are left for the caller to set.
func (c *Config) CacheOptions() cache.Options {
	opts := cache.NewOptions()
	opts.AppVersion = c.AppVersion
	opts.VerifyLevel = c.VerifyLevel
	opts.InstallClearMode = c.InstallClearMode
	opts.AppendFileExtension = c.AppendFileExtension
	opts.MaxConcurrency = c.MaxConcurrency
	opts.MaxRequestsPerTick = c.MaxRequestsPerTick
	opts.ResumeMinimumSize = c.ResumeMinimumSize
	opts.ResumeResponseCodes = append([]int(nil), c.ResumeResponseCodes...)
	opts.ScanPerTick = c.ScanPerTick
	opts.DeletePerTick = c.DeletePerTick
	if c.Remote.Configured() {
		opts.RemoteServices = c.Remote
	}
	return opts
}
