package config

import (
	"reflect"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/skyline93/bundlecache/internal/cache"
)

// EnvPrefix prefixes the environment variables overriding file settings,
// e.g. BUNDLECACHE_VERIFYLEVEL or BUNDLECACHE_LOG_LEVEL.
const EnvPrefix = "BUNDLECACHE"

// Load reads the configuration file at path. An empty path yields the
// defaults. Unknown keys are logged and ignored.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	known := make(map[string]struct{})
	for _, key := range v.AllKeys() {
		known[key] = struct{}{}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %v", path)
		}
	}

	for _, key := range unknownKeys(v, known) {
		log.WithField("key", key).Warn("ignoring unknown configuration key")
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		verifyLevelDecodeHook(),
		installClearModeDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if err := cfg.CacheOptions().Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := cache.NewOptions()
	v.SetDefault("Root", "./bundlecache")
	v.SetDefault("Package", "DefaultPackage")
	v.SetDefault("AppVersion", "")
	v.SetDefault("VerifyLevel", d.VerifyLevel.String())
	v.SetDefault("InstallClearMode", d.InstallClearMode.String())
	v.SetDefault("AppendFileExtension", false)
	v.SetDefault("MaxConcurrency", d.MaxConcurrency)
	v.SetDefault("MaxRequestsPerTick", d.MaxRequestsPerTick)
	v.SetDefault("ResumeMinimumSize", d.ResumeMinimumSize)
	v.SetDefault("ResumeResponseCodes", []int{})
	v.SetDefault("ScanPerTick", d.ScanPerTick)
	v.SetDefault("DeletePerTick", d.DeletePerTick)
	v.SetDefault("Remote.MainURL", "")
	v.SetDefault("Remote.FallbackURL", "")
	v.SetDefault("KeyFile", "")
	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.Format", "text")
	v.SetDefault("Log.File", "")
	v.SetDefault("Log.MaxSize", 100)
	v.SetDefault("Log.MaxBackups", 10)
	v.SetDefault("Log.Compress", true)
	v.SetDefault("Listen", "127.0.0.1:8080")
}

func unknownKeys(v *viper.Viper, known map[string]struct{}) []string {
	var unknown []string
	for _, key := range v.AllKeys() {
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func verifyLevelDecodeHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(cache.VerifyLevel(0))
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != target || from.Kind() != reflect.String {
			return data, nil
		}
		return cache.ParseVerifyLevel(data.(string))
	}
}

func installClearModeDecodeHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(cache.InstallClearMode(0))
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != target || from.Kind() != reflect.String {
			return data, nil
		}
		return cache.ParseInstallClearMode(data.(string))
	}
}
