package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/contriboss/extbuild-go"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// cliConfig is the merged configuration of flags, EXTBUILD_* environment
// variables and extbuild.yaml, in that order of precedence.
type cliConfig struct {
	Root    string `mapstructure:"root"`
	Verbose bool   `mapstructure:"verbose"`
	Trace   bool   `mapstructure:"trace"`

	Package extbuild.Package  `mapstructure:"package"`
	Sources []extbuild.Source `mapstructure:"sources"`

	Dest       string            `mapstructure:"dest"`
	BuildDir   string            `mapstructure:"build_dir"`
	TempDir    string            `mapstructure:"temp_dir"`
	GOOS       string            `mapstructure:"goos"`
	Jobs       int               `mapstructure:"jobs"`
	CleanFirst bool              `mapstructure:"clean_first"`
	Env        map[string]string `mapstructure:"env"`

	// BuildRaise mirrors EXTBUILD_BUILD_RAISE and may also be set in the
	// config file.
	BuildRaise string `mapstructure:"build_raise"`
}

// configFlags maps config keys to the flag names bound to them.
var configFlags = map[string]string{
	"root":        "root",
	"verbose":     "verbose",
	"trace":       "trace",
	"dest":        "dest",
	"build_dir":   "build-dir",
	"goos":        "goos",
	"jobs":        "jobs",
	"clean_first": "clean-first",
}

func loadConfig(v *viper.Viper, flags *pflag.FlagSet) (*cliConfig, error) {
	v.SetEnvPrefix("EXTBUILD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("root", ".")
	v.SetDefault("dest", filepath.Join("build", "install"))
	v.SetDefault("build_raise", "")

	for key, name := range configFlags {
		if flag := flags.Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, err
			}
		}
	}

	root := v.GetString("root")
	if configFile, _ := flags.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("extbuild")
		v.SetConfigType("yaml")
		v.AddConfigPath(root)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg cliConfig
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// viper lower-cases map keys, environment variable names are not.
	env, err := readConfigEnv(v.ConfigFileUsed())
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if env != nil {
		cfg.Env = env
	}

	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	cfg.Root = abs
	if cfg.Dest != "" && !filepath.IsAbs(cfg.Dest) {
		cfg.Dest = filepath.Join(cfg.Root, cfg.Dest)
	}
	return &cfg, nil
}

// readConfigEnv returns the env mapping of a YAML or JSON config file with
// its keys as written.
func readConfigEnv(path string) (map[string]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Env map[string]string `yaml:"env"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw.Env, nil
}

// buildConfig returns the extension build configuration.
func (c *cliConfig) buildConfig() extbuild.BuildConfig {
	build := extbuild.BuildConfig{
		ProjectDir: c.Root,
		BuildDir:   c.BuildDir,
		TempDir:    c.TempDir,
		GOOS:       c.GOOS,
		Env:        c.Env,
		Verbose:    c.Verbose,
		CleanFirst: c.CleanFirst,
		Parallel:   c.Jobs,
	}
	if build.BuildDir != "" && !filepath.IsAbs(build.BuildDir) {
		build.BuildDir = filepath.Join(c.Root, build.BuildDir)
	}
	if build.TempDir != "" && !filepath.IsAbs(build.TempDir) {
		build.TempDir = filepath.Join(c.Root, build.TempDir)
	}
	return build
}

// sources returns the configured sources, or the defaults.
func (c *cliConfig) sources() []extbuild.Source {
	if len(c.Sources) > 0 {
		return c.Sources
	}
	return extbuild.DefaultSources()
}

// getenv resolves StrictEnvVar through the config so build_raise can also
// come from extbuild.yaml.
func (c *cliConfig) getenv(key string) string {
	if key == extbuild.StrictEnvVar {
		return c.BuildRaise
	}
	return os.Getenv(key)
}
