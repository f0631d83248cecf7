package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/contriboss/extbuild-go"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `package:
  name: ddtrace
  version: 0.20.0
  packages: [ddtrace]
  exclude: ["*.c"]
sources:
  - name: wrapt
    module: ddtrace.vendor.wrapt.setup
    path: ddtrace/vendor/wrapt/extensions.yaml
build_dir: out/lib
goos: linux
env:
  CFLAGS: -O2
  CC: clang
`

func testFlags(t *testing.T, root string, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("extbuild", pflag.ContinueOnError)
	flags.String("config", "", "")
	flags.String("root", ".", "")
	flags.BoolP("verbose", "v", false, "")
	flags.String("goos", "", "")
	flags.IntP("jobs", "j", 0, "")
	require.NoError(t, flags.Parse(append([]string{"--root", root}, args...)))
	return flags
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Setenv(extbuild.StrictEnvVar, "")
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "extbuild.yaml"), []byte(testConfig), 0o644))

	cfg, err := loadConfig(viper.New(), testFlags(t, root))
	require.NoError(t, err)

	assert.Equal(t, "ddtrace", cfg.Package.Name)
	assert.Equal(t, []string{"ddtrace"}, cfg.Package.Packages)
	assert.Equal(t, []extbuild.Source{{
		Name:   "wrapt",
		Module: "ddtrace.vendor.wrapt.setup",
		Path:   "ddtrace/vendor/wrapt/extensions.yaml",
	}}, cfg.sources())
	assert.Equal(t, filepath.Join(root, "build", "install"), cfg.Dest)

	build := cfg.buildConfig()
	assert.Equal(t, root, build.ProjectDir)
	assert.Equal(t, filepath.Join(root, "out", "lib"), build.BuildDir)
	assert.Equal(t, "linux", build.GOOS)
	assert.Equal(t, map[string]string{"CFLAGS": "-O2", "CC": "clang"}, build.Env)
	assert.Empty(t, cfg.getenv(extbuild.StrictEnvVar))
}

func TestLoadConfigPrecedence(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "extbuild.yaml"), []byte(testConfig), 0o644))
	t.Setenv("EXTBUILD_BUILD_RAISE", "TRUE")
	t.Setenv("EXTBUILD_GOOS", "darwin")

	cfg, err := loadConfig(viper.New(), testFlags(t, root, "--goos", "windows", "-j", "4"))
	require.NoError(t, err)

	assert.Equal(t, "windows", cfg.GOOS)
	assert.Equal(t, 4, cfg.Jobs)
	assert.Equal(t, "TRUE", cfg.getenv(extbuild.StrictEnvVar))
	assert.True(t, extbuild.StrictFromEnv(cfg.getenv))
}

func TestLoadConfigSplitsCommaSeparatedLists(t *testing.T) {
	root := t.TempDir()
	config := "package:\n  name: ddtrace\n  version: 0.20.0\n  packages: ddtrace,ddtrace_ext\n  exclude: \"*.c,*.cpp\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "extbuild.yaml"), []byte(config), 0o644))

	cfg, err := loadConfig(viper.New(), testFlags(t, root))
	require.NoError(t, err)

	assert.Equal(t, []string{"ddtrace", "ddtrace_ext"}, cfg.Package.Packages)
	assert.Equal(t, []string{"*.c", "*.cpp"}, cfg.Package.Exclude)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	root := t.TempDir()

	cfg, err := loadConfig(viper.New(), testFlags(t, root))
	require.NoError(t, err)

	assert.Empty(t, cfg.Package.Name)
	assert.Equal(t, extbuild.DefaultSources(), cfg.sources())
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("package: [unclosed"), 0o644))

	_, err := loadConfig(viper.New(), testFlags(t, root, "--config", path))

	assert.ErrorContains(t, err, "failed to read config")
}

func TestLoadConfigKeepsEnvCase(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "custom.yml")
	config := "env:\n  LDFLAGS: -Wl,-rpath,$ORIGIN\n  MACOSX_DEPLOYMENT_TARGET: \"10.9\"\n"
	require.NoError(t, os.WriteFile(path, []byte(config), 0o644))

	cfg, err := loadConfig(viper.New(), testFlags(t, root, "--config", path))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"LDFLAGS":                  "-Wl,-rpath,$ORIGIN",
		"MACOSX_DEPLOYMENT_TARGET": "10.9",
	}, cfg.buildConfig().Env)
}
